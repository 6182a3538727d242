// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formwalk/formwalk/internal/commands/shared"
)

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "formwalk", cmd.Use)
	assert.True(t, cmd.SilenceUsage)
	assert.True(t, cmd.SilenceErrors)

	for _, name := range []string{"verbose", "quiet", "json", "no-color"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestRootCommand_GlobalFlagsBind(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--json", "--quiet"})

	require.NoError(t, cmd.Execute())
	assert.True(t, shared.GetJSON())
	assert.True(t, shared.GetQuiet())

	// Reset for other tests.
	cmd.SetArgs([]string{})
	verbose, quiet, json, noColor := shared.RegisterFlagPointers()
	*verbose, *quiet, *json, *noColor = false, false, false, false
}

func TestSetVersion(t *testing.T) {
	SetVersion("9.9.9", "deadbee", "2026-01-01")
	v, c, b := shared.GetVersion()
	assert.Equal(t, "9.9.9", v)
	assert.Equal(t, "deadbee", c)
	assert.Equal(t, "2026-01-01", b)
}
