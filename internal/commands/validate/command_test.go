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

package validate

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formwalk/formwalk/internal/commands/shared"
)

const validDefinition = `
name: feedback
root:
  uuid: 9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d
  items:
    - type: set
      uuid: 1b671a64-40d5-491e-99b0-da01ff1f3341
      items:
        - type: input
          uuid: 7c9e6679-7425-40de-944b-e07fc1f90ae7
          field: name
          title: "Your name?"
computed:
  - name: name_lc
    expression: ".name | ascii_downcase"
`

const invalidDefinition = `
root:
  uuid: 9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d
  items:
    - type: input
      uuid: not-a-uuid
      field: name
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestValidate_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "survey.yaml", validDefinition)

	out, _, err := execute(t, path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 files valid")
}

func TestValidate_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", invalidDefinition)

	_, errOut, err := execute(t, path)
	require.Error(t, err)

	var exitErr *shared.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, shared.ExitInvalidDefinition, exitErr.Code)
	assert.Contains(t, errOut, "bad.yaml")
}

func TestValidate_GlobExpansion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	writeFile(t, dir, "a.yaml", validDefinition)
	writeFile(t, filepath.Join(dir, "nested"), "b.yaml", validDefinition)

	out, _, err := execute(t, filepath.Join(dir, "**", "*.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "2 files valid")
}

func TestValidate_MissingLiteralPathFails(t *testing.T) {
	_, _, err := execute(t, "does-not-exist.yaml")
	require.Error(t, err)
}

func TestValidate_NoMatches(t *testing.T) {
	dir := t.TempDir()
	_, _, err := execute(t, filepath.Join(dir, "*.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files match")
}

func TestValidate_BrokenComputedExpression(t *testing.T) {
	dir := t.TempDir()
	broken := validDefinition + `  - name: bad
    expression: ".name |"
`
	path := writeFile(t, dir, "survey.yaml", broken)

	_, errOut, err := execute(t, path)
	require.Error(t, err)
	assert.Contains(t, errOut, "bad")
}

func TestExpandGlobs_Deduplicates(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.yaml", validDefinition)

	paths, err := expandGlobs([]string{path, filepath.Join(dir, "*.yaml")})
	require.NoError(t, err)
	assert.Equal(t, []string{path}, paths)
}
