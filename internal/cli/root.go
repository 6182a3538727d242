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

// Package cli wires the root command and global flag handling.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/formwalk/formwalk/internal/commands/shared"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for formwalk
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "formwalk",
		Short: "formwalk - conditional survey runner",
		Long: `Formwalk runs multi-step surveys in the terminal. Survey definitions
declare pages, blocks, and conditional navigation rules; formwalk
evaluates the rules against collected answers to decide which step
comes next, tracks history for back navigation, and can save and
resume sessions.

Run 'formwalk validate survey.yaml' to check a definition.
Run 'formwalk run survey.yaml' to start a survey.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	// Get flag pointers from shared package
	verbose, quiet, json, noColor := shared.RegisterFlagPointers()

	// Add global flags
	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().BoolVar(noColor, "no-color", false, "Disable styled output")

	return cmd
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
