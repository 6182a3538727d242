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
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/formwalk/formwalk/internal/commands/shared"
	"github.com/formwalk/formwalk/pkg/survey"
	"github.com/formwalk/formwalk/pkg/survey/computed"
)

// NewCommand creates the validate command
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <glob...>",
		Short: "Validate survey definition files",
		Long: `Validate checks that survey definition files have valid YAML syntax,
well-formed blocks (unique UUIDs, resolvable rule targets, known
operators), and compilable computed-field expressions.

Arguments are glob patterns; ** matches across directories.`,
		Example: `  # Validate a single definition
  formwalk validate survey.yaml

  # Validate everything under surveys/
  formwalk validate 'surveys/**/*.yaml'`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on validation errors
		SilenceErrors: true, // Don't print error message (we handle it ourselves)
		RunE:          runValidate,
	}

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	paths, err := expandGlobs(args)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitInvalidDefinition, Message: err.Error()}
	}
	if len(paths) == 0 {
		return &shared.ExitError{Code: shared.ExitInvalidDefinition, Message: "no files match the given patterns"}
	}

	failures := 0
	provider := computed.NewProvider()
	for _, path := range paths {
		findings := validateFile(path, provider)
		if len(findings) == 0 {
			if !shared.GetQuiet() {
				cmd.Println(shared.RenderOK(path))
			}
			continue
		}

		failures++
		cmd.PrintErrln(shared.RenderError(path))
		for _, f := range findings {
			cmd.PrintErrf("  %s\n", f)
		}
	}

	if failures > 0 {
		return &shared.ExitError{
			Code:    shared.ExitInvalidDefinition,
			Message: fmt.Sprintf("%d of %d files failed validation", failures, len(paths)),
		}
	}
	if !shared.GetQuiet() {
		cmd.Printf("%d files valid\n", len(paths))
	}
	return nil
}

// expandGlobs resolves each pattern relative to the working directory.
// A pattern without glob metacharacters is treated as a literal path so
// missing files are reported instead of silently matching nothing.
func expandGlobs(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var paths []string

	for _, pattern := range patterns {
		if !hasGlobMeta(pattern) {
			if !seen[pattern] {
				seen[pattern] = true
				paths = append(paths, pattern)
			}
			continue
		}

		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}

	sort.Strings(paths)
	return paths, nil
}

func hasGlobMeta(pattern string) bool {
	for _, r := range pattern {
		switch r {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

// validateFile returns human-readable findings; empty means valid.
func validateFile(path string, provider *computed.Provider) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return []string{fmt.Sprintf("failed to read file: %v", err)}
	}

	def, err := survey.Parse(data)
	if err != nil {
		return []string{err.Error()}
	}

	var findings []string
	if err := def.Validate(); err != nil {
		findings = append(findings, flatten(err)...)
	}
	for _, f := range def.Computed {
		if err := provider.Validate(f.Expression); err != nil {
			findings = append(findings, fmt.Sprintf("computed field %q: %v", f.Name, err))
		}
	}
	return findings
}

// flatten splits a joined validation error into individual findings.
func flatten(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
