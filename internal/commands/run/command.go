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

// Package run implements the interactive survey runner: it renders one
// block at a time, asks the navigation resolver for the next step after
// each answer, and tracks history so the respondent can go back.
package run

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/formwalk/formwalk/internal/commands/shared"
	"github.com/formwalk/formwalk/internal/log"
	"github.com/formwalk/formwalk/internal/session"
	"github.com/formwalk/formwalk/pkg/survey"
)

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	var (
		watch       bool
		resumePath  string
		sessionPath string
		login       bool
	)

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run a survey interactively",
		Long: `Run loads a survey definition and walks through it block by block.
Navigation rules are evaluated after each answer to decide the next
step. Type :back at any input to return to the previous step.

On interrupt (Ctrl+C) the session is saved so it can be resumed with
--resume.`,
		Example: `  # Run a survey
  formwalk run survey.yaml

  # Resume an interrupted session
  formwalk run survey.yaml --resume survey.session.json

  # Reload the definition on change while answering
  formwalk run survey.yaml --watch`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSurvey(cmd, args[0], options{
				watch:       watch,
				resumePath:  resumePath,
				sessionPath: sessionPath,
				login:       login,
			})
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Reload the definition when the file changes")
	cmd.Flags().StringVar(&resumePath, "resume", "", "Resume from a saved session file")
	cmd.Flags().StringVar(&sessionPath, "session", "", "Where to save the session on interrupt (default: <file>.session.json)")
	cmd.Flags().BoolVar(&login, "login", false, "Prompt for an auth token before starting")

	return cmd
}

type options struct {
	watch       bool
	resumePath  string
	sessionPath string
	login       bool
}

func runSurvey(cmd *cobra.Command, path string, opts options) error {
	logger := log.WithComponent(log.New(log.FromEnv()), "run")

	def, err := survey.Load(path)
	if err != nil {
		return shared.NewInvalidDefinitionError("failed to load definition", err)
	}
	if err := def.Validate(); err != nil {
		return shared.NewInvalidDefinitionError("definition is invalid", err)
	}

	store := session.NewTokenStore()
	if opts.login {
		token, err := session.PromptToken(os.Stdin, cmd.OutOrStdout())
		if err != nil {
			return &shared.ExitError{Code: shared.ExitAuthError, Message: "failed to read token", Cause: err}
		}
		if err := store.Save(token); err != nil {
			logger.Warn("could not persist token", "error", err)
		}
	}

	if opts.sessionPath == "" {
		opts.sessionPath = path + ".session.json"
	}

	r, err := newRunner(cmd, def, path, store, logger, opts)
	if err != nil {
		return err
	}
	return r.run(cmd.Context())
}
