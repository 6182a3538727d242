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

package run

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/formwalk/formwalk/internal/session"
	"github.com/formwalk/formwalk/pkg/survey"
)

// action reports how the respondent answered a block.
type action int

const (
	actionAnswer action = iota
	actionBack
)

// backInput is the literal a respondent types at a text prompt to go
// back one step.
const backInput = ":back"

// backOption is the list entry prepended to select prompts when back
// navigation is available.
const backOption = "← Back"

// askBlock renders one block and collects its answer.
func (r *runner) askBlock(ctx context.Context, block *survey.Block) (interface{}, action, error) {
	switch block.Type {
	case survey.BlockTypeStatement:
		return r.askStatement(ctx, block)
	case survey.BlockTypeSelect:
		return r.askSelect(ctx, block)
	case survey.BlockTypeMultiSelect:
		return r.askMultiSelect(ctx, block)
	case survey.BlockTypeCheckbox:
		return r.askCheckbox(ctx, block)
	case survey.BlockTypeNumber:
		return r.askNumber(ctx, block)
	case survey.BlockTypeDate:
		return r.askDate(ctx, block)
	case survey.BlockTypeAuth:
		return r.askAuth(block)
	default:
		return r.askInput(ctx, block)
	}
}

func (r *runner) askInput(ctx context.Context, block *survey.Block) (interface{}, action, error) {
	var value string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title(blockTitle(block)).
			Description(blockDescription(block)).
			Value(&value),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return nil, actionAnswer, err
	}
	if strings.TrimSpace(value) == backInput {
		return nil, actionBack, nil
	}
	return value, actionAnswer, nil
}

func (r *runner) askNumber(ctx context.Context, block *survey.Block) (interface{}, action, error) {
	var value string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title(blockTitle(block)).
			Description(blockDescription(block)).
			Value(&value).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == backInput {
					return nil
				}
				if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
					return fmt.Errorf("enter a number")
				}
				return nil
			}),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return nil, actionAnswer, err
	}
	if strings.TrimSpace(value) == backInput {
		return nil, actionBack, nil
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return nil, actionAnswer, err
	}
	return n, actionAnswer, nil
}

func (r *runner) askDate(ctx context.Context, block *survey.Block) (interface{}, action, error) {
	var value string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title(blockTitle(block)).
			Description(joinDescription(blockDescription(block), "Format: YYYY-MM-DD")).
			Value(&value).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == backInput {
					return nil
				}
				if _, err := time.Parse("2006-01-02", strings.TrimSpace(s)); err != nil {
					return fmt.Errorf("enter a date as YYYY-MM-DD")
				}
				return nil
			}),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return nil, actionAnswer, err
	}
	if strings.TrimSpace(value) == backInput {
		return nil, actionBack, nil
	}
	return strings.TrimSpace(value), actionAnswer, nil
}

// withBackOption prepends the back entry to list options when back
// navigation is available.
func withBackOption(options []string, canGoBack bool) []string {
	if !canGoBack {
		return options
	}
	return append([]string{backOption}, options...)
}

// multiSelectAnswer folds a multiselect result into the answer shape
// conditions see. Picking back wins over any other selections made
// alongside it.
func multiSelectAnswer(values []string) (interface{}, action) {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		if v == backOption {
			return nil, actionBack
		}
		out = append(out, v)
	}
	return out, actionAnswer
}

func (r *runner) askSelect(ctx context.Context, block *survey.Block) (interface{}, action, error) {
	options := withBackOption(block.Options, r.history.CanGoBack())

	var value string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title(blockTitle(block)).
			Description(blockDescription(block)).
			Options(huh.NewOptions(options...)...).
			Value(&value),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return nil, actionAnswer, err
	}
	if value == backOption {
		return nil, actionBack, nil
	}
	return value, actionAnswer, nil
}

func (r *runner) askMultiSelect(ctx context.Context, block *survey.Block) (interface{}, action, error) {
	options := withBackOption(block.Options, r.history.CanGoBack())

	var values []string
	form := huh.NewForm(huh.NewGroup(
		huh.NewMultiSelect[string]().
			Title(blockTitle(block)).
			Description(blockDescription(block)).
			Options(huh.NewOptions(options...)...).
			Value(&values),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return nil, actionAnswer, err
	}

	answer, act := multiSelectAnswer(values)
	return answer, act, nil
}

func (r *runner) askCheckbox(ctx context.Context, block *survey.Block) (interface{}, action, error) {
	// With history behind it the checkbox renders as a three-way select
	// so back stays reachable; huh's confirm has no escape hatch.
	if r.history.CanGoBack() {
		var value string
		form := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title(blockTitle(block)).
				Description(blockDescription(block)).
				Options(huh.NewOptions("Yes", "No", backOption)...).
				Value(&value),
		))
		if err := form.RunWithContext(ctx); err != nil {
			return nil, actionAnswer, err
		}
		if value == backOption {
			return nil, actionBack, nil
		}
		return value == "Yes", actionAnswer, nil
	}

	var value bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(blockTitle(block)).
			Description(blockDescription(block)).
			Value(&value),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return nil, actionAnswer, err
	}
	return value, actionAnswer, nil
}

func (r *runner) askStatement(ctx context.Context, block *survey.Block) (interface{}, action, error) {
	if r.history.CanGoBack() {
		var value string
		form := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title(blockTitle(block)).
				Description(blockDescription(block)).
				Options(huh.NewOptions("Continue", backOption)...).
				Value(&value),
		))
		if err := form.RunWithContext(ctx); err != nil {
			return nil, actionAnswer, err
		}
		if value == backOption {
			return nil, actionBack, nil
		}
		return nil, actionAnswer, nil
	}

	form := huh.NewForm(huh.NewGroup(
		huh.NewNote().
			Title(blockTitle(block)).
			Description(blockDescription(block)),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return nil, actionAnswer, err
	}
	return nil, actionAnswer, nil
}

// askAuth gates on a valid token. An already-authenticated respondent
// passes straight through; otherwise the token is prompted for, checked,
// and stored.
func (r *runner) askAuth(block *survey.Block) (interface{}, action, error) {
	if r.store.Authenticated(r.secret) {
		return r.authAnswer(), actionAnswer, nil
	}

	token, err := session.PromptToken(os.Stdin, r.cmd.OutOrStdout())
	if err != nil {
		return nil, actionAnswer, err
	}
	if strings.TrimSpace(token) == backInput {
		return nil, actionBack, nil
	}
	if _, err := r.store.Validate(token, r.secret); err != nil {
		return nil, actionAnswer, fmt.Errorf("token rejected: %w", err)
	}
	if err := r.store.Save(token); err != nil {
		r.logger.Warn("could not persist token", "error", err)
	}
	return r.authAnswer(), actionAnswer, nil
}

func (r *runner) authAnswer() interface{} {
	token, err := r.store.Load()
	if err != nil {
		return true
	}
	claims, err := r.store.Validate(token, r.secret)
	if err != nil || claims.UserID == "" {
		return true
	}
	return claims.UserID
}

func blockTitle(block *survey.Block) string {
	if block.Title != "" {
		return block.Title
	}
	return block.FieldName
}

func blockDescription(block *survey.Block) string {
	return block.Description
}

func joinDescription(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n")
}
