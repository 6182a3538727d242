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
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	askv2 "github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/formwalk/formwalk/internal/commands/shared"
	"github.com/formwalk/formwalk/internal/session"
	"github.com/formwalk/formwalk/pkg/survey"
	"github.com/formwalk/formwalk/pkg/survey/computed"
	"github.com/formwalk/formwalk/pkg/survey/condition"
	"github.com/formwalk/formwalk/pkg/survey/graph"
	"github.com/formwalk/formwalk/pkg/survey/navigation"
)

// jwtSecretEnvVar optionally holds the HS256 secret for verifying auth
// tokens. Without it, tokens are only checked for expiry.
const jwtSecretEnvVar = "FORMWALK_JWT_SECRET"

// runner drives one survey session in the terminal.
type runner struct {
	cmd    *cobra.Command
	def    *survey.Definition
	path   string
	opts   options
	logger *slog.Logger

	mu    sync.Mutex // guards def and graph swaps from the watcher
	graph *graph.Graph

	eval     *condition.Evaluator
	resolver *navigation.Resolver
	provider *computed.Provider
	history  *navigation.History
	sess     *navigation.Session

	store  *session.TokenStore
	secret []byte

	// leaving is set by the terminal sink when internal history is
	// exhausted: there is nowhere further back inside the survey.
	leaving atomic.Bool
}

// terminalSink is the host history for a terminal run. There is no outer
// navigation stack to mirror, so forward transitions are dropped and a
// native back means leaving the survey.
type terminalSink struct {
	r *runner
}

func (terminalSink) Push(navigation.Entry)    {}
func (terminalSink) Replace(navigation.Entry) {}
func (s terminalSink) NativeBack()            { s.r.leaving.Store(true) }

func newRunner(cmd *cobra.Command, def *survey.Definition, path string, store *session.TokenStore, logger *slog.Logger, opts options) (*runner, error) {
	r := &runner{
		cmd:    cmd,
		def:    def,
		path:   path,
		opts:   opts,
		logger: logger,
		store:  store,
	}
	if secret := os.Getenv(jwtSecretEnvVar); secret != "" {
		r.secret = []byte(secret)
	}

	r.graph = graph.Build(def)
	r.eval = condition.New(condition.WithLogger(logger))
	r.resolver = navigation.NewResolver(r.eval)
	r.provider = computed.NewProvider(computed.WithLogger(logger))

	historyOpts := []navigation.HistoryOption{
		navigation.WithSink(terminalSink{r}),
		navigation.WithSkipFunc(store.SkipOnBack(r.secret)),
		navigation.WithEvaluator(r.eval),
		navigation.WithHistoryLogger(logger),
	}

	if opts.resumePath != "" {
		data, err := os.ReadFile(opts.resumePath)
		if err != nil {
			return nil, shared.NewSessionError("failed to read session file", err)
		}
		sess, err := navigation.DecodeSession(data)
		if err != nil {
			return nil, shared.NewSessionError("failed to decode session file", err)
		}
		r.sess = sess
		r.history = navigation.ResumeHistory(r.graph, sess.NavigationHistory, sess.CurrentPageIndex, historyOpts...)
	} else {
		r.sess = navigation.NewSession()
		r.history = navigation.NewHistory(r.graph, historyOpts...)
	}

	return r, nil
}

func (r *runner) run(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	if r.opts.watch {
		stopWatch, err := r.watchDefinition(ctx)
		if err != nil {
			r.logger.Warn("watch disabled", "error", err)
		} else {
			defer stopWatch()
		}
	}

	pos, ok := r.history.Current()
	if !ok {
		pos = graph.Position{}
	}

	for {
		if ctx.Err() != nil {
			return r.interrupted()
		}
		if r.leaving.Load() {
			return r.interrupted()
		}

		g := r.currentGraph()
		block := g.BlockAt(pos)
		if block == nil {
			next, dec := navigation.NextSequential(g, pos)
			if dec == navigation.Submit {
				if done, err := r.submit(ctx); err != nil || done {
					return err
				}
				continue
			}
			pos = next
			continue
		}

		values := r.values(ctx)

		// Hidden blocks are passed over without a history entry.
		if !r.eval.Evaluate(block.VisibleIf, values) {
			next, dec := navigation.NextSequential(g, pos)
			if dec == navigation.Submit {
				if done, err := r.submit(ctx); err != nil || done {
					return err
				}
				continue
			}
			pos = next
			continue
		}

		r.printProgress(values)

		answer, action, err := r.askBlock(ctx, block)
		switch {
		case errors.Is(err, context.Canceled) || ctx.Err() != nil:
			return r.interrupted()
		case err != nil:
			return shared.NewRunError("prompt failed", err)
		}

		if action == actionBack {
			pos = r.goBack(pos)
			continue
		}

		if block.FieldName != "" {
			r.sess.Answers[block.FieldName] = answer
		}
		values = r.values(ctx)

		next, dec := r.resolver.ResolveNextStep(block, g, values)
		ruleDriven := dec != navigation.Fallthrough
		if dec == navigation.Fallthrough {
			next, dec = navigation.NextSequential(g, pos)
		}
		if dec == navigation.Submit {
			if done, err := r.submit(ctx); err != nil || done {
				return err
			}
			continue
		}

		// Page-level branching applies when sequential flow crosses a
		// page boundary.
		if !ruleDriven && next.Page != pos.Page {
			target := r.resolver.ResolveNextPage(pos.Page, r.branchFor(pos.Page), values, len(g.Pages))
			if target == navigation.SubmitPage {
				if done, err := r.submit(ctx); err != nil || done {
					return err
				}
				continue
			}
			if target != next.Page {
				next = graph.Position{Page: target, Block: 0}
				ruleDriven = true
			}
		}

		if ruleDriven {
			r.history.Jump(next)
		} else {
			r.history.Forward(next)
		}
		r.sess.CurrentPageIndex = next.Page
		pos = next
	}
}

// goBack steps the history back one landable entry and keeps the
// session's page index in sync, so an interrupt after back-navigation
// resumes where the respondent actually was. Exhausted history leaves
// the position unchanged; the sink decides what leaving means.
func (r *runner) goBack(pos graph.Position) graph.Position {
	back, ok := r.history.Back()
	if !ok {
		return pos
	}
	r.sess.CurrentPageIndex = back.Page
	return back
}

// values returns the answer map with computed fields merged in.
func (r *runner) values(ctx context.Context) map[string]interface{} {
	return r.provider.Apply(ctx, r.definition().Computed, r.sess.Answers)
}

func (r *runner) branchFor(page int) *survey.PageBranching {
	def := r.definition()
	for i := range def.Branching {
		if def.Branching[i].Page == page {
			return &def.Branching[i]
		}
	}
	return nil
}

func (r *runner) definition() *survey.Definition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.def
}

func (r *runner) currentGraph() *graph.Graph {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.graph
}

func (r *runner) swapGraph(g *graph.Graph) {
	r.mu.Lock()
	r.graph = g
	r.mu.Unlock()
	r.history.SetGraph(g)
}

func (r *runner) printProgress(values map[string]interface{}) {
	if shared.GetQuiet() {
		return
	}
	pct := r.history.ProgressPercent(values)
	r.cmd.Println(shared.RenderProgress(pct, 24))
}

// submit confirms and prints the collected answers. Returns true when the
// run is complete; false means the respondent declined and the current
// block is asked again.
func (r *runner) submit(ctx context.Context) (bool, error) {
	confirmed := true
	prompt := &askv2.Confirm{
		Message: "Submit your responses?",
		Default: true,
	}
	if err := askv2.AskOne(prompt, &confirmed); err != nil {
		if ctx.Err() != nil {
			return false, r.interrupted()
		}
		return false, shared.NewRunError("confirmation failed", err)
	}
	if !confirmed {
		return false, nil
	}

	if shared.GetJSON() {
		data, err := json.MarshalIndent(r.sess.Answers, "", "  ")
		if err != nil {
			return false, shared.NewRunError("failed to marshal answers", err)
		}
		r.cmd.Println(string(data))
	} else {
		r.cmd.Println(shared.RenderOK("Survey complete"))
		for k, v := range r.sess.Answers {
			r.cmd.Printf("  %s: %v\n", shared.RenderLabel(k), v)
		}
	}

	// A finished run leaves no session file behind.
	_ = os.Remove(r.opts.sessionPath)
	return true, nil
}

// interrupted saves the session for later resume and exits with the
// interrupt code.
func (r *runner) interrupted() error {
	r.sess.NavigationHistory = r.history.Serialize()

	data, err := r.sess.Encode()
	if err != nil {
		return shared.NewSessionError("failed to encode session", err)
	}
	if err := os.WriteFile(r.opts.sessionPath, data, 0o600); err != nil {
		return shared.NewSessionError("failed to save session", err)
	}

	r.cmd.PrintErrln(shared.RenderWarn("Interrupted; session saved to " + r.opts.sessionPath))
	r.cmd.PrintErrln(shared.RenderLabel("Resume with: formwalk run " + r.path + " --resume " + r.opts.sessionPath))
	return &shared.ExitError{Code: shared.ExitInterrupted, Message: ""}
}
