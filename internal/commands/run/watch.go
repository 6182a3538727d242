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
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/formwalk/formwalk/pkg/survey"
	"github.com/formwalk/formwalk/pkg/survey/graph"
)

// watchDefinition reloads the definition and rebuilds the graph when the
// file changes. History entries survive the swap because they hold UUIDs,
// not positions. The parent directory is watched rather than the file
// itself so editors that replace-on-save keep triggering events.
func (r *runner) watchDefinition(ctx context.Context) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		watcher.Close()
		return nil, err
	}

	target, err := filepath.Abs(r.path)
	if err != nil {
		target = r.path
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				if abs, err := filepath.Abs(event.Name); err == nil && abs != target {
					continue
				}
				r.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn("watch error", "error", err)
			}
		}
	}()

	return func() { watcher.Close() }, nil
}

// reload re-reads the definition. A file that fails to load or validate
// is ignored; the previous build stays active.
func (r *runner) reload() {
	def, err := survey.Load(r.path)
	if err != nil {
		r.logger.Warn("reload skipped", "error", err)
		return
	}
	if err := def.Validate(); err != nil {
		r.logger.Warn("reload skipped", "error", err)
		return
	}

	r.mu.Lock()
	r.def = def
	r.mu.Unlock()
	r.swapGraph(graph.Build(def))
	r.logger.Info("definition reloaded", "path", r.path)
}
