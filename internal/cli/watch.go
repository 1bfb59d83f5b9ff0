/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/chazu/topoc/pkg/compiler"
	"github.com/chazu/topoc/pkg/source"
)

// watchDebounce coalesces the burst of events an editor produces on save
const watchDebounce = 100 * time.Millisecond

// filePaths returns the absolute paths of the file references in req
func filePaths(req compiler.Request) ([]string, error) {
	var paths []string
	for _, ref := range append([]string{req.Base}, req.Overlays...) {
		fetcherType, rest, err := source.ParseRef(ref)
		if err != nil {
			return nil, err
		}
		if fetcherType != source.FileType {
			continue
		}
		abs, err := filepath.Abs(rest)
		if err != nil {
			return nil, err
		}
		paths = append(paths, abs)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("--watch needs at least one file reference")
	}
	return paths, nil
}

// watchFiles calls fn once and again after every change to one of paths,
// until ctx is done. Parent directories are watched so files replaced by
// rename are still seen.
func watchFiles(ctx context.Context, paths []string, fn func()) error {
	logger := log.FromContext(ctx).WithName("watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		watched[p] = true
		dir := filepath.Dir(p)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	fn()

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(event.Name)] || event.Op == fsnotify.Chmod {
				continue
			}
			logger.V(1).Info("input changed", "file", event.Name, "op", event.Op.String())
			timer.Reset(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error(err, "watch error")
		case <-timer.C:
			fn()
		}
	}
}
