// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package loader

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

const (
	// fileRetryBase is the initial backoff when a schema file read
	// fails. Editors that save via rename briefly remove the file;
	// retrying bridges the gap.
	fileRetryBase    = 25 * time.Millisecond
	fileRetryMax     = 4
	watchDebounce    = 100 * time.Millisecond
	notifyBufferSize = 1
)

// FileSource reads schema source from a file on disk and notifies on
// changes via filesystem events.
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource for the given path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the watched file path.
func (f *FileSource) Path() string {
	return f.path
}

// Fetch reads the schema file. Transient read failures are retried
// with exponential backoff to tolerate atomic editor saves.
func (f *FileSource) Fetch(ctx context.Context) (string, error) {
	var data []byte

	backoff := retry.WithMaxRetries(fileRetryMax, retry.NewExponential(fileRetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		b, err := os.ReadFile(f.path)
		if err != nil {
			if os.IsNotExist(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		data = b
		return nil
	})
	if err != nil {
		return "", oops.With("path", f.path).Wrapf(err, "read schema file")
	}

	return string(data), nil
}

// Notify watches the schema file's directory for changes to the file.
// Watching the directory rather than the file survives rename-based
// saves, which replace the watched inode.
func (f *FileSource) Notify(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, oops.Wrapf(err, "create filesystem watcher")
	}

	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, oops.With("dir", dir).Wrapf(err, "watch schema directory")
	}

	ch := make(chan struct{}, notifyBufferSize)
	go f.watchEvents(ctx, watcher, ch)
	return ch, nil
}

// watchEvents filters raw filesystem events down to changes of the
// schema file, debouncing bursts from editors that write in multiple
// syscalls.
func (f *FileSource) watchEvents(ctx context.Context, watcher *fsnotify.Watcher, ch chan<- struct{}) {
	// ch is deliberately never closed: the debounce timer may fire
	// after this loop exits, and consumers exit on context
	// cancellation anyway.
	defer watcher.Close()

	target := filepath.Clean(f.path)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(watchDebounce, func() {
					select {
					case ch <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("schema watcher error", slog.String("error", err.Error()))
		}
	}
}

// StaticSource serves a fixed schema string. Useful for tests and for
// one-shot CLI evaluation where no reloading is needed.
type StaticSource string

// Fetch returns the static schema source.
func (s StaticSource) Fetch(context.Context) (string, error) {
	return string(s), nil
}
