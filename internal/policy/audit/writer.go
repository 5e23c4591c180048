// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/samber/oops"
)

// FileWriter writes audit entries as JSON lines to a file. It
// implements Writer; sync and async writes share one append-only file
// handle.
type FileWriter struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileWriter opens (or creates) the JSONL audit file at path.
func NewFileWriter(path string) (*FileWriter, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return &FileWriter{file: file}, nil
}

// WriteSync writes an entry immediately.
func (w *FileWriter) WriteSync(_ context.Context, entry Entry) error {
	return w.write(entry)
}

// WriteAsync writes an entry from the async consumer.
func (w *FileWriter) WriteAsync(entry Entry) error {
	return w.write(entry)
}

func (w *FileWriter) write(entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return oops.Wrap(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return oops.Errorf("audit file writer is closed")
	}
	if _, err := fmt.Fprintf(w.file, "%s\n", data); err != nil {
		return oops.Wrap(err)
	}
	return nil
}

// Close closes the underlying file.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		return oops.Wrap(err)
	}
	return nil
}
