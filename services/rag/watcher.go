// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rag

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ===== Corpus Watcher =====

// Watcher triggers incremental index rebuilds when the corpus directory
// changes on disk.
//
// # Description
//
// Filesystem events for *.txt files are collected into a debounce window so
// a bulk copy of many documents triggers one rebuild, not one per file.
// Rebuilds run serially; events arriving during a rebuild start the next
// window once it finishes.
//
// # Thread Safety
//
// Safe for concurrent use. The rebuild runs on a single goroutine.
type Watcher struct {
	index    *Index
	root     string
	debounce time.Duration

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// DefaultDebounceWindow is how long the watcher waits for the corpus to go
// quiet before rebuilding.
const DefaultDebounceWindow = 2 * time.Second

// NewWatcher creates a watcher over the index's corpus directory. Call
// Start to begin watching; Stop releases the OS watch handles.
func NewWatcher(index *Index, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounceWindow
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		index:    index,
		root:     index.cfg.DocsDir,
		debounce: debounce,
		watcher:  fsw,
		done:     make(chan struct{}),
	}, nil
}

// Start registers the corpus directory tree and launches the event loop.
func (w *Watcher) Start(ctx context.Context) error {
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	go w.loop(ctx)
	slog.Info("Watching document corpus for changes", "dir", w.root, "debounce", w.debounce)
	return nil
}

// Stop shuts the watcher down. Idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

// loop debounces events and runs rebuilds.
func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	arm := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			timerC = timer.C
		} else {
			timer.Reset(w.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// New subdirectories need their own watch handle.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.watcher.Add(event.Name)
				}
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".txt") {
				continue
			}
			slog.Debug("Corpus change detected", "path", event.Name, "op", event.Op.String())
			arm()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Corpus watcher error", "error", err)

		case <-timerC:
			if err := w.index.BuildOrUpdate(ctx); err != nil {
				slog.Error("Incremental index rebuild failed", "error", err)
			}
		}
	}
}
