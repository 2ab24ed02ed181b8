// Package watcher reports debounced changes to a single file, such as the
// bridge configuration.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventType represents the kind of change detected.
type EventType int

const (
	EventFileWritten EventType = iota
	EventFileRemoved
)

func (t EventType) String() string {
	switch t {
	case EventFileWritten:
		return "file_written"
	case EventFileRemoved:
		return "file_removed"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Event is a settled change to the watched file.
type Event struct {
	Type EventType
	Path string
}

// Watcher monitors one file. The parent directory is watched so that
// editors replacing the file via rename are still seen.
type Watcher struct {
	path string
	dir  string

	fsWatcher *fsnotify.Watcher
	events    chan Event
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once // Ensures done channel is only closed once

	debouncer *debouncer

	wg sync.WaitGroup
}

const (
	defaultDebounceDelay = 100 * time.Millisecond
	defaultEventsBuffer  = 16
	defaultErrorsBuffer  = 10
)

// New creates a file watcher using the default debounce delay (100ms).
func New(path string) (*Watcher, error) {
	return NewWithDebounceDelay(path, defaultDebounceDelay)
}

// NewWithDebounceDelay creates a file watcher with a configurable debounce delay.
// The file itself need not exist yet; its directory is created if missing.
func NewWithDebounceDelay(path string, delay time.Duration) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	dir := filepath.Dir(absPath)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("ensure dir exists: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		path:      absPath,
		dir:       dir,
		fsWatcher: fsw,
		events:    make(chan Event, defaultEventsBuffer),
		errors:    make(chan error, defaultErrorsBuffer),
		done:      make(chan struct{}),
		debouncer: newDebouncer(delay),
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run()
	}()

	return w, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string { return w.path }

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case evt, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if translated := w.translateEvent(evt); translated != nil {
				e := *translated
				w.debouncer.Trigger(w.path, func() { w.emitEvent(e) })
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.emitError(err)
		}
	}
}

// Events returns a channel of debounced file events.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns a channel of watcher errors.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Close stops the watcher and releases OS resources.
func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}

	w.closeOnce.Do(func() {
		close(w.done)
	})

	// Closing the underlying watcher unblocks the run loop.
	err := w.fsWatcher.Close()
	w.wg.Wait()
	w.debouncer.Stop()
	return err
}

func (w *Watcher) emitEvent(e Event) {
	select {
	case <-w.done:
	case w.events <- e:
	default:
		// Best-effort: drop if consumer is stalled.
	}
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		// Best-effort: drop if consumer is stalled.
	}
}

// translateEvent maps an fsnotify event in the parent directory onto the
// watched file, or nil when it concerns some other entry.
func (w *Watcher) translateEvent(e fsnotify.Event) *Event {
	if w == nil || e.Name == "" {
		return nil
	}
	if filepath.Clean(e.Name) != w.path {
		return nil
	}

	switch {
	case e.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A rename-over leaves a fresh file behind; report what is there now.
		if fileExists(w.path) {
			return &Event{Type: EventFileWritten, Path: w.path}
		}
		return &Event{Type: EventFileRemoved, Path: w.path}
	case e.Op&(fsnotify.Create|fsnotify.Write) != 0:
		return &Event{Type: EventFileWritten, Path: w.path}
	default:
		return nil
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
