package syncer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the vault for edits and feeds settled files into the
// per-document export flow. Rapid repeated edits to one file collapse into a
// single export via a per-path debounce timer that resets on every new event.
type Watcher struct {
	svc     *Service
	root    string
	settle  time.Duration
	log     *slog.Logger
	onFired func(path string) // test hook, called after an export attempt
}

// NewWatcher creates a vault watcher. settle is the debounce delay.
func NewWatcher(svc *Service, root string, settle time.Duration, log *slog.Logger) *Watcher {
	if settle <= 0 {
		settle = 2 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{svc: svc, root: root, settle: settle, log: log}
}

// Run watches until ctx is cancelled. The debounce map is owned by this
// goroutine; timer callbacks only send the settled path over a channel.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := addRecursive(fsw, w.root); err != nil {
		return err
	}

	fired := make(chan string, 64)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addRecursive(fsw, ev.Name); err != nil {
						w.log.Warn("watch new directory failed",
							slog.String("dir", ev.Name), slog.String("error", err.Error()))
					}
					continue
				}
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".md") || strings.Contains(filepath.Base(ev.Name), ".ehwaz-tmp-") {
				continue
			}
			rel, err := filepath.Rel(w.root, ev.Name)
			if err != nil {
				continue
			}

			if t, ok := timers[rel]; ok {
				t.Reset(w.settle)
				continue
			}
			path := rel
			timers[path] = time.AfterFunc(w.settle, func() {
				select {
				case fired <- path:
				case <-ctx.Done():
				}
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", slog.String("error", err.Error()))

		case path := <-fired:
			delete(timers, path)
			w.export(ctx, path)
		}
	}
}

func (w *Watcher) export(ctx context.Context, path string) {
	status, err := w.svc.ExportDocument(ctx, path)
	switch {
	case err != nil:
		w.log.Warn("edit-triggered export failed",
			slog.String("path", path), slog.String("error", err.Error()))
	case status == StatusUnlinked:
		// Plain notes are not linked to a remote page; nothing to export.
	default:
		w.log.Debug("edit-triggered export",
			slog.String("path", path), slog.String("status", string(status)))
	}
	if w.onFired != nil {
		w.onFired(path)
	}
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(p)
		}
		return nil
	})
}
