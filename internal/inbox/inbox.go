// Package inbox extracts deck archives dropped into a watched directory.
package inbox

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/decksmith/internal/checksum"
	"github.com/starford/decksmith/internal/deckservice"
	"github.com/starford/decksmith/internal/media"
	"github.com/starford/decksmith/internal/storage"
)

// settleDelay is how long a path must stay quiet before it is extracted.
// Archives are usually written in several chunks.
const settleDelay = 300 * time.Millisecond

// Extractor is the part of deckservice.Service the inbox needs.
type Extractor interface {
	Extract(ctx context.Context, archivePath, outputBaseDir string, mode media.Mode) (*deckservice.ExtractResult, error)
}

// EventCallback is called after each successful extraction.
type EventCallback func(archivePath string, res *deckservice.ExtractResult)

// Inbox pairs an inbox directory with an output base directory.
type Inbox struct {
	dir     string
	baseDir string
	mode    media.Mode
	ex      Extractor
	logger  *slog.Logger
	cb      EventCallback
}

// New creates an Inbox. cb may be nil.
func New(dir, baseDir string, mode media.Mode, ex Extractor, logger *slog.Logger, cb EventCallback) *Inbox {
	return &Inbox{dir: dir, baseDir: baseDir, mode: mode, ex: ex, logger: logger, cb: cb}
}

// IsArchive reports whether name has a deck archive extension.
func IsArchive(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".apkg" || ext == ".colpkg"
}

// extracted reports whether output for hash already exists.
func (ib *Inbox) extracted(hash string) bool {
	info, err := os.Stat(filepath.Join(ib.baseDir, hash))
	return err == nil && info.IsDir()
}

// Sync extracts every archive under the inbox whose content has no output
// tree yet. It returns the number of archives extracted.
func (ib *Inbox) Sync(ctx context.Context) (int, error) {
	store, err := storage.NewFS(ib.dir)
	if err != nil {
		return 0, err
	}
	entries, err := store.List("")
	if err != nil {
		return 0, err
	}

	n := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if !IsArchive(e.Path) || ib.extracted(e.Checksum) {
			continue
		}
		abs, _ := store.Abs(e.Path)
		if ib.extract(ctx, abs) {
			n++
		}
	}
	ib.logger.Info("inbox: sync done", slog.Int("extracted", n), slog.Int("files", len(entries)))
	return n, nil
}

// process extracts one archive unless its content was extracted before.
func (ib *Inbox) process(ctx context.Context, path string) {
	hash, err := checksum.File(path)
	if err != nil {
		// Removed or renamed before it settled.
		ib.logger.Debug("inbox: checksum failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if ib.extracted(hash) {
		ib.logger.Debug("inbox: already extracted", slog.String("path", path), slog.String("content_hash", hash))
		return
	}
	ib.extract(ctx, path)
}

func (ib *Inbox) extract(ctx context.Context, path string) bool {
	res, err := ib.ex.Extract(ctx, path, ib.baseDir, ib.mode)
	if err != nil {
		ib.logger.Warn("inbox: extract failed", slog.String("path", path), slog.String("error", err.Error()))
		return false
	}
	ib.logger.Info("inbox: extracted",
		slog.String("path", path),
		slog.String("content_hash", res.ContentHash),
		slog.Int("notes", res.NoteCount))
	if ib.cb != nil {
		ib.cb(path, res)
	}
	return true
}

// Watch starts an fsnotify watcher on the inbox and extracts archives as
// they settle, until ctx is cancelled. Directories created at runtime are
// added to the watch list.
func (ib *Inbox) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, ib.dir); err != nil {
		return err
	}
	ib.logger.Info("inbox: watching", slog.String("dir", ib.dir))

	pending := make(map[string]struct{})
	var settleTimer *time.Timer
	var settleCh <-chan time.Time

	schedule := func(path string) {
		pending[path] = struct{}{}
		if settleTimer == nil {
			settleTimer = time.NewTimer(settleDelay)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(settleDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			ib.logger.Info("inbox: stopped")
			return nil

		case <-settleCh:
			for path := range pending {
				delete(pending, path)
				ib.process(ctx, path)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						ib.logger.Warn("inbox: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
						continue
					}
					_ = filepath.WalkDir(ev.Name, func(p string, d fs.DirEntry, err error) error {
						if err == nil && !d.IsDir() && IsArchive(p) {
							schedule(p)
						}
						return nil
					})
					continue
				}
			}
			if !IsArchive(ev.Name) {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				schedule(ev.Name)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(pending, ev.Name)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			ib.logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
