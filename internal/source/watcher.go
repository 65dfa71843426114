package source

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/omnipreview/internal/config"
	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
	"git.home.luguber.info/inful/omnipreview/internal/logfields"
	"git.home.luguber.info/inful/omnipreview/internal/observability"
	"git.home.luguber.info/inful/omnipreview/internal/preview"
)

// MaxFileSize caps how much of a file the watcher will read.
const MaxFileSize = 8 << 20

// Submitter is the part of the preview coordinator the watcher drives.
type Submitter interface {
	EnqueueViewSnapshot(ctx context.Context, snap preview.Snapshot, onlyIfAlreadyCached, immediate bool) error
	Forget(documentID string)
}

// Watcher tracks files below a set of roots and submits every change.
type Watcher struct {
	roots     []string
	languages map[string]string
	lazy      bool
	table     *DocumentTable
	sink      Submitter

	fsw  *fsnotify.Watcher
	wg   sync.WaitGroup
	once sync.Once
}

// NewWatcher creates a watcher for cfg.Paths. Paths are resolved to absolute
// paths so that document paths are stable.
func NewWatcher(cfg config.WatchConfig, table *DocumentTable, sink Submitter) (*Watcher, error) {
	roots := make([]string, 0, len(cfg.Paths))
	for _, p := range cfg.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, ferrors.FileSystemError("failed to resolve watch path").WithCause(err).WithContext("path", p).Build()
		}
		roots = append(roots, abs)
	}

	languages := make(map[string]string, len(cfg.Languages))
	for ext, lang := range cfg.Languages {
		languages[strings.ToLower(ext)] = lang
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.FileSystemError("failed to create file watcher").WithCause(err).Build()
	}
	return &Watcher{
		roots:     roots,
		languages: languages,
		lazy:      cfg.Lazy,
		table:     table,
		sink:      sink,
		fsw:       fsw,
	}, nil
}

// Start watches the roots, submits every existing file and then follows
// changes until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	ctx = observability.WithSource(ctx, "watcher")
	for _, root := range w.roots {
		info, err := os.Stat(root)
		if err != nil {
			return ferrors.FileSystemError("watch path is not accessible").WithCause(err).WithContext("path", root).Build()
		}
		if !info.IsDir() {
			return ferrors.ValidationError("watch path is not a directory").WithContext("path", root).Build()
		}
		w.addTree(ctx, root)
	}
	slog.Info("Watching documents", slog.Int("roots", len(w.roots)), slog.Int("documents", w.table.Len()), slog.Bool("lazy", w.lazy))

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop closes the file watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	var err error
	w.once.Do(func() {
		err = w.fsw.Close()
	})
	w.wg.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			w.once.Do(func() { _ = w.fsw.Close() })
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if shouldIgnore(ev.Name) {
		return
	}
	slog.Debug("File change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))

	switch {
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		w.forget(ev.Name)
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.addTree(ctx, ev.Name)
			return
		}
		w.submit(ctx, ev.Name)
	}
}

// addTree watches dir and every directory below it, submitting the files it
// finds along the way.
func (w *Watcher) addTree(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path != dir && shouldIgnore(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				slog.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
			}
			return nil
		}
		w.submit(ctx, path)
		return nil
	})
}

func (w *Watcher) submit(ctx context.Context, path string) {
	lang, ok := w.languageFor(path)
	if !ok {
		return
	}
	text, err := readText(path)
	if err != nil {
		slog.Warn("Skipping unreadable document", logfields.Path(path), logfields.Error(err))
		return
	}

	doc := w.table.Track(path, lang, text)
	snap, _ := w.table.Snapshot(doc.ID)
	if err := w.sink.EnqueueViewSnapshot(ctx, snap, w.lazy, false); err != nil {
		if errors.Is(err, preview.ErrWorkerStopped) {
			return
		}
		slog.Error("Failed to submit document", logfields.DocumentID(doc.ID), logfields.Path(path), logfields.Error(err))
	}
}

func (w *Watcher) forget(path string) {
	if doc, ok := w.table.Forget(path); ok {
		w.sink.Forget(doc.ID)
		slog.Debug("Document removed", logfields.DocumentID(doc.ID), logfields.Path(path))
		return
	}
	// A removed directory takes its documents with it.
	for _, doc := range w.table.ForgetUnder(path) {
		w.sink.Forget(doc.ID)
	}
}

func (w *Watcher) languageFor(path string) (string, bool) {
	return LanguageForPath(w.languages, path)
}

// LanguageForPath returns the language configured for the extension of path.
// Extensions compare case-insensitively.
func LanguageForPath(languages map[string]string, path string) (string, bool) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", false
	}
	if lang, ok := languages[strings.ToLower(ext)]; ok {
		return lang, true
	}
	for k, lang := range languages {
		if strings.EqualFold(k, ext) {
			return lang, true
		}
	}
	return "", false
}

func readText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if info.Size() > MaxFileSize {
		return "", ferrors.ValidationError("document too large").WithContext("size", info.Size()).Build()
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// shouldIgnore reports hidden files and editor temp files.
func shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		(strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#")) {
		return true
	}
	return base == "Thumbs.db"
}
