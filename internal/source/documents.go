// Package source feeds documents from the file system into the preview
// coordinator.
package source

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/omnipreview/internal/preview"
)

// Document is a tracked file.
type Document struct {
	ID       string    `json:"id"`
	Path     string    `json:"path"`
	Language string    `json:"language"`
	Size     int       `json:"size"`
	SeenAt   time.Time `json:"seen_at"`

	text string
}

// DocumentTable assigns stable document IDs to paths and keeps the latest
// text of each document.
type DocumentTable struct {
	mu     sync.RWMutex
	byPath map[string]*Document
	byID   map[string]*Document
}

func NewDocumentTable() *DocumentTable {
	return &DocumentTable{
		byPath: make(map[string]*Document),
		byID:   make(map[string]*Document),
	}
}

// Track records the current text of path and returns its document. The ID of
// a path never changes until it is forgotten.
func (t *DocumentTable) Track(path, language, text string) Document {
	t.mu.Lock()
	defer t.mu.Unlock()

	doc, ok := t.byPath[path]
	if !ok {
		doc = &Document{ID: uuid.NewString(), Path: path}
		t.byPath[path] = doc
		t.byID[doc.ID] = doc
	}
	doc.Language = language
	doc.Size = len(text)
	doc.SeenAt = time.Now()
	doc.text = text
	return *doc
}

// Lookup returns the document tracked for path.
func (t *DocumentTable) Lookup(path string) (Document, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	doc, ok := t.byPath[path]
	if !ok {
		return Document{}, false
	}
	return *doc, true
}

// Get returns the document with the given ID.
func (t *DocumentTable) Get(id string) (Document, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	doc, ok := t.byID[id]
	if !ok {
		return Document{}, false
	}
	return *doc, true
}

// Snapshot returns the latest known state of a document for submission.
func (t *DocumentTable) Snapshot(id string) (preview.Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	doc, ok := t.byID[id]
	if !ok {
		return preview.Snapshot{}, false
	}
	return preview.Snapshot{
		DocumentID: doc.ID,
		Filename:   doc.Path,
		Language:   doc.Language,
		Text:       doc.text,
	}, true
}

// Documents lists tracked documents ordered by path.
func (t *DocumentTable) Documents() []Document {
	t.mu.RLock()
	out := make([]Document, 0, len(t.byPath))
	for _, doc := range t.byPath {
		out = append(out, *doc)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Forget stops tracking path and returns the document it had.
func (t *DocumentTable) Forget(path string) (Document, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	doc, ok := t.byPath[path]
	if !ok {
		return Document{}, false
	}
	delete(t.byPath, path)
	delete(t.byID, doc.ID)
	return *doc, true
}

// ForgetUnder forgets every document below dir and returns them.
func (t *DocumentTable) ForgetUnder(dir string) []Document {
	t.mu.Lock()
	defer t.mu.Unlock()
	prefix := dir + string(filepath.Separator)
	var out []Document
	for path, doc := range t.byPath {
		if strings.HasPrefix(path, prefix) {
			delete(t.byPath, path)
			delete(t.byID, doc.ID)
			out = append(out, *doc)
		}
	}
	return out
}

func (t *DocumentTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byPath)
}
