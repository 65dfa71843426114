// Package cache holds rendered HTML fragments keyed by document ID.
//
// The preview coordinator writes entries through the Sink interface and never
// reads them back; the preview server and CLI read them through Store.
package cache

import (
	"time"
)

// Entry is a rendered fragment for one document.
type Entry struct {
	Filename string
	Dirname  string
	HTMLPart string

	// Set by the store on write.
	Fingerprint string
	UpdatedAt   time.Time
}

// Sink is the write side used by the render worker. Implementations must be
// safe for concurrent single-key writes.
type Sink interface {
	SetEntry(id string, entry Entry) error
	Exists(id string) bool
}

// Store is a Sink that can also be read and maintained.
type Store interface {
	Sink
	Get(id string) (Entry, bool)
	Remove(id string) bool
	Keys() []string
	Len() int
	// Prune removes entries last written more than maxAge ago and reports how many were dropped.
	Prune(maxAge time.Duration) int
}
