package events

import "time"

// EntryUpdated is published by the cache store after a rendered fragment for a
// document has been written.
type EntryUpdated struct {
	DocumentID  string
	Filename    string
	Fingerprint string
	UpdatedAt   time.Time
}

// EntryRemoved is published when a document's fragment leaves the cache, either
// because the document was closed or because it was pruned or evicted.
type EntryRemoved struct {
	DocumentID string
	Reason     string
}

// CacheEvent is implemented by every cache notification, so subscribers can
// receive both kinds on one channel.
type CacheEvent interface {
	CacheDocumentID() string
}

func (e EntryUpdated) CacheDocumentID() string { return e.DocumentID }
func (e EntryRemoved) CacheDocumentID() string { return e.DocumentID }
