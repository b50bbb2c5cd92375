package workspace

import "errors"

var (
	// ErrNotFound is returned for an unknown tab, document or view id.
	ErrNotFound = errors.New("no such tab")
	// ErrBusy is returned when a document already has a load, save or
	// execute in flight. No backend call is made.
	ErrBusy = errors.New("document is busy")
	// ErrDocumentClosed is returned when a document was closed while a
	// backend call for it was in flight. The outcome was dropped.
	ErrDocumentClosed = errors.New("document was closed")
	// ErrNoEntry is returned when a listing has no entry with the given name.
	ErrNoEntry = errors.New("no such entry")
)
