package gateway

import "sync"

// Token identifies one optimistic update so it can be rolled back or
// confirmed.
type Token struct {
	Collection string
	seq        uint64
}

type pending[T any] struct {
	seq      uint64
	snapshot T
	had      bool
}

// Optimistic caches collections and applies local transforms before the
// panel confirms them. At most one update per collection is outstanding: a
// second Update re-snapshots and the first token can no longer roll back.
type Optimistic[T any] struct {
	mu      sync.Mutex
	clone   func(T) T
	values  map[string]T
	pending map[string]pending[T]
	seq     uint64
}

// NewOptimistic creates a cache. clone must return a copy that transforms can
// modify without touching the original.
func NewOptimistic[T any](clone func(T) T) *Optimistic[T] {
	return &Optimistic[T]{
		clone:   clone,
		values:  make(map[string]T),
		pending: make(map[string]pending[T]),
	}
}

// Set stores an authoritative value and drops any outstanding update.
func (o *Optimistic[T]) Set(collection string, v T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.values[collection] = v
	delete(o.pending, collection)
}

// Get returns a copy of the cached value.
func (o *Optimistic[T]) Get(collection string) (T, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.values[collection]
	if !ok {
		return v, false
	}
	return o.clone(v), true
}

// Update applies transform to the cached value and returns a token for
// Rollback.
func (o *Optimistic[T]) Update(collection string, transform func(T) T) Token {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.seq++
	cur, had := o.values[collection]
	o.pending[collection] = pending[T]{seq: o.seq, snapshot: o.clone(cur), had: had}
	o.values[collection] = transform(o.clone(cur))
	return Token{Collection: collection, seq: o.seq}
}

// Rollback restores the snapshot taken by Update. It returns false when the
// token was superseded, confirmed, or the collection was reset meanwhile.
func (o *Optimistic[T]) Rollback(tok Token) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	p, ok := o.pending[tok.Collection]
	if !ok || p.seq != tok.seq {
		return false
	}
	if p.had {
		o.values[tok.Collection] = p.snapshot
	} else {
		delete(o.values, tok.Collection)
	}
	delete(o.pending, tok.Collection)
	return true
}

// Confirm keeps the transformed value and forgets the snapshot.
func (o *Optimistic[T]) Confirm(tok Token) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	p, ok := o.pending[tok.Collection]
	if !ok || p.seq != tok.seq {
		return false
	}
	delete(o.pending, tok.Collection)
	return true
}

// Invalidate forgets a collection entirely.
func (o *Optimistic[T]) Invalidate(collection string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.values, collection)
	delete(o.pending, collection)
}
