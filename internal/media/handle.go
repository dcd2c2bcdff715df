package media

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrHandleReleased is returned when a handle is resolved or released
	// after it has already been released.
	ErrHandleReleased = errors.New("media handle already released")
)

// Handle is an opaque reference to a registered blob. It stands in for the
// platform's temporary object URLs: minted on demand, resolvable until
// released, and released exactly once.
type Handle string

// HandleRegistry tracks live blob handles. Every Create must be paired with
// exactly one Release; Outstanding exposes the balance so tests can verify
// the pairing.
type HandleRegistry struct {
	mu       sync.Mutex
	blobs    map[Handle]Blob
	created  int
	released int
}

// NewHandleRegistry returns an empty registry.
func NewHandleRegistry() *HandleRegistry {
	return &HandleRegistry{blobs: make(map[Handle]Blob)}
}

// Create mints a new handle for the blob.
func (r *HandleRegistry) Create(b Blob) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := Handle("blob:" + uuid.NewString())
	r.blobs[h] = b
	r.created++
	return h
}

// Resolve returns the blob behind the handle if it is still live.
func (r *HandleRegistry) Resolve(h Handle) (Blob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.blobs[h]
	if !ok {
		return Blob{}, ErrHandleReleased
	}
	return b, nil
}

// Release invalidates the handle. Releasing an unknown or already-released
// handle is an error, so double releases show up in tests.
func (r *HandleRegistry) Release(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blobs[h]; !ok {
		return ErrHandleReleased
	}
	delete(r.blobs, h)
	r.released++
	return nil
}

// Outstanding returns the number of live handles.
func (r *HandleRegistry) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blobs)
}

// Created returns the total number of handles ever minted.
func (r *HandleRegistry) Created() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created
}

// Released returns the total number of handles released.
func (r *HandleRegistry) Released() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}
