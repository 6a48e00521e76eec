// Package memstore is an in-process reference implementation of
// store.Store, keyed by a SHA-256 content identifier. It is used by the
// demo binary and by tests across the engine; it is not a production
// persistence backend (spec §1 keeps those out of core scope) — it exists
// so the Store contract has a concrete, dependency-free implementation to
// run the engine against.
package memstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/jgavinray/urlexec/internal/store"
)

type entityKey struct {
	kind store.Kind
	name string
}

// Store is a thread-safe, in-memory store.Store. The zero value is not
// usable; construct with New.
type Store struct {
	mu       sync.RWMutex
	blobs    map[store.CID][]byte
	entities map[entityKey]store.Resolved
}

// New returns an empty Store ready for use.
func New() *Store {
	return &Store{
		blobs:    make(map[store.CID][]byte),
		entities: make(map[entityKey]store.Resolved),
	}
}

// cidFor derives a deterministic CID from data's SHA-256 digest.
func cidFor(data []byte) store.CID {
	sum := sha256.Sum256(data)
	return store.CID("sha256:" + hex.EncodeToString(sum[:]))
}

// Put implements store.Store.
func (s *Store) Put(_ context.Context, data []byte) (store.CID, error) {
	cid := cidFor(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blobs[cid]; !exists {
		cp := make([]byte, len(data))
		copy(cp, data)
		s.blobs[cid] = cp
	}
	return cid, nil
}

// Get implements store.Store.
func (s *Store) Get(_ context.Context, cid store.CID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[cid]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Resolve implements store.Store.
func (s *Store) Resolve(_ context.Context, kind store.Kind, name string) (store.Resolved, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.entities[entityKey{kind, name}]
	if !ok {
		return store.Resolved{}, store.ErrNotFound
	}
	return r, nil
}

// ListByPrefix implements store.Store.
func (s *Store) ListByPrefix(_ context.Context, prefix string) ([]store.CID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.CID
	for cid := range s.blobs {
		if strings.HasPrefix(string(cid), prefix) {
			out = append(out, cid)
		}
	}
	return out, nil
}

// SeedBlob pre-populates the store with data, as if Put(data) had already
// been called, and returns the resulting CID. Intended for test fixtures
// and demo-binary startup, not request-time use.
func (s *Store) SeedBlob(data []byte) store.CID {
	cid, _ := s.Put(context.Background(), data)
	return cid
}

// SeedEntityCID registers (kind, name) as resolving to cid.
func (s *Store) SeedEntityCID(kind store.Kind, name string, cid store.CID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entityKey{kind, name}] = store.Resolved{CID: cid}
}

// SeedEntityInline registers (kind, name) as resolving to an inline string
// value (used for variables and secrets).
func (s *Store) SeedEntityInline(kind store.Kind, name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entityKey{kind, name}] = store.Resolved{Inline: value, IsInline: true}
}
