package story

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/storyhaven/ripple/internal/storage/pebble"
)

// ErrNotFound is returned for operations on unknown stories.
var ErrNotFound = errors.New("story: not found")

// Meta holds story metadata used for ownership and existence checks.
type Meta struct {
	ID          string `json:"id"`
	OwnerID     string `json:"ownerId"`
	Title       string `json:"title"`
	CreatedAtMs int64  `json:"createdAtMs"`
	UpdatedAtMs int64  `json:"updatedAtMs"`
}

// Store is the storage collaborator consumed by the realtime core: story
// metadata, draft content, and per-user unread counters.
type Store struct {
	db *pebblestore.DB

	// unreadMu serializes the unread counter's read-modify-write cycle;
	// concurrent Notify calls must not lose increments.
	unreadMu sync.Mutex
}

// NewStore returns a Store over the given database.
func NewStore(db *pebblestore.DB) *Store { return &Store{db: db} }

// Ensure creates a story meta record if absent, returning the effective meta.
// Idempotent: returns the existing record if already present.
func (s *Store) Ensure(id, ownerID, title string) (Meta, error) {
	key := metaKey(id)
	if b, err := s.db.Get(key); err == nil && len(b) > 0 {
		var m Meta
		if err := json.Unmarshal(b, &m); err == nil {
			return m, nil
		}
		// fallthrough to rewrite if corrupted
	}
	now := time.Now().UnixMilli()
	m := Meta{ID: id, OwnerID: ownerID, Title: title, CreatedAtMs: now, UpdatedAtMs: now}
	b, err := json.Marshal(m)
	if err != nil {
		return Meta{}, err
	}
	if err := s.db.Set(key, b); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// Get returns the meta record for a story.
func (s *Store) Get(id string) (Meta, error) {
	b, err := s.db.Get(metaKey(id))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return Meta{}, ErrNotFound
		}
		return Meta{}, err
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// Exists reports whether a story meta record is present.
func (s *Store) Exists(id string) bool {
	_, err := s.Get(id)
	return err == nil
}

// PersistDraft stores the draft content for a story and bumps UpdatedAtMs.
// The meta update and the draft write commit atomically.
func (s *Store) PersistDraft(ctx context.Context, id string, content []byte) error {
	m, err := s.Get(id)
	if err != nil {
		return err
	}
	m.UpdatedAtMs = time.Now().UnixMilli()
	mb, err := json.Marshal(m)
	if err != nil {
		return err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(draftKey(id), content, nil); err != nil {
		return err
	}
	if err := b.Set(metaKey(id), mb, nil); err != nil {
		return err
	}
	return s.db.CommitBatch(ctx, b)
}

// Draft returns the stored draft content for a story.
func (s *Store) Draft(id string) ([]byte, error) {
	b, err := s.db.Get(draftKey(id))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// List returns all known story meta records.
func (s *Store) List() ([]Meta, error) {
	hi := append(append([]byte{}, storyPrefix...), 0xFF)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: storyPrefix, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()
	var out []Meta
	for ok := it.First(); ok; ok = it.Next() {
		if !bytes.HasSuffix(it.Key(), []byte("/meta")) {
			continue
		}
		var m Meta
		if err := json.Unmarshal(it.Value(), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// IncrUnread adds delta to a user's unread counter and returns the new value.
func (s *Store) IncrUnread(userID string, delta uint64) (uint64, error) {
	s.unreadMu.Lock()
	defer s.unreadMu.Unlock()
	key := unreadKey(userID)
	var n uint64
	if b, err := s.db.Get(key); err == nil && len(b) == 8 {
		n = binary.BigEndian.Uint64(b)
	}
	n += delta
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	if err := s.db.Set(key, buf[:]); err != nil {
		return 0, err
	}
	return n, nil
}

// Unread returns the user's current unread counter.
func (s *Store) Unread(userID string) uint64 {
	b, err := s.db.Get(unreadKey(userID))
	if err != nil || len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// MarkRead resets the user's unread counter to zero.
func (s *Store) MarkRead(userID string) error {
	s.unreadMu.Lock()
	defer s.unreadMu.Unlock()
	return s.db.Delete(unreadKey(userID))
}
