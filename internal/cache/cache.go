// Package cache keeps a local copy of rendered messages in a PebbleDB store
// so a room still shows recent history when the server fetch fails and when
// a room is rejoined.
package cache

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/achuthan-s/oasis-chat-client/internal/domain"
)

// MessageCache persists messages keyed by room. Keys are the room id, a zero
// byte, then an 8-byte big-endian sequence number increasing monotonically
// per room.
type MessageCache struct {
	db   *pebble.DB
	mu   sync.Mutex
	next map[string]uint64
}

// Open opens (or creates) the cache at dir. An empty dir disables caching;
// every method on a nil cache is a no-op.
func Open(dir string) (*MessageCache, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open message cache: %w", err)
	}
	return &MessageCache{db: db, next: make(map[string]uint64)}, nil
}

func roomKey(roomID string, seq uint64) []byte {
	key := make([]byte, 0, len(roomID)+9)
	key = append(key, roomID...)
	key = append(key, 0)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return append(key, buf[:]...)
}

func roomBounds(roomID string) (lower, upper []byte) {
	return roomKey(roomID, 0), roomKey(roomID, ^uint64(0))
}

// nextSeq returns the next sequence number for a room, discovering it from
// the last stored key on first use. Callers hold c.mu.
func (c *MessageCache) nextSeq(roomID string) (uint64, error) {
	if seq, ok := c.next[roomID]; ok {
		c.next[roomID] = seq + 1
		return seq, nil
	}

	lower, upper := roomBounds(roomID)
	it, err := c.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return 0, err
	}
	defer func() { _ = it.Close() }()

	var seq uint64
	if it.Last() {
		key := it.Key()
		seq = binary.BigEndian.Uint64(key[len(key)-8:]) + 1
	}
	c.next[roomID] = seq + 1
	return seq, nil
}

// Append stores one message under the room it belongs to.
func (c *MessageCache) Append(roomID string, m domain.Message) error {
	if c == nil || c.db == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	seq, err := c.nextSeq(roomID)
	if err != nil {
		return fmt.Errorf("failed to sequence cache write: %w", err)
	}
	val, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}
	return c.db.Set(roomKey(roomID, seq), val, pebble.Sync)
}

// Recent returns up to limit of the newest messages for a room, oldest
// first. limit <= 0 returns everything.
func (c *MessageCache) Recent(roomID string, limit int) ([]domain.Message, error) {
	if c == nil || c.db == nil {
		return nil, nil
	}
	lower, upper := roomBounds(roomID)
	it, err := c.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	// Walk backwards so the limit applies to the newest entries, then
	// reverse into chronological order.
	newest := make([]domain.Message, 0, 64)
	for ok := it.Last(); ok; ok = it.Prev() {
		if limit > 0 && len(newest) == limit {
			break
		}
		var m domain.Message
		if err := json.Unmarshal(it.Value(), &m); err == nil {
			newest = append(newest, m)
		}
	}

	out := make([]domain.Message, len(newest))
	for i, m := range newest {
		out[len(newest)-1-i] = m
	}
	return out, nil
}

func (c *MessageCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
