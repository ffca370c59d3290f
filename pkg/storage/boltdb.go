package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/topio-agent/pkg/events"
	"github.com/cuemby/topio-agent/pkg/frequency"
	bolt "go.etcd.io/bbolt"
)

// DefaultMaxEvents bounds the persisted event log
const DefaultMaxEvents = 1000

// openTimeout bounds the wait for the file lock held by another agent process
const openTimeout = 2 * time.Second

var (
	// Bucket names
	bucketFrequency = []byte("frequency")
	bucketEvents    = []byte("events")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db        *bolt.DB
	maxEvents int
}

// Option configures a BoltStore
type Option func(*BoltStore)

// WithMaxEvents sets how many events are retained; older ones are pruned on append
func WithMaxEvents(n int) Option {
	return func(s *BoltStore) {
		if n > 0 {
			s.maxEvents = n
		}
	}
}

// NewBoltStore opens (or creates) agent.db under dataDir
func NewBoltStore(dataDir string, opts ...Option) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "agent.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: openTimeout})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("database %s is locked by another process (is the agent running?)", dbPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketFrequency, bucketEvents} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltStore{db: db, maxEvents: DefaultMaxEvents}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Frequency state operations
func (s *BoltStore) SaveFrequencyState(workflow string, state frequency.State) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(state)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketFrequency).Put([]byte(workflow), data)
	})
}

func (s *BoltStore) LoadFrequencyState(workflow string) (frequency.State, error) {
	var state frequency.State
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketFrequency).Get([]byte(workflow))
		if data == nil {
			return fmt.Errorf("frequency state %s: %w", workflow, ErrNotFound)
		}
		return json.Unmarshal(data, &state)
	})
	return state, err
}

// Event operations
func (s *BoltStore) AppendEvent(event *events.Event) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if err := b.Put(itob(seq), data); err != nil {
			return err
		}
		return prune(b, seq, s.maxEvents)
	})
}

// ListEvents returns up to limit of the newest events, oldest first.
// A non-positive limit returns everything retained.
func (s *BoltStore) ListEvents(limit int) ([]*events.Event, error) {
	var out []*events.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) == limit {
				break
			}
			var event events.Event
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			out = append(out, &event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// prune drops every event older than the newest keep; keys are sequence numbers
func prune(b *bolt.Bucket, seq uint64, keep int) error {
	if seq <= uint64(keep) {
		return nil
	}
	cutoff := seq - uint64(keep)

	var stale [][]byte
	c := b.Cursor()
	for k, _ := c.First(); k != nil && binary.BigEndian.Uint64(k) <= cutoff; k, _ = c.Next() {
		stale = append(stale, append([]byte(nil), k...))
	}
	for _, k := range stale {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

var _ Store = (*BoltStore)(nil)
var _ events.Sink = (*BoltStore)(nil)
