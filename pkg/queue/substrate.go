package queue

import (
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/aman-app/aman/pkg/errdefs"
)

// Substrate is the stable on-device storage behind the durable queue.
// The whole queue is persisted as one value under a single well-known
// key. A full-but-recoverable substrate reports QUOTA_EXCEEDED through
// errdefs rather than a free-form error.
type Substrate interface {
	Load(key string) ([]byte, error)
	Store(key string, value []byte) error
}

var bucketQueue = []byte("queue")

// BoltSubstrate persists queue state in a BoltDB file. MaxValueBytes
// caps the serialized queue size; 0 means unlimited.
type BoltSubstrate struct {
	db            *bolt.DB
	MaxValueBytes int
}

// NewBoltSubstrate opens (or creates) the queue database under dataDir.
func NewBoltSubstrate(dataDir, name string) (*BoltSubstrate, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := bolt.Open(filepath.Join(dataDir, name), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketQueue)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltSubstrate{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltSubstrate) Close() error {
	return s.db.Close()
}

func (s *BoltSubstrate) Load(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketQueue).Get([]byte(key))
		if data == nil {
			return errdefs.NotFound("queue key not found: %s", key)
		}
		out = make([]byte, len(data))
		copy(out, data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltSubstrate) Store(key string, value []byte) error {
	if s.MaxValueBytes > 0 && len(value) > s.MaxValueBytes {
		return errdefs.QuotaExceeded("queue value %d bytes exceeds cap %d", len(value), s.MaxValueBytes)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQueue).Put([]byte(key), value)
	})
}

// MemSubstrate is an in-memory substrate used in tests. Capacity caps
// the stored value size; 0 means unlimited.
type MemSubstrate struct {
	Capacity int
	values   map[string][]byte
}

// NewMemSubstrate creates an empty in-memory substrate.
func NewMemSubstrate(capacity int) *MemSubstrate {
	return &MemSubstrate{Capacity: capacity, values: make(map[string][]byte)}
}

func (s *MemSubstrate) Load(key string) ([]byte, error) {
	v, ok := s.values[key]
	if !ok {
		return nil, errdefs.NotFound("queue key not found: %s", key)
	}
	return v, nil
}

func (s *MemSubstrate) Store(key string, value []byte) error {
	if s.Capacity > 0 && len(value) > s.Capacity {
		return errdefs.QuotaExceeded("value %d bytes exceeds capacity %d", len(value), s.Capacity)
	}
	s.values[key] = value
	return nil
}
