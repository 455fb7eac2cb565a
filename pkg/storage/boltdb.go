package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/aman-app/aman/pkg/errdefs"
	"github.com/aman-app/aman/pkg/types"
)

var (
	// Bucket names
	bucketCheckIns    = []byte("checkins")
	bucketAlerts      = []byte("alerts")
	bucketCheckpoints = []byte("checkpoints")
	bucketArtifacts   = []byte("artifacts")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database file under dataDir.
func NewBoltStore(dataDir, name string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, name)

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketCheckIns,
			bucketAlerts,
			bucketCheckpoints,
			bucketArtifacts,
		}

		for _, bucket := range buckets {
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

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Check-in operations

func (s *BoltStore) PutCheckIn(c *types.CheckIn) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckIns)
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return b.Put([]byte(c.ID), data)
	})
}

func (s *BoltStore) GetCheckIn(id string) (*types.CheckIn, error) {
	var c types.CheckIn
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckIns)
		data := b.Get([]byte(id))
		if data == nil {
			return errdefs.NotFound("check-in not found: %s", id)
		}
		return json.Unmarshal(data, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *BoltStore) ListCheckIns() ([]*types.CheckIn, error) {
	var checkins []*types.CheckIn
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckIns)
		return b.ForEach(func(k, v []byte) error {
			var c types.CheckIn
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			checkins = append(checkins, &c)
			return nil
		})
	})
	return checkins, err
}

// ListCheckInsSince returns records whose modification sequence
// (UpdatedAt in unix milliseconds) is strictly newer than seq.
func (s *BoltStore) ListCheckInsSince(seq int64) ([]*types.CheckIn, error) {
	all, err := s.ListCheckIns()
	if err != nil {
		return nil, err
	}
	var newer []*types.CheckIn
	for _, c := range all {
		if c.UpdatedAt.UnixMilli() > seq {
			newer = append(newer, c)
		}
	}
	return newer, nil
}

func (s *BoltStore) DeleteCheckIn(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCheckIns).Delete([]byte(id))
	})
}

// Alert operations

func (s *BoltStore) PutAlert(a *types.Alert) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAlerts)
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return b.Put([]byte(a.ID), data)
	})
}

func (s *BoltStore) GetAlert(id string) (*types.Alert, error) {
	var a types.Alert
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAlerts)
		data := b.Get([]byte(id))
		if data == nil {
			return errdefs.NotFound("alert not found: %s", id)
		}
		return json.Unmarshal(data, &a)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *BoltStore) ListAlerts() ([]*types.Alert, error) {
	var alerts []*types.Alert
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAlerts)
		return b.ForEach(func(k, v []byte) error {
			var a types.Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			alerts = append(alerts, &a)
			return nil
		})
	})
	return alerts, err
}

// ActiveAlertByFingerprint returns the active alert carrying the given
// fingerprint created at or after since, if one exists.
func (s *BoltStore) ActiveAlertByFingerprint(fingerprint string, since time.Time) (*types.Alert, error) {
	alerts, err := s.ListAlerts()
	if err != nil {
		return nil, err
	}
	for _, a := range alerts {
		if a.Fingerprint == fingerprint &&
			a.Status == types.AlertActive &&
			!a.CreatedAt.Before(since) {
			return a, nil
		}
	}
	return nil, errdefs.NotFound("no active alert with fingerprint %s", fingerprint)
}

func (s *BoltStore) DeleteAlert(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAlerts).Delete([]byte(id))
	})
}

// PurgeExpiredAlerts removes alerts past their expiry time and returns
// how many were deleted.
func (s *BoltStore) PurgeExpiredAlerts(now time.Time) (int, error) {
	purged := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAlerts)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var a types.Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if a.Expired(now) {
				key := make([]byte, len(k))
				copy(key, k)
				expired = append(expired, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	return purged, err
}

// Checkpoint operations

func (s *BoltStore) PutCheckpoint(cp *types.Checkpoint) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckpoints)
		data, err := json.Marshal(cp)
		if err != nil {
			return err
		}
		return b.Put([]byte(cp.ID), data)
	})
}

func (s *BoltStore) GetCheckpoint(id string) (*types.Checkpoint, error) {
	var cp types.Checkpoint
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckpoints)
		data := b.Get([]byte(id))
		if data == nil {
			return errdefs.NotFound("checkpoint not found: %s", id)
		}
		return json.Unmarshal(data, &cp)
	})
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// Artifact operations

func (s *BoltStore) PutArtifact(a *types.CachedArtifact) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArtifacts)
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return b.Put([]byte(a.Key), data)
	})
}

func (s *BoltStore) GetArtifact(key string) (*types.CachedArtifact, error) {
	var a types.CachedArtifact
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArtifacts)
		data := b.Get([]byte(key))
		if data == nil {
			return errdefs.NotFound("artifact not found: %s", key)
		}
		return json.Unmarshal(data, &a)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *BoltStore) DeleteArtifact(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketArtifacts).Delete([]byte(key))
	})
}
