package storage

import (
	"time"

	"github.com/aman-app/aman/pkg/types"
)

// Store defines the durable keyed store behind both the server facade
// and the client agent. It holds the latest value per key only; there
// is no revision history.
type Store interface {
	// Check-ins (canonical records)
	PutCheckIn(c *types.CheckIn) error
	GetCheckIn(id string) (*types.CheckIn, error)
	ListCheckIns() ([]*types.CheckIn, error)
	ListCheckInsSince(seq int64) ([]*types.CheckIn, error)
	DeleteCheckIn(id string) error

	// Alerts
	PutAlert(a *types.Alert) error
	GetAlert(id string) (*types.Alert, error)
	ListAlerts() ([]*types.Alert, error)
	ActiveAlertByFingerprint(fingerprint string, since time.Time) (*types.Alert, error)
	DeleteAlert(id string) error
	PurgeExpiredAlerts(now time.Time) (int, error)

	// Replication checkpoints
	PutCheckpoint(cp *types.Checkpoint) error
	GetCheckpoint(id string) (*types.Checkpoint, error)

	// Derived artifacts
	PutArtifact(a *types.CachedArtifact) error
	GetArtifact(key string) (*types.CachedArtifact, error)
	DeleteArtifact(key string) error

	// Utility
	Close() error
}
