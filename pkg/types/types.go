package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CheckIn is the canonical safety record for a single user. Exactly one
// live CheckIn exists per owner; writes are upserts keyed by CheckInID.
type CheckIn struct {
	ID        string        `json:"_id"`
	Rev       string        `json:"_rev,omitempty"`
	UserID    string        `json:"userId"`
	Status    CheckInStatus `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latitude  float64       `json:"lat"`
	Longitude float64       `json:"lng"`
	UpdatedAt time.Time     `json:"updatedAt"`

	// Synced is client-local bookkeeping. The server zeroes it on every
	// accepted write and never trusts it from a remote peer.
	Synced bool `json:"synced,omitempty"`
}

// CheckInStatus is the broadcast safety state of a user.
type CheckInStatus string

const (
	CheckInSafe CheckInStatus = "safe"
	CheckInHelp CheckInStatus = "help"
)

// CheckInID derives the deterministic document id for a user's canonical
// record. Deterministic ids make replayed creates upserts.
func CheckInID(userID string) string {
	return "checkin_" + userID
}

// Alert is a geofenced incident report.
type Alert struct {
	ID          string      `json:"id"`
	UserID      string      `json:"userId"`
	Category    string      `json:"category"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Latitude    float64     `json:"lat"`
	Longitude   float64     `json:"lng"`
	Severity    Severity    `json:"severity"`
	Status      AlertStatus `json:"status"`
	ReportCount int         `json:"reportCount"`
	Reporters   []string    `json:"reporters,omitempty"`
	Fingerprint string      `json:"fingerprint"`
	Hidden      bool        `json:"hidden"`
	CreatedAt   time.Time   `json:"createdAt"`
	ExpiresAt   time.Time   `json:"expiresAt"`
	Synced      bool        `json:"synced,omitempty"`
}

// Expired reports whether the alert has passed its retirement time.
func (a *Alert) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// HasReporter reports whether userID already flagged this alert.
func (a *Alert) HasReporter(userID string) bool {
	for _, r := range a.Reporters {
		if r == userID {
			return true
		}
	}
	return false
}

// AlertStatus represents the lifecycle state of an alert.
type AlertStatus string

const (
	AlertActive     AlertStatus = "active"
	AlertResolved   AlertStatus = "resolved"
	AlertFalseAlarm AlertStatus = "false_alarm"
)

// Severity ranks how urgent an alert is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertID derives a server-assigned alert id for an owner.
func AlertID(userID string, at time.Time) string {
	return fmt.Sprintf("alert_%s_%d", userID, at.UnixNano())
}

// QueuedAction is a recorded mutation awaiting replay. It stays queued
// until the counterpart operation is acknowledged as applied or is
// classified as permanently unrecoverable.
type QueuedAction struct {
	ID        string     `json:"id"`
	Kind      ActionKind `json:"action"`
	Endpoint  string     `json:"endpoint"`
	Method    string     `json:"method"`
	Data      []byte     `json:"data,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Synced    bool       `json:"synced"`
}

// ActionKind identifies what a queued action does when replayed.
type ActionKind string

const (
	ActionCreateAlert ActionKind = "create-alert"
	ActionReportAlert ActionKind = "report-alert"
	ActionDeleteAlert ActionKind = "delete-alert"
	ActionGroupOp     ActionKind = "group-op"
)

// PlaceholderID generates a client-side id used before the server
// assigns a permanent one.
func PlaceholderID() string {
	return "local_" + uuid.New().String()
}

// IsPlaceholderID reports whether id was generated locally.
func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, "local_")
}

// CachedArtifact is a derived binary artifact (e.g. a rendered map
// thumbnail) keyed by an alert id or a placeholder id.
type CachedArtifact struct {
	Key      string    `json:"key"`
	Snapshot []byte    `json:"snapshot"`
	CachedAt time.Time `json:"cachedAt"`
}

// Checkpoint is an opaque replication resume token. The server stores
// and echoes it without parsing its content.
type Checkpoint struct {
	ID        string    `json:"id"`
	Body      []byte    `json:"body"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SyncState is the orchestrator's externally visible state.
type SyncState string

const (
	SyncIdle    SyncState = "idle"
	SyncSyncing SyncState = "syncing"
	SyncPaused  SyncState = "paused"
	SyncError   SyncState = "error"
)
