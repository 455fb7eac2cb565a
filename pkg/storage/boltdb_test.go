package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-app/aman/pkg/errdefs"
	"github.com/aman-app/aman/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir(), "aman-test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCheckInUpsert(t *testing.T) {
	s := newTestStore(t)

	c := &types.CheckIn{
		ID:        types.CheckInID("u1"),
		UserID:    "u1",
		Status:    types.CheckInSafe,
		UpdatedAt: time.Now(),
	}
	require.NoError(t, s.PutCheckIn(c))

	got, err := s.GetCheckIn(c.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CheckInSafe, got.Status)

	// Second put with the same id replaces, never duplicates.
	c.Status = types.CheckInHelp
	require.NoError(t, s.PutCheckIn(c))

	all, err := s.ListCheckIns()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, types.CheckInHelp, all[0].Status)
}

func TestGetCheckInNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetCheckIn("checkin_missing")
	assert.True(t, errdefs.IsNotFound(err))
}

func TestListCheckInsSince(t *testing.T) {
	s := newTestStore(t)

	base := time.Now()
	old := &types.CheckIn{ID: types.CheckInID("u1"), UserID: "u1", UpdatedAt: base.Add(-time.Hour)}
	fresh := &types.CheckIn{ID: types.CheckInID("u2"), UserID: "u2", UpdatedAt: base}
	require.NoError(t, s.PutCheckIn(old))
	require.NoError(t, s.PutCheckIn(fresh))

	newer, err := s.ListCheckInsSince(base.Add(-time.Minute).UnixMilli())
	require.NoError(t, err)
	require.Len(t, newer, 1)
	assert.Equal(t, "u2", newer[0].UserID)
}

func TestActiveAlertByFingerprint(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	active := &types.Alert{
		ID:          "alert_u1_1",
		UserID:      "u1",
		Fingerprint: "fp1",
		Status:      types.AlertActive,
		CreatedAt:   now.Add(-10 * time.Minute),
		ExpiresAt:   now.Add(24 * time.Hour),
	}
	resolved := &types.Alert{
		ID:          "alert_u2_2",
		UserID:      "u2",
		Fingerprint: "fp2",
		Status:      types.AlertResolved,
		CreatedAt:   now.Add(-10 * time.Minute),
		ExpiresAt:   now.Add(24 * time.Hour),
	}
	require.NoError(t, s.PutAlert(active))
	require.NoError(t, s.PutAlert(resolved))

	got, err := s.ActiveAlertByFingerprint("fp1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "alert_u1_1", got.ID)

	// Resolved alerts never match.
	_, err = s.ActiveAlertByFingerprint("fp2", now.Add(-time.Hour))
	assert.True(t, errdefs.IsNotFound(err))

	// Outside the window nothing matches.
	_, err = s.ActiveAlertByFingerprint("fp1", now.Add(-time.Minute))
	assert.True(t, errdefs.IsNotFound(err))
}

func TestPurgeExpiredAlerts(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	expired := &types.Alert{ID: "alert_u1_1", ExpiresAt: now.Add(-time.Minute)}
	live := &types.Alert{ID: "alert_u2_2", ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, s.PutAlert(expired))
	require.NoError(t, s.PutAlert(live))

	purged, err := s.PurgeExpiredAlerts(now)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = s.GetAlert("alert_u1_1")
	assert.True(t, errdefs.IsNotFound(err))
	_, err = s.GetAlert("alert_u2_2")
	assert.NoError(t, err)
}

func TestCheckpointRoundtrip(t *testing.T) {
	s := newTestStore(t)

	cp := &types.Checkpoint{ID: "device-1", Body: []byte(`{"last_seq":42}`), UpdatedAt: time.Now()}
	require.NoError(t, s.PutCheckpoint(cp))

	got, err := s.GetCheckpoint("device-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"last_seq":42}`, string(got.Body))
}

func TestArtifactDelete(t *testing.T) {
	s := newTestStore(t)

	a := &types.CachedArtifact{Key: "local_p1", Snapshot: []byte{0x1}, CachedAt: time.Now()}
	require.NoError(t, s.PutArtifact(a))
	require.NoError(t, s.DeleteArtifact("local_p1"))

	_, err := s.GetArtifact("local_p1")
	assert.True(t, errdefs.IsNotFound(err))
}
