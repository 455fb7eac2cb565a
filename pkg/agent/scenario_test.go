package agent

import (
	"context"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-app/aman/pkg/alerts"
	"github.com/aman-app/aman/pkg/api"
	"github.com/aman-app/aman/pkg/auth"
	"github.com/aman-app/aman/pkg/client"
	"github.com/aman-app/aman/pkg/errdefs"
	"github.com/aman-app/aman/pkg/events"
	"github.com/aman-app/aman/pkg/replicator"
	"github.com/aman-app/aman/pkg/storage"
	"github.com/aman-app/aman/pkg/types"
)

// TestOfflineCreateThenReconnect walks the whole offline-first path
// against a real server: create while offline, drain on reconnect,
// remap the cached artifact to the server-assigned id, and confirm a
// repeat create collides with the dedup window.
func TestOfflineCreateThenReconnect(t *testing.T) {
	serverStore, err := storage.NewBoltStore(t.TempDir(), "server.db")
	require.NoError(t, err)
	t.Cleanup(func() { serverStore.Close() })

	engine := alerts.NewEngine(serverStore, 0)
	facade := replicator.NewFacade(serverStore)
	srv := httptest.NewServer(api.NewServer(engine, facade, serverStore, auth.StaticVerifier{"tok-u1": "u1"}).Routes())
	t.Cleanup(srv.Close)

	cl := client.New(srv.URL, "tok-u1")
	localStore := newSyncTestStore(t)
	q := newTestQueue(t)
	cache := NewArtifactCache(localStore)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	reconciler := NewReconciler(cache, cl, broker)
	reconciler.Start()
	defer reconciler.Stop()

	var reachable atomic.Bool
	commander := NewCommander("u1", cl, q, cache, localStore, reachable.Load, nil)

	in := alerts.CreateInput{Category: "emergency", Title: "Fire", Latitude: 36.81, Longitude: 10.18}

	// Offline: the intent queues under a placeholder and the artifact
	// waits with it.
	res, err := commander.CreateAlert(context.Background(), in, []byte("map-thumb"))
	require.NoError(t, err)
	require.True(t, res.Queued)
	require.True(t, types.IsPlaceholderID(res.PlaceholderID))
	assert.Equal(t, 1, q.Len())

	// Connectivity returns: the drain posts the alert and empties the
	// queue.
	reachable.Store(true)
	NewReplayer(q, cl, broker).Drain(context.Background())
	assert.Equal(t, 0, q.Len())

	got, err := cl.ListAlerts(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	realID := got[0].ID
	assert.False(t, types.IsPlaceholderID(realID))

	// The reconciler moves the artifact to the server-assigned id.
	assert.Eventually(t, func() bool {
		_, err := cache.Get(realID)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	_, err = cache.Get(res.PlaceholderID)
	assert.True(t, errdefs.IsNotFound(err))

	// A repeat of the same alert inside the dedup window is a
	// synchronous conflict, never queued.
	_, err = commander.CreateAlert(context.Background(), in, nil)
	assert.True(t, errdefs.IsConflict(err))
	assert.Equal(t, 0, q.Len())
}

// TestCheckInRoundTripsThroughServer pushes a local check-in through
// the real facade and pulls it back onto a second device.
func TestCheckInRoundTripsThroughServer(t *testing.T) {
	serverStore, err := storage.NewBoltStore(t.TempDir(), "server.db")
	require.NoError(t, err)
	t.Cleanup(func() { serverStore.Close() })

	srv := httptest.NewServer(api.NewServer(
		alerts.NewEngine(serverStore, 0),
		replicator.NewFacade(serverStore),
		serverStore,
		auth.StaticVerifier{"tok-u1": "u1"},
	).Routes())
	t.Cleanup(srv.Close)

	cl := client.New(srv.URL, "tok-u1")
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	// Device A records a status and syncs it up.
	deviceA := newSyncTestStore(t)
	commander := NewCommander("u1", cl, newTestQueue(t), NewArtifactCache(deviceA), deviceA,
		func() bool { return true }, nil)
	_, err = commander.SetStatus(types.CheckInHelp, "need water", 36.81, 10.18)
	require.NoError(t, err)
	NewSyncer(deviceA, cl, broker, time.Hour).SyncOnce(context.Background())

	recA, err := deviceA.GetCheckIn(types.CheckInID("u1"))
	require.NoError(t, err)
	assert.True(t, recA.Synced)
	assert.NotEmpty(t, recA.Rev)

	// Device B starts empty and pulls the record down.
	deviceB := newSyncTestStore(t)
	NewSyncer(deviceB, cl, broker, time.Hour).SyncOnce(context.Background())

	recB, err := deviceB.GetCheckIn(types.CheckInID("u1"))
	require.NoError(t, err)
	assert.Equal(t, types.CheckInHelp, recB.Status)
	assert.Equal(t, "need water", recB.Message)
	assert.True(t, recB.Synced)
}
