package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-app/aman/pkg/errdefs"
	"github.com/aman-app/aman/pkg/events"
)

func TestArtifactCacheRemap(t *testing.T) {
	cache := NewArtifactCache(newSyncTestStore(t))

	require.NoError(t, cache.Put("local_p1", []byte("png-bytes")))
	require.NoError(t, cache.Remap("local_p1", "alert_u1_42"))

	_, err := cache.Get("local_p1")
	assert.True(t, errdefs.IsNotFound(err))

	art, err := cache.Get("alert_u1_42")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), art.Snapshot)
}

func TestReconcilerRemapsOnResourceSynced(t *testing.T) {
	cache := NewArtifactCache(newSyncTestStore(t))
	require.NoError(t, cache.Put("local_p1", []byte("png-bytes")))

	api := &fakeAlertAPI{}
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	rec := NewReconciler(cache, api, broker)
	rec.Start()
	defer rec.Stop()

	broker.PublishResourceSynced("local_p1", "alert_u1_42")

	assert.Eventually(t, func() bool {
		return api.snapshot("alert_u1_42") != nil
	}, 2*time.Second, 10*time.Millisecond)

	_, err := cache.Get("local_p1")
	assert.True(t, errdefs.IsNotFound(err))

	art, err := cache.Get("alert_u1_42")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), art.Snapshot)
}

func TestReconcilerNoArtifactIsQuiet(t *testing.T) {
	cache := NewArtifactCache(newSyncTestStore(t))
	api := &fakeAlertAPI{}
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	rec := NewReconciler(cache, api, broker)
	rec.Start()
	defer rec.Stop()

	broker.PublishResourceSynced("local_p2", "alert_u1_43")
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, api.snapshots)
}
