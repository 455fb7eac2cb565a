package agent

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aman-app/aman/pkg/events"
	"github.com/aman-app/aman/pkg/log"
	"github.com/aman-app/aman/pkg/storage"
	"github.com/aman-app/aman/pkg/types"
)

// ArtifactCache stores derived binary artifacts keyed by alert id or
// placeholder id.
type ArtifactCache struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewArtifactCache creates a cache over the agent's local store.
func NewArtifactCache(store storage.Store) *ArtifactCache {
	return &ArtifactCache{store: store, logger: log.WithComponent("artifacts")}
}

// Put caches a snapshot under key.
func (c *ArtifactCache) Put(key string, snapshot []byte) error {
	return c.store.PutArtifact(&types.CachedArtifact{
		Key:      key,
		Snapshot: snapshot,
		CachedAt: time.Now(),
	})
}

// Get returns the cached artifact for key.
func (c *ArtifactCache) Get(key string) (*types.CachedArtifact, error) {
	return c.store.GetArtifact(key)
}

// Remap moves the entry cached under oldKey to newKey. The artifact
// keeps its original capture timestamp.
func (c *ArtifactCache) Remap(oldKey, newKey string) error {
	artifact, err := c.store.GetArtifact(oldKey)
	if err != nil {
		return err
	}
	artifact.Key = newKey
	if err := c.store.PutArtifact(artifact); err != nil {
		return err
	}
	return c.store.DeleteArtifact(oldKey)
}

// SnapshotPusher uploads an artifact under its real id. Implemented by
// client.Client.
type SnapshotPusher interface {
	PushSnapshot(ctx context.Context, alertID string, snapshot []byte) error
}

// Reconciler bridges placeholder ids to server ids: it subscribes to
// resource.synced events, remaps the artifact cache and attempts one
// best-effort push of the artifact under the real id. A failed push
// leaves the artifact cached under the real id for a later
// opportunistic pass.
type Reconciler struct {
	cache  *ArtifactCache
	pusher SnapshotPusher
	broker *events.Broker
	sub    events.Subscriber
	stopCh chan struct{}
	logger zerolog.Logger
}

// NewReconciler creates the identifier reconciler.
func NewReconciler(cache *ArtifactCache, pusher SnapshotPusher, broker *events.Broker) *Reconciler {
	return &Reconciler{
		cache:  cache,
		pusher: pusher,
		broker: broker,
		stopCh: make(chan struct{}),
		logger: log.WithComponent("reconciler"),
	}
}

// Start begins listening for resource.synced events.
func (r *Reconciler) Start() {
	r.sub = r.broker.Subscribe()
	go r.run()
}

// Stop stops the reconciler.
func (r *Reconciler) Stop() {
	close(r.stopCh)
	r.broker.Unsubscribe(r.sub)
}

func (r *Reconciler) run() {
	for {
		select {
		case ev, ok := <-r.sub:
			if !ok {
				return
			}
			if ev.Type != events.EventResourceSynced {
				continue
			}
			if payload, ok := ev.Payload.(events.ResourceSynced); ok {
				r.Reconcile(payload.PlaceholderID, payload.RealID)
			}
		case <-r.stopCh:
			return
		}
	}
}

// Reconcile moves the artifact cached under placeholderID to realID
// and attempts one best-effort push of it under the real id. Safe to
// call directly when no event loop is running, as one-shot commands do.
func (r *Reconciler) Reconcile(placeholderID, realID string) {
	if err := r.cache.Remap(placeholderID, realID); err != nil {
		// No artifact was cached for this placeholder; nothing to move.
		r.logger.Debug().Str("placeholder", placeholderID).Err(err).Msg("no artifact to remap")
		return
	}
	r.logger.Info().Str("placeholder", placeholderID).Str("real", realID).Msg("artifact remapped")

	artifact, err := r.cache.Get(realID)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.pusher.PushSnapshot(ctx, realID, artifact.Snapshot); err != nil {
		// Best effort only; the artifact stays cached under the real
		// id for a later opportunistic sync pass.
		r.logger.Debug().Str("alert_id", realID).Err(err).Msg("snapshot push deferred")
	}
}
