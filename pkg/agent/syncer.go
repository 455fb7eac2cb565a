package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aman-app/aman/pkg/client"
	"github.com/aman-app/aman/pkg/errdefs"
	"github.com/aman-app/aman/pkg/events"
	"github.com/aman-app/aman/pkg/log"
	"github.com/aman-app/aman/pkg/metrics"
	"github.com/aman-app/aman/pkg/storage"
	"github.com/aman-app/aman/pkg/types"
)

// Remote is the replication surface the orchestrator syncs against.
// Implemented by client.Client.
type Remote interface {
	PutDoc(ctx context.Context, doc *types.CheckIn) (string, error)
	Changes(ctx context.Context, since int64) (*client.ChangesResult, error)
	BulkGet(ctx context.Context, ids []string) (*client.BulkGetResult, error)
	PutCheckpoint(ctx context.Context, checkpointID string, body interface{}) error
}

const (
	backoffInitial = 1500 * time.Millisecond
	backoffMax     = 30 * time.Second

	// DefaultHeartbeat re-triggers sync while otherwise paused.
	DefaultHeartbeat = time.Minute

	// checkpointID keys the locally persisted resume token.
	checkpointID = "sync"
)

type checkpointBody struct {
	LastSeq int64 `json:"last_seq"`
}

// Syncer drives push/pull cycles against the replication facade,
// reconciling local canonical records with the server. States move
// idle -> syncing -> {paused | error | idle}; overlapping triggers
// coalesce into a no-op while a cycle is in flight.
type Syncer struct {
	local  storage.Store
	remote Remote
	broker *events.Broker

	heartbeat time.Duration
	logger    zerolog.Logger

	mu       sync.Mutex
	state    types.SyncState
	inflight bool
	backoff  time.Duration

	triggerCh chan struct{}
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewSyncer creates the sync orchestrator. heartbeat <= 0 uses the
// default.
func NewSyncer(local storage.Store, remote Remote, broker *events.Broker, heartbeat time.Duration) *Syncer {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Syncer{
		local:     local,
		remote:    remote,
		broker:    broker,
		heartbeat: heartbeat,
		logger:    log.WithComponent("syncer"),
		state:     types.SyncIdle,
		backoff:   backoffInitial,
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// State returns the orchestrator's current state.
func (s *Syncer) State() types.SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Trigger requests a sync cycle. Redundant triggers while a cycle is
// in flight coalesce into a no-op.
func (s *Syncer) Trigger() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// Start launches the run loop and requests an initial cycle.
func (s *Syncer) Start() {
	go s.run()
	s.Trigger()
}

// Stop halts the orchestrator.
func (s *Syncer) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Syncer) run() {
	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-s.triggerCh:
			s.SyncOnce(context.Background())
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if ev.Type == events.EventOnline {
				s.SyncOnce(context.Background())
			}
		case <-ticker.C:
			s.SyncOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// SyncOnce performs one push/pull cycle. It is a no-op when a cycle is
// already in flight.
func (s *Syncer) SyncOnce(ctx context.Context) {
	s.mu.Lock()
	if s.inflight {
		s.mu.Unlock()
		return
	}
	s.inflight = true
	s.state = types.SyncSyncing
	s.mu.Unlock()

	timer := metrics.NewTimer()
	pushed, err := s.push(ctx)
	pulled := 0
	if err == nil {
		pulled, err = s.pull(ctx)
	}
	timer.ObserveDuration(metrics.SyncCycleDuration)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight = false

	if err != nil {
		s.state = types.SyncError
		s.logger.Debug().Err(err).Dur("retry_in", s.backoff).Msg("sync cycle failed")
		metrics.SyncCyclesTotal.WithLabelValues("error").Inc()
		s.broker.Publish(&events.Event{Type: events.EventSyncFailed})
		s.scheduleRetryLocked()
		return
	}

	s.backoff = backoffInitial
	if pushed == 0 && pulled == 0 {
		// Nothing further to exchange.
		s.state = types.SyncPaused
		metrics.SyncCyclesTotal.WithLabelValues("noop").Inc()
		return
	}
	s.state = types.SyncIdle
	metrics.SyncCyclesTotal.WithLabelValues("ok").Inc()
	s.logger.Info().Int("pushed", pushed).Int("pulled", pulled).Msg("sync cycle completed")
	s.broker.Publish(&events.Event{
		Type:    events.EventSyncCompleted,
		Payload: events.SyncCompleted{Pushed: pushed, Pulled: pulled},
	})
}

// scheduleRetryLocked arms an exponential-backoff retry. Callers hold
// s.mu.
func (s *Syncer) scheduleRetryLocked() {
	backoff := s.backoff
	s.backoff *= 2
	if s.backoff > backoffMax {
		s.backoff = backoffMax
	}
	time.AfterFunc(backoff, s.Trigger)
}

// push replicates local records lacking the synced marker. After the
// server acknowledges a record, the latest local value is re-read
// before the flag is reapplied, so a concurrent local edit is never
// overwritten blindly.
func (s *Syncer) push(ctx context.Context) (int, error) {
	locals, err := s.local.ListCheckIns()
	if err != nil {
		return 0, err
	}

	pushed := 0
	for _, rec := range locals {
		if rec.Synced {
			continue
		}
		rev, err := s.remote.PutDoc(ctx, rec)
		if err != nil {
			return pushed, err
		}
		pushed++

		latest, err := s.local.GetCheckIn(rec.ID)
		if err != nil {
			if errdefs.IsNotFound(err) {
				continue
			}
			return pushed, err
		}
		if !latest.UpdatedAt.Equal(rec.UpdatedAt) {
			// Edited while the push was in flight; the next cycle
			// pushes the newer value.
			continue
		}
		latest.Synced = true
		latest.Rev = rev
		if err := s.local.PutCheckIn(latest); err != nil {
			return pushed, err
		}
	}
	return pushed, nil
}

// pull fetches remote records newer than the last checkpoint and
// merges them locally by last write wins.
func (s *Syncer) pull(ctx context.Context) (int, error) {
	since := s.loadCheckpoint()

	changes, err := s.remote.Changes(ctx, since)
	if err != nil {
		return 0, err
	}
	if len(changes.Results) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(changes.Results))
	for _, ch := range changes.Results {
		ids = append(ids, ch.ID)
	}
	batch, err := s.remote.BulkGet(ctx, ids)
	if err != nil {
		return 0, err
	}

	pulled := 0
	for _, res := range batch.Results {
		for _, d := range res.Docs {
			if d.OK == nil {
				continue
			}
			if err := s.merge(d.OK); err != nil {
				return pulled, err
			}
			pulled++
		}
	}

	s.saveCheckpoint(ctx, changes.LastSeq)
	return pulled, nil
}

// merge applies one remote record locally, keeping whichever write is
// latest.
func (s *Syncer) merge(remote *types.CheckIn) error {
	local, err := s.local.GetCheckIn(remote.ID)
	if err == nil && local.UpdatedAt.After(remote.UpdatedAt) {
		// The local edit is newer; it wins and will be pushed on the
		// next leg.
		return nil
	}
	if err != nil && !errdefs.IsNotFound(err) {
		return err
	}
	remote.Synced = true
	return s.local.PutCheckIn(remote)
}

func (s *Syncer) loadCheckpoint() int64 {
	cp, err := s.local.GetCheckpoint(checkpointID)
	if err != nil {
		return 0
	}
	var body checkpointBody
	if err := json.Unmarshal(cp.Body, &body); err != nil {
		// Opaque token we cannot read: a full resync is always safe.
		return 0
	}
	return body.LastSeq
}

func (s *Syncer) saveCheckpoint(ctx context.Context, lastSeq int64) {
	body, _ := json.Marshal(checkpointBody{LastSeq: lastSeq})
	if err := s.local.PutCheckpoint(&types.Checkpoint{
		ID:        checkpointID,
		Body:      body,
		UpdatedAt: time.Now(),
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist checkpoint")
	}
	// Mirror to the server; losing this only costs a re-scan.
	if err := s.remote.PutCheckpoint(ctx, checkpointID, checkpointBody{LastSeq: lastSeq}); err != nil {
		s.logger.Debug().Err(err).Msg("server checkpoint deferred")
	}
}
