package queue

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aman-app/aman/pkg/errdefs"
	"github.com/aman-app/aman/pkg/log"
	"github.com/aman-app/aman/pkg/metrics"
	"github.com/aman-app/aman/pkg/types"
)

// StorageKey is the single well-known key the queue persists under.
const StorageKey = "aman.pending_actions"

// DefaultKeepOnQuota bounds how many most-recent items survive a
// quota truncation.
const DefaultKeepOnQuota = 5

// Queue is the durable local queue of pending mutations. It survives
// process restarts: every mutation persists the full list to the
// substrate before returning.
type Queue struct {
	substrate Substrate
	keep      int
	mu        sync.Mutex
	items     []*types.QueuedAction
	logger    zerolog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithKeepOnQuota overrides how many items survive quota truncation.
func WithKeepOnQuota(n int) Option {
	return func(q *Queue) { q.keep = n }
}

// Open loads persisted queue state from the substrate. A missing key
// means an empty queue, not an error.
func Open(substrate Substrate, opts ...Option) (*Queue, error) {
	q := &Queue{
		substrate: substrate,
		keep:      DefaultKeepOnQuota,
		logger:    log.WithComponent("queue"),
	}
	for _, opt := range opts {
		opt(q)
	}

	data, err := substrate.Load(StorageKey)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return q, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &q.items); err != nil {
		// Corrupt queue state is unrecoverable bookkeeping, not user
		// data; start fresh rather than wedging every enqueue.
		q.logger.Warn().Err(err).Msg("discarding corrupt queue state")
		q.items = nil
	}
	metrics.QueueDepth.Set(float64(len(q.items)))
	return q, nil
}

// Enqueue appends an action, persists, and returns the local id. It
// never fails for a full-but-recoverable substrate: on quota the queue
// truncates to the most recent items instead.
func (q *Queue) Enqueue(action *types.QueuedAction) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if action.ID == "" {
		action.ID = types.PlaceholderID()
	}
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now()
	}
	q.items = append(q.items, action)
	q.persistLocked()
	return action.ID
}

// List returns the pending actions in insertion order.
func (q *Queue) List() []*types.QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*types.QueuedAction, len(q.items))
	copy(out, q.items)
	return out
}

// MarkDone removes the action with the given local id and persists.
func (q *Queue) MarkDone(localID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.items {
		if item.ID == localID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.persistLocked()
			return
		}
	}
}

// Len returns the number of pending actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// persistLocked writes the queue to the substrate, truncating to the
// most recent items if the substrate reports a capacity error.
func (q *Queue) persistLocked() {
	for {
		data, err := json.Marshal(q.items)
		if err != nil {
			q.logger.Error().Err(err).Msg("failed to encode queue")
			return
		}
		err = q.substrate.Store(StorageKey, data)
		if err == nil {
			metrics.QueueDepth.Set(float64(len(q.items)))
			return
		}
		if !errdefs.IsQuotaExceeded(err) {
			q.logger.Error().Err(err).Msg("failed to persist queue")
			return
		}

		keep := q.keep
		if keep >= len(q.items) {
			keep = len(q.items) - 1
		}
		if keep < 0 {
			keep = 0
		}
		dropped := len(q.items) - keep
		q.items = append([]*types.QueuedAction(nil), q.items[len(q.items)-keep:]...)
		q.logger.Warn().Int("dropped", dropped).Int("kept", keep).
			Msg("storage quota exceeded, truncated queue to most recent items")
		if len(q.items) == 0 {
			// Nothing left to shed; give up silently per contract.
			return
		}
	}
}
