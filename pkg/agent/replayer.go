package agent

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aman-app/aman/pkg/errdefs"
	"github.com/aman-app/aman/pkg/events"
	"github.com/aman-app/aman/pkg/log"
	"github.com/aman-app/aman/pkg/metrics"
	"github.com/aman-app/aman/pkg/queue"
	"github.com/aman-app/aman/pkg/types"
)

// Doer issues an HTTP-shaped intent against the server. Implemented by
// client.Client.
type Doer interface {
	Do(ctx context.Context, method, path string, body, out interface{}) error
}

// Replayer drains the durable local queue against the REST surface.
// One ordered drain pass runs per trigger event; it is never a tight
// retry loop.
type Replayer struct {
	queue  *queue.Queue
	doer   Doer
	broker *events.Broker
	logger zerolog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewReplayer creates a replayer over the queue.
func NewReplayer(q *queue.Queue, doer Doer, broker *events.Broker) *Replayer {
	return &Replayer{
		queue:  q,
		doer:   doer,
		broker: broker,
		logger: log.WithComponent("replayer"),
		stopCh: make(chan struct{}),
	}
}

// Start drains once for anything left over from a previous run, then
// drains again on every offline-to-online transition.
func (r *Replayer) Start() {
	go func() {
		sub := r.broker.Subscribe()
		defer r.broker.Unsubscribe(sub)

		r.Drain(context.Background())
		for {
			select {
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if ev.Type == events.EventOnline {
					r.Drain(context.Background())
				}
			case <-r.stopCh:
				return
			}
		}
	}()
}

// Stop halts the replayer's trigger loop.
func (r *Replayer) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Mapping records a placeholder id resolved to its server id during a
// drain pass.
type Mapping struct {
	PlaceholderID string
	RealID        string
}

// DrainResult summarizes one drain pass. Mappings lets callers without
// a long-lived reconciler remap artifacts synchronously.
type DrainResult struct {
	Applied  int
	Dropped  int
	Mappings []Mapping
}

// Drain replays queued actions in insertion order. Success and
// permanently unrecoverable outcomes remove the item; transient
// failures keep it, silently, for the next trigger and end the pass so
// insertion order is preserved. Every handler on the server side is
// idempotent, so an item replayed twice after a crash converges to one
// applied mutation.
func (r *Replayer) Drain(ctx context.Context) DrainResult {
	var res DrainResult

	for _, item := range r.queue.List() {
		var resp struct {
			ID string `json:"id"`
		}
		err := r.doer.Do(ctx, item.Method, item.Endpoint, item.Data, &resp)

		switch {
		case err == nil:
			r.queue.MarkDone(item.ID)
			res.Applied++
			metrics.ReplayOutcomesTotal.WithLabelValues("applied").Inc()
			if item.Kind == types.ActionCreateAlert && resp.ID != "" {
				res.Mappings = append(res.Mappings, Mapping{PlaceholderID: item.ID, RealID: resp.ID})
				r.broker.PublishResourceSynced(item.ID, resp.ID)
			}

		case errdefs.IsNotFound(err) && item.Method == "DELETE":
			// Not found on a delete is success for idempotency.
			r.queue.MarkDone(item.ID)
			res.Applied++
			metrics.ReplayOutcomesTotal.WithLabelValues("applied").Inc()

		case errdefs.IsConflict(err):
			// Already applied (duplicate fingerprint or duplicate
			// report): the mutation is settled, nothing to retry. A
			// replayed create that lost its ack collides with its own
			// alert; the conflict names the survivor, so the
			// placeholder still resolves.
			r.queue.MarkDone(item.ID)
			res.Dropped++
			metrics.ReplayOutcomesTotal.WithLabelValues("conflict").Inc()
			if realID := errdefs.ResourceIDOf(err); item.Kind == types.ActionCreateAlert && realID != "" {
				res.Mappings = append(res.Mappings, Mapping{PlaceholderID: item.ID, RealID: realID})
				r.broker.PublishResourceSynced(item.ID, realID)
			}
			r.logger.Debug().Str("action_id", item.ID).Err(err).Msg("queued action already applied")

		case errdefs.IsAuthorization(err) || errdefs.IsNotFound(err) || errdefs.IsValidation(err):
			// Permanently unrecoverable: retrying can never succeed.
			r.queue.MarkDone(item.ID)
			res.Dropped++
			metrics.ReplayOutcomesTotal.WithLabelValues("dropped").Inc()
			r.logger.Warn().Str("action_id", item.ID).Str("endpoint", item.Endpoint).
				Err(err).Msg("dropped unrecoverable queued action")

		default:
			// Transient (offline, timeout, 5xx): keep the item and end
			// the pass. No per-attempt noise.
			metrics.ReplayOutcomesTotal.WithLabelValues("deferred").Inc()
			r.logger.Debug().Str("action_id", item.ID).Err(err).Msg("deferring queued action")
			r.finish(res)
			return res
		}
	}

	r.finish(res)
	return res
}

func (r *Replayer) finish(res DrainResult) {
	metrics.QueueDepth.Set(float64(r.queue.Len()))
	if res.Applied+res.Dropped > 0 {
		r.broker.PublishQueueFlushed(res.Applied, res.Dropped, r.queue.Len())
	}
}
