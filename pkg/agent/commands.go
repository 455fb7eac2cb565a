package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aman-app/aman/pkg/alerts"
	"github.com/aman-app/aman/pkg/errdefs"
	"github.com/aman-app/aman/pkg/log"
	"github.com/aman-app/aman/pkg/queue"
	"github.com/aman-app/aman/pkg/storage"
	"github.com/aman-app/aman/pkg/types"
)

// AlertAPI is the direct REST surface for alert intents. Implemented
// by client.Client.
type AlertAPI interface {
	CreateAlert(ctx context.Context, in alerts.CreateInput) (*types.Alert, error)
	ReportAlert(ctx context.Context, alertID string) (*types.Alert, error)
	DeleteAlert(ctx context.Context, alertID string) error
	SnapshotPusher
}

// Commander applies user intents: directly against the server when it
// is reachable, into the durable queue when it is not. A direct
// attempt that fails transiently also falls back to the queue, so an
// intent is never lost mid-transition.
type Commander struct {
	userID  string
	api     AlertAPI
	queue   *queue.Queue
	cache   *ArtifactCache
	local   storage.Store
	online  func() bool
	trigger func()
	logger  zerolog.Logger
}

// NewCommander creates the command layer. online reports current
// connectivity; trigger requests a sync cycle after a local write and
// may be nil.
func NewCommander(userID string, api AlertAPI, q *queue.Queue, cache *ArtifactCache, local storage.Store, online func() bool, trigger func()) *Commander {
	if trigger == nil {
		trigger = func() {}
	}
	return &Commander{
		userID:  userID,
		api:     api,
		queue:   q,
		cache:   cache,
		local:   local,
		online:  online,
		trigger: trigger,
		logger:  log.WithUserID(userID).With().Str("component", "commander").Logger(),
	}
}

// CreateResult reports how a create intent was applied. Exactly one of
// Alert and PlaceholderID is set.
type CreateResult struct {
	Alert         *types.Alert
	PlaceholderID string
	Queued        bool
}

// CreateAlert raises an alert. When the server is reachable the
// response is immediate and a duplicate is surfaced synchronously as a
// conflict. Otherwise the intent is queued under a placeholder id and
// the snapshot, if any, is cached under that placeholder until the
// reconciler learns the real id.
func (c *Commander) CreateAlert(ctx context.Context, in alerts.CreateInput, snapshot []byte) (*CreateResult, error) {
	// A malformed intent must fail here, not queue and get dropped
	// silently at replay time.
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if c.online() {
		alert, err := c.api.CreateAlert(ctx, in)
		if err == nil {
			if len(snapshot) > 0 {
				c.attachSnapshot(ctx, alert.ID, snapshot)
			}
			return &CreateResult{Alert: alert}, nil
		}
		if !errdefs.IsTransient(err) {
			return nil, err
		}
		c.logger.Debug().Err(err).Msg("direct create failed, queueing")
	}

	body, err := json.Marshal(in)
	if err != nil {
		return nil, errdefs.Validation("encode alert: %v", err)
	}
	placeholder := c.queue.Enqueue(&types.QueuedAction{
		Kind:     types.ActionCreateAlert,
		Endpoint: "/alerts",
		Method:   http.MethodPost,
		Data:     body,
	})
	if len(snapshot) > 0 {
		if err := c.cache.Put(placeholder, snapshot); err != nil {
			c.logger.Warn().Err(err).Str("placeholder_id", placeholder).Msg("failed to cache snapshot")
		}
	}
	return &CreateResult{PlaceholderID: placeholder, Queued: true}, nil
}

// ReportAlert flags an alert as suspicious. Offline the report queues;
// a duplicate report settles at replay time instead of erroring here.
func (c *Commander) ReportAlert(ctx context.Context, alertID string) error {
	if c.online() {
		_, err := c.api.ReportAlert(ctx, alertID)
		if err == nil || !errdefs.IsTransient(err) {
			return err
		}
	}
	c.queue.Enqueue(&types.QueuedAction{
		Kind:     types.ActionReportAlert,
		Endpoint: "/alerts/" + alertID + "/report",
		Method:   http.MethodPut,
	})
	return nil
}

// DeleteAlert retires an alert the user owns.
func (c *Commander) DeleteAlert(ctx context.Context, alertID string) error {
	if c.online() {
		err := c.api.DeleteAlert(ctx, alertID)
		if err == nil || !errdefs.IsTransient(err) {
			return err
		}
	}
	c.queue.Enqueue(&types.QueuedAction{
		Kind:     types.ActionDeleteAlert,
		Endpoint: "/alerts/" + alertID,
		Method:   http.MethodDelete,
	})
	return nil
}

// SetStatus records the user's safety status in the canonical local
// record and requests a sync. The write itself never touches the
// network, so it works identically offline.
func (c *Commander) SetStatus(status types.CheckInStatus, message string, lat, lng float64) (*types.CheckIn, error) {
	if status != types.CheckInSafe && status != types.CheckInHelp {
		return nil, errdefs.Validation("unknown status %q", status)
	}
	rec := &types.CheckIn{
		ID:        types.CheckInID(c.userID),
		UserID:    c.userID,
		Status:    status,
		Message:   message,
		Latitude:  lat,
		Longitude: lng,
		UpdatedAt: time.Now(),
	}
	if prev, err := c.local.GetCheckIn(rec.ID); err == nil {
		rec.Rev = prev.Rev
	}
	if err := c.local.PutCheckIn(rec); err != nil {
		return nil, err
	}
	c.trigger()
	return rec, nil
}

// attachSnapshot caches and uploads a snapshot for an already-created
// alert. Upload failure is tolerable: the cache keeps it for later.
func (c *Commander) attachSnapshot(ctx context.Context, alertID string, snapshot []byte) {
	if err := c.cache.Put(alertID, snapshot); err != nil {
		c.logger.Warn().Err(err).Str("alert_id", alertID).Msg("failed to cache snapshot")
	}
	if err := c.api.PushSnapshot(ctx, alertID, snapshot); err != nil {
		c.logger.Debug().Err(err).Str("alert_id", alertID).Msg("snapshot upload deferred")
	}
}
