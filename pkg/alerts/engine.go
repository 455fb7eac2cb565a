package alerts

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aman-app/aman/pkg/errdefs"
	"github.com/aman-app/aman/pkg/log"
	"github.com/aman-app/aman/pkg/metrics"
	"github.com/aman-app/aman/pkg/storage"
	"github.com/aman-app/aman/pkg/types"
)

const (
	// DedupWindow is how long a fingerprint blocks duplicate creations.
	DedupWindow = time.Hour

	// ReportThreshold hides an alert as a false alarm once this many
	// distinct users flag it. Terminal: the alert never comes back.
	ReportThreshold = 5

	// DefaultTTL applies when a creation names no expiry.
	DefaultTTL = 24 * time.Hour
)

// Engine owns alert creation, deduplication, reporting and expiry.
type Engine struct {
	store  storage.Store
	maxTTL time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewEngine creates the alert engine. maxTTL caps client-requested
// expiry; zero means the 7-day default.
func NewEngine(store storage.Store, maxTTL time.Duration) *Engine {
	if maxTTL <= 0 {
		maxTTL = 7 * 24 * time.Hour
	}
	return &Engine{
		store:  store,
		maxTTL: maxTTL,
		logger: log.WithComponent("alerts"),
		now:    time.Now,
	}
}

// CreateInput is a request to create an alert.
type CreateInput struct {
	Category    string         `json:"category"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Latitude    float64        `json:"lat"`
	Longitude   float64        `json:"lng"`
	Severity    types.Severity `json:"severity,omitempty"`
	TTLHours    int            `json:"ttlHours,omitempty"`
}

// Validate checks the input without touching the store, so offline
// callers can reject a malformed intent before queueing it.
func (in *CreateInput) Validate() error {
	if in.Category == "" {
		return errdefs.Validation("category is required")
	}
	if in.Title == "" {
		return errdefs.Validation("title is required")
	}
	if in.Latitude < -90 || in.Latitude > 90 {
		return errdefs.Validation("latitude out of range: %f", in.Latitude)
	}
	if in.Longitude < -180 || in.Longitude > 180 {
		return errdefs.Validation("longitude out of range: %f", in.Longitude)
	}
	return nil
}

// Create persists a new alert unless an active alert with the same
// fingerprint was created within the dedup window, in which case it
// returns a CONFLICT immediately so the caller never queues it.
func (e *Engine) Create(userID string, in CreateInput) (*types.Alert, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := e.now()
	fp := Fingerprint(in.Category, in.Title, in.Latitude, in.Longitude)

	existing, err := e.store.ActiveAlertByFingerprint(fp, now.Add(-DedupWindow))
	if err == nil && !existing.Expired(now) {
		metrics.AlertsDeduplicatedTotal.Inc()
		return nil, errdefs.ConflictResource(existing.ID, "duplicate alert: %s reported %s ago",
			existing.ID, now.Sub(existing.CreatedAt).Round(time.Second))
	}
	if err != nil && !errdefs.IsNotFound(err) {
		return nil, err
	}

	ttl := DefaultTTL
	if in.TTLHours > 0 {
		ttl = time.Duration(in.TTLHours) * time.Hour
	}
	if ttl > e.maxTTL {
		ttl = e.maxTTL
	}

	severity := in.Severity
	if severity == "" {
		severity = types.SeverityMedium
	}

	alert := &types.Alert{
		ID:          types.AlertID(userID, now),
		UserID:      userID,
		Category:    in.Category,
		Title:       in.Title,
		Description: in.Description,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Severity:    severity,
		Status:      types.AlertActive,
		Fingerprint: fp,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := e.store.PutAlert(alert); err != nil {
		return nil, err
	}
	metrics.AlertsCreatedTotal.Inc()
	l := log.WithAlertID(alert.ID)
	l.Info().Str("category", alert.Category).Msg("alert created")
	return alert, nil
}

// Get returns one alert; expired alerts are absent from every read path.
func (e *Engine) Get(id string) (*types.Alert, error) {
	alert, err := e.store.GetAlert(id)
	if err != nil {
		return nil, err
	}
	if alert.Expired(e.now()) {
		return nil, errdefs.NotFound("alert not found: %s", id)
	}
	return alert, nil
}

// ListFilter narrows alert listings.
type ListFilter struct {
	Category string
	Severity types.Severity
	// BBox is [minLng, minLat, maxLng, maxLat]; nil means no bound.
	BBox *[4]float64
}

// List returns visible alerts, newest first. Expired and hidden alerts
// never appear.
func (e *Engine) List(filter ListFilter) ([]*types.Alert, error) {
	all, err := e.store.ListAlerts()
	if err != nil {
		return nil, err
	}
	now := e.now()
	var out []*types.Alert
	for _, a := range all {
		if a.Expired(now) || a.Hidden {
			continue
		}
		if filter.Category != "" && a.Category != filter.Category {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		if filter.BBox != nil && !inBBox(a, filter.BBox) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func inBBox(a *types.Alert, bbox *[4]float64) bool {
	return a.Longitude >= bbox[0] && a.Latitude >= bbox[1] &&
		a.Longitude <= bbox[2] && a.Latitude <= bbox[3]
}

// Report flags an alert as a suspected false alarm. Each distinct user
// counts once; a duplicate report is rejected without changing counts.
// At ReportThreshold distinct reporters the alert transitions to
// hidden/false_alarm, which is terminal.
func (e *Engine) Report(alertID, reporterID string) (*types.Alert, error) {
	alert, err := e.Get(alertID)
	if err != nil {
		return nil, err
	}

	if alert.Hidden {
		return nil, errdefs.Conflict("alert %s already retired as false alarm", alertID)
	}
	if alert.HasReporter(reporterID) {
		return nil, errdefs.Conflict("user %s already reported alert %s", reporterID, alertID)
	}

	alert.Reporters = append(alert.Reporters, reporterID)
	alert.ReportCount = len(alert.Reporters)

	if alert.ReportCount >= ReportThreshold {
		alert.Hidden = true
		alert.Status = types.AlertFalseAlarm
		metrics.AlertsHiddenTotal.Inc()
		l := log.WithAlertID(alert.ID)
		l.Info().Int("reports", alert.ReportCount).
			Msg("alert hidden after report threshold")
	}

	if err := e.store.PutAlert(alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// Delete removes an alert. Only the owner may delete it; deleting an
// absent alert reports NOT_FOUND, which idempotent callers treat as
// already satisfied.
func (e *Engine) Delete(alertID, userID string) error {
	alert, err := e.store.GetAlert(alertID)
	if err != nil {
		return err
	}
	if alert.UserID != userID {
		return errdefs.Authorization("alert %s not owned by %s", alertID, userID)
	}
	return e.store.DeleteAlert(alertID)
}

// PurgeExpired removes alerts past expiry from storage. Reads already
// exclude them; purge reclaims the space.
func (e *Engine) PurgeExpired() (int, error) {
	purged, err := e.store.PurgeExpiredAlerts(e.now())
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		metrics.AlertsPurgedTotal.Add(float64(purged))
		e.logger.Info().Int("purged", purged).Msg("purged expired alerts")
	}
	return purged, nil
}
