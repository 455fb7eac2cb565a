package alerts

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aman-app/aman/pkg/log"
)

// Purger runs the expiry purge on a cron schedule.
type Purger struct {
	engine   *Engine
	schedule string
	cron     *cron.Cron
	entryID  cron.EntryID
	logger   zerolog.Logger
}

// NewPurger creates a purge job. schedule is a cron expression; an
// empty schedule defaults to hourly.
func NewPurger(engine *Engine, schedule string) *Purger {
	if schedule == "" {
		schedule = "@hourly"
	}
	return &Purger{
		engine:   engine,
		schedule: schedule,
		cron:     cron.New(),
		logger:   log.WithComponent("purger"),
	}
}

// Start schedules the purge job.
func (p *Purger) Start() {
	id, err := p.cron.AddFunc(p.schedule, func() {
		if _, err := p.engine.PurgeExpired(); err != nil {
			p.logger.Error().Err(err).Msg("purge run failed")
		}
	})
	if err != nil {
		p.logger.Error().Err(err).Str("schedule", p.schedule).Msg("failed to schedule purge job")
		return
	}
	p.entryID = id
	p.cron.Start()
	p.logger.Info().Str("schedule", p.schedule).Msg("purge job scheduled")
}

// Stop stops the purge job.
func (p *Purger) Stop() {
	if p.cron != nil {
		p.cron.Stop()
	}
}
