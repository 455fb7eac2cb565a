package agent

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aman-app/aman/pkg/events"
	"github.com/aman-app/aman/pkg/log"
)

// DefaultProbeInterval is how often connectivity is re-checked.
const DefaultProbeInterval = 15 * time.Second

// Probe reports whether the server is currently reachable.
type Probe func(ctx context.Context) bool

// HealthProbe builds a Probe that asks the server's health endpoint.
func HealthProbe(doer Doer) Probe {
	return func(ctx context.Context) bool {
		return doer.Do(ctx, http.MethodGet, "/health", nil, nil) == nil
	}
}

// Connectivity polls a reachability probe and publishes transitions on
// the broker. Only edges are published: staying offline produces no
// events.
type Connectivity struct {
	probe    Probe
	broker   *events.Broker
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	online bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewConnectivity creates a monitor. interval <= 0 uses the default.
func NewConnectivity(probe Probe, broker *events.Broker, interval time.Duration) *Connectivity {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Connectivity{
		probe:    probe,
		broker:   broker,
		interval: interval,
		logger:   log.WithComponent("connectivity"),
		stopCh:   make(chan struct{}),
	}
}

// Online reports the last observed reachability.
func (c *Connectivity) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// Start probes once immediately, then on the configured interval.
func (c *Connectivity) Start() {
	c.check()
	go c.run()
}

// Stop halts the monitor.
func (c *Connectivity) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Connectivity) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.check()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Connectivity) check() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	now := c.probe(ctx)

	c.mu.Lock()
	changed := now != c.online
	c.online = now
	c.mu.Unlock()

	if !changed {
		return
	}
	if now {
		c.logger.Info().Msg("server reachable")
	} else {
		c.logger.Warn().Msg("server unreachable")
	}
	c.broker.PublishConnectivity(now)
}
