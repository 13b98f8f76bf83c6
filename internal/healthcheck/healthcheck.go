// Package healthcheck periodically probes active platform bindings so
// operators see broken credentials before end users do.
package healthcheck

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/botlinkhq/botlink/internal/channel"
	"github.com/botlinkhq/botlink/internal/tenant"
)

const probeTimeout = 30 * time.Second

// Prober validates a binding's credentials against its platform.
type Prober interface {
	Probe(ctx context.Context, creds channel.Credentials) error
}

// Bindings is the tenant-service surface the sweeper needs.
type Bindings interface {
	ListActiveBindings(ctx context.Context, platform channel.Platform) ([]tenant.Binding, error)
	RecordBindingHealth(ctx context.Context, id uuid.UUID, healthy bool, at time.Time) error
}

// Sweeper runs credential probes on a cron schedule.
type Sweeper struct {
	cron     *cron.Cron
	spec     string
	bindings Bindings
	probers  map[channel.Platform]Prober
	logger   *slog.Logger
}

// NewSweeper creates a sweeper with the given cron spec, e.g. "@every 15m".
func NewSweeper(spec string, bindings Bindings, probers map[channel.Platform]Prober, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		cron:     cron.New(),
		spec:     spec,
		bindings: bindings,
		probers:  probers,
		logger:   log.With(slog.String("service", "healthcheck")),
	}
}

// Start schedules the sweep and begins the cron loop.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("binding health sweep scheduled", slog.String("spec", s.spec))
	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep probes every active binding of every platform that has a prober
// and records the outcome.
func (s *Sweeper) Sweep(ctx context.Context) {
	for platform, prober := range s.probers {
		bindings, err := s.bindings.ListActiveBindings(ctx, platform)
		if err != nil {
			s.logger.Error("list bindings failed",
				slog.String("platform", string(platform)),
				slog.Any("error", err))
			continue
		}
		for _, b := range bindings {
			healthy := s.probe(ctx, prober, b.Credentials) == nil
			if !healthy {
				s.logger.Warn("binding unhealthy",
					slog.String("platform", string(platform)),
					slog.String("binding_id", b.ID.String()))
			}
			if err := s.bindings.RecordBindingHealth(ctx, b.ID, healthy, time.Now().UTC()); err != nil {
				s.logger.Error("record binding health failed",
					slog.String("binding_id", b.ID.String()),
					slog.Any("error", err))
			}
		}
	}
}

// probe runs one credential check under its own deadline so a slow
// platform cannot starve the rest of the sweep.
func (s *Sweeper) probe(ctx context.Context, prober Prober, creds channel.Credentials) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return prober.Probe(ctx, creds)
}
