// Package maintenance runs background upkeep jobs, currently the ERP
// availability probe feeding the odoo_up gauge.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/launchbase/console/internal/metrics"
	"github.com/launchbase/console/pkg/logger"
)

// Prober checks whether the ERP backend is reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// Service schedules recurring jobs.
type Service struct {
	cron   *cron.Cron
	prober Prober
	log    *logger.Logger
}

// New constructs a maintenance service. The prober may be nil when no ERP is
// configured; the probe job is then skipped.
func New(prober Prober, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("maintenance")
	}
	return &Service{cron: cron.New(), prober: prober, log: log}
}

// Start registers the probe on the given cron schedule and begins running.
func (s *Service) Start(schedule string) error {
	if s.prober != nil {
		if _, err := s.cron.AddFunc(schedule, s.runProbe); err != nil {
			return err
		}
		// Seed the gauge immediately rather than waiting a full interval.
		go s.runProbe()
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Service) runProbe() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.prober.Probe(ctx); err != nil {
		metrics.SetOdooUp(false)
		s.log.WithError(err).Warn("erp availability probe failed")
		return
	}
	metrics.SetOdooUp(true)
}
