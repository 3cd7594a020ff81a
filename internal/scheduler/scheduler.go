// Package scheduler wraps robfig/cron to let the CLI re-run the pipeline on
// a schedule via --schedule, instead of once and exit.
package scheduler

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs fn on the given cron expression until Stop is called.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// New constructs a Scheduler that invokes fn according to expr (standard
// five-field cron syntax).
func New(expr string, fn func(), logger *zap.Logger) (*Scheduler, error) {
	c := cron.New()
	if _, err := c.AddFunc(expr, fn); err != nil {
		return nil, err
	}
	return &Scheduler{cron: c, logger: logger}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler: started")
}

// Stop blocks until any in-flight run completes, then returns.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler: stopped")
}
