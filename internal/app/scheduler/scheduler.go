// Package scheduler runs the periodic fulfillment scan inside the API process.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/scentbox/internal/app/service/fulfillment"
	"github.com/fatflowers/scentbox/pkg/config"
)

type Scanner interface {
	Scan(ctx context.Context) (*fulfillment.ScanResult, error)
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron    *cron.Cron
	scanner Scanner
	log     *zap.SugaredLogger
	spec    string

	// ctx is cancelled on Stop so a running scan ends at the next subscription.
	ctx    context.Context
	cancel context.CancelFunc
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

func NewScheduler(cfg *config.Config, scanner Scanner, log *zap.SugaredLogger) *Scheduler {
	logger := cronLogger{log: log}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    c,
		scanner: scanner,
		log:     log,
		spec:    cfg.Fulfillment.ScanSchedule,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// RunScan is the cron job body.
func (s *Scheduler) RunScan() {
	start := time.Now()
	res, err := s.scanner.Scan(s.ctx)
	if errors.Is(err, fulfillment.ErrScanInProgress) {
		s.log.Infow("fulfillment scan skipped; another instance holds the lock")
		return
	}
	if err != nil {
		s.log.Errorw("fulfillment scan failed", "error", err)
		return
	}
	failed := 0
	for _, r := range res.Results {
		if !r.Success {
			failed++
		}
	}
	s.log.Infow("fulfillment scan finished",
		"processed", res.ProcessedCount,
		"skipped", res.SkippedCount,
		"failed", failed,
		"aborted", res.Aborted,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// Start registers the jobs and starts the cron scheduler. An empty schedule leaves
// scanning to the internal endpoint or the CLI.
func (s *Scheduler) Start() error {
	if s.spec == "" {
		s.log.Infow("fulfillment scan schedule is empty; scheduler disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.spec, s.RunScan); err != nil {
		s.log.Errorw("failed to schedule fulfillment scan", "schedule", s.spec, "error", err)
		return err
	}
	s.log.Infow("scheduled fulfillment scan", "schedule", s.spec)
	s.cron.Start()
	return nil
}

// Stop cancels a running scan and waits for it to return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func registerScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return s.Start() },
		OnStop:  s.Stop,
	})
}

var Module = fx.Options(
	fx.Provide(
		NewScheduler,
		func(e *fulfillment.Engine) Scanner { return e },
	),
	fx.Invoke(registerScheduler),
)
