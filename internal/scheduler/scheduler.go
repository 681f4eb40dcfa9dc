// Package scheduler runs periodic maintenance: clearing expired one-time
// secrets and failing optimization logs that never got an outcome.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"h2grid/internal/logger"
)

const (
	secretsSpec = "@every 1m"
	staleSpec   = "@every 10m"

	// StaleAfter is how long a log may stay pending before it is failed.
	StaleAfter  = 5 * time.Minute
	staleReason = "optimizer outcome was never recorded"

	jobTimeout = 30 * time.Second
)

// SecretCleaner clears OTP and reset-password fields past their expiry.
type SecretCleaner interface {
	ClearExpiredSecrets(ctx context.Context, now time.Time) (int64, error)
}

// StaleLogFailer marks long-pending optimization logs as failed.
type StaleLogFailer interface {
	FailStalePending(ctx context.Context, cutoff time.Time, reason string) (int64, error)
}

// Scheduler owns the cron runner and its jobs.
type Scheduler struct {
	cron  *cron.Cron
	users SecretCleaner
	logs  StaleLogFailer
	log   *logger.Logger
	now   func() time.Time
}

// New creates a scheduler. Jobs are not registered until Start.
func New(users SecretCleaner, logs StaleLogFailer, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	adapter := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(adapter),
			cron.SkipIfStillRunning(adapter),
		)),
		users: users,
		logs:  logs,
		log:   log,
		now:   time.Now,
	}
}

// Start registers the jobs and starts the runner in its own goroutine.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(secretsSpec, s.ClearExpiredSecrets); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(staleSpec, s.FailStalePending); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.cron.Entries()))
	return nil
}

// Stop halts the runner. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// ClearExpiredSecrets is the job body for the one-minute purge.
func (s *Scheduler) ClearExpiredSecrets() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.users.ClearExpiredSecrets(ctx, s.now())
	if err != nil {
		s.log.Error("clear expired secrets failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("cleared expired secrets", "users", n)
	}
}

// FailStalePending is the job body for the ten-minute sweep.
func (s *Scheduler) FailStalePending() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.logs.FailStalePending(ctx, s.now().Add(-StaleAfter), staleReason)
	if err != nil {
		s.log.Error("fail stale optimization logs failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Warn("failed stale optimization logs", "count", n)
	}
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug(msg, kv...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error(msg, append(kv, "error", err)...)
}
