// Package archive schedules cold-storage runs that move aged audit trail
// rows out of the primary database.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Archiver is the export surface the scheduler drives.
type Archiver interface {
	ArchiveReasoning(ctx context.Context, before time.Time) (int64, error)
	ArchiveHistory(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler runs the archiver on a cron cadence.
type Scheduler struct {
	archiver      Archiver
	retentionDays int
	logger        *slog.Logger
}

func NewScheduler(archiver Archiver, retentionDays int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		archiver:      archiver,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archive")),
	}
}

// Run executes a single archive pass against the retention cutoff.
func (s *Scheduler) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(s.retentionDays) * 24 * time.Hour)
	s.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", s.retentionDays),
	)

	reasoning, err := s.archiver.ArchiveReasoning(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving reasoning before %v: %w", cutoff, err)
	}
	history, err := s.archiver.ArchiveHistory(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving history before %v: %w", cutoff, err)
	}

	s.logger.Info("archive run complete",
		slog.Int64("reasoning_archived", reasoning),
		slog.Int64("history_archived", history),
	)
	return nil
}

// RunCron runs archive passes on a 5-field cron schedule
// ("minute hour day-of-month month day-of-week") until ctx is cancelled.
// "0 3 1 * *" runs at 03:00 on the first of every month.
func (s *Scheduler) RunCron(ctx context.Context, cronExpr string) error {
	s.logger.Info("archive cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
		}

		s.logger.Info("waiting for next archive trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", time.Until(next)),
		)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("archive cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
