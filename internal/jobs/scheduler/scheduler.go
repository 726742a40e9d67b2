package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/yungbote/mensa-backend/internal/data/repos"
	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/ingestion/ingesterr"
	"github.com/yungbote/mensa-backend/internal/ingestion/pipeline"
	"github.com/yungbote/mensa-backend/internal/pkg/dbctx"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

// Runner is the ingestion entry point the scheduler drives.
type Runner interface {
	Run(ctx context.Context, day time.Time, trigger string) (*pipeline.RunReport, error)
}

type Config struct {
	Interval   time.Duration
	DaysAhead  int
	Location   *time.Location
	RunOnStart bool
	// StaleAfter marks runs still "running" after this long as failed on
	// every tick. Zero disables the sweep.
	StaleAfter time.Duration
}

type Scheduler struct {
	cfg    Config
	log    *logger.Logger
	runner Runner
	runs   repos.IngestRunRepo
	now    func() time.Time
}

func New(baseLog *logger.Logger, cfg Config, runner Runner, runs repos.IngestRunRepo) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Hour
	}
	if cfg.DaysAhead < 0 {
		cfg.DaysAhead = 0
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{
		cfg:    cfg,
		log:    baseLog.With("component", "IngestScheduler"),
		runner: runner,
		runs:   runs,
		now:    time.Now,
	}
}

// Dates returns today through today+DaysAhead in the menu timezone.
func (s *Scheduler) Dates() []time.Time {
	today := menu.DayOf(s.now().In(s.cfg.Location))
	out := make([]time.Time, 0, s.cfg.DaysAhead+1)
	for i := 0; i <= s.cfg.DaysAhead; i++ {
		out = append(out, today.AddDate(0, 0, i))
	}
	return out
}

// Start ticks in the background until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		s.log.Info("Ingest scheduler started",
			"interval", s.cfg.Interval.String(),
			"days_ahead", s.cfg.DaysAhead,
			"timezone", s.cfg.Location.String(),
		)
		if s.cfg.RunOnStart {
			s.Tick(ctx)
		}
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.log.Info("Ingest scheduler stopped")
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Tick ingests every scheduled date once. A panic in one date is recovered
// and logged so the loop survives.
func (s *Scheduler) Tick(ctx context.Context) {
	s.sweepStale(ctx)
	for _, day := range s.Dates() {
		if ctx.Err() != nil {
			return
		}
		s.runDate(ctx, day)
	}
}

func (s *Scheduler) runDate(ctx context.Context, day time.Time) {
	date := day.Format(menu.DayLayout)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Scheduled ingest panicked", "date", date, "panic", r)
		}
	}()
	report, err := s.runner.Run(ctx, day, menu.TriggerSchedule)
	switch {
	case errors.Is(err, ingesterr.ErrLockHeld):
		s.log.Info("Scheduled ingest skipped, date already running", "date", date)
	case err != nil:
		s.log.Warn("Scheduled ingest failed", "date", date, "error", err)
	case report != nil && report.Run != nil:
		s.log.Debug("Scheduled ingest done", "date", date, "status", report.Run.Status)
	}
}

func (s *Scheduler) sweepStale(ctx context.Context) {
	if s.runs == nil || s.cfg.StaleAfter <= 0 {
		return
	}
	n, err := s.runs.FailStale(dbctx.New(ctx), s.now().Add(-s.cfg.StaleAfter))
	if err != nil {
		s.log.Warn("Stale ingest run sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Warn("Marked abandoned ingest runs as failed", "count", n)
	}
}
