package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/mensa-backend/internal/data/repos"
	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/ingestion/ingesterr"
	"github.com/yungbote/mensa-backend/internal/ingestion/scoring"
	"github.com/yungbote/mensa-backend/internal/ingestion/sources"
	"github.com/yungbote/mensa-backend/internal/observability"
	"github.com/yungbote/mensa-backend/internal/pkg/dbctx"
	"github.com/yungbote/mensa-backend/internal/platform/ctxutil"
	"github.com/yungbote/mensa-backend/internal/platform/locking"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

type Config struct {
	LockTTL          time.Duration
	FetchConcurrency int
	// RunTimeout bounds every run. It must be shorter than LockTTL so the
	// date lock cannot lapse while its run is still writing.
	RunTimeout time.Duration
}

type Deps struct {
	Log     *logger.Logger
	Sources []sources.Source
	Engine  *scoring.Engine
	Fitness *scoring.FitnessScorer // nil disables the tertiary score
	Locker  locking.Locker

	Meals        repos.MealRepo
	FitnessCache repos.FitnessScoreRepo
	Runs         repos.IngestRunRepo
}

// RunReport summarizes one completed ingestion run.
type RunReport struct {
	Run       *menu.IngestRun
	Outcomes  []menu.SourceOutcome
	Warnings  []string
	AIScored  int
	AICached  int
	AIFailed  int
	StartedAt time.Time
	Duration  time.Duration
}

// Driver runs the ingestion pipeline for one menu date at a time per date.
type Driver struct {
	cfg     Config
	log     *logger.Logger
	sources []sources.Source
	engine  *scoring.Engine
	fitness *scoring.FitnessScorer
	locker  locking.Locker
	meals   repos.MealRepo
	cache   repos.FitnessScoreRepo
	runs    repos.IngestRunRepo
	now     func() time.Time
}

func NewDriver(cfg Config, deps Deps) (*Driver, error) {
	if deps.Engine == nil || deps.Locker == nil || deps.Meals == nil || deps.Runs == nil {
		return nil, fmt.Errorf("pipeline: engine, locker, meal repo and run repo are required")
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 4
	}
	if cfg.RunTimeout > 0 && cfg.RunTimeout >= cfg.LockTTL {
		return nil, fmt.Errorf("pipeline: run timeout %s must be shorter than lock ttl %s", cfg.RunTimeout, cfg.LockTTL)
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Driver{
		cfg:     cfg,
		log:     log.With("service", "IngestDriver"),
		sources: deps.Sources,
		engine:  deps.Engine,
		fitness: deps.Fitness,
		locker:  deps.Locker,
		meals:   deps.Meals,
		cache:   deps.FitnessCache,
		runs:    deps.Runs,
		now:     time.Now,
	}, nil
}

func LockKey(day time.Time) string {
	return "ingest:" + menu.DayOf(day).Format(menu.DayLayout)
}

// Run ingests every source for day and blocks until the run is recorded.
// It returns ingesterr.ErrLockHeld, and writes nothing, when another run
// owns the date. Source, scoring and AI failures never fail the run.
func (d *Driver) Run(ctx context.Context, day time.Time, trigger string) (*RunReport, error) {
	ctx = ctxutil.Default(ctx)
	day = menu.DayOf(day)
	lease, err := d.acquire(ctx, day)
	if err != nil {
		return nil, err
	}
	run, err := d.createRun(ctx, day, trigger)
	if err != nil {
		d.release(lease)
		return nil, err
	}
	runCtx, cancel := ctxutil.WithOptionalTimeout(ctx, d.cfg.RunTimeout)
	defer cancel()
	return d.execute(runCtx, lease, run), nil
}

// Start takes the date lock and records the run synchronously, then ingests
// in the background. The returned run is in the running state.
func (d *Driver) Start(ctx context.Context, day time.Time, trigger string) (*menu.IngestRun, error) {
	ctx = ctxutil.Default(ctx)
	day = menu.DayOf(day)
	lease, err := d.acquire(ctx, day)
	if err != nil {
		return nil, err
	}
	run, err := d.createRun(ctx, day, trigger)
	if err != nil {
		d.release(lease)
		return nil, err
	}
	snapshot := *run

	bg := context.WithoutCancel(ctx)
	go func() {
		runCtx, cancel := ctxutil.WithOptionalTimeout(bg, d.cfg.RunTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("Ingest run panicked", "run_id", run.ID, "panic", r)
				run.Status = menu.RunStatusFailed
				run.Error = fmt.Sprintf("panic: %v", r)
				if err := d.runs.Finish(dbctx.New(bg), run, nil); err != nil {
					d.log.Error("Failed to record ingest run result", "run_id", run.ID, "error", err)
				}
			}
		}()
		d.execute(runCtx, lease, run)
	}()
	return &snapshot, nil
}

func (d *Driver) acquire(ctx context.Context, day time.Time) (locking.Lease, error) {
	key := LockKey(day)
	lease, err := d.locker.TryAcquire(ctx, key, d.cfg.LockTTL)
	if errors.Is(err, locking.ErrHeld) {
		d.log.Info("Ingest skipped, date locked by another run", "lock", key, "backend", d.locker.Backend())
		return nil, fmt.Errorf("%w: %s", ingesterr.ErrLockHeld, key)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	return lease, nil
}

func (d *Driver) release(lease locking.Lease) {
	if lease == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lease.Release(ctx); err != nil {
		d.log.Warn("Failed to release ingest lock", "lock", lease.Key(), "error", err)
	}
}

func (d *Driver) createRun(ctx context.Context, day time.Time, trigger string) (*menu.IngestRun, error) {
	if trigger == "" {
		trigger = menu.TriggerManual
	}
	run := &menu.IngestRun{
		TargetDate: menu.Day(day),
		Trigger:    trigger,
		Status:     menu.RunStatusRunning,
		StartedAt:  d.now(),
	}
	if err := d.runs.Create(dbctx.New(ctx), run); err != nil {
		return nil, fmt.Errorf("create ingest run: %w", err)
	}
	return run, nil
}

func (d *Driver) execute(ctx context.Context, lease locking.Lease, run *menu.IngestRun) *RunReport {
	defer d.release(lease)

	day := time.Time(run.TargetDate)
	log := d.log.ForRun(run.ID, day, run.Trigger)
	ctx, span := observability.Tracer().Start(ctx, "ingest.run", trace.WithAttributes(
		attribute.String("ingest.date", day.Format(menu.DayLayout)),
		attribute.String("ingest.trigger", run.Trigger),
	))
	defer span.End()

	report := &RunReport{Run: run, StartedAt: d.now()}
	log.Info("Ingest run started", "sources", len(d.sources))

	fetched := d.fetchAll(ctx, day)
	failed := 0
	var entries []menu.RawMealEntry
	for _, f := range fetched {
		report.Outcomes = append(report.Outcomes, f.outcome)
		if f.err != nil {
			failed++
			continue
		}
		entries = append(entries, f.entries...)
	}

	prepared := d.prepare(ctx, log, entries, report)
	d.resolveTertiary(ctx, log, prepared, report)
	d.upsertAll(ctx, log, prepared, report)

	switch {
	case failed == 0:
		run.Status = menu.RunStatusSucceeded
	case failed < len(fetched):
		run.Status = menu.RunStatusPartial
	default:
		run.Status = menu.RunStatusFailed
	}
	if failed > 0 {
		run.Error = fmt.Sprintf("%d of %d sources failed", failed, len(fetched))
		span.SetStatus(codes.Error, run.Error)
	}

	// The run row is finalized even when ctx was cancelled mid-run.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := d.runs.Finish(dbctx.New(finishCtx), run, report.Outcomes); err != nil {
		log.Error("Failed to record ingest run result", "error", err)
	}
	report.Duration = d.now().Sub(report.StartedAt)
	span.SetAttributes(
		attribute.String("ingest.status", run.Status),
		attribute.Int("ingest.meals_seen", run.MealsSeen),
	)
	observability.Current().ObserveIngestRun(run.Trigger, run.Status, report.Duration)

	log.Info("Ingest run finished",
		"status", run.Status,
		"seen", run.MealsSeen,
		"inserted", run.MealsInserted,
		"updated", run.MealsUpdated,
		"unchanged", run.MealsUnchanged,
		"rejected", run.MealsRejected,
		"ai_scored", report.AIScored,
		"ai_cached", report.AICached,
		"ai_failed", report.AIFailed,
		"warnings", len(report.Warnings),
		"duration", report.Duration.String(),
	)
	return report
}
