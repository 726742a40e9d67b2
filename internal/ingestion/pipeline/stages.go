package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/mensa-backend/internal/data/repos/meals"
	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/ingestion/ingesterr"
	"github.com/yungbote/mensa-backend/internal/ingestion/normalize"
	"github.com/yungbote/mensa-backend/internal/ingestion/sources"
	"github.com/yungbote/mensa-backend/internal/observability"
	"github.com/yungbote/mensa-backend/internal/pkg/dbctx"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

type fetchResult struct {
	outcome menu.SourceOutcome
	entries []menu.RawMealEntry
	err     error
}

// fetchAll queries every source concurrently. Each goroutine owns exactly
// one result slot.
func (d *Driver) fetchAll(ctx context.Context, day time.Time) []fetchResult {
	results := make([]fetchResult, len(d.sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.FetchConcurrency)
	for i, src := range d.sources {
		i, src := i, src
		g.Go(func() error {
			results[i] = d.fetchOne(gctx, src, day)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (d *Driver) fetchOne(ctx context.Context, src sources.Source, day time.Time) (res fetchResult) {
	name := src.Name()
	log := d.log.With("source", name)
	ctx, span := observability.Tracer().Start(ctx, "ingest.fetch", trace.WithAttributes(attribute.String("ingest.source", name)))
	defer span.End()

	start := time.Now()
	res.outcome.Source = name
	defer func() {
		if r := recover(); r != nil {
			res.entries = nil
			res.err = ingesterr.Fetch(name, "fetch", fmt.Errorf("panic: %v", r))
			res.outcome.Error = res.err.Error()
			res.outcome.Kind = string(ingesterr.KindFetch)
		}
		outcome := "ok"
		switch {
		case res.err != nil:
			outcome = "error"
			span.RecordError(res.err)
			span.SetStatus(codes.Error, res.err.Error())
		case len(res.entries) == 0:
			outcome = "empty"
		}
		observability.Current().ObserveSourceFetch(name, outcome, len(res.entries), time.Since(start))
	}()

	entries, err := src.Fetch(ctx, day)
	if err != nil {
		res.err = err
		res.outcome.Error = err.Error()
		if kind, ok := ingesterr.KindOf(err); ok {
			res.outcome.Kind = string(kind)
		} else {
			res.outcome.Kind = string(ingesterr.KindFetch)
		}
		log.Warn("Source fetch failed", "kind", res.outcome.Kind, "error", err)
		return res
	}
	res.entries = entries
	res.outcome.Entries = len(entries)
	log.Debug("Source fetched", "entries", len(entries), "duration", time.Since(start).String())
	return res
}

func identityKey(m *menu.Meal) string {
	return m.Venue + "|" + time.Time(m.ServedOn).Format(menu.DayLayout) + "|" + m.DescriptionKey
}

// prepare normalizes and value-scores raw entries, dropping later
// duplicates of an identity already seen in this run.
func (d *Driver) prepare(ctx context.Context, log *logger.Logger, entries []menu.RawMealEntry, report *RunReport) []*menu.Meal {
	run := report.Run
	now := d.now()
	seen := map[string]bool{}
	out := make([]*menu.Meal, 0, len(entries))
	for _, raw := range entries {
		run.MealsSeen++
		m, warnings, err := normalize.NormalizeWithWarnings(raw)
		for _, w := range warnings {
			report.Warnings = append(report.Warnings, raw.Source+": "+w)
		}
		if err != nil {
			run.MealsRejected++
			log.Warn("Menu entry rejected", "source", raw.Source, "error", err)
			continue
		}
		if err := d.engine.Apply(m, now); err != nil {
			observability.Current().IncScoring("value", "error")
			log.Warn("Value scoring failed, storing meal unscored", "description", m.Description, "error", err)
		} else {
			observability.Current().IncScoring("value", "ok")
		}
		key := identityKey(m)
		if seen[key] {
			log.Debug("Duplicate meal collapsed", "venue", m.Venue, "description", m.Description)
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}

// resolveTertiary fills the AI score from, in order, the stored meal, the
// description cache and the external scorer. Failures leave it nil.
func (d *Driver) resolveTertiary(ctx context.Context, log *logger.Logger, list []*menu.Meal, report *RunReport) {
	if len(list) == 0 {
		return
	}
	d.carryStoredTertiary(ctx, log, list)

	if d.cache != nil {
		var keys []string
		for _, m := range list {
			if m.TertiaryScore == nil {
				keys = append(keys, m.DescriptionKey)
			}
		}
		cached, err := d.cache.GetByKeys(dbctx.New(ctx), keys)
		if err != nil {
			log.Warn("Fitness score cache lookup failed", "error", err)
		}
		for _, m := range list {
			if m.TertiaryScore != nil {
				continue
			}
			if row := cached[m.DescriptionKey]; row != nil {
				v := row.Score
				m.TertiaryScore = &v
				report.AICached++
			}
		}
	}

	if d.fitness == nil {
		return
	}
	scored := map[string]*float64{}
	for _, m := range list {
		if m.TertiaryScore != nil {
			continue
		}
		if v, ok := scored[m.DescriptionKey]; ok {
			m.TertiaryScore = v
			continue
		}
		if ctx.Err() != nil {
			log.Warn("Fitness scoring stopped early", "error", ctx.Err())
			return
		}
		v, err := d.scoreFitness(ctx, m)
		scored[m.DescriptionKey] = v
		if err != nil {
			report.AIFailed++
			log.Warn("Fitness score unavailable", "description", m.Description, "error", err)
			continue
		}
		m.TertiaryScore = v
		report.AIScored++
		if d.cache != nil {
			row := &menu.FitnessScore{
				DescriptionKey: m.DescriptionKey,
				Description:    m.Description,
				Score:          *v,
				Provider:       d.fitness.Provider(),
				Model:          d.fitness.Model(),
			}
			if err := d.cache.Upsert(dbctx.New(ctx), row); err != nil {
				log.Warn("Failed to cache fitness score", "description", m.Description, "error", err)
			}
		}
	}
}

func (d *Driver) carryStoredTertiary(ctx context.Context, log *logger.Logger, list []*menu.Meal) {
	type group struct {
		venue string
		day   time.Time
		keys  []string
	}
	groups := map[string]*group{}
	var order []string
	for _, m := range list {
		gk := m.Venue + "|" + time.Time(m.ServedOn).Format(menu.DayLayout)
		g, ok := groups[gk]
		if !ok {
			g = &group{venue: m.Venue, day: time.Time(m.ServedOn)}
			groups[gk] = g
			order = append(order, gk)
		}
		g.keys = append(g.keys, m.DescriptionKey)
	}
	stored := map[string]*float64{}
	for _, gk := range order {
		g := groups[gk]
		found, err := d.meals.FindByIdentities(dbctx.New(ctx), g.day, g.venue, g.keys)
		if err != nil {
			log.Warn("Stored meal lookup failed", "venue", g.venue, "error", err)
			continue
		}
		for key, m := range found {
			if m.TertiaryScore != nil {
				stored[gk+"|"+key] = m.TertiaryScore
			}
		}
	}
	for _, m := range list {
		if v, ok := stored[identityKey(m)]; ok {
			m.TertiaryScore = v
		}
	}
}

func (d *Driver) scoreFitness(ctx context.Context, m *menu.Meal) (*float64, error) {
	ctx, span := observability.Tracer().Start(ctx, "ingest.fitness_score")
	defer span.End()
	start := time.Now()
	v, err := d.fitness.Score(ctx, m)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	observability.Current().ObserveAICall(d.fitness.Provider(), d.fitness.Model(), outcome, time.Since(start))
	observability.Current().IncScoring("fitness", outcome)
	return v, err
}

// upsertAll writes meals one at a time; no two writes of a run overlap.
func (d *Driver) upsertAll(ctx context.Context, log *logger.Logger, list []*menu.Meal, report *RunReport) {
	run := report.Run
	for _, m := range list {
		outcome, _, err := d.meals.Upsert(dbctx.New(ctx), m)
		if err != nil {
			run.MealsRejected++
			observability.Current().IncUpsert("error")
			log.Error("Meal upsert failed", "venue", m.Venue, "description", m.Description, "error", err)
			continue
		}
		switch outcome {
		case meals.Inserted:
			run.MealsInserted++
		case meals.Updated:
			run.MealsUpdated++
		case meals.Unchanged:
			run.MealsUnchanged++
		}
		observability.Current().IncUpsert(string(outcome))
	}
}
