package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/mensa-backend/internal/data/repos"
	"github.com/yungbote/mensa-backend/internal/data/repos/testutil"
	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/ingestion/ingesterr"
	"github.com/yungbote/mensa-backend/internal/ingestion/scoring"
	"github.com/yungbote/mensa-backend/internal/ingestion/sources"
	"github.com/yungbote/mensa-backend/internal/pkg/dbctx"
	"github.com/yungbote/mensa-backend/internal/platform/locking"
)

var testDay = time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	name    string
	entries []menu.RawMealEntry
	err     error
}

func (s *fakeSource) Name() string { return s.name }
func (s *fakeSource) Fetch(ctx context.Context, day time.Time) ([]menu.RawMealEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.entries, nil
}

// deadlineSource records the deadline of the context it is fetched with.
type deadlineSource struct {
	mu       sync.Mutex
	deadline time.Time
	ok       bool
}

func (s *deadlineSource) Name() string { return "deadline" }
func (s *deadlineSource) Fetch(ctx context.Context, day time.Time) ([]menu.RawMealEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadline, s.ok = ctx.Deadline()
	return nil, nil
}

type fakeGenerator struct {
	mu    sync.Mutex
	reply string
	block bool
	calls int
}

func (g *fakeGenerator) GenerateText(ctx context.Context, system, user string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return g.reply, nil
}
func (g *fakeGenerator) Provider() string { return "fake" }
func (g *fakeGenerator) Model() string    { return "fake-1" }

func (g *fakeGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type harness struct {
	db     *gorm.DB
	meals  repos.MealRepo
	cache  repos.FitnessScoreRepo
	runs   repos.IngestRunRepo
	locker *locking.LocalLocker
}

func newDriver(t *testing.T, srcs []sources.Source, gen scoring.Generator) (*Driver, *harness) {
	t.Helper()
	return newDriverWithConfig(t, Config{LockTTL: time.Minute, FetchConcurrency: 2}, srcs, gen)
}

func newDriverWithConfig(t *testing.T, cfg Config, srcs []sources.Source, gen scoring.Generator) (*Driver, *harness) {
	t.Helper()
	deps, h := newDeps(t, srcs, gen)
	d, err := NewDriver(cfg, deps)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	return d, h
}

func newDeps(t *testing.T, srcs []sources.Source, gen scoring.Generator) (Deps, *harness) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	h := &harness{
		db:     db,
		meals:  repos.NewMealRepo(db, log),
		cache:  repos.NewFitnessScoreRepo(db, log),
		runs:   repos.NewIngestRunRepo(db, log),
		locker: locking.NewLocal(),
	}
	rules, err := scoring.LoadRules("")
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	deps := Deps{
		Log:          log,
		Sources:      srcs,
		Engine:       scoring.NewEngine(rules),
		Locker:       h.locker,
		Meals:        h.meals,
		FitnessCache: h.cache,
		Runs:         h.runs,
	}
	if gen != nil {
		deps.Fitness = scoring.NewFitnessScorer(log, gen, 30*time.Millisecond, time.Millisecond)
	}
	return deps, h
}

func soupEntry(venue, desc string) menu.RawMealEntry {
	return menu.RawMealEntry{
		Source:      "feed",
		Venue:       venue,
		Date:        testDay,
		Description: desc,
		Category:    "Suppe",
		Prices:      map[menu.Tier]string{menu.TierStudent: "2,50 €", menu.TierGuest: "4,10"},
		EnergyKcal:  testutil.PtrFloat(500),
		ProteinG:    testutil.PtrFloat(20),
	}
}

func (h *harness) list(t *testing.T, venue string) []*menu.Meal {
	t.Helper()
	out, err := h.meals.ListByDate(dbctx.New(context.Background()), testDay, venue)
	if err != nil {
		t.Fatalf("ListByDate: %v", err)
	}
	return out
}

func TestRunScoresAndStoresMeal(t *testing.T) {
	venue := testutil.Venue(t, "Hauptmensa")
	desc := testutil.Venue(t, "Erbsensuppe mit Brot")
	gen := &fakeGenerator{reply: "35"}
	d, h := newDriver(t, []sources.Source{&fakeSource{name: "feed", entries: []menu.RawMealEntry{soupEntry(venue, desc)}}}, gen)

	report, err := d.Run(context.Background(), testDay, menu.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Run.Status != menu.RunStatusSucceeded || report.Run.MealsInserted != 1 {
		t.Fatalf("unexpected run: status=%s inserted=%d", report.Run.Status, report.Run.MealsInserted)
	}

	got := h.list(t, venue)
	if len(got) != 1 {
		t.Fatalf("expected 1 meal, got %d", len(got))
	}
	m := got[0]
	if m.PrimaryScore == nil || *m.PrimaryScore != 200 {
		t.Fatalf("primary = %v, want 200", m.PrimaryScore)
	}
	if m.SecondaryScore == nil || *m.SecondaryScore >= 0 {
		t.Fatalf("secondary = %v, want negative", m.SecondaryScore)
	}
	if m.TertiaryScore == nil || *m.TertiaryScore != 35 {
		t.Fatalf("tertiary = %v, want 35", m.TertiaryScore)
	}

	stored, err := h.runs.GetByID(dbctx.New(context.Background()), report.Run.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetByID: %v %v", stored, err)
	}
	if stored.FinishedAt == nil || len(stored.Outcomes()) != 1 || stored.Outcomes()[0].Entries != 1 {
		t.Fatalf("run not finalized: %+v", stored)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	venue := testutil.Venue(t, "Hauptmensa")
	desc := testutil.Venue(t, "Schnitzel mit Pommes")
	gen := &fakeGenerator{reply: "90"}
	d, h := newDriver(t, []sources.Source{&fakeSource{name: "feed", entries: []menu.RawMealEntry{soupEntry(venue, desc)}}}, gen)

	if _, err := d.Run(context.Background(), testDay, menu.TriggerSchedule); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := h.list(t, venue)
	if len(first) != 1 {
		t.Fatalf("expected 1 meal, got %d", len(first))
	}
	if err := h.meals.SetTally(dbctx.New(context.Background()), first[0].ID, menu.Tally{Up: 3, Down: 1}); err != nil {
		t.Fatalf("SetTally: %v", err)
	}

	report, err := d.Run(context.Background(), testDay, menu.TriggerSchedule)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Run.MealsUnchanged != 1 || report.Run.MealsInserted != 0 {
		t.Fatalf("second run counts: %+v", report.Run)
	}
	second := h.list(t, venue)
	if len(second) != 1 || second[0].ID != first[0].ID {
		t.Fatalf("identity not stable")
	}
	if second[0].Upvotes != 3 || second[0].Downvotes != 1 {
		t.Fatalf("tally changed: %d/%d", second[0].Upvotes, second[0].Downvotes)
	}
	if !second[0].FirstSeenAt.Equal(first[0].FirstSeenAt) {
		t.Fatalf("first_seen_at changed")
	}
	if gen.Calls() != 1 {
		t.Fatalf("expected stored tertiary to be reused, generator calls=%d", gen.Calls())
	}
}

func TestRunAITimeoutLeavesTertiaryNil(t *testing.T) {
	venue := testutil.Venue(t, "Contine")
	desc := testutil.Venue(t, "Erbsensuppe")
	gen := &fakeGenerator{block: true}
	d, h := newDriver(t, []sources.Source{&fakeSource{name: "feed", entries: []menu.RawMealEntry{soupEntry(venue, desc)}}}, gen)

	report, err := d.Run(context.Background(), testDay, menu.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.AIFailed != 1 || report.Run.Status != menu.RunStatusSucceeded {
		t.Fatalf("unexpected report: failed=%d status=%s", report.AIFailed, report.Run.Status)
	}
	m := h.list(t, venue)[0]
	if m.TertiaryScore != nil {
		t.Fatalf("tertiary should be nil, got %v", *m.TertiaryScore)
	}
	if m.PrimaryScore == nil || *m.PrimaryScore != 200 || m.SecondaryScore == nil {
		t.Fatalf("value scores should be unaffected: %v %v", m.PrimaryScore, m.SecondaryScore)
	}
}

func TestRunUsesCachedFitnessScore(t *testing.T) {
	venue := testutil.Venue(t, "Hauptmensa")
	desc := testutil.Venue(t, "Gulasch mit Nudeln")
	gen := &fakeGenerator{reply: "10"}
	d, h := newDriver(t, []sources.Source{&fakeSource{name: "feed", entries: []menu.RawMealEntry{soupEntry(venue, desc)}}}, gen)

	err := h.cache.Upsert(dbctx.New(context.Background()), &menu.FitnessScore{
		DescriptionKey: menu.DescriptionKey(desc),
		Description:    desc,
		Score:          55,
	})
	if err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	report, err := d.Run(context.Background(), testDay, menu.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gen.Calls() != 0 || report.AICached != 1 {
		t.Fatalf("expected cache hit, calls=%d cached=%d", gen.Calls(), report.AICached)
	}
	m := h.list(t, venue)[0]
	if m.TertiaryScore == nil || *m.TertiaryScore != 55 {
		t.Fatalf("tertiary = %v, want 55", m.TertiaryScore)
	}
}

func TestRunEmptyDocumentCompletes(t *testing.T) {
	d, _ := newDriver(t, []sources.Source{&fakeSource{name: "document", entries: []menu.RawMealEntry{}}}, nil)

	report, err := d.Run(context.Background(), testDay, menu.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Run.Status != menu.RunStatusSucceeded || report.Run.MealsSeen != 0 || report.Run.MealsInserted != 0 {
		t.Fatalf("unexpected run: %+v", report.Run)
	}
}

func TestRunPartialAndFailedStatus(t *testing.T) {
	venue := testutil.Venue(t, "Hauptmensa")
	ok := &fakeSource{name: "feed", entries: []menu.RawMealEntry{soupEntry(venue, testutil.Venue(t, "Linsen"))}}
	broken := &fakeSource{name: "document", err: ingesterr.Extraction("document", "extract", errors.New("ocr down"))}

	d, _ := newDriver(t, []sources.Source{ok, broken}, nil)
	report, err := d.Run(context.Background(), testDay, menu.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Run.Status != menu.RunStatusPartial || report.Run.MealsInserted != 1 {
		t.Fatalf("expected partial with one insert, got %s/%d", report.Run.Status, report.Run.MealsInserted)
	}
	if report.Outcomes[1].Kind != string(ingesterr.KindExtraction) || report.Outcomes[1].Error == "" {
		t.Fatalf("failed source outcome not recorded: %+v", report.Outcomes[1])
	}

	d, _ = newDriver(t, []sources.Source{broken}, nil)
	report, err = d.Run(context.Background(), testDay, menu.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Run.Status != menu.RunStatusFailed {
		t.Fatalf("expected failed, got %s", report.Run.Status)
	}
}

func TestRunCollapsesDuplicates(t *testing.T) {
	venue := testutil.Venue(t, "Hauptmensa")
	desc := testutil.Venue(t, "Currywurst")
	first := soupEntry(venue, desc)
	dup := soupEntry(venue, "  "+desc+" ")
	dup.Prices = map[menu.Tier]string{menu.TierStudent: "9,99"}

	d, h := newDriver(t, []sources.Source{&fakeSource{name: "feed", entries: []menu.RawMealEntry{first, dup}}}, nil)
	report, err := d.Run(context.Background(), testDay, menu.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Run.MealsSeen != 2 || report.Run.MealsInserted != 1 {
		t.Fatalf("expected 2 seen and 1 inserted, got %d/%d", report.Run.MealsSeen, report.Run.MealsInserted)
	}
	got := h.list(t, venue)
	if len(got) != 1 || got[0].PriceTiers()[menu.TierStudent] != 250 {
		t.Fatalf("first occurrence should win: %+v", got)
	}
}

func TestRunLockHeldWritesNothing(t *testing.T) {
	venue := testutil.Venue(t, "Hauptmensa")
	d, h := newDriver(t, []sources.Source{&fakeSource{name: "feed", entries: []menu.RawMealEntry{soupEntry(venue, "Erbsensuppe")}}}, nil)

	lease, err := h.locker.TryAcquire(context.Background(), LockKey(testDay), time.Minute)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	defer lease.Release(context.Background())

	var before int64
	h.db.Model(&menu.IngestRun{}).Count(&before)

	_, err = d.Run(context.Background(), testDay, menu.TriggerSchedule)
	if !errors.Is(err, ingesterr.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	var after int64
	h.db.Model(&menu.IngestRun{}).Count(&after)
	if after != before {
		t.Fatalf("run row written while locked")
	}
	if len(h.list(t, venue)) != 0 {
		t.Fatalf("meals written while locked")
	}
	if _, err := d.Start(context.Background(), testDay, menu.TriggerManual); !errors.Is(err, ingesterr.ErrLockHeld) {
		t.Fatalf("Start: expected ErrLockHeld, got %v", err)
	}
}

func TestStartRunsInBackground(t *testing.T) {
	venue := testutil.Venue(t, "Hauptmensa")
	d, h := newDriver(t, []sources.Source{&fakeSource{name: "feed", entries: []menu.RawMealEntry{soupEntry(venue, testutil.Venue(t, "Chili"))}}}, nil)

	run, err := d.Start(context.Background(), testDay, menu.TriggerManual)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.Status != menu.RunStatusRunning {
		t.Fatalf("expected running snapshot, got %s", run.Status)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		stored, err := h.runs.GetByID(dbctx.New(context.Background()), run.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if stored != nil && stored.Status != menu.RunStatusRunning {
			if stored.Status != menu.RunStatusSucceeded || stored.MealsInserted != 1 {
				t.Fatalf("unexpected final run: %+v", stored)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("background run did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The lease is released once the run finishes.
	deadline = time.Now().Add(time.Second)
	for {
		lease, err := h.locker.TryAcquire(context.Background(), LockKey(testDay), time.Minute)
		if err == nil {
			_ = lease.Release(context.Background())
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("lock not released: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunAppliesRunTimeout(t *testing.T) {
	src := &deadlineSource{}
	d, _ := newDriverWithConfig(t, Config{LockTTL: time.Minute, RunTimeout: 20 * time.Second}, []sources.Source{src}, nil)

	before := time.Now()
	if _, err := d.Run(context.Background(), testDay, menu.TriggerManual); err != nil {
		t.Fatalf("Run: %v", err)
	}
	src.mu.Lock()
	defer src.mu.Unlock()
	if !src.ok {
		t.Fatalf("synchronous run fetched without a deadline")
	}
	if src.deadline.After(before.Add(21 * time.Second)) {
		t.Fatalf("deadline %s exceeds the run timeout", src.deadline)
	}
}

func TestNewDriverRejectsRunTimeoutPastLockTTL(t *testing.T) {
	deps, _ := newDeps(t, nil, nil)
	for _, cfg := range []Config{
		{LockTTL: time.Minute, RunTimeout: time.Minute},
		{LockTTL: time.Minute, RunTimeout: time.Hour},
		{RunTimeout: 45 * time.Minute},
	} {
		if _, err := NewDriver(cfg, deps); err == nil {
			t.Fatalf("expected %+v to be rejected", cfg)
		}
	}
	if _, err := NewDriver(Config{LockTTL: time.Minute, RunTimeout: 30 * time.Second}, deps); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
