package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/ingestion/ingesterr"
	"github.com/yungbote/mensa-backend/internal/ingestion/pipeline"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

type recordingRunner struct {
	mu    sync.Mutex
	days  []string
	panic string
	err   error
}

func (r *recordingRunner) Run(ctx context.Context, day time.Time, trigger string) (*pipeline.RunReport, error) {
	r.mu.Lock()
	r.days = append(r.days, day.Format(menu.DayLayout)+"/"+trigger)
	r.mu.Unlock()
	if r.panic != "" && day.Format(menu.DayLayout) == r.panic {
		panic("boom")
	}
	if r.err != nil {
		return nil, r.err
	}
	return &pipeline.RunReport{Run: &menu.IngestRun{Status: menu.RunStatusSucceeded}}, nil
}

func (r *recordingRunner) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.days...)
}

func TestDatesUseMenuTimezone(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	s := New(logger.Nop(), Config{DaysAhead: 2, Location: berlin}, &recordingRunner{}, nil)
	// 23:30 UTC on the 15th is already the 16th in Berlin.
	s.now = func() time.Time { return time.Date(2026, 10, 15, 23, 30, 0, 0, time.UTC) }

	got := s.Dates()
	want := []string{"2026-10-16", "2026-10-17", "2026-10-18"}
	if len(got) != len(want) {
		t.Fatalf("got %d dates", len(got))
	}
	for i := range want {
		if got[i].Format(menu.DayLayout) != want[i] {
			t.Fatalf("date %d = %s want %s", i, got[i].Format(menu.DayLayout), want[i])
		}
	}
}

func TestTickRecoversPanicsAndContinues(t *testing.T) {
	runner := &recordingRunner{panic: "2026-10-16"}
	s := New(logger.Nop(), Config{DaysAhead: 1}, runner, nil)
	s.now = func() time.Time { return time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC) }

	s.Tick(context.Background())

	got := runner.seen()
	if len(got) != 2 || got[0] != "2026-10-16/schedule" || got[1] != "2026-10-17/schedule" {
		t.Fatalf("unexpected runs %v", got)
	}
}

func TestTickTreatsLockHeldAsSkip(t *testing.T) {
	runner := &recordingRunner{err: fmt.Errorf("%w: ingest:2026-10-16", ingesterr.ErrLockHeld)}
	s := New(logger.Nop(), Config{}, runner, nil)
	s.Tick(context.Background())
	if len(runner.seen()) != 1 {
		t.Fatalf("expected one attempt, got %v", runner.seen())
	}
}

func TestStartRunsOnStartAndStops(t *testing.T) {
	runner := &recordingRunner{}
	s := New(logger.Nop(), Config{Interval: time.Hour, RunOnStart: true}, runner, nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for len(runner.seen()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("run on start did not happen")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
}
