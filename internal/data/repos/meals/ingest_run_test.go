package meals

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/yungbote/mensa-backend/internal/data/repos/testutil"
	types "github.com/yungbote/mensa-backend/internal/domain"
	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/pkg/dbctx"
)

func TestIngestRunRepoLifecycle(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.WithTx(context.Background(), tx)
	repo := NewIngestRunRepo(db, testutil.Logger(t))

	run := &types.IngestRun{TargetDate: menu.Day(time.Now()), Trigger: menu.TriggerManual}
	if err := repo.Create(dbc, run); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if run.Status != menu.RunStatusRunning {
		t.Fatalf("expected running, got %s", run.Status)
	}

	run.Status = menu.RunStatusPartial
	run.MealsSeen = 3
	run.MealsInserted = 2
	run.MealsRejected = 1
	outcomes := []types.SourceOutcome{{Source: "feed", Entries: 3}, {Source: "document", Error: "fetch failed", Kind: "fetch"}}
	if err := repo.Finish(dbc, run, outcomes); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got, err := repo.GetByID(dbc, run.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %+v %v", got, err)
	}
	if got.Status != menu.RunStatusPartial || got.MealsInserted != 2 || got.FinishedAt == nil {
		t.Fatalf("unexpected finished run: %+v", got)
	}
	var decoded []types.SourceOutcome
	if err := json.Unmarshal(got.Sources, &decoded); err != nil || len(decoded) != 2 {
		t.Fatalf("sources not stored: %s %v", string(got.Sources), err)
	}
}

func TestIngestRunRepoFailStale(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.WithTx(context.Background(), tx)
	repo := NewIngestRunRepo(db, testutil.Logger(t))

	old := &types.IngestRun{TargetDate: menu.Day(time.Now()), Trigger: menu.TriggerSchedule, StartedAt: time.Now().Add(-2 * time.Hour)}
	fresh := &types.IngestRun{TargetDate: menu.Day(time.Now()), Trigger: menu.TriggerSchedule}
	for _, r := range []*types.IngestRun{old, fresh} {
		if err := repo.Create(dbc, r); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	n, err := repo.FailStale(dbc, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("FailStale: %v", err)
	}
	if n < 1 {
		t.Fatalf("expected stale run to be failed")
	}
	got, _ := repo.GetByID(dbc, fresh.ID)
	if got.Status != menu.RunStatusRunning {
		t.Fatalf("fresh run must stay running, got %s", got.Status)
	}
	recent, err := repo.ListRecent(dbc, 10)
	if err != nil || len(recent) < 2 {
		t.Fatalf("ListRecent: %d %v", len(recent), err)
	}
}
