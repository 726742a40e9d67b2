package meals

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/mensa-backend/internal/data/repos/testutil"
	types "github.com/yungbote/mensa-backend/internal/domain"
	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/pkg/dbctx"
)

func TestVoteRepoDirectionChangeOverwrites(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.WithTx(ctx, tx)
	repo := NewVoteRepo(db, testutil.Logger(t))

	meal := testutil.SeedMeal(t, ctx, tx, testutil.Venue(t, "Mensa"), time.Now(), "Linsen", 200)

	if err := repo.Upsert(dbc, &types.Vote{MealID: meal.ID, VoterHash: "v1", Direction: menu.VoteUp}); err != nil {
		t.Fatalf("Upsert up: %v", err)
	}
	if err := repo.Upsert(dbc, &types.Vote{MealID: meal.ID, VoterHash: "v1", Direction: menu.VoteDown}); err != nil {
		t.Fatalf("Upsert down: %v", err)
	}
	if err := repo.Upsert(dbc, &types.Vote{MealID: meal.ID, VoterHash: "v2", Direction: menu.VoteUp}); err != nil {
		t.Fatalf("Upsert other voter: %v", err)
	}

	tally, err := repo.Tally(dbc, meal.ID)
	if err != nil {
		t.Fatalf("Tally: %v", err)
	}
	if tally.Up != 1 || tally.Down != 1 {
		t.Fatalf("expected up=1 down=1, got %+v", tally)
	}

	v, err := repo.GetByVoter(dbc, meal.ID, "v1")
	if err != nil || v == nil || v.Direction != menu.VoteDown {
		t.Fatalf("GetByVoter: %+v %v", v, err)
	}
	missing, err := repo.GetByVoter(dbc, meal.ID, "nobody")
	if err != nil || missing != nil {
		t.Fatalf("expected no vote, got %+v %v", missing, err)
	}
}
