package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/mensa-backend/internal/data/repos"
	"github.com/yungbote/mensa-backend/internal/data/repos/testutil"
	pkgerrors "github.com/yungbote/mensa-backend/internal/pkg/errors"
)

var voteDay = time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

func newVoteFixture(t *testing.T) (VoteService, MealService, uuid.UUID) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	tokens, err := NewVoterTokenService(log, "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewVoterTokenService: %v", err)
	}
	mealRepo := repos.NewMealRepo(db, log)
	meal := testutil.SeedMeal(t, context.Background(), db, testutil.Venue(t, "Hauptmensa"), voteDay, "Erbsensuppe", 250)
	return NewVoteService(db, log, mealRepo, repos.NewVoteRepo(db, log), tokens), NewMealService(db, log, mealRepo), meal.ID
}

func TestVoteUpThenDownReplaces(t *testing.T) {
	votes, meals, mealID := newVoteFixture(t)
	ctx := context.Background()
	voter := uuid.NewString()

	tally, err := votes.Cast(ctx, mealID, voter, "up")
	if err != nil {
		t.Fatalf("Cast up: %v", err)
	}
	if tally.Up != 1 || tally.Down != 0 {
		t.Fatalf("after up: %+v", tally)
	}
	tally, err = votes.Cast(ctx, mealID, voter, "down")
	if err != nil {
		t.Fatalf("Cast down: %v", err)
	}
	if tally.Up != 0 || tally.Down != 1 {
		t.Fatalf("after down: %+v", tally)
	}

	m, err := meals.Get(ctx, mealID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m.Upvotes != 0 || m.Downvotes != 1 {
		t.Fatalf("stored tally %d/%d", m.Upvotes, m.Downvotes)
	}

	state, err := votes.Tally(ctx, mealID, voter)
	if err != nil {
		t.Fatalf("Tally: %v", err)
	}
	if !state.HasVoted || state.Direction != "down" {
		t.Fatalf("unexpected state %+v", state)
	}
	other, err := votes.Tally(ctx, mealID, uuid.NewString())
	if err != nil || other.HasVoted {
		t.Fatalf("other voter should not have voted: %+v %v", other, err)
	}
}

func TestVoteSeparateVotersAccumulate(t *testing.T) {
	votes, _, mealID := newVoteFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := votes.Cast(ctx, mealID, uuid.NewString(), "up"); err != nil {
			t.Fatalf("Cast: %v", err)
		}
	}
	tally, err := votes.Cast(ctx, mealID, uuid.NewString(), "DOWN")
	if err != nil {
		t.Fatalf("Cast: %v", err)
	}
	if tally.Up != 3 || tally.Down != 1 {
		t.Fatalf("tally %+v", tally)
	}
}

func TestVoteConcurrentCastsKeepTallyConsistent(t *testing.T) {
	votes, meals, mealID := newVoteFixture(t)
	ctx := context.Background()
	const voters = 12

	var wg sync.WaitGroup
	errs := make(chan error, voters)
	for i := 0; i < voters; i++ {
		dir := "up"
		if i%3 == 0 {
			dir = "down"
		}
		wg.Add(1)
		go func(dir string) {
			defer wg.Done()
			if _, err := votes.Cast(ctx, mealID, uuid.NewString(), dir); err != nil {
				errs <- err
			}
		}(dir)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Cast: %v", err)
	}

	m, err := meals.Get(ctx, mealID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m.Upvotes != 8 || m.Downvotes != 4 {
		t.Fatalf("stored tally %d/%d, want 8/4", m.Upvotes, m.Downvotes)
	}
}

func TestVoteRejectsBadInput(t *testing.T) {
	votes, meals, mealID := newVoteFixture(t)
	ctx := context.Background()

	if _, err := votes.Cast(ctx, mealID, uuid.NewString(), "sideways"); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := votes.Cast(ctx, uuid.New(), uuid.NewString(), "up"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := votes.Tally(ctx, uuid.New(), ""); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Tally, got %v", err)
	}

	m, err := meals.Get(ctx, mealID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m.Upvotes != 0 || m.Downvotes != 0 {
		t.Fatalf("failed votes changed the tally: %d/%d", m.Upvotes, m.Downvotes)
	}
}

func TestMealServiceListAndVenues(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	svc := NewMealService(db, log, repos.NewMealRepo(db, log))
	ctx := context.Background()
	venue := testutil.Venue(t, "Contine")
	testutil.SeedMeal(t, ctx, db, venue, voteDay, "Pasta", 300)
	testutil.SeedMeal(t, ctx, db, venue, voteDay, "Currywurst", 280)

	out, err := svc.ListByDate(ctx, voteDay, &venue)
	if err != nil {
		t.Fatalf("ListByDate: %v", err)
	}
	if len(out) != 2 || out[0].Description != "Currywurst" {
		t.Fatalf("unexpected order: %+v", out)
	}

	none, err := svc.ListByDate(ctx, voteDay.AddDate(0, 0, 30), &venue)
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil list, got %v %v", none, err)
	}

	venues, err := svc.Venues(ctx, voteDay)
	if err != nil {
		t.Fatalf("Venues: %v", err)
	}
	found := false
	for _, v := range venues {
		if v.Venue == venue && v.Meals == 2 {
			found = true
		}
	}
	if !found {
		t.Fatalf("venue %q missing from %+v", venue, venues)
	}

	if _, err := svc.Get(ctx, uuid.New()); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
