package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/mensa-backend/internal/data/repos"
	"github.com/yungbote/mensa-backend/internal/data/repos/testutil"
	pkgerrors "github.com/yungbote/mensa-backend/internal/pkg/errors"
	"github.com/yungbote/mensa-backend/internal/platform/apierr"
)

type scriptedGenerator struct {
	mu     sync.Mutex
	reply  string
	err    error
	calls  int
	system string
	user   string
}

func (g *scriptedGenerator) GenerateText(ctx context.Context, system, user string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.system, g.user = system, user
	return g.reply, g.err
}
func (g *scriptedGenerator) Provider() string { return "scripted" }
func (g *scriptedGenerator) Model() string    { return "scripted-1" }

func TestRecommendWithExplicitMeals(t *testing.T) {
	gen := &scriptedGenerator{reply: "```\nHier ist deine deprimierende Empfehlung: Nimm die Suppe. Oder nicht.\n```"}
	svc := NewRecommendationService(testutil.Logger(t), gen, nil, time.Second, time.Millisecond)

	rec, err := svc.Recommend(context.Background(), "Marvin", voteDay, nil, []string{"  Erbsensuppe  mit Brot", "", "Schnitzel"})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if rec.Text != "Nimm die Suppe. Oder nicht." {
		t.Fatalf("reply not cleaned: %q", rec.Text)
	}
	if rec.Persona != "marvin" || rec.Meals != 2 || rec.Provider != "scripted" || rec.Date != "" {
		t.Fatalf("unexpected recommendation %+v", rec)
	}
	if !strings.Contains(gen.system, "Marvin") {
		t.Fatalf("persona prompt missing: %q", gen.system)
	}
	if !strings.Contains(gen.user, "- Erbsensuppe mit Brot\n- Schnitzel\n") {
		t.Fatalf("meal list not in prompt: %q", gen.user)
	}
}

func TestRecommendFromStoredMenu(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	meals := NewMealService(db, log, repos.NewMealRepo(db, log))
	venue := testutil.Venue(t, "Hauptmensa")
	testutil.SeedMeal(t, context.Background(), db, venue, voteDay, "Currywurst mit Pommes", 320)

	gen := &scriptedGenerator{reply: "Vallah bruder, Currywurst!"}
	svc := NewRecommendationService(log, gen, meals, time.Second, time.Millisecond)
	rec, err := svc.Recommend(context.Background(), "dark_caner", voteDay, &venue, nil)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if rec.Date != "2026-10-16" || rec.Meals != 1 || rec.Text != "Vallah bruder, Currywurst!" {
		t.Fatalf("unexpected recommendation %+v", rec)
	}
	if !strings.Contains(gen.user, "Currywurst mit Pommes") {
		t.Fatalf("stored meal not in prompt: %q", gen.user)
	}

	empty := testutil.Venue(t, "Leer")
	if _, err := svc.Recommend(context.Background(), "bob", voteDay, &empty, nil); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an empty menu, got %v", err)
	}
}

func TestRecommendErrors(t *testing.T) {
	log := testutil.Logger(t)
	ctx := context.Background()

	svc := NewRecommendationService(log, &scriptedGenerator{reply: "ok"}, nil, time.Second, time.Millisecond)
	if _, err := svc.Recommend(ctx, "gandalf", voteDay, nil, []string{"Suppe"}); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("unknown persona: got %v", err)
	}
	if _, err := svc.Recommend(ctx, "trump", voteDay, nil, []string{" ", ""}); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("blank meals: got %v", err)
	}
	tooMany := make([]string, maxRecommendationMeals+1)
	for i := range tooMany {
		tooMany[i] = "Suppe"
	}
	if _, err := svc.Recommend(ctx, "trump", voteDay, nil, tooMany); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("too many meals: got %v", err)
	}

	disabled := NewRecommendationService(log, nil, nil, time.Second, time.Millisecond)
	_, err := disabled.Recommend(ctx, "trump", voteDay, nil, []string{"Suppe"})
	if ae, ok := apierr.As(err); !ok || ae.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without generator, got %v", err)
	}

	failing := &scriptedGenerator{err: errors.New("upstream down")}
	svc = NewRecommendationService(log, failing, nil, time.Second, time.Millisecond)
	_, err = svc.Recommend(ctx, "bob", voteDay, nil, []string{"Suppe"})
	if ae, ok := apierr.As(err); !ok || ae.Status != http.StatusBadGateway {
		t.Fatalf("expected 502 on generator failure, got %v", err)
	}
	if failing.calls != 1 {
		t.Fatalf("non-retryable error retried: %d calls", failing.calls)
	}
}

func TestPersonasAreSorted(t *testing.T) {
	svc := NewRecommendationService(testutil.Logger(t), nil, nil, time.Second, time.Millisecond)
	var keys []string
	for _, p := range svc.Personas() {
		keys = append(keys, p.Key)
	}
	if strings.Join(keys, ",") != "bob,dark_caner,marvin,trump" {
		t.Fatalf("personas %v", keys)
	}
}

func TestCleanRecommendation(t *testing.T) {
	cases := map[string]string{
		"  Plain text  ":                     "Plain text",
		"```json\nTake the steak.\n```":     "Take the steak.",
		"```Inline fence```":                 "Inline fence",
		"recommendation: The burger. Huge!": "The burger. Huge!",
	}
	for in, want := range cases {
		if got := cleanRecommendation(in, []string{"My recommendation:", "Recommendation:"}); got != want {
			t.Fatalf("cleanRecommendation(%q) = %q want %q", in, got, want)
		}
	}
}
