package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/mensa-backend/internal/ingestion/ingesterr"
)

type scriptedGenerator struct {
	replies []string
	errs    []error
	calls   int
}

func (g *scriptedGenerator) GenerateText(ctx context.Context, system, user string) (string, error) {
	i := g.calls
	g.calls++
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.replies) {
		return g.replies[i], nil
	}
	return "", errors.New("no scripted reply")
}
func (g *scriptedGenerator) Provider() string { return "fake" }
func (g *scriptedGenerator) Model() string    { return "fake-1" }

func TestParseFitnessReply(t *testing.T) {
	cases := map[string]float64{
		"85":                85,
		"Bewertung: 72,5":   72.5,
		"150":               100,
		"-3":                0,
		"Score 40 von 100.": 40,
	}
	for in, want := range cases {
		got, err := ParseFitnessReply(in)
		if err != nil || got != want {
			t.Fatalf("ParseFitnessReply(%q) = %v, %v want %v", in, got, err, want)
		}
	}
	if _, err := ParseFitnessReply("keine Ahnung"); err == nil {
		t.Fatalf("expected error for non-numeric reply")
	}
}

func TestFitnessScorerRetriesTimeoutOnce(t *testing.T) {
	gen := &scriptedGenerator{errs: []error{context.DeadlineExceeded}, replies: []string{"", "64"}}
	s := NewFitnessScorer(nil, gen, time.Second, time.Millisecond)
	v, err := s.Score(context.Background(), meal("Rinderroulade", f(700), f(40), nil))
	if err != nil || v == nil || *v != 64 || gen.calls != 2 {
		t.Fatalf("v=%v err=%v calls=%d", v, err, gen.calls)
	}
}

func TestFitnessScorerFailures(t *testing.T) {
	gen := &scriptedGenerator{errs: []error{context.DeadlineExceeded, context.DeadlineExceeded}}
	s := NewFitnessScorer(nil, gen, time.Second, time.Millisecond)
	v, err := s.Score(context.Background(), meal("Rinderroulade", nil, nil, nil))
	if v != nil || !errors.Is(err, ingesterr.ErrExternalService) || gen.calls != 2 {
		t.Fatalf("v=%v err=%v calls=%d", v, err, gen.calls)
	}

	gen = &scriptedGenerator{replies: []string{"lecker"}}
	s = NewFitnessScorer(nil, gen, time.Second, time.Millisecond)
	if _, err := s.Score(context.Background(), meal("Rinderroulade", nil, nil, nil)); !errors.Is(err, ingesterr.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
}
