package ingesterr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindMatching(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		matches []error
		not     []error
	}{
		{name: "fetch", err: Fetch("feed", "get", errors.New("boom")), matches: []error{ErrFetch}, not: []error{ErrParse}},
		{name: "parse", err: Parse("feed", "xml", errors.New("eof")), matches: []error{ErrParse, ErrFetch}, not: []error{ErrExtraction}},
		{name: "extraction", err: Extraction("document", "ocr", nil), matches: []error{ErrExtraction, ErrFetch}},
		{name: "scoring", err: Scoring("primary", nil), matches: []error{ErrScoring}, not: []error{ErrFetch}},
		{name: "external", err: ExternalService("openai", "score", nil), matches: []error{ErrExternalService}, not: []error{ErrFetch}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("run: %w", tc.err)
			for _, m := range tc.matches {
				if !errors.Is(wrapped, m) {
					t.Fatalf("expected %v to match %v", wrapped, m)
				}
			}
			for _, n := range tc.not {
				if errors.Is(wrapped, n) {
					t.Fatalf("did not expect %v to match %v", wrapped, n)
				}
			}
		})
	}
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	inner := errors.New("status 502")
	err := Fetch("feed", "get", inner)
	if err.Error() != "feed: fetch (get): status 502" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Fatalf("expected inner error to be reachable")
	}
	if k, ok := KindOf(fmt.Errorf("x: %w", err)); !ok || k != KindFetch {
		t.Fatalf("KindOf = %v %v", k, ok)
	}
}
