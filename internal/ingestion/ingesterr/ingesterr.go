// Package ingesterr is the error taxonomy of the menu ingestion pipeline.
package ingesterr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindFetch           Kind = "fetch"
	KindParse           Kind = "parse"
	KindExtraction      Kind = "extraction"
	KindScoring         Kind = "scoring"
	KindExternalService Kind = "external_service"
)

var (
	ErrFetch           = errors.New("fetch failed")
	ErrParse           = errors.New("parse failed")
	ErrExtraction      = errors.New("extraction failed")
	ErrScoring         = errors.New("scoring failed")
	ErrExternalService = errors.New("external service failed")

	// ErrLockHeld means another run owns the date. It is the only condition
	// that aborts a run.
	ErrLockHeld = errors.New("ingest lock held")
)

var sentinels = map[Kind]error{
	KindFetch:           ErrFetch,
	KindParse:           ErrParse,
	KindExtraction:      ErrExtraction,
	KindScoring:         ErrScoring,
	KindExternalService: ErrExternalService,
}

type Error struct {
	Kind   Kind
	Source string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Source != "" {
		msg = e.Source + ": " + msg
	}
	if e.Op != "" {
		msg += " (" + e.Op + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's own kind. Parse and extraction
// failures also match ErrFetch since every adapter failure surfaces as a
// fetch failure of that source.
func (e *Error) Is(target error) bool {
	if s, ok := sentinels[e.Kind]; ok && s == target {
		return true
	}
	if target == ErrFetch && (e.Kind == KindParse || e.Kind == KindExtraction) {
		return true
	}
	return false
}

func New(kind Kind, source, op string, err error) *Error {
	return &Error{Kind: kind, Source: source, Op: op, Err: err}
}

func Fetch(source, op string, err error) error { return New(KindFetch, source, op, err) }

func Parse(source, op string, err error) error { return New(KindParse, source, op, err) }

func Extraction(source, op string, err error) error {
	return New(KindExtraction, source, op, err)
}

func Scoring(op string, err error) error { return New(KindScoring, "", op, err) }

func ExternalService(source, op string, err error) error {
	return New(KindExternalService, source, op, err)
}

// Parsef builds a parse error from a formatted message.
func Parsef(source, format string, args ...any) error {
	return New(KindParse, source, "", fmt.Errorf(format, args...))
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
