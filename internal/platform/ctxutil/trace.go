package ctxutil

import "context"

type traceDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

type voterKey struct{}

// WithVoter stores the anonymous voter fingerprint resolved by middleware.
func WithVoter(ctx context.Context, fingerprint string) context.Context {
	return context.WithValue(ctx, voterKey{}, fingerprint)
}

func Voter(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(voterKey{}).(string)
	return v
}
