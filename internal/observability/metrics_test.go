package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestWritePrometheusSortedAndLabelled(t *testing.T) {
	m := newMetrics()
	m.ObserveSourceFetch("feed", "ok", 12, 300*time.Millisecond)
	m.ObserveSourceFetch("document", "fetch", 0, 2*time.Second)
	m.IncUpsert("inserted")
	m.IncUpsert("inserted")
	m.ObserveAPI("GET", "/api/meals", 200, 20*time.Millisecond)

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"# TYPE mensa_source_fetch_total counter",
		`mensa_source_fetch_total{source="document",outcome="fetch"} 1`,
		`mensa_source_entries_total{source="feed"} 12`,
		`mensa_meal_upserts_total{outcome="inserted"} 2`,
		`mensa_api_request_duration_seconds_bucket{method="GET",route="/api/meals",le="0.025"} 1`,
		`mensa_api_request_duration_seconds_count{method="GET",route="/api/meals"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Index(out, `source="document"`) > strings.Index(out, `source="feed"`) {
		t.Fatalf("series not sorted")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAICall("openai", "m", "ok", time.Second)
	m.IncVote("up")
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("nil write: %v", err)
	}
}

func TestLabelHelpers(t *testing.T) {
	if got := labelString([]string{"a", "b"}, []string{`x"y`}); got != `{a="x\"y",b="unknown"}` {
		t.Fatalf("labelString = %s", got)
	}
	if got := withLe("", "0.5"); got != `{le="0.5"}` {
		t.Fatalf("withLe empty = %s", got)
	}
	if got := ParseHeaders("a=1, b = 2,bad"); len(got) != 2 || got["b"] != "2" {
		t.Fatalf("ParseHeaders = %v", got)
	}
}
