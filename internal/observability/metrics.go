package observability

import (
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *GaugeVec

	ingestRuns     *CounterVec
	ingestDuration *HistogramVec
	sourceFetches  *CounterVec
	sourceEntries  *CounterVec
	sourceLatency  *HistogramVec
	upserts        *CounterVec
	scoring        *CounterVec

	aiCalls   *CounterVec
	aiLatency *HistogramVec

	votes *CounterVec

	pgStats   *GaugeVec
	redisUp   *GaugeVec
	redisPing *GaugeVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Current returns the process metrics, or nil when metrics are disabled.
// Every Observe method is nil-safe.
func Current() *Metrics {
	return instance
}

// Init installs the process metrics once. enabled=false leaves Current nil.
func Init(log *logger.Logger, enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("Metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	latency := []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}
	return &Metrics{
		apiRequests: NewCounterVec("mensa_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency:  NewHistogramVec("mensa_api_request_duration_seconds", "API request latency in seconds.", []string{"method", "route"}, latency),
		apiInflight: NewGaugeVec("mensa_api_inflight_requests", "In-flight API requests.", nil),

		ingestRuns:     NewCounterVec("mensa_ingest_runs_total", "Ingestion runs by trigger and final status.", []string{"trigger", "status"}),
		ingestDuration: NewHistogramVec("mensa_ingest_run_duration_seconds", "Ingestion run wall time.", []string{"status"}, []float64{1, 5, 15, 30, 60, 120, 300, 600}),
		sourceFetches:  NewCounterVec("mensa_source_fetch_total", "Source fetches by source and outcome.", []string{"source", "outcome"}),
		sourceEntries:  NewCounterVec("mensa_source_entries_total", "Raw meal entries returned per source.", []string{"source"}),
		sourceLatency:  NewHistogramVec("mensa_source_fetch_duration_seconds", "Source fetch latency.", []string{"source"}, []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}),
		upserts:        NewCounterVec("mensa_meal_upserts_total", "Meal upserts by outcome.", []string{"outcome"}),
		scoring:        NewCounterVec("mensa_scoring_total", "Scores computed by kind and outcome.", []string{"kind", "outcome"}),

		aiCalls:   NewCounterVec("mensa_ai_requests_total", "Text generation calls by provider/model/outcome.", []string{"provider", "model", "outcome"}),
		aiLatency: NewHistogramVec("mensa_ai_request_duration_seconds", "Text generation latency.", []string{"provider"}, latency),

		votes: NewCounterVec("mensa_votes_total", "Votes cast by direction.", []string{"direction"}),

		pgStats:   NewGaugeVec("mensa_postgres_pool", "database/sql pool statistics.", []string{"stat"}),
		redisUp:   NewGaugeVec("mensa_redis_up", "Redis reachability (1 up, 0 down).", nil),
		redisPing: NewGaugeVec("mensa_redis_ping_seconds", "Redis ping latency.", nil),
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.ingestRuns, m.ingestDuration, m.sourceFetches, m.sourceEntries, m.sourceLatency,
		m.upserts, m.scoring,
		m.aiCalls, m.aiLatency,
		m.votes,
		m.pgStats, m.redisUp, m.redisPing,
	}
	for _, wr := range writers {
		if err := wr.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.Inc(method, route, strconv.Itoa(status))
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) APIInflight(delta float64) {
	if m == nil {
		return
	}
	m.apiInflight.Add(delta)
}

func (m *Metrics) ObserveIngestRun(trigger, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.ingestRuns.Inc(trigger, status)
	m.ingestDuration.Observe(dur.Seconds(), status)
}

func (m *Metrics) ObserveSourceFetch(source, outcome string, entries int, dur time.Duration) {
	if m == nil {
		return
	}
	m.sourceFetches.Inc(source, outcome)
	m.sourceEntries.Add(float64(entries), source)
	m.sourceLatency.Observe(dur.Seconds(), source)
}

func (m *Metrics) IncUpsert(outcome string) {
	if m == nil {
		return
	}
	m.upserts.Inc(outcome)
}

func (m *Metrics) IncScoring(kind, outcome string) {
	if m == nil {
		return
	}
	m.scoring.Inc(kind, outcome)
}

func (m *Metrics) ObserveAICall(provider, model, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aiCalls.Inc(provider, model, outcome)
	m.aiLatency.Observe(dur.Seconds(), provider)
}

func (m *Metrics) IncVote(direction string) {
	if m == nil {
		return
	}
	m.votes.Inc(direction)
}
