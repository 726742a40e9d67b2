package app

import (
	"strings"
	"time"

	"github.com/yungbote/mensa-backend/internal/platform/envutil"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

type Config struct {
	Port     string
	Location *time.Location

	// Ingestion
	IngestInterval     time.Duration
	IngestDaysAhead    int
	IngestRunOnStart   bool
	IngestLockTTL      time.Duration
	IngestRunTimeout   time.Duration
	IngestStaleAfter   time.Duration
	FetchConcurrency   int
	FeedTimeout        time.Duration
	DocumentTimeout    time.Duration
	OCRTimeout         time.Duration
	AITimeout          time.Duration
	RetryBackoff       time.Duration
	SourcesConfigPath  string
	ScoringRulesPath   string
	ExtractorMode      string
	OCRDPI             int
	OCRFirstPage       int
	OCRLastPage        int
	OCRMaxImageSide    int
	BrowserFallback    bool
	ArchiveDocuments   bool
	AIProvider         string
	SchedulerEnabled   bool
	IngestTriggerToken string

	// Locking
	LockBackend   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Voting
	VoterTokenSecret string
	VoterTokenTTL    time.Duration
	SecureCookies    bool

	// HTTP + observability
	CORSOrigins    []string
	MetricsEnabled bool
	OtelEnabled    bool
	OtelEndpoint   string
	OtelInsecure   bool
	OtelHeaders    string
	OtelSample     float64
	ServiceName    string
	Environment    string
	Version        string
}

func LoadConfig(log *logger.Logger) Config {
	tz := envutil.GetEnv("MENU_TIMEZONE", "Europe/Berlin", log)
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("Unknown MENU_TIMEZONE, falling back to UTC", "timezone", tz, "error", err)
		loc = time.UTC
	}
	return Config{
		Port:     envutil.GetEnv("PORT", "8080", log),
		Location: loc,

		IngestInterval:     envutil.GetEnvAsDuration("INGEST_INTERVAL", 3*time.Hour, log),
		IngestDaysAhead:    envutil.GetEnvAsInt("INGEST_DAYS_AHEAD", 0, log),
		IngestRunOnStart:   envutil.GetEnvAsBool("INGEST_RUN_ON_START", true, log),
		IngestLockTTL:      envutil.GetEnvAsDuration("INGEST_LOCK_TTL", 30*time.Minute, log),
		IngestRunTimeout:   envutil.GetEnvAsDuration("INGEST_RUN_TIMEOUT", 20*time.Minute, log),
		IngestStaleAfter:   envutil.GetEnvAsDuration("INGEST_STALE_AFTER", time.Hour, log),
		FetchConcurrency:   envutil.GetEnvAsInt("INGEST_FETCH_CONCURRENCY", 4, log),
		FeedTimeout:        envutil.GetEnvAsDuration("FEED_TIMEOUT", 15*time.Second, log),
		DocumentTimeout:    envutil.GetEnvAsDuration("DOCUMENT_TIMEOUT", 30*time.Second, log),
		OCRTimeout:         envutil.GetEnvAsDuration("OCR_TIMEOUT", 60*time.Second, log),
		AITimeout:          envutil.GetEnvAsDuration("AI_TIMEOUT", 20*time.Second, log),
		RetryBackoff:       envutil.GetEnvAsDuration("RETRY_BACKOFF", 500*time.Millisecond, log),
		SourcesConfigPath:  envutil.GetEnv("SOURCES_CONFIG_PATH", "", log),
		ScoringRulesPath:   envutil.GetEnv("SCORING_RULES_PATH", "", log),
		ExtractorMode:      envutil.GetEnv("EXTRACTOR_MODE", "auto", log),
		OCRDPI:             envutil.GetEnvAsInt("OCR_DPI", 150, log),
		OCRFirstPage:       envutil.GetEnvAsInt("OCR_FIRST_PAGE", 1, log),
		OCRLastPage:        envutil.GetEnvAsInt("OCR_LAST_PAGE", 1, log),
		OCRMaxImageSide:    envutil.GetEnvAsInt("OCR_MAX_IMAGE_SIDE", 3000, log),
		BrowserFallback:    envutil.GetEnvAsBool("BROWSER_FALLBACK_ENABLED", false, log),
		ArchiveDocuments:   envutil.GetEnvAsBool("ARCHIVE_DOCUMENTS", false, log),
		AIProvider:         strings.ToLower(envutil.GetEnv("AI_PROVIDER", "openai", log)),
		SchedulerEnabled:   envutil.GetEnvAsBool("SCHEDULER_ENABLED", true, log),
		IngestTriggerToken: envutil.GetEnv("INGEST_TRIGGER_TOKEN", "", log),

		LockBackend:   envutil.GetEnv("LOCK_BACKEND", "", log),
		RedisAddr:     envutil.GetEnv("REDIS_ADDR", "", log),
		RedisPassword: envutil.GetEnv("REDIS_PASSWORD", "", log),
		RedisDB:       envutil.GetEnvAsInt("REDIS_DB", 0, log),

		VoterTokenSecret: envutil.GetEnv("VOTER_TOKEN_SECRET", "", log),
		VoterTokenTTL:    envutil.GetEnvAsDuration("VOTER_TOKEN_TTL", 365*24*time.Hour, log),
		SecureCookies:    envutil.GetEnvAsBool("SECURE_COOKIES", false, log),

		CORSOrigins:    splitList(envutil.GetEnv("CORS_ORIGINS", "", log)),
		MetricsEnabled: envutil.GetEnvAsBool("METRICS_ENABLED", true, log),
		OtelEnabled:    envutil.GetEnvAsBool("OTEL_ENABLED", false, log),
		OtelEndpoint:   envutil.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "", log),
		OtelInsecure:   envutil.GetEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false, log),
		OtelHeaders:    envutil.GetEnv("OTEL_EXPORTER_OTLP_HEADERS", "", log),
		OtelSample:     envutil.GetEnvAsFloat("OTEL_SAMPLE_RATIO", 1, log),
		ServiceName:    envutil.GetEnv("OTEL_SERVICE_NAME", "mensa-backend", log),
		Environment:    envutil.GetEnv("APP_ENV", "development", log),
		Version:        envutil.GetEnv("APP_VERSION", "dev", log),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
