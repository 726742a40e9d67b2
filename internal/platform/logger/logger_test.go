package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var out map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &out); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	return out
}

func TestRedactsSecretsAndHashesVoters(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, zap.InfoLevel, Policy{Redact: true, Salt: "pepper"})

	log.Info("Vote cast",
		"voter", "browser-fingerprint-1",
		"ingest_trigger_token", "s3cr3t",
		"Authorization", "Bearer abc",
		"document_url", "https://storage.example/menu.pdf?X-Goog-Signature=deadbeef#page=2",
		"venue", "Hauptmensa",
	)
	got := lastLine(t, &buf)

	voter, _ := got["voter"].(string)
	if !strings.HasPrefix(voter, "hash:") || len(voter) != len("hash:")+12 || strings.Contains(voter, "browser") {
		t.Fatalf("voter not hashed: %v", got["voter"])
	}
	if got["ingest_trigger_token"] != "[REDACTED]" || got["Authorization"] != "[REDACTED]" {
		t.Fatalf("secrets leaked: %v", got)
	}
	if got["document_url"] != "https://storage.example/menu.pdf?[REDACTED]" {
		t.Fatalf("url query kept: %v", got["document_url"])
	}
	if got["venue"] != "Hauptmensa" {
		t.Fatalf("plain value changed: %v", got["venue"])
	}

	log.Info("again", "voter", "browser-fingerprint-1")
	if lastLine(t, &buf)["voter"] != voter {
		t.Fatalf("voter digest must be stable")
	}

	var other bytes.Buffer
	NewJSON(&other, zap.InfoLevel, Policy{Redact: true, Salt: "salt"}).Info("x", "voter", "browser-fingerprint-1")
	if lastLine(t, &other)["voter"] == voter {
		t.Fatalf("salt must change the digest")
	}
}

func TestRedactionDisabled(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, zap.InfoLevel, Policy{Redact: false})
	log.Info("raw", "voter", "fp", "url", "https://a.example/x?sig=1")
	got := lastLine(t, &buf)
	if got["voter"] != "fp" || got["url"] != "https://a.example/x?sig=1" {
		t.Fatalf("redaction should be off: %v", got)
	}
}

func TestWithKeepsPolicyAndForRun(t *testing.T) {
	var buf bytes.Buffer
	runID := uuid.New()
	log := NewJSON(&buf, zap.InfoLevel, Policy{Redact: true}).
		With("fingerprint", "fp-1").
		ForRun(runID, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), "scheduler")
	log.Info("Ingest run started", "nested", map[string]interface{}{"api_key": "k", "sources": 3})

	got := lastLine(t, &buf)
	if got["run_id"] != runID.String() || got["date"] != "2026-10-16" || got["trigger"] != "scheduler" {
		t.Fatalf("run fields missing: %v", got)
	}
	if fp, _ := got["fingerprint"].(string); !strings.HasPrefix(fp, "hash:") {
		t.Fatalf("With must sanitize: %v", got["fingerprint"])
	}
	nested, _ := got["nested"].(map[string]any)
	if nested["api_key"] != "[REDACTED]" || nested["sources"] != float64(3) {
		t.Fatalf("nested map not sanitized: %v", nested)
	}
}

func TestLevelFilteringAndOddArgs(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, zap.WarnLevel, Policy{Redact: true})
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}
	log.Warn("odd", "venue", "A", "dangling")
	if !strings.Contains(buf.String(), `"venue":"A"`) {
		t.Fatalf("unexpected output %s", buf.String())
	}
}

func TestScrubURLLeavesPlainLinks(t *testing.T) {
	if got := scrubURL("https://mensa.example/speiseplan.pdf"); got != "https://mensa.example/speiseplan.pdf" {
		t.Fatalf("plain link changed: %v", got)
	}
	if got := scrubURL("/relative?a=1"); got != "/relative?[REDACTED]" {
		t.Fatalf("relative link: %v", got)
	}
}
