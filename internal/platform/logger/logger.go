package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	SugaredLogger *zap.SugaredLogger
	policy        Policy
}

// Policy controls how key/value pairs are scrubbed before they are logged.
type Policy struct {
	Redact bool
	// Salt is mixed into voter and fingerprint digests.
	Salt string
}

// PolicyFromEnv reads LOG_REDACTION_ENABLED (default on) and LOG_HASH_SALT.
func PolicyFromEnv() Policy {
	p := Policy{Redact: true, Salt: strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))}
	switch strings.TrimSpace(strings.ToLower(os.Getenv("LOG_REDACTION_ENABLED"))) {
	case "0", "false", "no", "off":
		p.Redact = false
	}
	return p
}

// New builds a logger for the given LOG_MODE. Production mode emits JSON at
// info level, "json" writes bare JSON lines to stderr, and every other mode
// is the console development encoder. "test" only logs warnings so table
// tests stay quiet.
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "json":
		return NewJSON(os.Stderr, levelFromEnv(zap.InfoLevel), PolicyFromEnv()), nil
	case "prod", "production":
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(levelFromEnv(zap.InfoLevel))
	case "test":
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(levelFromEnv(zap.DebugLevel))
	}
	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zapLogger.Sugar(), policy: PolicyFromEnv()}, nil
}

// NewJSON writes JSON lines to w at level and above.
func NewJSON(w io.Writer, level zapcore.Level, policy Policy) *Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(w), level)
	return &Logger{SugaredLogger: zap.New(core).Sugar(), policy: policy}
}

// Nop discards everything. Used where a component is built without a parent logger.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func levelFromEnv(def zapcore.Level) zapcore.Level {
	raw := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if raw == "" {
		return def
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(raw))); err != nil {
		return def
	}
	return lvl
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, l.policy.sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, l.policy.sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, l.policy.sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, l.policy.sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Fatalw(msg, l.policy.sanitizeKVs(keysAndValues)...)
}
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	newSugared := l.SugaredLogger.With(l.policy.sanitizeKVs(keysAndValues)...)
	return &Logger{SugaredLogger: newSugared, policy: l.policy}
}

// ForRun scopes l to one ingestion run.
func (l *Logger) ForRun(runID fmt.Stringer, menuDate time.Time, trigger string) *Logger {
	return l.With("run_id", runID.String(), "date", menuDate.Format(time.DateOnly), "trigger", trigger)
}

func (p Policy) sanitizeKVs(kv []interface{}) []interface{} {
	if len(kv) == 0 || !p.Redact {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		key := strings.TrimSpace(strings.ToLower(toString(kv[i])))
		out = append(out, toString(kv[i]), p.sanitizeValue(key, kv[i+1]))
	}
	return out
}

func (p Policy) sanitizeValue(key string, val interface{}) interface{} {
	if key == "" {
		return val
	}
	if isRedactKey(key) {
		return "[REDACTED]"
	}
	if isHashKey(key) {
		return p.hashValue(val)
	}
	if isURLKey(key) {
		return scrubURL(val)
	}
	switch v := val.(type) {
	case map[string]interface{}:
		return p.sanitizeMap(v)
	case []interface{}:
		return p.sanitizeSlice(v)
	default:
		if s, ok := val.(string); ok && looksLikeJWT(s) {
			return "[REDACTED]"
		}
		return val
	}
}

func (p Policy) sanitizeMap(input map[string]interface{}) map[string]interface{} {
	if input == nil {
		return nil
	}
	out := make(map[string]interface{}, len(input))
	for k, v := range input {
		key := strings.TrimSpace(strings.ToLower(k))
		out[k] = p.sanitizeValue(key, v)
	}
	return out
}

func (p Policy) sanitizeSlice(input []interface{}) []interface{} {
	if input == nil {
		return nil
	}
	out := make([]interface{}, 0, len(input))
	for _, v := range input {
		out = append(out, p.sanitizeValue("", v))
	}
	return out
}

func isRedactKey(key string) bool {
	switch {
	case strings.Contains(key, "token"),
		strings.Contains(key, "authorization"),
		strings.Contains(key, "password"),
		strings.Contains(key, "secret"),
		strings.Contains(key, "cookie"),
		strings.Contains(key, "api_key"),
		strings.Contains(key, "apikey"),
		strings.Contains(key, "credentials"),
		strings.Contains(key, "dsn"):
		return true
	default:
		return false
	}
}

// Voter fingerprints identify a browser; log a stable digest only.
func isHashKey(key string) bool {
	return strings.Contains(key, "voter") ||
		strings.Contains(key, "fingerprint") ||
		strings.Contains(key, "client_id") ||
		strings.Contains(key, "remote_addr")
}

func isURLKey(key string) bool {
	return key == "url" || key == "link" || strings.HasSuffix(key, "_url")
}

// scrubURL drops the query of menu document and archive links, which may
// carry signed-URL credentials.
func scrubURL(val interface{}) interface{} {
	raw := toString(val)
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return val
	}
	u.User = nil
	u.Fragment = ""
	u.RawQuery = "[REDACTED]"
	return u.String()
}

func (p Policy) hashValue(val interface{}) string {
	raw := toString(val)
	if raw == "" {
		return ""
	}
	h := sha256.New()
	if p.Salt != "" {
		_, _ = h.Write([]byte(p.Salt))
	}
	_, _ = h.Write([]byte(raw))
	sum := hex.EncodeToString(h.Sum(nil))
	if len(sum) > 12 {
		sum = sum[:12]
	}
	return "hash:" + sum
}

func looksLikeJWT(s string) bool {
	if s == "" {
		return false
	}
	parts := strings.Split(s, ".")
	return len(parts) == 3 && len(parts[0]) > 10 && len(parts[1]) > 10
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
