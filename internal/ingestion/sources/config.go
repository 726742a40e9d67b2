package sources

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/mensa-backend/internal/domain/menu"
)

const (
	KindFeed     = "feed"
	KindDocument = "document"

	defaultMinBytes = 30 * 1024
)

//go:embed sources.yaml
var defaultSourcesYAML []byte

type Config struct {
	Sources []SourceConfig `yaml:"sources"`
}

type SourceConfig struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	URL      string   `yaml:"url"`
	Disabled bool     `yaml:"disabled"`
	Venues   []string `yaml:"venues"`

	// document sources only
	Venue           string   `yaml:"venue"`
	Section         string   `yaml:"section"`
	Headings        []string `yaml:"headings"`
	MaxItems        int      `yaml:"max_items"`
	PriceTier       string   `yaml:"price_tier"`
	MinBytes        int64    `yaml:"min_bytes"`
	BrowserFallback bool     `yaml:"browser_fallback"`
	Archive         bool     `yaml:"archive"`
}

// LoadConfig reads the sources file at path, or the embedded default when
// path is empty.
func LoadConfig(path string) (*Config, error) {
	raw := defaultSourcesYAML
	if p := strings.TrimSpace(path); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read sources config: %w", err)
		}
		raw = b
	}
	return ParseConfig(raw)
}

func ParseConfig(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse sources config: %w", err)
	}
	seen := map[string]bool{}
	for i := range cfg.Sources {
		sc := &cfg.Sources[i]
		sc.Name = strings.TrimSpace(sc.Name)
		sc.Kind = strings.ToLower(strings.TrimSpace(sc.Kind))
		if sc.Name == "" {
			return nil, fmt.Errorf("sources[%d]: name required", i)
		}
		if seen[sc.Name] {
			return nil, fmt.Errorf("sources[%d]: duplicate name %q", i, sc.Name)
		}
		seen[sc.Name] = true
		if strings.TrimSpace(sc.URL) == "" {
			return nil, fmt.Errorf("source %s: url required", sc.Name)
		}
		switch sc.Kind {
		case KindFeed:
		case KindDocument:
			if strings.TrimSpace(sc.Venue) == "" {
				return nil, fmt.Errorf("source %s: venue required for document sources", sc.Name)
			}
			if sc.PriceTier == "" {
				sc.PriceTier = string(menu.TierStudent)
			}
			if _, ok := menu.ParseTier(sc.PriceTier); !ok {
				return nil, fmt.Errorf("source %s: unknown price tier %q", sc.Name, sc.PriceTier)
			}
			if sc.MinBytes <= 0 {
				sc.MinBytes = defaultMinBytes
			}
		default:
			return nil, fmt.Errorf("source %s: unknown kind %q", sc.Name, sc.Kind)
		}
	}
	return &cfg, nil
}

func (c *Config) Enabled() []SourceConfig {
	out := make([]SourceConfig, 0, len(c.Sources))
	for _, sc := range c.Sources {
		if !sc.Disabled {
			out = append(out, sc)
		}
	}
	return out
}
