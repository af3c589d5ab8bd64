package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/amishk599/autoapply/internal/model"
)

const minimalSites = `
sites:
  - name: acme
    kind: greenhouse
    board_token: "acme"
    enabled: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
store:
  path: /tmp/jobs.db
sites:
  - name: acme
    kind: greenhouse
    board_token: "acme"
    enabled: true
  - name: initech
    kind: lever
    board_token: initech
    enabled: false
scrape:
  query: golang
  max_pages: 3
  delay_min: 1s
  delay_max: 4s
  schedule: "0 */4 * * *"
rate_limit:
  requests_per_second: 2
  burst: 3
  site_overrides:
    acme: 0.25
budget:
  per_minute_calls: 5
  per_day_calls: 50
  daily_spend_usd: 1.5
  cache_hits_consume_quota: true
ai:
  enabled: true
  model: gpt-4o-mini
  api_key: sk-test
  timeout: 45s
  max_tokens:
    resume_tailor: 3000
filters:
  title_keywords:
    - engineer
  locations:
    - Remote
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Path != "/tmp/jobs.db" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if len(cfg.Sites) != 2 || len(cfg.EnabledSites()) != 1 || cfg.EnabledSites()[0].Name != "acme" {
		t.Errorf("Sites = %+v", cfg.Sites)
	}
	if cfg.Scrape.MaxPages != 3 || cfg.Scrape.DelayMin != time.Second || cfg.Scrape.DelayMax != 4*time.Second {
		t.Errorf("Scrape = %+v", cfg.Scrape)
	}
	if cfg.Scrape.MaxRetries != 3 {
		t.Errorf("Scrape.MaxRetries = %d, want default 3", cfg.Scrape.MaxRetries)
	}
	if got := cfg.RateLimit.IntervalFor("acme"); got != 4*time.Second {
		t.Errorf("IntervalFor(acme) = %v, want 4s", got)
	}
	if got := cfg.RateLimit.IntervalFor("initech"); got != 500*time.Millisecond {
		t.Errorf("IntervalFor(initech) = %v, want 500ms", got)
	}
	if !cfg.Budget.CacheHitsConsumeQuota || cfg.Budget.PerDayCalls != 50 || cfg.Budget.AlertThreshold != 0.8 {
		t.Errorf("Budget = %+v", cfg.Budget)
	}
	if cfg.AI.BaseURL != defaultOpenAIBaseURL || cfg.AI.Timeout != 45*time.Second {
		t.Errorf("AI = %+v", cfg.AI)
	}
	if cfg.AI.MaxTokens[model.TaskResumeTailor] != 3000 {
		t.Errorf("MaxTokens = %v", cfg.AI.MaxTokens)
	}
	if len(cfg.Filters.TitleKeywords) != 1 || cfg.Filters.TitleKeywords[0] != "engineer" {
		t.Errorf("TitleKeywords = %v", cfg.Filters.TitleKeywords)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalSites))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Path != "autoapply.db" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Scrape.MaxPages != 5 || cfg.Scrape.Schedule != "@every 6h" {
		t.Errorf("Scrape = %+v", cfg.Scrape)
	}
	if cfg.Cache.Backend != "sqlite" || cfg.Notification.Type != "log" {
		t.Errorf("Cache = %+v, Notification = %+v", cfg.Cache, cfg.Notification)
	}
	if cfg.Budget.CacheHitsConsumeQuota {
		t.Error("cache hits should be free by default")
	}
	if cfg.Budget.PerDayCalls == 0 || cfg.Budget.PerMinuteCalls == 0 {
		t.Errorf("Budget = %+v, want non-zero default ceilings", cfg.Budget)
	}
	if cfg.RateLimit.Burst != 1 || cfg.RateLimit.RequestsPerSecond != 0.5 {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("AUTOAPPLY_TEST_KEY", "sk-from-env")
	cfg, err := Load(writeConfig(t, minimalSites+`
ai:
  enabled: true
  model: gpt-4o-mini
  api_key: ${AUTOAPPLY_TEST_KEY}
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AI.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q", cfg.AI.APIKey)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("Load: expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "sites: [broken")); err == nil {
		t.Fatal("Load: expected error for invalid YAML")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "no enabled sites",
			content: "sites:\n  - name: acme\n    kind: greenhouse\n    board_token: acme\n",
			want:    "at least one site",
		},
		{
			name:    "unknown kind",
			content: "sites:\n  - name: acme\n    kind: monster\n    enabled: true\n",
			want:    "unknown kind",
		},
		{
			name:    "duplicate site",
			content: minimalSites + "  - name: acme\n    kind: lever\n    board_token: acme\n",
			want:    "duplicate",
		},
		{
			name:    "htmlboard without query placeholder",
			content: "sites:\n  - name: board\n    kind: htmlboard\n    enabled: true\n    search_url: https://jobs.example.com/search\n",
			want:    "{query}",
		},
		{
			name:    "bad duration",
			content: minimalSites + "scrape:\n  delay_min: soon\n",
			want:    "scrape.delay_min",
		},
		{
			name:    "delay min above max",
			content: minimalSites + "scrape:\n  delay_min: 10s\n  delay_max: 1s\n",
			want:    "delay_min",
		},
		{
			name:    "bad schedule",
			content: minimalSites + "scrape:\n  schedule: \"every now and then\"\n",
			want:    "scrape.schedule",
		},
		{
			name:    "unknown scrape site",
			content: minimalSites + "scrape:\n  sites: [globex]\n",
			want:    "unknown site",
		},
		{
			name:    "redis without url",
			content: minimalSites + "cache:\n  backend: redis\n",
			want:    "redis_url",
		},
		{
			name:    "slack without webhook",
			content: minimalSites + "notification:\n  type: slack\n",
			want:    "webhook_url",
		},
		{
			name:    "slack webhook on wrong host",
			content: minimalSites + "notification:\n  type: slack\n  webhook_url: https://example.com/hook\n",
			want:    "hooks.slack.com",
		},
		{
			name:    "ai without key",
			content: minimalSites + "ai:\n  enabled: true\n  model: gpt-4o-mini\n",
			want:    "api_key",
		},
		{
			name:    "unknown max_tokens task",
			content: minimalSites + "ai:\n  max_tokens:\n    haiku: 10\n",
			want:    "max_tokens",
		},
		{
			name:    "negative budget",
			content: minimalSites + "budget:\n  per_day_calls: -1\n",
			want:    "must not be negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load: expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(configEnv, "")
	if got := ResolvePath(""); got != defaultConfigPath {
		t.Errorf("ResolvePath() = %q, want %q", got, defaultConfigPath)
	}
	t.Setenv(configEnv, "/etc/autoapply.yaml")
	if got := ResolvePath(""); got != "/etc/autoapply.yaml" {
		t.Errorf("ResolvePath() = %q, want env value", got)
	}
	if got := ResolvePath("mine.yaml"); got != "mine.yaml" {
		t.Errorf("ResolvePath(flag) = %q, want flag value", got)
	}
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "profile.yaml")
	if err := os.WriteFile(good, []byte(`
name: Sam Doe
skills: [go, sql]
experience:
  - id: acme
    title: Backend Engineer
    company: Acme
    bullets:
      - id: b1
        text: Built the billing service
      - id: b2
        text: Cut p99 latency in half
`), 0644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadProfile(good)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	ids := p.BulletIDs()
	if len(ids) != 2 || !ids["b1"] || !ids["b2"] {
		t.Errorf("BulletIDs = %v", ids)
	}

	dup := filepath.Join(dir, "dup.yaml")
	if err := os.WriteFile(dup, []byte(`
name: Sam Doe
experience:
  - id: a
    bullets:
      - id: b1
        text: one
  - id: b
    bullets:
      - id: b1
        text: two
`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProfile(dup); err == nil || !strings.Contains(err.Error(), "duplicate bullet id") {
		t.Errorf("LoadProfile(dup) error = %v, want duplicate bullet id", err)
	}

	if _, err := LoadProfile(""); err == nil {
		t.Error("LoadProfile(\"\") should fail")
	}
}
