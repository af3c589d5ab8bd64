package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/amishk599/autoapply/internal/model"
)

// Config is the root configuration of autoapply.
type Config struct {
	Store        StoreConfig
	Sites        []SiteConfig
	Scrape       ScrapeConfig
	RateLimit    RateLimitConfig
	Budget       BudgetConfig
	AI           AIConfig
	Cache        CacheConfig
	Notification NotificationConfig
	Candidate    CandidateConfig
	Filters      FilterConfig
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// Site kinds.
const (
	KindGreenhouse = "greenhouse"
	KindLever      = "lever"
	KindWorkday    = "workday"
	KindHTMLBoard  = "htmlboard"
)

// SiteConfig describes one source site.
type SiteConfig struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"`
	Company    string `yaml:"company"`
	BoardToken string `yaml:"board_token"` // greenhouse board token or lever slug
	BaseURL    string `yaml:"base_url"`    // workday cxs base URL
	Enabled    bool   `yaml:"enabled"`
	Render     bool   `yaml:"render"` // htmlboard: load pages in headless Chrome

	// htmlboard only
	SearchURL    string         `yaml:"search_url"` // with {query} and {page} placeholders
	LoginURL     string         `yaml:"login_url"`
	UserField    string         `yaml:"user_field"`
	PassField    string         `yaml:"pass_field"`
	RequireLogin bool           `yaml:"require_login"`
	Selectors    SelectorConfig `yaml:"selectors"`
}

type SelectorConfig struct {
	Item        string `yaml:"item"`
	Title       string `yaml:"title"`
	Company     string `yaml:"company"`
	Location    string `yaml:"location"`
	Link        string `yaml:"link"`
	Description string `yaml:"description"`
}

// ScrapeConfig bounds scraping.
type ScrapeConfig struct {
	Query          string
	Sites          []string // default site set; empty means every enabled site
	MaxPages       int
	DelayMin       time.Duration
	DelayMax       time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	Workers        int
	Schedule       string // cron expression or descriptor for `start`
}

// RateLimitConfig is one token bucket per site.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	SiteOverrides     map[string]float64 // requests per second, keyed by site name
}

// Interval returns the default token refill interval. Zero means unlimited.
func (r RateLimitConfig) Interval() time.Duration {
	return perSecond(r.RequestsPerSecond)
}

// IntervalFor returns the token refill interval for site.
func (r RateLimitConfig) IntervalFor(site string) time.Duration {
	if v, ok := r.SiteOverrides[site]; ok {
		return perSecond(v)
	}
	return r.Interval()
}

func perSecond(rps float64) time.Duration {
	if rps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / rps)
}

// Overrides returns the per-site refill intervals.
func (r RateLimitConfig) Overrides() map[string]time.Duration {
	out := make(map[string]time.Duration, len(r.SiteOverrides))
	for site := range r.SiteOverrides {
		out[site] = r.IntervalFor(site)
	}
	return out
}

// BudgetConfig sets the AI usage ceilings. Zero disables a ceiling.
type BudgetConfig struct {
	PerMinuteCalls        int     `yaml:"per_minute_calls"`
	PerDayCalls           int     `yaml:"per_day_calls"`
	DailySpendUSD         float64 `yaml:"daily_spend_usd"`
	AlertThreshold        float64 `yaml:"alert_threshold"`
	CacheHitsConsumeQuota bool    `yaml:"cache_hits_consume_quota"`
}

// AIConfig controls the LLM provider.
type AIConfig struct {
	Enabled        bool
	BaseURL        string // defaults to https://api.openai.com/v1
	Model          string // OpenAI model identifier, e.g. "gpt-4o-mini"
	APIKey         string // expanded from env var by Load
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	Pricing        map[string]PriceConfig
	MaxTokens      map[model.TaskType]int
}

type PriceConfig struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// CacheConfig picks where the fingerprint index lives. Artifacts always stay in SQLite.
type CacheConfig struct {
	Backend  string `yaml:"backend"` // "sqlite" or "redis"
	RedisURL string `yaml:"redis_url"`
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log" or "slack"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

// FilterConfig narrows which new postings are notified and the default `jobs` listing.
type FilterConfig struct {
	TitleKeywords []string `yaml:"title_keywords"`
	Locations     []string `yaml:"locations"`
}

type CandidateConfig struct {
	ProfilePath string `yaml:"profile"`
}

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultConfigPath    = "config.yaml"
	configEnv            = "AUTOAPPLY_CONFIG"
)

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	Store        StoreConfig        `yaml:"store"`
	Sites        []SiteConfig       `yaml:"sites"`
	Scrape       rawScrapeConfig    `yaml:"scrape"`
	RateLimit    rawRateLimitConfig `yaml:"rate_limit"`
	Budget       *BudgetConfig      `yaml:"budget"`
	AI           rawAIConfig        `yaml:"ai"`
	Cache        CacheConfig        `yaml:"cache"`
	Notification NotificationConfig `yaml:"notification"`
	Candidate    CandidateConfig    `yaml:"candidate"`
	Filters      FilterConfig       `yaml:"filters"`
}

type rawScrapeConfig struct {
	Query          string   `yaml:"query"`
	Sites          []string `yaml:"sites"`
	MaxPages       int      `yaml:"max_pages"`
	DelayMin       string   `yaml:"delay_min"`
	DelayMax       string   `yaml:"delay_max"`
	MaxRetries     *int     `yaml:"max_retries"`
	RetryBaseDelay string   `yaml:"retry_base_delay"`
	Workers        int      `yaml:"workers"`
	Schedule       string   `yaml:"schedule"`
}

type rawRateLimitConfig struct {
	RequestsPerSecond float64            `yaml:"requests_per_second"`
	Burst             int                `yaml:"burst"`
	SiteOverrides     map[string]float64 `yaml:"site_overrides"`
}

type rawAIConfig struct {
	Enabled        bool                   `yaml:"enabled"`
	BaseURL        string                 `yaml:"base_url"`
	Model          string                 `yaml:"model"`
	APIKey         string                 `yaml:"api_key"`
	Timeout        string                 `yaml:"timeout"`
	MaxRetries     *int                   `yaml:"max_retries"`
	RetryBaseDelay string                 `yaml:"retry_base_delay"`
	Pricing        map[string]PriceConfig `yaml:"pricing"`
	MaxTokens      map[string]int         `yaml:"max_tokens"`
}

// ResolvePath picks the config file: the flag value, then $AUTOAPPLY_CONFIG,
// then ./config.yaml.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(configEnv); env != "" {
		return env
	}
	return defaultConfigPath
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	scrape, err := raw.Scrape.convert()
	if err != nil {
		return nil, err
	}
	ai, err := raw.AI.convert()
	if err != nil {
		return nil, err
	}

	budget := BudgetConfig{
		PerMinuteCalls: 10,
		PerDayCalls:    200,
		DailySpendUSD:  5,
		AlertThreshold: 0.8,
	}
	if raw.Budget != nil {
		budget = *raw.Budget
		if budget.AlertThreshold == 0 {
			budget.AlertThreshold = 0.8
		}
	}

	rate := RateLimitConfig{
		RequestsPerSecond: raw.RateLimit.RequestsPerSecond,
		Burst:             raw.RateLimit.Burst,
		SiteOverrides:     raw.RateLimit.SiteOverrides,
	}
	if rate.RequestsPerSecond == 0 {
		rate.RequestsPerSecond = 0.5
	}
	if rate.Burst == 0 {
		rate.Burst = 1
	}

	cfg := &Config{
		Store:        raw.Store,
		Sites:        raw.Sites,
		Scrape:       scrape,
		RateLimit:    rate,
		Budget:       budget,
		AI:           ai,
		Cache:        raw.Cache,
		Notification: raw.Notification,
		Candidate:    raw.Candidate,
		Filters:      raw.Filters,
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "autoapply.db"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "sqlite"
	}
	if cfg.Notification.Type == "" {
		cfg.Notification.Type = "log"
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (r rawScrapeConfig) convert() (ScrapeConfig, error) {
	sc := ScrapeConfig{
		Query:    r.Query,
		Sites:    r.Sites,
		MaxPages: r.MaxPages,
		Workers:  r.Workers,
		Schedule: r.Schedule,
	}
	if sc.MaxPages == 0 {
		sc.MaxPages = 5
	}
	if sc.Schedule == "" {
		sc.Schedule = "@every 6h"
	}
	sc.MaxRetries = 3
	if r.MaxRetries != nil {
		sc.MaxRetries = *r.MaxRetries
	}

	var err error
	if sc.DelayMin, err = duration("scrape.delay_min", r.DelayMin, 2*time.Second); err != nil {
		return sc, err
	}
	if sc.DelayMax, err = duration("scrape.delay_max", r.DelayMax, 5*time.Second); err != nil {
		return sc, err
	}
	if sc.RetryBaseDelay, err = duration("scrape.retry_base_delay", r.RetryBaseDelay, 2*time.Second); err != nil {
		return sc, err
	}
	return sc, nil
}

func (r rawAIConfig) convert() (AIConfig, error) {
	ac := AIConfig{
		Enabled: r.Enabled,
		BaseURL: r.BaseURL,
		Model:   r.Model,
		APIKey:  r.APIKey,
		Pricing: r.Pricing,
	}
	if ac.BaseURL == "" {
		ac.BaseURL = defaultOpenAIBaseURL
	}
	ac.MaxRetries = 2
	if r.MaxRetries != nil {
		ac.MaxRetries = *r.MaxRetries
	}

	var err error
	if ac.Timeout, err = duration("ai.timeout", r.Timeout, 60*time.Second); err != nil {
		return ac, err
	}
	if ac.RetryBaseDelay, err = duration("ai.retry_base_delay", r.RetryBaseDelay, time.Second); err != nil {
		return ac, err
	}

	if len(r.MaxTokens) > 0 {
		ac.MaxTokens = make(map[model.TaskType]int, len(r.MaxTokens))
		for name, n := range r.MaxTokens {
			task, err := model.ParseTaskType(name)
			if err != nil {
				return ac, fmt.Errorf("ai.max_tokens: %w", err)
			}
			ac.MaxTokens[task] = n
		}
	}
	return ac, nil
}

func duration(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, value, err)
	}
	return d, nil
}

// EnabledSites returns the enabled site configs.
func (c *Config) EnabledSites() []SiteConfig {
	var out []SiteConfig
	for _, s := range c.Sites {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Site returns the config of the named site.
func (c *Config) Site(name string) (SiteConfig, bool) {
	for _, s := range c.Sites {
		if s.Name == name {
			return s, true
		}
	}
	return SiteConfig{}, false
}

func validate(cfg *Config) error {
	names := make(map[string]bool)
	enabled := 0
	for i, s := range cfg.Sites {
		if s.Name == "" {
			return fmt.Errorf("sites[%d]: name is required", i)
		}
		if names[s.Name] {
			return fmt.Errorf("sites: duplicate name %q", s.Name)
		}
		names[s.Name] = true
		if err := validateSite(s); err != nil {
			return fmt.Errorf("sites[%s]: %w", s.Name, err)
		}
		if s.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one site must be enabled")
	}
	for _, name := range cfg.Scrape.Sites {
		if !names[name] {
			return fmt.Errorf("scrape.sites: unknown site %q", name)
		}
	}
	for name := range cfg.RateLimit.SiteOverrides {
		if !names[name] {
			return fmt.Errorf("rate_limit.site_overrides: unknown site %q", name)
		}
	}

	if cfg.Scrape.MaxPages < 1 {
		return fmt.Errorf("scrape.max_pages must be at least 1, got %d", cfg.Scrape.MaxPages)
	}
	if cfg.Scrape.DelayMin < 0 || cfg.Scrape.DelayMax < cfg.Scrape.DelayMin {
		return fmt.Errorf("scrape.delay_min/delay_max must satisfy 0 <= min <= max, got %v/%v", cfg.Scrape.DelayMin, cfg.Scrape.DelayMax)
	}
	if cfg.Scrape.MaxRetries < 0 {
		return fmt.Errorf("scrape.max_retries must not be negative")
	}
	if _, err := cron.ParseStandard(cfg.Scrape.Schedule); err != nil {
		return fmt.Errorf("scrape.schedule %q: %w", cfg.Scrape.Schedule, err)
	}

	if cfg.RateLimit.RequestsPerSecond < 0 || cfg.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit: requests_per_second must be >= 0 and burst >= 1")
	}

	b := cfg.Budget
	if b.PerMinuteCalls < 0 || b.PerDayCalls < 0 || b.DailySpendUSD < 0 {
		return fmt.Errorf("budget ceilings must not be negative")
	}
	if b.AlertThreshold <= 0 || b.AlertThreshold > 1 {
		return fmt.Errorf("budget.alert_threshold must be in (0, 1], got %v", b.AlertThreshold)
	}

	switch cfg.Cache.Backend {
	case "sqlite":
	case "redis":
		if cfg.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required when backend is \"redis\"")
		}
	default:
		return fmt.Errorf("cache.backend must be \"sqlite\" or \"redis\", got %q", cfg.Cache.Backend)
	}

	switch cfg.Notification.Type {
	case "log":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	default:
		return fmt.Errorf("notification.type must be \"log\" or \"slack\", got %q", cfg.Notification.Type)
	}

	if cfg.AI.Enabled {
		if cfg.AI.APIKey == "" {
			return fmt.Errorf("ai.api_key is required when ai.enabled is true")
		}
		if cfg.AI.Model == "" {
			return fmt.Errorf("ai.model is required when ai.enabled is true")
		}
		if cfg.AI.MaxRetries < 0 {
			return fmt.Errorf("ai.max_retries must not be negative")
		}
	}

	return nil
}

func validateSite(s SiteConfig) error {
	switch s.Kind {
	case KindGreenhouse, KindLever:
		if s.BoardToken == "" {
			return fmt.Errorf("board_token is required for %s", s.Kind)
		}
	case KindWorkday:
		if !strings.HasPrefix(s.BaseURL, "https://") {
			return fmt.Errorf("base_url must be an https URL for workday")
		}
	case KindHTMLBoard:
		if !strings.Contains(s.SearchURL, "{query}") {
			return fmt.Errorf("search_url must contain {query}")
		}
		if s.Selectors.Item == "" || s.Selectors.Link == "" {
			return fmt.Errorf("selectors.item and selectors.link are required")
		}
		if s.RequireLogin && s.LoginURL == "" {
			return fmt.Errorf("login_url is required when require_login is set")
		}
	default:
		return fmt.Errorf("unknown kind %q (want greenhouse, lever, workday or htmlboard)", s.Kind)
	}
	return nil
}
