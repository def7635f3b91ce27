package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for boardwatch.
type Config struct {
	PollingInterval time.Duration
	Board           BoardConfig
	Searches        []SearchConfig
	Browser         BrowserConfig
	LLM             LLMConfig
	Store           StoreConfig
	Notification    NotificationConfig
	RateLimit       RateLimitConfig
	Concurrency     int
}

// BoardConfig selects the job board keyword searches run against.
type BoardConfig struct {
	BaseURL string
}

// SearchConfig describes one scheduled search.
type SearchConfig struct {
	Name     string
	Keywords string
	Location string
	URL      string // overrides the board search URL
	Filter   string // natural-language criterion
	Limit    int
	Enabled  bool
}

// BrowserConfig controls how board pages are fetched.
type BrowserConfig struct {
	Engine        string // "playwright" or "http"
	Headless      bool
	Timeout       time.Duration // per fetch
	Settle        time.Duration // wait after load for client-rendered results
	ScreenshotDir string        // empty disables screenshots
	Retries       int
	RetryDelay    time.Duration
}

// LLMConfig configures the OpenAI-compatible completion endpoint.
type LLMConfig struct {
	BaseURL         string
	Model           string
	APIKey          string // expanded from env var by Load
	Timeout         time.Duration
	Temperature     float64
	MaxContentChars int
	ExtractRetries  int
	Summary         bool // write an LLM summary of new jobs
}

// StoreConfig selects the job store backend.
type StoreConfig struct {
	Type string // "json" or "sqlite"
	Path string
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type     string // "log", "email", "slack" or "telegram"
	Timeout  time.Duration
	Email    EmailConfig
	Slack    SlackConfig
	Telegram TelegramConfig
}

type EmailConfig struct {
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	From     string
	To       []string
}

type SlackConfig struct {
	WebhookURL string
}

type TelegramConfig struct {
	Token       string
	ChatID      int64
	APIEndpoint string // Bot API endpoint format for self-hosted servers
}

// RateLimitConfig bounds requests per board host.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

const (
	defaultBoardURL   = "https://www.indeed.com"
	defaultLLMBaseURL = "https://api.groq.com/openai/v1"
	defaultLLMModel   = "llama-3.3-70b-versatile"
	defaultStorePath  = "data/jobs.json"
	defaultSQLitePath = "data/jobs.db"
)

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	PollingInterval string          `yaml:"polling_interval"`
	Board           rawBoard        `yaml:"board"`
	Searches        []rawSearch     `yaml:"searches"`
	Browser         rawBrowser      `yaml:"browser"`
	LLM             rawLLM          `yaml:"llm"`
	Store           rawStore        `yaml:"store"`
	Notification    rawNotification `yaml:"notification"`
	RateLimit       rawRateLimit    `yaml:"rate_limit"`
	Concurrency     int             `yaml:"concurrency"`
}

type rawBoard struct {
	BaseURL string `yaml:"base_url"`
}

type rawSearch struct {
	Name     string `yaml:"name"`
	Keywords string `yaml:"keywords"`
	Location string `yaml:"location"`
	URL      string `yaml:"url"`
	Filter   string `yaml:"filter"`
	Limit    int    `yaml:"limit"`
	Enabled  *bool  `yaml:"enabled"`
}

type rawBrowser struct {
	Engine        string `yaml:"engine"`
	Headless      *bool  `yaml:"headless"`
	Timeout       string `yaml:"timeout"`
	Settle        string `yaml:"settle"`
	ScreenshotDir string `yaml:"screenshot_dir"`
	Retries       *int   `yaml:"retries"`
	RetryDelay    string `yaml:"retry_delay"`
}

type rawLLM struct {
	BaseURL         string   `yaml:"base_url"`
	Model           string   `yaml:"model"`
	APIKey          string   `yaml:"api_key"`
	Timeout         string   `yaml:"timeout"`
	Temperature     *float64 `yaml:"temperature"`
	MaxContentChars int      `yaml:"max_content_chars"`
	ExtractRetries  *int     `yaml:"extract_retries"`
	Summary         *bool    `yaml:"summary"`
}

type rawStore struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

type rawNotification struct {
	Type    string `yaml:"type"`
	Timeout string `yaml:"timeout"`
	Email   struct {
		SMTPHost string `yaml:"smtp_host"`
		SMTPPort string `yaml:"smtp_port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
		To       string `yaml:"to"` // comma-separated
	} `yaml:"email"`
	Slack struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"slack"`
	Telegram struct {
		Token       string `yaml:"token"`
		ChatID      string `yaml:"chat_id"`
		APIEndpoint string `yaml:"api_endpoint"`
	} `yaml:"telegram"`
}

type rawRateLimit struct {
	RequestsPerSecond *float64 `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
// A .env file next to the config is loaded first; variables already set in the
// environment win.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := godotenv.Load(filepath.Join(filepath.Dir(path), ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg, err := fromRaw(raw)
	if err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseDuration(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, value, err)
	}
	return d, nil
}

func fromRaw(raw rawConfig) (*Config, error) {
	interval, err := parseDuration("polling_interval", raw.PollingInterval, time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		PollingInterval: interval,
		Board:           BoardConfig{BaseURL: strings.TrimSuffix(raw.Board.BaseURL, "/")},
		Concurrency:     raw.Concurrency,
	}
	if cfg.Board.BaseURL == "" {
		cfg.Board.BaseURL = defaultBoardURL
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}

	for i, s := range raw.Searches {
		sc := SearchConfig{
			Name:     s.Name,
			Keywords: strings.TrimSpace(s.Keywords),
			Location: strings.TrimSpace(s.Location),
			URL:      strings.TrimSpace(s.URL),
			Filter:   strings.TrimSpace(s.Filter),
			Limit:    s.Limit,
			Enabled:  s.Enabled == nil || *s.Enabled,
		}
		if sc.Name == "" {
			sc.Name = fmt.Sprintf("search-%d", i+1)
			if sc.Keywords != "" {
				sc.Name = sc.Keywords
			}
		}
		cfg.Searches = append(cfg.Searches, sc)
	}

	// Browser
	b := BrowserConfig{
		Engine:        strings.ToLower(raw.Browser.Engine),
		Headless:      raw.Browser.Headless == nil || *raw.Browser.Headless,
		ScreenshotDir: raw.Browser.ScreenshotDir,
		Retries:       2,
	}
	if b.Engine == "" {
		b.Engine = "playwright"
	}
	if raw.Browser.Retries != nil {
		b.Retries = *raw.Browser.Retries
	}
	if b.Timeout, err = parseDuration("browser.timeout", raw.Browser.Timeout, 30*time.Second); err != nil {
		return nil, err
	}
	if b.Settle, err = parseDuration("browser.settle", raw.Browser.Settle, 3*time.Second); err != nil {
		return nil, err
	}
	if b.RetryDelay, err = parseDuration("browser.retry_delay", raw.Browser.RetryDelay, 2*time.Second); err != nil {
		return nil, err
	}
	cfg.Browser = b

	// LLM
	l := LLMConfig{
		BaseURL:         strings.TrimSuffix(raw.LLM.BaseURL, "/"),
		Model:           raw.LLM.Model,
		APIKey:          raw.LLM.APIKey,
		Temperature:     0.1,
		MaxContentChars: raw.LLM.MaxContentChars,
		ExtractRetries:  -1, // extractor default
		Summary:         raw.LLM.Summary == nil || *raw.LLM.Summary,
	}
	if l.BaseURL == "" {
		l.BaseURL = defaultLLMBaseURL
	}
	if l.Model == "" {
		l.Model = defaultLLMModel
	}
	if l.APIKey == "" {
		l.APIKey = os.Getenv("GROQ_API_KEY")
	}
	if raw.LLM.Temperature != nil {
		l.Temperature = *raw.LLM.Temperature
	}
	if raw.LLM.ExtractRetries != nil {
		l.ExtractRetries = *raw.LLM.ExtractRetries
	}
	if l.Timeout, err = parseDuration("llm.timeout", raw.LLM.Timeout, 60*time.Second); err != nil {
		return nil, err
	}
	cfg.LLM = l

	// Store
	cfg.Store = StoreConfig{Type: strings.ToLower(raw.Store.Type), Path: raw.Store.Path}
	if cfg.Store.Type == "" {
		cfg.Store.Type = "json"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = defaultStorePath
		if cfg.Store.Type == "sqlite" {
			cfg.Store.Path = defaultSQLitePath
		}
	}

	// Notification
	n := NotificationConfig{Type: strings.ToLower(raw.Notification.Type)}
	if n.Type == "" {
		n.Type = "log"
	}
	if n.Timeout, err = parseDuration("notification.timeout", raw.Notification.Timeout, 30*time.Second); err != nil {
		return nil, err
	}
	re := raw.Notification.Email
	n.Email = EmailConfig{
		SMTPHost: re.SMTPHost,
		SMTPPort: 587,
		Username: re.Username,
		Password: re.Password,
		From:     re.From,
		To:       splitList(re.To),
	}
	if n.Email.SMTPHost == "" {
		n.Email.SMTPHost = "smtp.gmail.com"
	}
	if re.SMTPPort != "" {
		port, err := strconv.Atoi(re.SMTPPort)
		if err != nil {
			return nil, fmt.Errorf("parse notification.email.smtp_port %q: %w", re.SMTPPort, err)
		}
		n.Email.SMTPPort = port
	}
	n.Slack.WebhookURL = raw.Notification.Slack.WebhookURL
	n.Telegram.Token = raw.Notification.Telegram.Token
	n.Telegram.APIEndpoint = raw.Notification.Telegram.APIEndpoint
	if id := strings.TrimSpace(raw.Notification.Telegram.ChatID); id != "" {
		chatID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse notification.telegram.chat_id %q: %w", id, err)
		}
		n.Telegram.ChatID = chatID
	}
	cfg.Notification = n

	// Rate limit
	cfg.RateLimit = RateLimitConfig{RequestsPerSecond: 0.2, Burst: raw.RateLimit.Burst}
	if raw.RateLimit.RequestsPerSecond != nil {
		cfg.RateLimit.RequestsPerSecond = *raw.RateLimit.RequestsPerSecond
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 1
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EnabledSearches returns the searches with enabled set (the default).
func (c *Config) EnabledSearches() []SearchConfig {
	var out []SearchConfig
	for _, s := range c.Searches {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// RequireLLM reports whether the LLM settings are complete enough to call the model.
func (c *Config) RequireLLM() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (set it in the config or GROQ_API_KEY)")
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.PollingInterval <= 0 {
		return fmt.Errorf("polling_interval must be positive, got %v", cfg.PollingInterval)
	}

	for _, s := range cfg.Searches {
		if s.Keywords == "" && s.URL == "" {
			return fmt.Errorf("search %q needs keywords or url", s.Name)
		}
		if s.Limit < 0 {
			return fmt.Errorf("search %q: limit must not be negative", s.Name)
		}
	}

	switch cfg.Browser.Engine {
	case "playwright", "http":
	default:
		return fmt.Errorf("browser.engine must be \"playwright\" or \"http\", got %q", cfg.Browser.Engine)
	}
	if cfg.Browser.Timeout <= 0 {
		return fmt.Errorf("browser.timeout must be positive, got %v", cfg.Browser.Timeout)
	}
	if cfg.Browser.Retries < 0 {
		return fmt.Errorf("browser.retries must not be negative")
	}

	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2, got %v", cfg.LLM.Temperature)
	}
	if cfg.LLM.ExtractRetries > 5 {
		return fmt.Errorf("llm.extract_retries must be at most 5, got %d", cfg.LLM.ExtractRetries)
	}

	switch cfg.Store.Type {
	case "json", "sqlite":
	default:
		return fmt.Errorf("store.type must be \"json\" or \"sqlite\", got %q", cfg.Store.Type)
	}

	n := cfg.Notification
	switch n.Type {
	case "log":
	case "email":
		if n.Email.Username == "" || n.Email.Password == "" {
			return fmt.Errorf("notification.email.username and password are required when type is \"email\"")
		}
		if len(n.Email.To) == 0 {
			return fmt.Errorf("notification.email.to is required when type is \"email\"")
		}
	case "slack":
		if n.Slack.WebhookURL == "" {
			return fmt.Errorf("notification.slack.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(n.Slack.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.slack.webhook_url must start with https://hooks.slack.com/")
		}
	case "telegram":
		if n.Telegram.Token == "" || n.Telegram.ChatID == 0 {
			return fmt.Errorf("notification.telegram.token and chat_id are required when type is \"telegram\"")
		}
	default:
		return fmt.Errorf("notification.type must be one of log, email, slack, telegram, got %q", n.Type)
	}

	if cfg.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit.requests_per_second must not be negative")
	}

	return nil
}
