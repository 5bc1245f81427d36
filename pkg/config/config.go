// Package config loads the digest settings from the environment and an
// optional YAML file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cyber-digest/pkg/classifier"
	"cyber-digest/pkg/db"
	"cyber-digest/pkg/domain"
	"cyber-digest/pkg/sites"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Environment keys
const (
	KeySender         = "EMAIL_ADDRESS_GPT"
	KeyPassword       = "EMAIL_PASSWORD_GPT"
	KeyRecipients     = "EMAIL_TO"
	KeySMTPHost       = "SMTP_HOST"
	KeySMTPPort       = "SMTP_PORT"
	KeyNVDAPIKey      = "NVD_API_KEY"
	KeyNewsAPIKey     = "NEWS_API_KEY"
	KeyNewsQuery      = "NEWS_QUERY"
	KeyStoreBackend   = "DIGEST_STORE_BACKEND"
	KeyStoreDSN       = "DIGEST_STORE_DSN"
	KeyRetentionDays  = "DIGEST_RETENTION_DAYS"
	KeyConcurrency    = "DIGEST_CONCURRENCY"
	KeyArticleWorkers = "DIGEST_ARTICLE_WORKERS"
	KeyRequestTimeout = "DIGEST_REQUEST_TIMEOUT"
	KeyMaxAttempts    = "DIGEST_MAX_ATTEMPTS"
	KeySourceDelay    = "DIGEST_SOURCE_DELAY"
	KeyMatchMode      = "DIGEST_MATCH_MODE"
	KeyMatchSummary   = "DIGEST_MATCH_SUMMARY"
	KeySchedule       = "DIGEST_SCHEDULE"
	KeyPushgatewayURL = "DIGEST_PUSHGATEWAY_URL"
	KeyLogFile        = "DIGEST_LOG_FILE"
	KeyLogLevel       = "DIGEST_LOG_LEVEL"
	KeyConfigFile     = "DIGEST_CONFIG_FILE"
)

var (
	ErrNoSources          = errors.New("config: no sources configured")
	ErrNoCategories       = errors.New("config: no categories configured")
	ErrInvalidConcurrency = errors.New("config: concurrency and article workers must be positive")
	ErrInvalidAttempts    = errors.New("config: max attempts must be positive")
	ErrInvalidRetention   = errors.New("config: retention days must not be negative")
	ErrInvalidMatchMode   = errors.New("config: match mode must be word or contains")
	ErrInvalidSchedule    = errors.New("config: invalid cron schedule")
	ErrUnknownBackend     = db.ErrUnknownBackend
)

// Config is everything one digest run needs
type Config struct {
	Sender     string
	Password   string
	Recipients []string
	SMTPHost   string
	SMTPPort   int

	NVDAPIKey  string
	NewsAPIKey string
	NewsQuery  string

	StoreBackend  db.Backend
	StoreDSN      string
	RetentionDays int

	Concurrency    int
	ArticleWorkers int
	RequestTimeout time.Duration
	MaxAttempts    int
	SourceDelay    time.Duration

	MatchMode    classifier.MatchMode
	MatchSummary bool

	Schedule       string
	PushgatewayURL string
	LogFile        string
	LogLevel       string

	Sources    []domain.Source
	Categories []domain.Category
}

// LoadOptions controls where settings come from
type LoadOptions struct {
	// EnvFile is loaded into the process environment first when it exists
	EnvFile string
}

// Load reads .env, the environment and the optional YAML file
func Load() (*Config, error) {
	return LoadWith(LoadOptions{EnvFile: ".env"})
}

// LoadWith is Load with explicit options
func LoadWith(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if path := v.GetString(KeyConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	recipients, err := ParseRecipients(v.GetString(KeyRecipients))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Sender:         strings.TrimSpace(v.GetString(KeySender)),
		Password:       v.GetString(KeyPassword),
		Recipients:     recipients,
		SMTPHost:       v.GetString(KeySMTPHost),
		SMTPPort:       v.GetInt(KeySMTPPort),
		NVDAPIKey:      v.GetString(KeyNVDAPIKey),
		NewsAPIKey:     v.GetString(KeyNewsAPIKey),
		NewsQuery:      v.GetString(KeyNewsQuery),
		StoreBackend:   db.Backend(strings.ToLower(v.GetString(KeyStoreBackend))),
		StoreDSN:       v.GetString(KeyStoreDSN),
		RetentionDays:  v.GetInt(KeyRetentionDays),
		Concurrency:    v.GetInt(KeyConcurrency),
		ArticleWorkers: v.GetInt(KeyArticleWorkers),
		RequestTimeout: v.GetDuration(KeyRequestTimeout),
		MaxAttempts:    v.GetInt(KeyMaxAttempts),
		SourceDelay:    v.GetDuration(KeySourceDelay),
		MatchMode:      classifier.MatchMode(strings.ToLower(v.GetString(KeyMatchMode))),
		MatchSummary:   v.GetBool(KeyMatchSummary),
		Schedule:       strings.TrimSpace(v.GetString(KeySchedule)),
		PushgatewayURL: v.GetString(KeyPushgatewayURL),
		LogFile:        v.GetString(KeyLogFile),
		LogLevel:       v.GetString(KeyLogLevel),
		Sources:        sites.Sources(),
		Categories:     sites.Categories(),
	}

	if err := applyFile(v, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeySMTPHost, "smtp.gmail.com")
	v.SetDefault(KeySMTPPort, 587)
	v.SetDefault(KeyNewsQuery, "cybersecurity")
	v.SetDefault(KeyStoreBackend, string(db.BackendSQLite))
	v.SetDefault(KeyStoreDSN, db.DefaultSQLitePath)
	v.SetDefault(KeyRetentionDays, 180)
	v.SetDefault(KeyConcurrency, 4)
	v.SetDefault(KeyArticleWorkers, 2)
	v.SetDefault(KeyRequestTimeout, "30s")
	v.SetDefault(KeyMaxAttempts, 5)
	v.SetDefault(KeySourceDelay, "1s")
	v.SetDefault(KeyMatchMode, string(classifier.MatchWord))
	v.SetDefault(KeyMatchSummary, false)
	v.SetDefault(KeyLogFile, "digest.log")
	v.SetDefault(KeyLogLevel, "info")
}

// applyFile replaces sources and categories from the YAML file and appends
// its global exclusions to every source
func applyFile(v *viper.Viper, cfg *Config) error {
	if v.IsSet("sources") {
		var sources []domain.Source
		if err := v.UnmarshalKey("sources", &sources); err != nil {
			return fmt.Errorf("decode sources: %w", err)
		}
		for i := range sources {
			sources[i].Exclusions = sites.WithGenericExclusions(sources[i].Exclusions)
		}
		cfg.Sources = sources
	}
	if v.IsSet("categories") {
		var categories []domain.Category
		if err := v.UnmarshalKey("categories", &categories); err != nil {
			return fmt.Errorf("decode categories: %w", err)
		}
		cfg.Categories = categories
	}
	if extra := v.GetStringSlice("exclusions"); len(extra) > 0 {
		for i := range cfg.Sources {
			cfg.Sources[i].Exclusions = append(cfg.Sources[i].Exclusions, extra...)
		}
	}
	return nil
}

// Validate checks the settings a run cannot start without. Missing mail
// credentials are not an error: delivery is skipped and logged.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return ErrNoSources
	}
	for _, s := range c.Sources {
		if s.Name == "" || s.BaseURL == "" {
			return fmt.Errorf("%w: source needs name and base_url", ErrNoSources)
		}
	}
	if len(c.Categories) == 0 {
		return ErrNoCategories
	}
	if c.Concurrency <= 0 || c.ArticleWorkers <= 0 {
		return ErrInvalidConcurrency
	}
	if c.MaxAttempts <= 0 {
		return ErrInvalidAttempts
	}
	if c.RetentionDays < 0 {
		return ErrInvalidRetention
	}
	switch c.MatchMode {
	case classifier.MatchWord, classifier.MatchContains:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMatchMode, c.MatchMode)
	}
	switch c.StoreBackend {
	case db.BackendSQLite, db.BackendPostgres, db.BackendMongo:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.StoreBackend)
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
	}
	return nil
}

// CanSend reports whether sender, credential and recipients are all set
func (c *Config) CanSend() bool {
	return c.Sender != "" && c.Password != "" && len(c.Recipients) > 0
}

// ParseRecipients accepts a comma separated list or a JSON array of addresses
func ParseRecipients(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var parts []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &parts); err != nil {
			return nil, fmt.Errorf("parse %s as JSON list: %w", KeyRecipients, err)
		}
	} else {
		parts = strings.Split(raw, ",")
	}

	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[strings.ToLower(p)]; dup {
			continue
		}
		seen[strings.ToLower(p)] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}
