package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"daybrief/internal/middleware"
)

// SourceConfig declares one data source. A source is backed by either an
// HTTP endpoint (url) or a local command; with neither set it stays
// configured but not initialized.
type SourceConfig struct {
	Name           string   `yaml:"name"`
	URL            string   `yaml:"url"`
	AuthToken      string   `yaml:"authToken"`
	Command        string   `yaml:"command"`
	Args           []string `yaml:"args"`
	TimeoutSeconds int      `yaml:"timeoutSeconds"`
}

// AnalyzerConfig routes one analyzer to its source and sets its base cost
type AnalyzerConfig struct {
	Name     string `yaml:"name"`
	Source   string `yaml:"source"`
	BaseCost int    `yaml:"baseCost"`
}

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Auth struct {
		APIKeys map[string]string `yaml:"apiKeys"` // client name -> key
	} `yaml:"auth"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	Budget struct {
		DailyLimit      int    `yaml:"dailyLimit"`
		HourlyLimit     int    `yaml:"hourlyLimit"`
		PerRequestLimit int    `yaml:"perRequestLimit"`
		StatePath       string `yaml:"statePath"`
		UsagePath       string `yaml:"usagePath"`
		UsageKeep       int    `yaml:"usageKeep"`
	} `yaml:"budget"`

	Errors struct {
		LogPath         string `yaml:"logPath"`
		Keep            int    `yaml:"keep"`
		MaxRecent       int    `yaml:"maxRecent"`
		CooldownMinutes int    `yaml:"cooldownMinutes"`
		WebhookURL      string `yaml:"webhookURL"`
		WebhookToken    string `yaml:"webhookToken"`
	} `yaml:"errors"`

	Pipeline struct {
		CollectTimeoutSeconds int `yaml:"collectTimeoutSeconds"`
		AnalyzeTimeoutSeconds int `yaml:"analyzeTimeoutSeconds"`
		HealthTimeoutSeconds  int `yaml:"healthTimeoutSeconds"`
		DefaultWindowHours    int `yaml:"defaultWindowHours"`
		CoordinatorBaseCost   int `yaml:"coordinatorBaseCost"`
	} `yaml:"pipeline"`

	Context map[string]any `yaml:"context"` // shared read-only analyzer context

	Sources   []SourceConfig   `yaml:"sources"`
	Analyzers []AnalyzerConfig `yaml:"analyzers"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres | ""
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`
}

// Load reads the YAML config file, applies environment overlays for
// secrets, fills defaults and validates
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default builds a config without a file, from defaults plus environment
func Default() (*Config, error) {
	var cfg Config
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays secrets that should not live in the config file
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		c.Minio.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		c.Minio.SecretKey = v
	}
	if v := os.Getenv("NOTIFY_WEBHOOK_TOKEN"); v != "" {
		c.Errors.WebhookToken = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.Budget.DailyLimit == 0 {
		c.Budget.DailyLimit = 10000
	}
	if c.Budget.HourlyLimit == 0 {
		c.Budget.HourlyLimit = 2000
	}
	if c.Budget.PerRequestLimit == 0 {
		c.Budget.PerRequestLimit = 1000
	}
	if c.Budget.StatePath == "" {
		c.Budget.StatePath = "data/budget.json"
	}
	if c.Budget.UsagePath == "" {
		c.Budget.UsagePath = "data/usage.json"
	}
	if c.Budget.UsageKeep == 0 {
		c.Budget.UsageKeep = 10000
	}
	if c.Errors.LogPath == "" {
		c.Errors.LogPath = "data/errors.json"
	}
	if c.Errors.Keep == 0 {
		c.Errors.Keep = 1000
	}
	if c.Errors.MaxRecent == 0 {
		c.Errors.MaxRecent = 100
	}
	if c.Errors.CooldownMinutes == 0 {
		c.Errors.CooldownMinutes = 30
	}
	if c.Pipeline.CollectTimeoutSeconds == 0 {
		c.Pipeline.CollectTimeoutSeconds = 30
	}
	if c.Pipeline.AnalyzeTimeoutSeconds == 0 {
		c.Pipeline.AnalyzeTimeoutSeconds = 60
	}
	if c.Pipeline.HealthTimeoutSeconds == 0 {
		c.Pipeline.HealthTimeoutSeconds = 10
	}
	if c.Pipeline.DefaultWindowHours == 0 {
		c.Pipeline.DefaultWindowHours = 24
	}
	if c.Pipeline.CoordinatorBaseCost == 0 {
		c.Pipeline.CoordinatorBaseCost = 1200
	}
	if len(c.Sources) == 0 {
		for _, name := range []string{"news", "calendar", "inbox", "articles", "weather"} {
			c.Sources = append(c.Sources, SourceConfig{Name: name})
		}
	}
	if len(c.Analyzers) == 0 {
		c.Analyzers = []AnalyzerConfig{
			{Name: "news", Source: "news", BaseCost: 800},
			{Name: "calendar", Source: "calendar", BaseCost: 400},
			{Name: "tech", Source: "articles", BaseCost: 600},
			{Name: "newsletter", Source: "inbox", BaseCost: 700},
		}
	}
}

// validate rejects configuration errors before any stage starts
func (c *Config) validate() error {
	if c.Budget.PerRequestLimit > c.Budget.HourlyLimit {
		return fmt.Errorf("budget: perRequestLimit (%d) exceeds hourlyLimit (%d)", c.Budget.PerRequestLimit, c.Budget.HourlyLimit)
	}
	if c.Budget.HourlyLimit > c.Budget.DailyLimit {
		return fmt.Errorf("budget: hourlyLimit (%d) exceeds dailyLimit (%d)", c.Budget.HourlyLimit, c.Budget.DailyLimit)
	}
	names := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("sources: entry without a name")
		}
		if err := middleware.ValidateSourceName(s.Name); err != nil {
			return fmt.Errorf("sources: %q: %w", s.Name, err)
		}
		if names[s.Name] {
			return fmt.Errorf("sources: duplicate name %q", s.Name)
		}
		if s.URL != "" && s.Command != "" {
			return fmt.Errorf("sources: %q sets both url and command", s.Name)
		}
		if s.URL != "" {
			if err := middleware.ValidateFeedURL(s.URL); err != nil {
				return fmt.Errorf("sources: %q: %w", s.Name, err)
			}
		}
		names[s.Name] = true
	}
	for _, a := range c.Analyzers {
		if a.Name == "" {
			return fmt.Errorf("analyzers: entry without a name")
		}
		if !names[a.Source] {
			return fmt.Errorf("analyzers: %q routed to unknown source %q", a.Name, a.Source)
		}
		if a.BaseCost <= 0 {
			return fmt.Errorf("analyzers: %q has non-positive baseCost", a.Name)
		}
	}
	switch c.Database.Driver {
	case "", "mysql", "postgres":
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}
	return nil
}

// CollectTimeout per source fetch
func (c *Config) CollectTimeout() time.Duration {
	return time.Duration(c.Pipeline.CollectTimeoutSeconds) * time.Second
}

// AnalyzeTimeout per analyzer invocation
func (c *Config) AnalyzeTimeout() time.Duration {
	return time.Duration(c.Pipeline.AnalyzeTimeoutSeconds) * time.Second
}

// HealthTimeout per health probe
func (c *Config) HealthTimeout() time.Duration {
	return time.Duration(c.Pipeline.HealthTimeoutSeconds) * time.Second
}

// DefaultWindow is the look-back window when the caller does not set one
func (c *Config) DefaultWindow() time.Duration {
	return time.Duration(c.Pipeline.DefaultWindowHours) * time.Hour
}

// MySQLDSN builds the MySQL connection string
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds the Postgres connection string
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}
