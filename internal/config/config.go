package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // empty disables the sweep lock and rate limiting
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type APIConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
	// AdminKey guards /admin/v1; empty leaves the admin routes unmounted.
	AdminKey string `yaml:"admin_key"`
	// PurchaseLimit purchases per RateWindow per user.
	PurchaseLimit int           `yaml:"purchase_limit"`
	RateWindow    time.Duration `yaml:"rate_window"`
}

type BotConfig struct {
	Token string `yaml:"token"` // empty runs with the noop sink
	// PresenceChatID is the chat whose description shows the subscriber count.
	PresenceChatID int64         `yaml:"presence_chat_id"`
	MessageDelay   time.Duration `yaml:"message_delay"`
	Debug          bool          `yaml:"debug"`
	// Language selects the notification templates (en, fa).
	Language string `yaml:"language"`
}

type CatalogConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

type SchedulerConfig struct {
	Interval      time.Duration `yaml:"interval"`
	RecoveryDelay time.Duration `yaml:"recovery_delay"`
	WarningWindow time.Duration `yaml:"warning_window"`
	TxRetention   time.Duration `yaml:"tx_retention"`
	RunTimeout    time.Duration `yaml:"run_timeout"`
}

type OutboxConfig struct {
	Workers      int           `yaml:"workers"`
	MaxPending   int           `yaml:"max_pending"`
	MaxAttempts  int           `yaml:"max_attempts"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	RecordGrace  time.Duration `yaml:"record_grace"`
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	API       APIConfig       `yaml:"api"`
	Bot       BotConfig       `yaml:"bot"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Outbox    OutboxConfig    `yaml:"outbox"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig parses -config and -dev from the command line and loads the file.
func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode (in-memory store, verbose errors)")
	flag.Parse()
	return Load(configPath, dev)
}

// Load reads the YAML file at path. ${VAR} references are expanded from the
// environment before parsing.
func Load(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	c.Redis.LockTTL = orDefault(c.Redis.LockTTL, 10*time.Minute)

	if c.API.Port <= 0 {
		c.API.Port = 8080
	}
	if c.API.PurchaseLimit <= 0 {
		c.API.PurchaseLimit = 10
	}
	c.API.RateWindow = orDefault(c.API.RateWindow, time.Minute)
	if c.API.JWTSecret == "" && c.Runtime.Dev {
		c.API.JWTSecret = "dev-insecure-secret"
	}
	c.Bot.MessageDelay = orDefault(c.Bot.MessageDelay, 50*time.Millisecond)
	if c.Bot.Language == "" {
		c.Bot.Language = "en"
	}

	if c.Catalog.Path == "" {
		c.Catalog.Path = "plans.yaml"
	}

	s := &c.Scheduler
	s.Interval = orDefault(s.Interval, 6*time.Hour)
	s.RecoveryDelay = orDefault(s.RecoveryDelay, 30*time.Second)
	s.WarningWindow = orDefault(s.WarningWindow, 24*time.Hour)
	s.TxRetention = orDefault(s.TxRetention, time.Hour)
	s.RunTimeout = orDefault(s.RunTimeout, 5*time.Minute)

	o := &c.Outbox
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.MaxPending <= 0 {
		o.MaxPending = 10000
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	o.CallTimeout = orDefault(o.CallTimeout, 5*time.Second)
	o.RetryDelay = orDefault(o.RetryDelay, 500*time.Millisecond)
	o.RecordGrace = orDefault(o.RecordGrace, 5*time.Second)
	o.DrainTimeout = orDefault(o.DrainTimeout, 10*time.Second)
}

func (c *Config) validate() error {
	if c.Database.URL == "" && !c.Runtime.Dev {
		return errors.New("database.url is required")
	}
	if c.API.JWTSecret == "" && !c.Runtime.Dev {
		return errors.New("api.jwt_secret is required")
	}
	// a window shorter than the interval lets entitlements expire unwarned
	if c.Scheduler.WarningWindow < c.Scheduler.Interval {
		return fmt.Errorf("scheduler.warning_window %s is shorter than scheduler.interval %s", c.Scheduler.WarningWindow, c.Scheduler.Interval)
	}
	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
