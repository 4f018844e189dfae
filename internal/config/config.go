package config

import (
	"errors"
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

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MSUConfig carries the gateway credentials and endpoints. The gateway client
// is constructed from this struct and injected; nothing reads these from the
// environment at call time.
type MSUConfig struct {
	APIURL           string `yaml:"api_url"`
	HPPURL           string `yaml:"hpp_url"`
	MerchantName     string `yaml:"merchant_name"`
	MerchantUser     string `yaml:"merchant_user"`
	MerchantPassword string `yaml:"merchant_password"`
	ReturnURL        string `yaml:"return_url"`
}

// FrontendConfig holds the pages the callback handler redirects the browser to.
type FrontendConfig struct {
	SuccessURL string `yaml:"success_url"`
	ResultURL  string `yaml:"result_url"`
}

type SchedulerConfig struct {
	RenewalInterval    time.Duration `yaml:"renewal_interval"`
	CleanupInterval    time.Duration `yaml:"cleanup_interval"`
	InterChargeDelay   time.Duration `yaml:"inter_charge_delay"`
	RenewalLockTTL     time.Duration `yaml:"renewal_lock_ttl"`
	ExpiryWarnWindow   time.Duration `yaml:"expiry_warn_window"`
	DisableRenewalJob  bool          `yaml:"disable_renewal_job"`
	DisableCleanupJob  bool          `yaml:"disable_cleanup_job"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	From     string `yaml:"from"`
	Password string `yaml:"password"`
}

type SecurityConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	EncryptionKey string `yaml:"encryption_key"` // 16/24/32 bytes, card tokens at rest
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	MSU       MSUConfig       `yaml:"msu"`
	Frontend  FrontendConfig  `yaml:"frontend"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Security  SecurityConfig  `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Scheduler.RenewalInterval <= 0 {
		cfg.Scheduler.RenewalInterval = 24 * time.Hour
	}
	if cfg.Scheduler.CleanupInterval <= 0 {
		cfg.Scheduler.CleanupInterval = 24 * time.Hour
	}
	if cfg.Scheduler.InterChargeDelay <= 0 {
		cfg.Scheduler.InterChargeDelay = 2 * time.Second
	}
	if cfg.Scheduler.RenewalLockTTL <= 0 {
		cfg.Scheduler.RenewalLockTTL = time.Hour
	}
	if cfg.Scheduler.ExpiryWarnWindow <= 0 {
		cfg.Scheduler.ExpiryWarnWindow = 72 * time.Hour
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.MSU.APIURL == "" || cfg.MSU.HPPURL == "" {
		return nil, errors.New("msu.api_url and msu.hpp_url are required")
	}
	if cfg.MSU.MerchantName == "" || cfg.MSU.MerchantUser == "" || cfg.MSU.MerchantPassword == "" {
		return nil, errors.New("msu merchant credentials are required")
	}
	if cfg.Frontend.SuccessURL == "" || cfg.Frontend.ResultURL == "" {
		return nil, errors.New("frontend.success_url and frontend.result_url are required")
	}
	if cfg.Security.JWTSecret == "" {
		return nil, errors.New("security.jwt_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
