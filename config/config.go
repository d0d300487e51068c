package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MQConfig struct {
	URL string `yaml:"url"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// ProviderConfig holds credentials for the mail provider proxy API.
type ProviderConfig struct {
	BaseURL       string `yaml:"base_url"`
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	SigningSecret string `yaml:"signing_secret"`
	WebhookURL    string `yaml:"webhook_url"`
}

type CronConfig struct {
	Secret string `yaml:"secret"`
}

// SyncConfig carries the sync policy knobs. Durations are plain integers in
// the yaml (seconds or hours).
type SyncConfig struct {
	InitialDaysWithin  int `yaml:"initial_days_within"`
	FullDaysWithin     int `yaml:"full_days_within"`
	ReadyPollAttempts  int `yaml:"ready_poll_attempts"`
	ReadyPollDelaySec  int `yaml:"ready_poll_delay_sec"`
	StaleAfterSec      int `yaml:"stale_after_sec"`
	SweepBatchSize     int `yaml:"sweep_batch_size"`
	IngestBatchSize    int `yaml:"ingest_batch_size"`
	LeaseTTLSec        int `yaml:"lease_ttl_sec"`
	ResyncCooldownHrs  int `yaml:"resync_cooldown_hours"`
	ResyncMaxPerWindow int `yaml:"resync_max_per_window"`
}

func (s SyncConfig) ReadyPollDelay() time.Duration {
	return time.Duration(s.ReadyPollDelaySec) * time.Second
}

func (s SyncConfig) StaleAfter() time.Duration {
	return time.Duration(s.StaleAfterSec) * time.Second
}

func (s SyncConfig) LeaseTTL() time.Duration {
	return time.Duration(s.LeaseTTLSec) * time.Second
}

func (s SyncConfig) ResyncCooldown() time.Duration {
	return time.Duration(s.ResyncCooldownHrs) * time.Hour
}

type Config struct {
	DB       DBConfig       `yaml:"db"`
	Redis    RedisConfig    `yaml:"redis"`
	MQ       MQConfig       `yaml:"mq"`
	JWT      JWTConfig      `yaml:"jwt"`
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Cron     CronConfig     `yaml:"cron"`
	Sync     SyncConfig     `yaml:"sync"`
}

func Load() *Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}

	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		log.Fatalf("failed to decode %s: %v", path, err)
	}

	applyDefaults(&cfg)
	overrideFromEnv(&cfg)

	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Sync.InitialDaysWithin == 0 {
		cfg.Sync.InitialDaysWithin = 3
	}
	if cfg.Sync.FullDaysWithin == 0 {
		cfg.Sync.FullDaysWithin = 30
	}
	if cfg.Sync.ReadyPollAttempts == 0 {
		cfg.Sync.ReadyPollAttempts = 5
	}
	if cfg.Sync.ReadyPollDelaySec == 0 {
		cfg.Sync.ReadyPollDelaySec = 1
	}
	if cfg.Sync.StaleAfterSec == 0 {
		cfg.Sync.StaleAfterSec = 240
	}
	if cfg.Sync.SweepBatchSize == 0 {
		cfg.Sync.SweepBatchSize = 3
	}
	if cfg.Sync.IngestBatchSize == 0 {
		cfg.Sync.IngestBatchSize = 100
	}
	if cfg.Sync.LeaseTTLSec == 0 {
		cfg.Sync.LeaseTTLSec = 120
	}
	if cfg.Sync.ResyncCooldownHrs == 0 {
		cfg.Sync.ResyncCooldownHrs = 24
	}
	if cfg.Sync.ResyncMaxPerWindow == 0 {
		cfg.Sync.ResyncMaxPerWindow = 1
	}
}

func overrideFromEnv(cfg *Config) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DB.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.DB.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DB.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DB.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.DB.Name = name
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.MQ.URL = url
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = port
	}

	if base := os.Getenv("PROVIDER_BASE_URL"); base != "" {
		cfg.Provider.BaseURL = base
	}
	if id := os.Getenv("PROVIDER_CLIENT_ID"); id != "" {
		cfg.Provider.ClientID = id
	}
	if secret := os.Getenv("PROVIDER_CLIENT_SECRET"); secret != "" {
		cfg.Provider.ClientSecret = secret
	}
	if secret := os.Getenv("PROVIDER_SIGNING_SECRET"); secret != "" {
		cfg.Provider.SigningSecret = secret
	}
	if url := os.Getenv("PROVIDER_WEBHOOK_URL"); url != "" {
		cfg.Provider.WebhookURL = url
	}

	if secret := os.Getenv("CRON_SECRET"); secret != "" {
		cfg.Cron.Secret = secret
	}
}
