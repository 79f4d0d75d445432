package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token     string  `yaml:"token"`
	Mode      string  `yaml:"mode"` // polling only
	Username  string  `yaml:"username"`
	Workers   int     `yaml:"workers"` // polling workers
	AdminIDs  []int64 `yaml:"admin_ids"`
	WebAppURL string  `yaml:"webapp_url"`
	Language  string  `yaml:"language"`
	RateLimit int     `yaml:"rate_limit"` // inbound events per user per minute
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port int `yaml:"port"` // 0 disables the HTTP server
}

type AdminConfig struct {
	APIKey    string        `yaml:"api_key"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"` // empty disables the dispatch audit log
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DirectoryConfig struct {
	Path           string `yaml:"path"`
	ReloadOnSubmit bool   `yaml:"reload_on_submit"`
}

type DialogueConfig struct {
	Brands   []string      `yaml:"brands"`
	StateTTL time.Duration `yaml:"state_ttl"`
}

type RequestsConfig struct {
	Backend            string        `yaml:"backend"` // memory|redis
	TTL                time.Duration `yaml:"ttl"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	RestrictResponders *bool         `yaml:"restrict_responders"`
}

type RouterConfig struct {
	Workers      int           `yaml:"workers"`
	SendAttempts int           `yaml:"send_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	Currency     string        `yaml:"currency"`
}

type MiniAppConfig struct {
	InitDataTTL time.Duration `yaml:"init_data_ttl"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Directory DirectoryConfig `yaml:"directory"`
	Dialogue  DialogueConfig  `yaml:"dialogue"`
	Requests  RequestsConfig  `yaml:"requests"`
	Router    RouterConfig    `yaml:"router"`
	MiniApp   MiniAppConfig   `yaml:"miniapp"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies .env / environment overrides
// (BOT_TOKEN, WEBAPP_URL) and fills defaults.
func LoadConfig(path string, dev bool) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// environment-only setup
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("BOT_TOKEN")); v != "" {
		cfg.Bot.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("WEBAPP_URL")); v != "" {
		cfg.Bot.WebAppURL = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 4
	}
	if cfg.Bot.Mode == "" {
		cfg.Bot.Mode = "polling"
	}
	if cfg.Bot.Language == "" {
		cfg.Bot.Language = "en"
	}
	if cfg.Bot.RateLimit <= 0 {
		cfg.Bot.RateLimit = 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 30 * time.Minute
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 4
	}
	if cfg.Directory.Path == "" {
		cfg.Directory.Path = "sellers.json"
	}
	if len(cfg.Dialogue.Brands) == 0 {
		cfg.Dialogue.Brands = []string{"Toyota", "Honda", "Nissan", "BMW"}
	}
	if cfg.Dialogue.StateTTL <= 0 {
		cfg.Dialogue.StateTTL = 30 * time.Minute
	}
	if cfg.Requests.Backend == "" {
		cfg.Requests.Backend = "memory"
	}
	cfg.Requests.Backend = strings.ToLower(cfg.Requests.Backend)
	if cfg.Requests.TTL <= 0 {
		cfg.Requests.TTL = 24 * time.Hour
	}
	if cfg.Requests.SweepInterval <= 0 {
		cfg.Requests.SweepInterval = time.Minute
	}
	if cfg.Requests.RestrictResponders == nil {
		restrict := true
		cfg.Requests.RestrictResponders = &restrict
	}
	if cfg.Router.Workers <= 0 {
		cfg.Router.Workers = 4
	}
	if cfg.Router.SendAttempts <= 0 {
		cfg.Router.SendAttempts = 3
	}
	if cfg.Router.RetryBackoff <= 0 {
		cfg.Router.RetryBackoff = 300 * time.Millisecond
	}
	if cfg.Router.Currency == "" {
		cfg.Router.Currency = "AED"
	}
	if cfg.MiniApp.InitDataTTL <= 0 {
		cfg.MiniApp.InitDataTTL = 24 * time.Hour
	}
}

// Validate performs minimal validation.
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return errors.New("bot.token is required (or BOT_TOKEN)")
	}
	switch c.Requests.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url is required when requests.backend=redis")
		}
	default:
		return fmt.Errorf("requests.backend %q is not supported", c.Requests.Backend)
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	return nil
}

func (c *Config) RestrictResponders() bool {
	return c.Requests.RestrictResponders == nil || *c.Requests.RestrictResponders
}
