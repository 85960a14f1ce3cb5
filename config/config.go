package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
)

// Admission modes decide what happens when a compression is requested while
// another one is still running.
const (
	AdmissionReject = "reject"
	AdmissionQueue  = "queue"
)

// Config holds every server-level setting. Values come from an optional YAML
// file (VIDCRUSH_CONFIG) and are then overridden by environment variables.
type Config struct {
	ListenAddr string `yaml:"listen_addr" env:"VIDCRUSH_LISTEN_ADDR" env-default:":8080" validate:"required"`
	DataDir    string `yaml:"data_dir" env:"VIDCRUSH_DATA_DIR" env-default:"./data" validate:"required"`
	ServeDir   string `yaml:"serve_dir" env:"VIDCRUSH_SERVE_DIR" env-default:"./serve"`

	FFmpegPath   string `yaml:"ffmpeg_binary" env:"VIDCRUSH_FFMPEG" env-default:"ffmpeg" validate:"required"`
	WorkspaceDir string `yaml:"workspace_dir" env:"VIDCRUSH_WORKSPACE_DIR"`

	Admission  string `yaml:"admission" env:"VIDCRUSH_ADMISSION" env-default:"reject" validate:"oneof=reject queue"`
	TrustPick  bool   `yaml:"trust_pick" env:"VIDCRUSH_TRUST_PICK" env-default:"false"`
	MaxUpload  int64  `yaml:"max_upload_bytes" env:"VIDCRUSH_MAX_UPLOAD" env-default:"268435456" validate:"gt=0"`
	JWTSecret  string `yaml:"jwt_secret" env:"VIDCRUSH_JWT_SECRET" validate:"omitempty,min=32"`
	JWTIssuer  string `yaml:"jwt_issuer" env:"VIDCRUSH_JWT_ISSUER"`
	BaseURL    string `yaml:"base_url" env:"VIDCRUSH_BASE_URL" validate:"omitempty,url"`
	DefaultOut string `yaml:"default_delivery" env:"VIDCRUSH_DEFAULT_DELIVERY" env-default:"download" validate:"required"`

	ReleaseDelay    time.Duration `yaml:"release_delay" env:"VIDCRUSH_RELEASE_DELAY" env-default:"1s" validate:"gte=0"`
	LinkTTL         time.Duration `yaml:"link_ttl" env:"VIDCRUSH_LINK_TTL" env-default:"10m" validate:"gte=0"`
	RecordRetention time.Duration `yaml:"record_retention" env:"VIDCRUSH_RECORD_RETENTION" env-default:"720h" validate:"gt=0"`

	LogLevel string `yaml:"log_level" env:"VIDCRUSH_LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn warning error"`
	LogFile  string `yaml:"log_file" env:"VIDCRUSH_LOG_FILE"`
}

var (
	current  *Config
	mu       sync.Mutex
	validate = validator.New()
)

// Load reads the configuration. A missing VIDCRUSH_CONFIG means environment only.
func Load() (*Config, error) {
	cfg := &Config{}

	var err error
	if path := os.Getenv("VIDCRUSH_CONFIG"); path != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	for _, p := range []*string{&cfg.DataDir, &cfg.ServeDir, &cfg.WorkspaceDir, &cfg.LogFile} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return nil, fmt.Errorf("failed to expand %q: %w", *p, err)
		}
		*p = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	current = cfg
	mu.Unlock()
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Usage returns the environment variable help text.
func Usage() string {
	cfg := &Config{}
	text, err := cleanenv.GetDescription(cfg, nil)
	if err != nil {
		return ""
	}
	return text
}

// Current returns the last loaded configuration, or nil before Load.
func Current() *Config {
	mu.Lock()
	defer mu.Unlock()
	return current
}
