package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/robfig/cron/v3"
)

const defaultLogLevel = "info"

type Config struct {
	Port       string `env:"PORT"          envDefault:"8000"`
	LogLevel   string `env:"LOG_LEVEL"     envDefault:"info"`
	PrivateKey string `env:"PK,required"`
	ChainsFile string `env:"CHAINS_CONFIG" envDefault:"config.json"`

	// AcceptedPrefixes is a comma separated list of bech32 prefixes.
	AcceptedPrefixes string   `env:"ACCEPTED_PREFIXES" envDefault:"lux,test"`
	Blacklist        string   `env:"BLACKLIST"`
	AllowedOrigins   []string `env:"ALLOWED_ORIGINS"   envDefault:"*" envSeparator:","`

	RateLimitDB string `env:"RATELIMIT_DB"`
	IPRPS       int    `env:"IP_RPS"       envDefault:"10"`
	IPBurst     int    `env:"IP_BURST"     envDefault:"20"`

	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT"  envDefault:"90s"`
	ReceiptTimeout  time.Duration `env:"RECEIPT_TIMEOUT"  envDefault:"60s"`
	RefreshSchedule string        `env:"REFRESH_SCHEDULE" envDefault:"0 0 * * *"`
	MaxDripAmount   float64       `env:"MAX_DRIP_AMOUNT"  envDefault:"2"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.PrivateKey = strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.PrivateKey == "" {
		return errors.New("PK must not be empty")
	}

	if c.IPRPS <= 0 || c.IPBurst <= 0 {
		return fmt.Errorf("IP_RPS (%d) and IP_BURST (%d) must be positive", c.IPRPS, c.IPBurst)
	}

	if c.ReceiptTimeout <= 0 {
		return fmt.Errorf("RECEIPT_TIMEOUT must be positive, got %s", c.ReceiptTimeout)
	}

	if c.MaxDripAmount <= 0 {
		return fmt.Errorf("MAX_DRIP_AMOUNT must be positive, got %v", c.MaxDripAmount)
	}

	if _, err := cron.ParseStandard(c.RefreshSchedule); err != nil {
		return fmt.Errorf("invalid REFRESH_SCHEDULE %q: %w", c.RefreshSchedule, err)
	}

	return nil
}

// Prefixes returns the accepted bech32 prefixes.
func (c Config) Prefixes() []string {
	return splitList(c.AcceptedPrefixes)
}

// BlacklistEntries returns the raw BLACKLIST entries.
func (c Config) BlacklistEntries() []string {
	return splitList(c.Blacklist)
}

// GetLogLevel returns the log level before the rest of the config is loaded.
func GetLogLevel() string {
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		return lvl
	}

	return defaultLogLevel
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}
