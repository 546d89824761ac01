package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string   `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`

	PDSBaseURL        string        `mapstructure:"PDS_BASE_URL"`
	PDSTimeout        time.Duration `mapstructure:"PDS_TIMEOUT"`
	PDSRateLimitRPS   float64       `mapstructure:"PDS_RATE_LIMIT_RPS"`
	PDSMaxConcurrency int64         `mapstructure:"PDS_MAX_CONCURRENCY"`

	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	NotifyTopic  string   `mapstructure:"NOTIFY_TOPIC"`

	S3ImportBucket string `mapstructure:"S3_IMPORT_BUCKET"`
	S3Endpoint     string `mapstructure:"S3_ENDPOINT"`

	Features Features `mapstructure:"-"`
}

// Features are behaviour toggles handed to the services that honour them.
type Features struct {
	// StrictProgrammeOverlap only proposes a move when the patient's
	// existing session shares a programme with the new one.
	StrictProgrammeOverlap bool
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY", "CORS_ORIGINS",
	"PDS_BASE_URL", "PDS_TIMEOUT", "PDS_RATE_LIMIT_RPS", "PDS_MAX_CONCURRENCY",
	"KAFKA_BROKERS", "NOTIFY_TOPIC", "S3_IMPORT_BUCKET", "S3_ENDPOINT",
	"FEATURE_STRICT_PROGRAMME_OVERLAP",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("PDS_TIMEOUT", "10s")
	v.SetDefault("PDS_RATE_LIMIT_RPS", 5)
	v.SetDefault("PDS_MAX_CONCURRENCY", 4)
	v.SetDefault("NOTIFY_TOPIC", "schoolvax.notifications")
	v.SetDefault("FEATURE_STRICT_PROGRAMME_OVERLAP", false)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Missing .env is fine; the environment alone is enough.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))
	cfg.Features.StrictProgrammeOverlap = v.GetBool("FEATURE_STRICT_PROGRAMME_OVERLAP")

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// splitList falls back to splitting raw on commas when viper left the
// list empty, and trims blanks either way.
func splitList(list []string, raw string) []string {
	if len(list) == 0 && raw != "" {
		list = strings.Split(raw, ",")
	}
	out := list[:0]
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside
// development a signing key is required so tokens are verified.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.PDSBaseURL != "" {
		if c.PDSRateLimitRPS <= 0 {
			return fmt.Errorf("PDS_RATE_LIMIT_RPS must be positive")
		}
		if c.PDSMaxConcurrency < 1 {
			return fmt.Errorf("PDS_MAX_CONCURRENCY must be at least 1")
		}
	}
	if len(c.KafkaBrokers) > 0 && c.NotifyTopic == "" {
		return fmt.Errorf("NOTIFY_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}
