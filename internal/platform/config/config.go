package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the IMS service. Keys keep the PG* names
// libpq tooling already understands.
type Config struct {
	Port     int    `mapstructure:"PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is json or console.
	LogFormat string `mapstructure:"LOG_FORMAT"`

	PGHost     string `mapstructure:"PGHOST"`
	PGPort     int    `mapstructure:"PGPORT"`
	PGUser     string `mapstructure:"PGUSER"`
	PGPassword string `mapstructure:"PGPASSWORD"`
	PGDatabase string `mapstructure:"PGDATABASE"`
	PGSSLMode  string `mapstructure:"PGSSLMODE"`
	PGMaxConns int32  `mapstructure:"PG_MAX_CONNS"`

	// StrictValidation rejects unknown top-level subscriber fields.
	StrictValidation   bool     `mapstructure:"STRICT_VALIDATION"`
	CORSAllowedOrigins []string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

var keys = []string{
	"PORT", "LOG_LEVEL", "LOG_FORMAT",
	"PGHOST", "PGPORT", "PGUSER", "PGPASSWORD", "PGDATABASE", "PGSSLMODE", "PG_MAX_CONNS",
	"STRICT_VALIDATION", "CORS_ALLOWED_ORIGINS",
}

// Load reads .env (if present), configs/config.defaults.yaml (if present) and
// the environment, in increasing order of precedence.
func Load(serviceName string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("%s: could not load .env file: %v", serviceName, err)
	}

	v := viper.New()
	v.SetConfigName("config.defaults")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath("../../../configs") // tests run from internal/platform/<pkg>
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	// AutomaticEnv only applies to keys viper already knows about during Unmarshal.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("PGHOST", "localhost")
	v.SetDefault("PGPORT", 5432)
	v.SetDefault("PGUSER", "postgres")
	v.SetDefault("PGPASSWORD", "")
	v.SetDefault("PGDATABASE", "ims")
	v.SetDefault("PGSSLMODE", "disable")
	v.SetDefault("PG_MAX_CONNS", 10)
	v.SetDefault("STRICT_VALIDATION", true)
	v.SetDefault("CORS_ALLOWED_ORIGINS", []string{"*"})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Printf("%s: configuration file ('config.defaults.yaml') not found; using defaults and environment variables.", serviceName)
		} else {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.PGPort <= 0 || c.PGPort > 65535 {
		return fmt.Errorf("invalid PGPORT %d", c.PGPort)
	}
	if c.PGMaxConns <= 0 {
		return fmt.Errorf("PG_MAX_CONNS must be positive, got %d", c.PGMaxConns)
	}
	return nil
}

// DSN renders the PostgreSQL connection URL for pgxpool.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PGUser, c.PGPassword),
		Host:   net.JoinHostPort(c.PGHost, strconv.Itoa(c.PGPort)),
		Path:   "/" + c.PGDatabase,
	}
	q := url.Values{}
	if c.PGSSLMode != "" {
		q.Set("sslmode", c.PGSSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
