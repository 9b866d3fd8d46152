package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	MaxSimJoins = 100
	MaxSimDelay = time.Minute
)

type Config struct {
	AppEnv         string   `env:"APP_ENV" envDefault:"dev"`
	HTTPAddr       string   `env:"HTTP_ADDR" envDefault:":3001"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`

	// DatabaseURL enables the round archive when set.
	DatabaseURL string `env:"DATABASE_URL"`

	SimJoinDelay    time.Duration `env:"SIM_JOIN_DELAY" envDefault:"2s"`
	SimMaxJoins     int           `env:"SIM_MAX_JOINS" envDefault:"10"`
	SimVoteDelay    time.Duration `env:"SIM_VOTE_DELAY" envDefault:"1s"`
	SendBuffer      int           `env:"SEND_BUFFER" envDefault:"64"`
	MaxMessageBytes int64         `env:"MAX_MESSAGE_BYTES" envDefault:"4096"`
}

func (c Config) IsProd() bool {
	return c.AppEnv == "prod" || c.AppEnv == "production"
}

func (c Config) ArchiveEnabled() bool {
	return c.DatabaseURL != ""
}

// Load reads the optional dotenv files, then parses the environment.
// Variables already set in the environment win over dotenv values.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}
	return Parse()
}

func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("HTTP_ADDR must not be empty")
	}
	if len(c.AllowedOrigins) == 0 {
		return errors.New("CORS_ALLOWED_ORIGINS must list at least one origin")
	}
	// zero disables simulated joins
	if c.SimMaxJoins < 0 || c.SimMaxJoins > MaxSimJoins {
		return fmt.Errorf("SIM_MAX_JOINS must be between 0 and %d, got %d", MaxSimJoins, c.SimMaxJoins)
	}
	if c.SimJoinDelay < 0 || c.SimJoinDelay > MaxSimDelay || c.SimVoteDelay < 0 || c.SimVoteDelay > MaxSimDelay {
		return fmt.Errorf("simulation delays must be between 0 and %v", MaxSimDelay)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("SEND_BUFFER must be positive, got %d", c.SendBuffer)
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("MAX_MESSAGE_BYTES must be positive, got %d", c.MaxMessageBytes)
	}
	return nil
}
