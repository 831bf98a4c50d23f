// Package config holds the server settings. Every flag can also be given as a
// NAUGHTY_* environment variable, or in a .env file next to the binary.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"github.com/kittynight/naughty-kitty/internal/coordinator"
)

const EnvPrefix = "NAUGHTY"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Bind        string
	Port        int
	Store       string
	PostgresDSN string
	PublicURL   string
	Dev         bool
	LogLevel    string

	RoleReveal         time.Duration
	NightTimeout       time.Duration
	DiscussionTimeout  time.Duration
	DiscussionSettle   time.Duration
	Transition         time.Duration
	MorningAutoProceed time.Duration

	CodeAttempts int
}

// LoadDotEnv reads .env files into the environment. Missing files are fine;
// variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var err error
	for _, f := range files {
		if loadErr := godotenv.Load(f); loadErr != nil && !errors.Is(loadErr, os.ErrNotExist) {
			err = multierr.Append(err, fmt.Errorf("load %s: %w", f, loadErr))
		}
	}
	return err
}

// RegisterFlags defines every setting on fs and seeds flags from the
// environment, so an explicit flag beats NAUGHTY_* which beats the default.
func RegisterFlags(fs *pflag.FlagSet) *Config {
	cfg := &Config{}
	defaults := coordinator.DefaultTimings()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: NAUGHTY_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: NAUGHTY_PORT)")
	fs.StringVar(&cfg.Store, "store", StoreMemory, "room store, memory or postgres (env: NAUGHTY_STORE)")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", "", "postgres connection string for --store=postgres (env: NAUGHTY_POSTGRES_DSN)")
	fs.StringVar(&cfg.PublicURL, "public-url", "", "base URL used in join links and QR codes (env: NAUGHTY_PUBLIC_URL)")
	fs.BoolVar(&cfg.Dev, "dev", false, "human-readable logs (env: NAUGHTY_DEV)")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "debug, info, warn or error (env: NAUGHTY_LOG_LEVEL)")

	fs.DurationVar(&cfg.RoleReveal, "reveal-delay", defaults.RoleReveal, "time players see their role before night (env: NAUGHTY_REVEAL_DELAY)")
	fs.DurationVar(&cfg.NightTimeout, "night-timeout", defaults.NightTimeout, "night length before missing actions are skipped (env: NAUGHTY_NIGHT_TIMEOUT)")
	fs.DurationVar(&cfg.DiscussionTimeout, "discussion-timeout", defaults.DiscussionTimeout, "discussion length before voting opens (env: NAUGHTY_DISCUSSION_TIMEOUT)")
	fs.DurationVar(&cfg.DiscussionSettle, "settle-delay", defaults.DiscussionSettle, "pause after everyone is ready to vote (env: NAUGHTY_SETTLE_DELAY)")
	fs.DurationVar(&cfg.Transition, "transition-delay", defaults.Transition, "pause between result and the next night (env: NAUGHTY_TRANSITION_DELAY)")
	fs.DurationVar(&cfg.MorningAutoProceed, "morning-auto-proceed", defaults.MorningAutoProceed, "move morning on without the host after this long, 0 waits for the host (env: NAUGHTY_MORNING_AUTO_PROCEED)")

	fs.IntVar(&cfg.CodeAttempts, "code-attempts", 10, "room code collisions tolerated before giving up (env: NAUGHTY_CODE_ATTEMPTS)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	return cfg
}

// Validate reports every bad setting at once.
func (c *Config) Validate() error {
	var err error
	if c.Port < 1 || c.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port))
	}
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			err = multierr.Append(err, errors.New("--postgres-dsn is required with --store=postgres"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("unknown store %q", c.Store))
	}
	if _, lvlErr := zapcore.ParseLevel(c.LogLevel); lvlErr != nil {
		err = multierr.Append(err, lvlErr)
	}
	for name, d := range map[string]time.Duration{
		"reveal-delay":       c.RoleReveal,
		"night-timeout":      c.NightTimeout,
		"discussion-timeout": c.DiscussionTimeout,
		"transition-delay":   c.Transition,
	} {
		if d <= 0 {
			err = multierr.Append(err, fmt.Errorf("--%s must be positive", name))
		}
	}
	if c.DiscussionSettle < 0 || c.MorningAutoProceed < 0 {
		err = multierr.Append(err, errors.New("delays cannot be negative"))
	}
	if c.CodeAttempts < 1 {
		err = multierr.Append(err, fmt.Errorf("--code-attempts must be at least 1: %d", c.CodeAttempts))
	}
	return err
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

func (c *Config) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func (c *Config) Timings() coordinator.Timings {
	return coordinator.Timings{
		RoleReveal:         c.RoleReveal,
		NightTimeout:       c.NightTimeout,
		DiscussionTimeout:  c.DiscussionTimeout,
		DiscussionSettle:   c.DiscussionSettle,
		Transition:         c.Transition,
		MorningAutoProceed: c.MorningAutoProceed,
	}
}
