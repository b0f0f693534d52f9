package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr           string
	RedisURL       string
	RelayStateTTL  time.Duration
	LogLevel       string
	ResizeCooldown time.Duration
	TickInterval   time.Duration
	BorderWidth    float64
}

func Default() Config {
	return Config{
		Addr:           ":8080",
		RelayStateTTL:  6 * time.Hour,
		LogLevel:       "info",
		ResizeCooldown: time.Second,
		TickInterval:   50 * time.Millisecond,
		BorderWidth:    5,
	}
}

// Load reads an optional .env file and then the process environment.
// Unset variables keep their defaults.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from any key lookup, tests pass a map-backed one.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	c := Default()

	if v, ok := lookup("ADDR"); ok && v != "" {
		c.Addr = v
	}
	if v, ok := lookup("REDIS_URL"); ok {
		c.RedisURL = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}

	var err error
	if c.RelayStateTTL, err = duration(lookup, "RELAY_STATE_TTL", c.RelayStateTTL); err != nil {
		return Config{}, err
	}
	if c.ResizeCooldown, err = duration(lookup, "RESIZE_COOLDOWN", c.ResizeCooldown); err != nil {
		return Config{}, err
	}
	if c.TickInterval, err = duration(lookup, "TICK_INTERVAL", c.TickInterval); err != nil {
		return Config{}, err
	}
	if c.TickInterval <= 0 {
		return Config{}, fmt.Errorf("TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}

	if v, ok := lookup("BORDER_WIDTH"); ok && v != "" {
		bw, err := strconv.ParseFloat(v, 64)
		if err != nil || bw < 0 {
			return Config{}, fmt.Errorf("BORDER_WIDTH: invalid value %q", v)
		}
		c.BorderWidth = bw
	}

	return c, nil
}

func duration(lookup func(string) (string, bool), key string, def time.Duration) (time.Duration, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", key, d)
	}
	return d, nil
}
