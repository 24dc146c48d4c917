// Package config loads process settings for the dlqmux command from the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/miladsoleymani/dlqmux/broker"
	"github.com/miladsoleymani/dlqmux/core"
)

const prefix = "DLQMUX_"

// Settings holds the process configuration.
type Settings struct {
	RequeueEnabled bool
	LogLevel       string       `validate:"oneof=debug info warn error"`
	LogFormat      string       `validate:"oneof=json console"`
	SentryDSN      string       `validate:"omitempty,url"`
	Connections    []Connection `validate:"required,min=1,dive"`
}

// Connection describes one named broker connection.
type Connection struct {
	Name        string        `validate:"required"`
	Driver      string        `validate:"required,oneof=kafka nats rabbitmq"`
	Brokers     []string      `validate:"required,min=1,dive,required"`
	Partitions  int           `validate:"gte=0"`
	Replication int           `validate:"gte=0"`
	PollTimeout time.Duration `validate:"gte=0"`
}

var validate = validator.New()

// Load reads files (default ".env") into the environment without overriding
// variables already set, then builds and validates Settings. Missing files
// are ignored.
func Load(files ...string) (*Settings, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("dlqmux: load env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds Settings from DLQMUX_* environment variables.
//
//	DLQMUX_REQUEUE_ENABLED      bool, default true
//	DLQMUX_LOG_LEVEL            debug|info|warn|error, default info
//	DLQMUX_LOG_FORMAT           json|console, default json
//	DLQMUX_SENTRY_DSN           optional
//	DLQMUX_CONNECTIONS          comma separated names, default "default"
//	DLQMUX_<NAME>_DRIVER        kafka|nats|rabbitmq, default kafka
//	DLQMUX_<NAME>_BROKERS       comma separated addresses
//	DLQMUX_<NAME>_PARTITIONS    provisioned partitions, 0 keeps the core default
//	DLQMUX_<NAME>_REPLICATION   provisioned replication, 0 keeps the core default
//	DLQMUX_<NAME>_POLL_TIMEOUT  duration
func FromEnv() (*Settings, error) {
	var errs []error

	s := &Settings{
		RequeueEnabled: true,
		LogLevel:       env("LOG_LEVEL", "info"),
		LogFormat:      env("LOG_FORMAT", "json"),
		SentryDSN:      env("SENTRY_DSN", ""),
	}
	if v := env("REQUEUE_ENABLED", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sREQUEUE_ENABLED: %w", prefix, err))
		}
		s.RequeueEnabled = b
	}

	for _, name := range split(env("CONNECTIONS", core.DefaultConnection)) {
		c, err := connectionFromEnv(name)
		if err != nil {
			errs = append(errs, err)
		}
		s.Connections = append(s.Connections, c)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := validate.Struct(s); err != nil {
		return nil, fmt.Errorf("dlqmux: invalid config: %w", err)
	}
	return s, nil
}

func connectionFromEnv(name string) (Connection, error) {
	key := func(field string) string {
		return strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_" + field
	}

	c := Connection{
		Name:    name,
		Driver:  env(key("DRIVER"), "kafka"),
		Brokers: split(env(key("BROKERS"), "")),
	}

	var err error
	if c.Partitions, err = atoi(key("PARTITIONS")); err != nil {
		return c, err
	}
	if c.Replication, err = atoi(key("REPLICATION")); err != nil {
		return c, err
	}
	if v := env(key("POLL_TIMEOUT"), ""); v != "" {
		if c.PollTimeout, err = time.ParseDuration(v); err != nil {
			return c, fmt.Errorf("%s%s: %w", prefix, key("POLL_TIMEOUT"), err)
		}
	}
	return c, nil
}

// Brokers converts the connections into pool configuration for broker.NewPool.
func (s *Settings) Brokers() map[string]broker.Config {
	out := make(map[string]broker.Config, len(s.Connections))
	for _, c := range s.Connections {
		cfg := broker.Config{
			Driver:  c.Driver,
			Brokers: c.Brokers,
		}
		if c.PollTimeout > 0 {
			cfg.Extra = map[string]any{"poll_timeout": c.PollTimeout}
		}
		if c.Partitions > 0 || c.Replication > 0 {
			partitions, replication := c.Partitions, c.Replication
			cfg.ConfigureTopic = func(spec *core.TopicSpec) {
				if partitions > 0 {
					spec.Partitions = partitions
				}
				if replication > 0 {
					spec.ReplicationFactor = replication
				}
			}
		}
		out[c.Name] = cfg
	}
	return out
}

func env(name, fallback string) string {
	if v, ok := os.LookupEnv(prefix + name); ok && v != "" {
		return v
	}
	return fallback
}

func atoi(name string) (int, error) {
	v := env(name, "")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", prefix, name, err)
	}
	return n, nil
}

func split(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
