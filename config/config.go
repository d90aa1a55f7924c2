// Package config loads todo-api settings from defaults, an optional YAML
// file, TODO_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	FileName  = "todo-api"
	EnvPrefix = "TODO"
	SystemDir = "/etc/todo-api"
)

type Config struct {
	Server      Server      `mapstructure:"server" yaml:"server"`
	Database    Database    `mapstructure:"database" yaml:"database"`
	RateLimit   RateLimit   `mapstructure:"ratelimit" yaml:"ratelimit"`
	Concurrency Concurrency `mapstructure:"concurrency" yaml:"concurrency"`
	Background  Background  `mapstructure:"background" yaml:"background"`
	Log         Log         `mapstructure:"log" yaml:"log"`
}

type Server struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type Database struct {
	// Type is sqlite, postgres or mysql.
	Type            string        `mapstructure:"type" yaml:"type"`
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

type RateLimit struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Algorithm is window, redis-window or token. All of them spend Limit
	// requests per Window.
	Algorithm string `mapstructure:"algorithm" yaml:"algorithm"`

	Limit      int           `mapstructure:"limit" yaml:"limit"`
	Window     time.Duration `mapstructure:"window" yaml:"window"`
	MaxKeys    int           `mapstructure:"max_keys" yaml:"max_keys"`
	SweepEvery time.Duration `mapstructure:"sweep_every" yaml:"sweep_every"`

	KeyHeader  string        `mapstructure:"key_header" yaml:"key_header"`
	TrustXFF   bool          `mapstructure:"trust_xff" yaml:"trust_xff"`
	RetryAfter time.Duration `mapstructure:"retry_after" yaml:"retry_after"`
	AddHeaders bool          `mapstructure:"add_headers" yaml:"add_headers"`

	Redis Redis `mapstructure:"redis" yaml:"redis"`
	Stats Stats `mapstructure:"stats" yaml:"stats"`
}

type Redis struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

type Stats struct {
	// Backend is none, memory or redis.
	Backend   string        `mapstructure:"backend" yaml:"backend"`
	Prefix    string        `mapstructure:"prefix" yaml:"prefix"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Bucket    string        `mapstructure:"bucket" yaml:"bucket"`
	TrackKeys bool          `mapstructure:"track_keys" yaml:"track_keys"`
}

type Concurrency struct {
	Max     int           `mapstructure:"max" yaml:"max"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type Background struct {
	Delay time.Duration `mapstructure:"delay" yaml:"delay"`
}

type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		Server: Server{
			Addr:              ":8000",
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       90 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Database: Database{
			Type:            "sqlite",
			DSN:             "file:todos.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
			MaxOpenConns:    25,
			MaxIdleConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		RateLimit: RateLimit{
			Enabled:    true,
			Algorithm:  "window",
			Limit:      5,
			Window:     10 * time.Second,
			MaxKeys:    10000,
			SweepEvery: time.Minute,
			Redis: Redis{
				Addr:   "localhost:6379",
				Prefix: "ratelimit:window",
			},
			Stats: Stats{
				Backend: "none",
				Prefix:  "ratelimit:stats",
				TTL:     24 * time.Hour,
				Bucket:  "minute",
			},
		},
		Concurrency: Concurrency{Max: 100},
		Background:  Background{Delay: 2 * time.Second},
		Log:         Log{Level: "info", Format: "text"},
	}
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"addr":    "server.addr",
	"db-type": "database.type",
	"db-dsn":  "database.dsn",
}

// Load resolves the configuration. An explicit path must exist; without one
// todo-api.yaml is looked up in the working directory and SystemDir, and a
// missing file is not an error. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	for key, value := range defaultValues() {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(SystemDir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// defaultValues flattens Defaults into viper keys. Every key must be present
// so that AutomaticEnv can see it during Unmarshal.
func defaultValues() map[string]any {
	d := Defaults()
	return map[string]any{
		"server.addr":                d.Server.Addr,
		"server.read_header_timeout": d.Server.ReadHeaderTimeout,
		"server.read_timeout":        d.Server.ReadTimeout,
		"server.write_timeout":       d.Server.WriteTimeout,
		"server.idle_timeout":        d.Server.IdleTimeout,
		"server.shutdown_timeout":    d.Server.ShutdownTimeout,

		"database.type":              d.Database.Type,
		"database.dsn":               d.Database.DSN,
		"database.max_open_conns":    d.Database.MaxOpenConns,
		"database.max_idle_conns":    d.Database.MaxIdleConns,
		"database.conn_max_lifetime": d.Database.ConnMaxLifetime,

		"ratelimit.enabled":     d.RateLimit.Enabled,
		"ratelimit.algorithm":   d.RateLimit.Algorithm,
		"ratelimit.limit":       d.RateLimit.Limit,
		"ratelimit.window":      d.RateLimit.Window,
		"ratelimit.max_keys":    d.RateLimit.MaxKeys,
		"ratelimit.sweep_every": d.RateLimit.SweepEvery,
		"ratelimit.key_header":  d.RateLimit.KeyHeader,
		"ratelimit.trust_xff":   d.RateLimit.TrustXFF,
		"ratelimit.retry_after": d.RateLimit.RetryAfter,
		"ratelimit.add_headers": d.RateLimit.AddHeaders,

		"ratelimit.redis.addr":     d.RateLimit.Redis.Addr,
		"ratelimit.redis.password": d.RateLimit.Redis.Password,
		"ratelimit.redis.db":       d.RateLimit.Redis.DB,
		"ratelimit.redis.prefix":   d.RateLimit.Redis.Prefix,

		"ratelimit.stats.backend":    d.RateLimit.Stats.Backend,
		"ratelimit.stats.prefix":     d.RateLimit.Stats.Prefix,
		"ratelimit.stats.ttl":        d.RateLimit.Stats.TTL,
		"ratelimit.stats.bucket":     d.RateLimit.Stats.Bucket,
		"ratelimit.stats.track_keys": d.RateLimit.Stats.TrackKeys,

		"concurrency.max":     d.Concurrency.Max,
		"concurrency.timeout": d.Concurrency.Timeout,
		"background.delay":    d.Background.Delay,
		"log.level":           d.Log.Level,
		"log.format":          d.Log.Format,
	}
}

func (c Config) Validate() error {
	var errs []error
	switch c.Database.Type {
	case "sqlite", "postgres", "mysql":
	default:
		errs = append(errs, fmt.Errorf("database.type must be sqlite, postgres or mysql, got %q", c.Database.Type))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Concurrency.Max < 0 {
		errs = append(errs, errors.New("concurrency.max must be >= 0"))
	}

	rl := c.RateLimit
	if rl.Enabled {
		switch rl.Algorithm {
		case "window", "redis-window", "token":
			if rl.Limit <= 0 {
				errs = append(errs, errors.New("ratelimit.limit must be > 0"))
			}
			if rl.Window <= 0 {
				errs = append(errs, errors.New("ratelimit.window must be > 0"))
			}
		default:
			errs = append(errs, fmt.Errorf("ratelimit.algorithm must be window, redis-window or token, got %q", rl.Algorithm))
		}
	}
	switch rl.Stats.Backend {
	case "", "none", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("ratelimit.stats.backend must be none, memory or redis, got %q", rl.Stats.Backend))
	}
	if c.NeedsRedis() && strings.TrimSpace(rl.Redis.Addr) == "" {
		errs = append(errs, errors.New("ratelimit.redis.addr is required for the redis backends"))
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// NeedsRedis reports whether any enabled component talks to Redis.
func (c Config) NeedsRedis() bool {
	rl := c.RateLimit
	return (rl.Enabled && rl.Algorithm == "redis-window") || rl.Stats.Backend == "redis"
}

// Write stores c as YAML at path. An existing file is only replaced when
// overwrite is set.
func Write(path string, c Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory %s: %w", dir, err)
		}
	}
	// may hold database and redis passwords
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
