package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// BackupConfig controls periodic SQLite snapshots.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

type Config struct {
	Server struct {
		Port                int `yaml:"port"`
		ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Address   string `yaml:"address"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console or json
	} `yaml:"logging"`

	Rates struct {
		File                 string `yaml:"file"`
		CacheBackend         string `yaml:"cache_backend"` // memory or redis
		CacheTTLSeconds      int    `yaml:"cache_ttl_seconds"`
		RecoverySeconds      int    `yaml:"recovery_seconds"`
		WatchIntervalSeconds int    `yaml:"watch_interval_seconds"`
	} `yaml:"rates"`

	Calendar struct {
		Weekend    []string `yaml:"weekend"`
		SeasonMode string   `yaml:"season_mode"` // periods or peak_months
		PeakMonths []int    `yaml:"peak_months"`
	} `yaml:"calendar"`

	Locks struct {
		Backend         string `yaml:"backend"` // memory or redis
		TTLSeconds      int    `yaml:"ttl_seconds"`
		ExpiringSeconds int    `yaml:"expiring_seconds"`
		ProbeSeconds    int    `yaml:"probe_seconds"`
		SweepSeconds    int    `yaml:"sweep_seconds"`
	} `yaml:"locks"`

	Booking struct {
		SuggestionWindowDays  int     `yaml:"suggestion_window_days"`
		MaxSuggestions        int     `yaml:"max_suggestions"`
		FitRatio              float64 `yaml:"fit_ratio"`
		AttemptTimeoutMinutes int     `yaml:"attempt_timeout_minutes"`
	} `yaml:"booking"`

	API struct {
		LockProbeRate  float64 `yaml:"lock_probe_rate"`
		LockProbeBurst int     `yaml:"lock_probe_burst"`
	} `yaml:"api"`
}

// Load reads the YAML config, expanding ${ENV_VAR} placeholders. A .env
// file next to the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/retreat.db"
	}
	if cfg.Rates.File == "" {
		cfg.Rates.File = "configs/rates.yaml"
	}
	if cfg.Backup.StoragePath == "" {
		cfg.Backup.StoragePath = filepath.Join(filepath.Dir(cfg.Database.Path), "backups")
	}
	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func seconds(v, def int) time.Duration {
	if v <= 0 {
		return time.Duration(def) * time.Second
	}
	return time.Duration(v) * time.Second
}

func (c *Config) ServerPort() int {
	if c.Server.Port <= 0 {
		return 8080
	}
	return c.Server.Port
}

func (c *Config) ReadTimeout() time.Duration  { return seconds(c.Server.ReadTimeoutSeconds, 10) }
func (c *Config) WriteTimeout() time.Duration { return seconds(c.Server.WriteTimeoutSeconds, 10) }

func (c *Config) RateCacheTTL() time.Duration      { return seconds(c.Rates.CacheTTLSeconds, 300) }
func (c *Config) RateRecovery() time.Duration      { return seconds(c.Rates.RecoverySeconds, 60) }
func (c *Config) RateWatchInterval() time.Duration { return seconds(c.Rates.WatchIntervalSeconds, 30) }

func (c *Config) LockTTL() time.Duration      { return seconds(c.Locks.TTLSeconds, 600) }
func (c *Config) LockExpiring() time.Duration { return seconds(c.Locks.ExpiringSeconds, 60) }
func (c *Config) LockProbe() time.Duration    { return seconds(c.Locks.ProbeSeconds, 120) }
func (c *Config) LockSweep() time.Duration    { return seconds(c.Locks.SweepSeconds, 60) }

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) AttemptTimeout() time.Duration {
	if c.Booking.AttemptTimeoutMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Booking.AttemptTimeoutMinutes) * time.Minute
}

// PeakMonths converts the configured month numbers, skipping invalid ones.
func (c *Config) PeakMonths() []time.Month {
	out := make([]time.Month, 0, len(c.Calendar.PeakMonths))
	for _, m := range c.Calendar.PeakMonths {
		if m >= 1 && m <= 12 {
			out = append(out, time.Month(m))
		}
	}
	return out
}

func (c *Config) LockProbeRate() float64 {
	if c.API.LockProbeRate <= 0 {
		return 2
	}
	return c.API.LockProbeRate
}

func (c *Config) LockProbeBurst() int {
	if c.API.LockProbeBurst <= 0 {
		return 5
	}
	return c.API.LockProbeBurst
}
