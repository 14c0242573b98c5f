package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/unitdash/internal/db"
	"github.com/rpattn/unitdash/internal/gallery"
	"github.com/rpattn/unitdash/internal/logger"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. UNITDASH_SERVER_ADDR.
const EnvPrefix = "UNITDASH"

// Config is the full process configuration.
type Config struct {
	Server   ServerConfig  `mapstructure:"server"`
	Dataset  DatasetConfig `mapstructure:"dataset"`
	Database db.Config     `mapstructure:"database"`
	Session  SessionConfig `mapstructure:"session"`
	Storage  StorageConfig `mapstructure:"storage"`
	Gallery  GalleryConfig `mapstructure:"gallery"`
	Log      LogConfig     `mapstructure:"log"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

type ServerConfig struct {
	Addr          string        `mapstructure:"addr"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	CORSOrigins   []string      `mapstructure:"cors_origins"`
	SecureCookies bool          `mapstructure:"secure_cookies"`
	PageSize      int           `mapstructure:"page_size"`
}

// DatasetConfig says where the unit table comes from. Query wins over Path.
type DatasetConfig struct {
	Path               string   `mapstructure:"path"`
	Sheet              string   `mapstructure:"sheet"`
	HeaderRow          int      `mapstructure:"header_row"`
	Query              string   `mapstructure:"query"`
	CategoricalColumns []string `mapstructure:"categorical_columns"`
}

// SessionConfig selects the session store: memory, pebble or postgres.
type SessionConfig struct {
	Backend       string        `mapstructure:"backend"`
	PebbleDir     string        `mapstructure:"pebble_dir"`
	TTL           time.Duration `mapstructure:"ttl"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

// StorageConfig selects the figure store: s3 or local.
type StorageConfig struct {
	Backend  string   `mapstructure:"backend"`
	LocalDir string   `mapstructure:"local_dir"`
	S3       S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	Anonymous    bool   `mapstructure:"anonymous"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

type GalleryConfig struct {
	PSTHPrefix         string `mapstructure:"psth_prefix"`
	DriftMetricsPrefix string `mapstructure:"drift_metrics_prefix"`
	CacheSize          int    `mapstructure:"cache_size"`
	MaxWidth           int    `mapstructure:"max_width"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	AddSource bool   `mapstructure:"add_source"`
}

// Logger converts the log section for the logger package.
func (c LogConfig) Logger() logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = c.Level
	cfg.Format = c.Format
	cfg.AddSource = c.AddSource
	return cfg
}

// GalleryService converts the gallery section for the gallery package.
func (c GalleryConfig) GalleryService() gallery.Config {
	return gallery.Config{
		PSTHPrefix:         c.PSTHPrefix,
		DriftMetricsPrefix: c.DriftMetricsPrefix,
		CacheSize:          c.CacheSize,
		MaxWidth:           c.MaxWidth,
	}
}

// NeedsDatabase reports whether any component talks to Postgres.
func (c Config) NeedsDatabase() bool {
	return c.Session.Backend == "postgres" || strings.TrimSpace(c.Dataset.Query) != ""
}

func setDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()
	galleryDefaults := gallery.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("server.page_size", 200)

	v.SetDefault("dataset.path", "data/units.csv")
	v.SetDefault("dataset.sheet", "")
	v.SetDefault("dataset.header_row", -1)
	v.SetDefault("dataset.query", "")
	v.SetDefault("dataset.categorical_columns", []string{})

	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.pebble_dir", "data/sessions")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.prune_interval", time.Hour)

	v.SetDefault("storage.backend", "s3")
	v.SetDefault("storage.local_dir", "data/figures")
	v.SetDefault("storage.s3.region", "us-west-2")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.anonymous", true)
	v.SetDefault("storage.s3.use_path_style", false)

	v.SetDefault("gallery.psth_prefix", galleryDefaults.PSTHPrefix)
	v.SetDefault("gallery.drift_metrics_prefix", galleryDefaults.DriftMetricsPrefix)
	v.SetDefault("gallery.cache_size", galleryDefaults.CacheSize)
	v.SetDefault("gallery.max_width", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.add_source", false)
}

// Load reads config.yaml from configPath, when present, over the defaults and
// applies UNITDASH_* environment overrides.
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		cfg.File = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Session.Backend {
	case "memory", "pebble", "postgres":
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	switch c.Storage.Backend {
	case "s3", "local":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Server.PageSize <= 0 {
		return fmt.Errorf("server.page_size must be positive")
	}
	return nil
}
