package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var configLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	configLogger = l
}

// Config represents the complete configuration structure
type Config struct {
	Drafts  DraftsConfig  `yaml:"drafts"`
	Storage StorageConfig `yaml:"storage"`
	Backend BackendConfig `yaml:"backend"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

type DraftsConfig struct {
	SaveDebounce    time.Duration `yaml:"save_debounce" default:"250ms"`
	GuardWindow     time.Duration `yaml:"guard_window" default:"500ms"`
	RemoteSyncDelay time.Duration `yaml:"remote_sync_delay" default:"2s"`
	MaxEntries      int           `yaml:"max_entries" default:"10"`

	// Retention prunes local drafts older than this on reset. 0 disables pruning.
	Retention time.Duration `yaml:"retention" default:"0s"`
}

type StorageConfig struct {
	Driver      string      `yaml:"driver" default:"sqlite"` // sqlite, redis, memory
	Path        string      `yaml:"path" default:"./drafts.db"`
	Compression string      `yaml:"compression" default:"zstd"` // zstd, gzip, none
	Redis       RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	URL    string `yaml:"url" default:"redis://localhost:6379/0"`
	Prefix string `yaml:"prefix" default:"draftsync:"`
}

type BackendConfig struct {
	Type    string        `yaml:"type" default:"http"` // http, s3, memory
	URL     string        `yaml:"url" default:"http://localhost:9000"`
	Timeout time.Duration `yaml:"timeout" default:"10s"`
	S3      S3Config      `yaml:"s3"`
}

type S3Config struct {
	Endpoint        string `yaml:"endpoint" default:""`
	Region          string `yaml:"region" default:"us-east-1"`
	Bucket          string `yaml:"bucket" default:"drafts"`
	Prefix          string `yaml:"prefix" default:"drafts/"`
	AccessKeyID     string `yaml:"access_key_id" default:""`
	SecretAccessKey string `yaml:"secret_access_key" default:""`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"false"`
	Addr    string `yaml:"addr" default:"127.0.0.1:9464"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"console"` // console, json
}

var AppConfig *Config

// Validate checks the relationships between settings that the defaults alone cannot guarantee.
func (c *Config) Validate() error {
	var errs []error

	if c.Drafts.SaveDebounce <= 0 {
		errs = append(errs, fmt.Errorf(ErrNonPositiveFmt, "drafts.save_debounce", c.Drafts.SaveDebounce))
	}
	if c.Drafts.GuardWindow <= c.Drafts.SaveDebounce {
		errs = append(errs, fmt.Errorf(ErrGuardWindowFmt, c.Drafts.GuardWindow, c.Drafts.SaveDebounce))
	}
	if c.Drafts.RemoteSyncDelay < 0 {
		errs = append(errs, fmt.Errorf(ErrNegativeFmt, "drafts.remote_sync_delay", c.Drafts.RemoteSyncDelay))
	}
	if c.Drafts.Retention < 0 {
		errs = append(errs, fmt.Errorf(ErrNegativeFmt, "drafts.retention", c.Drafts.Retention))
	}
	if c.Drafts.MaxEntries <= 0 {
		errs = append(errs, fmt.Errorf(ErrNonPositiveFmt, "drafts.max_entries", c.Drafts.MaxEntries))
	}

	if !oneOf(c.Storage.Driver, "sqlite", "redis", "memory") {
		errs = append(errs, fmt.Errorf(ErrUnknownValueFmt, "storage.driver", c.Storage.Driver))
	}
	if !oneOf(c.Storage.Compression, "zstd", "gzip", "none") {
		errs = append(errs, fmt.Errorf(ErrUnknownValueFmt, "storage.compression", c.Storage.Compression))
	}

	switch c.Backend.Type {
	case "http":
		if c.Backend.URL == "" {
			errs = append(errs, fmt.Errorf(ErrRequiredFmt, "backend.url"))
		}
	case "s3":
		if c.Backend.S3.Bucket == "" {
			errs = append(errs, fmt.Errorf(ErrRequiredFmt, "backend.s3.bucket"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf(ErrUnknownValueFmt, "backend.type", c.Backend.Type))
	}

	return errors.Join(errs...)
}

func LoadConfig(path string) error {
	config := &Config{}

	// Apply default values first
	applyDefaults(config)

	data, err := os.ReadFile(path)
	if err != nil {
		// If file doesn't exist, just use defaults
		configLogger.Info().Str("path", path).Msg("Config file not found, using defaults")
	} else if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(config)

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	AppConfig = config
	return nil
}

// Environment overrides, usually loaded from .env. Secrets belong here rather than in
// config.yaml.
const (
	EnvBackendURL        = "DRAFTSYNC_BACKEND_URL"
	EnvBackendType       = "DRAFTSYNC_BACKEND_TYPE"
	EnvS3Endpoint        = "DRAFTSYNC_S3_ENDPOINT"
	EnvS3AccessKeyID     = "DRAFTSYNC_S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "DRAFTSYNC_S3_SECRET_ACCESS_KEY"
	EnvRedisURL          = "DRAFTSYNC_REDIS_URL"
	EnvStoragePath       = "DRAFTSYNC_STORAGE_PATH"
	EnvLogLevel          = "DRAFTSYNC_LOG_LEVEL"
)

func applyEnv(config *Config) {
	overrides := []struct {
		env   string
		field *string
	}{
		{EnvBackendURL, &config.Backend.URL},
		{EnvBackendType, &config.Backend.Type},
		{EnvS3Endpoint, &config.Backend.S3.Endpoint},
		{EnvS3AccessKeyID, &config.Backend.S3.AccessKeyID},
		{EnvS3SecretAccessKey, &config.Backend.S3.SecretAccessKey},
		{EnvRedisURL, &config.Storage.Redis.URL},
		{EnvStoragePath, &config.Storage.Path},
		{EnvLogLevel, &config.Logging.Level},
	}

	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok && v != "" {
			*o.field = v
			configLogger.Debug().Str("env", o.env).Msg("Config overridden from environment")
		}
	}
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func ApplyDefaults(config interface{}) {
	applyDefaults(config)
}

var durationType = reflect.TypeOf(time.Duration(0))

func applyDefaults(config interface{}) {
	v := reflect.ValueOf(config)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.IsValid() || !field.CanSet() {
			continue
		}

		// Recursively apply defaults to nested structs
		if field.Kind() == reflect.Struct {
			applyDefaults(field.Addr().Interface())
			continue
		}

		defaultValue := fieldType.Tag.Get("default")
		if defaultValue == "" {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(defaultValue)
		case reflect.Bool:
			if val, err := strconv.ParseBool(defaultValue); err == nil {
				field.SetBool(val)
			}
		case reflect.Int64:
			if field.Type() == durationType {
				if val, err := time.ParseDuration(defaultValue); err == nil {
					field.SetInt(int64(val))
				}
				continue
			}
			fallthrough
		case reflect.Int:
			if val, err := strconv.ParseInt(defaultValue, 10, 64); err == nil {
				field.SetInt(val)
			}
		case reflect.Float64:
			if val, err := strconv.ParseFloat(defaultValue, 64); err == nil {
				field.SetFloat(val)
			}
		case reflect.Slice:
			if field.Len() == 0 && field.Type().Elem().Kind() == reflect.String {
				parts := strings.Split(defaultValue, ",")
				slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
				for j, part := range parts {
					slice.Index(j).SetString(strings.TrimSpace(part))
				}
				field.Set(slice)
			}
		default:
			configLogger.Warn().
				Str("field_name", fieldType.Name).
				Str("field_type", field.Kind().String()).
				Msg("Unsupported field type for default value")
		}
	}
}
