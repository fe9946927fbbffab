package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "CTRADE"

type HTTPConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type AppConfig struct {
	ServiceName string     `mapstructure:"service_name"`
	Env         string     `mapstructure:"env"`
	LogLevel    string     `mapstructure:"log_level"`
	MetricsPath string     `mapstructure:"metrics_path"`
	HTTP        HTTPConfig `mapstructure:"http"`
}

// NewViper returns a viper instance bound to CTRADE_* environment variables
// and, when present, the yaml file at path.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = "config.yaml"
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !isMissingConfig(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func Load(path string) (*AppConfig, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (*AppConfig, error) {
	setDefaults(v)

	cfg := AppConfig{
		ServiceName: v.GetString("app.service_name"),
		Env:         v.GetString("app.env"),
		LogLevel:    v.GetString("app.log_level"),
		MetricsPath: v.GetString("app.metrics_path"),
		HTTP: HTTPConfig{
			Host:            v.GetString("app.http.host"),
			Port:            v.GetInt("app.http.port"),
			ReadTimeout:     v.GetDuration("app.http.read_timeout"),
			WriteTimeout:    v.GetDuration("app.http.write_timeout"),
			IdleTimeout:     v.GetDuration("app.http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("app.http.shutdown_timeout"),
		},
	}
	if cfg.HTTP.Port <= 0 {
		return nil, fmt.Errorf("app.http.port must be positive")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.service_name", "ledger-service")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.metrics_path", "/metrics")
	v.SetDefault("app.http.host", "0.0.0.0")
	v.SetDefault("app.http.port", 8080)
	v.SetDefault("app.http.read_timeout", "5s")
	v.SetDefault("app.http.write_timeout", "10s")
	v.SetDefault("app.http.idle_timeout", "60s")
	v.SetDefault("app.http.shutdown_timeout", "10s")
}

// SetConfigFile with a missing file surfaces an fs error rather than
// viper.ConfigFileNotFoundError.
func isMissingConfig(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	return errors.Is(err, fs.ErrNotExist)
}
