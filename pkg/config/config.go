// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment variable read by the proxy, so the
// upstream address is taken from MODEL_PROXY_UPSTREAM_URL and so on.
const EnvPrefix = "MODEL_PROXY"

// Configuration keys. Environment variables are the upper-cased key with
// EnvPrefix prepended.
const (
	KeyConfigFile         = "config"
	KeyListenAddr         = "listen_addr"
	KeyUpstreamURL        = "upstream_url"
	KeyRoutePrefix        = "route_prefix"
	KeyRequestTimeout     = "request_timeout"
	KeyInsecureSkipVerify = "upstream_insecure"
	KeyLogLevel           = "log_level"
	KeyAppName            = "app_name"
	KeyAppEnv             = "app_env"
	KeyServerReadTimeout  = "server_read_timeout"
	KeyServerWriteTimeout = "server_write_timeout"
	KeyServerIdleTimeout  = "server_idle_timeout"
	KeyGracefulShutdown   = "graceful_shutdown"
	KeyMetricsEnabled     = "metrics_enabled"
	KeyStatsdAddr         = "statsd_addr"
	KeyMetricSamplingRate = "metric_sampling_rate"
)

const (
	defaultListenAddr         = "127.0.0.1:8080"
	defaultUpstreamURL        = "http://127.0.0.1:5000"
	defaultRoutePrefix        = "/flask"
	defaultRequestTimeout     = 15 * time.Second
	defaultLogLevel           = "info"
	defaultAppName            = "model-proxy"
	defaultAppEnv             = "local"
	defaultServerReadTimeout  = 30 * time.Second
	defaultServerWriteTimeout = 30 * time.Second
	defaultServerIdleTimeout  = 120 * time.Second
	defaultGracefulShutdown   = 10 * time.Second
	defaultStatsdAddr         = "localhost:8125"
	defaultMetricSamplingRate = 1.0
)

// Config captures runtime settings for the proxy. It is resolved once at
// startup and handed to every component that needs it.
type Config struct {
	ListenAddr              string
	Upstream                *url.URL
	RoutePrefix             string
	RequestTimeout          time.Duration
	InsecureSkipVerify      bool
	LogLevel                string
	AppName                 string
	AppEnv                  string
	ServerReadTimeout       time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	GracefulShutdownTimeout time.Duration
	MetricsEnabled          bool
	StatsdAddr              string
	MetricSamplingRate      float64
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyListenAddr, defaultListenAddr)
	v.SetDefault(KeyUpstreamURL, defaultUpstreamURL)
	v.SetDefault(KeyRoutePrefix, defaultRoutePrefix)
	v.SetDefault(KeyRequestTimeout, defaultRequestTimeout)
	v.SetDefault(KeyInsecureSkipVerify, false)
	v.SetDefault(KeyLogLevel, defaultLogLevel)
	v.SetDefault(KeyAppName, defaultAppName)
	v.SetDefault(KeyAppEnv, defaultAppEnv)
	v.SetDefault(KeyServerReadTimeout, defaultServerReadTimeout)
	v.SetDefault(KeyServerWriteTimeout, defaultServerWriteTimeout)
	v.SetDefault(KeyServerIdleTimeout, defaultServerIdleTimeout)
	v.SetDefault(KeyGracefulShutdown, defaultGracefulShutdown)
	v.SetDefault(KeyMetricsEnabled, false)
	v.SetDefault(KeyStatsdAddr, defaultStatsdAddr)
	v.SetDefault(KeyMetricSamplingRate, defaultMetricSamplingRate)
}

// Load resolves configuration from (in increasing priority) defaults, an
// optional YAML file named by the "config" key, a local .env file and the
// process environment. Flags bound to v by the caller win over all of them.
func Load(v *viper.Viper) (Config, error) {
	// A missing .env is the common case outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file := strings.TrimSpace(v.GetString(KeyConfigFile)); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	upstreamRaw := strings.TrimSpace(v.GetString(KeyUpstreamURL))
	if upstreamRaw == "" {
		return Config{}, errors.New("upstream_url is required")
	}
	upstream, err := url.Parse(upstreamRaw)
	if err != nil {
		return Config{}, fmt.Errorf("invalid upstream_url: %w", err)
	}
	if !upstream.IsAbs() || upstream.Host == "" {
		return Config{}, errors.New("upstream_url must be absolute (scheme://host)")
	}

	prefix := strings.TrimSpace(v.GetString(KeyRoutePrefix))
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		return Config{}, fmt.Errorf("route_prefix %q must start with /", prefix)
	}
	prefix = strings.TrimSuffix(prefix, "/")

	logLevel := strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel)))
	if _, err := zerolog.ParseLevel(logLevel); err != nil {
		return Config{}, fmt.Errorf("invalid log_level %q: %w", logLevel, err)
	}

	cfg := Config{
		ListenAddr:              strings.TrimSpace(v.GetString(KeyListenAddr)),
		Upstream:                upstream,
		RoutePrefix:             prefix,
		RequestTimeout:          v.GetDuration(KeyRequestTimeout),
		InsecureSkipVerify:      v.GetBool(KeyInsecureSkipVerify),
		LogLevel:                logLevel,
		AppName:                 strings.TrimSpace(v.GetString(KeyAppName)),
		AppEnv:                  strings.TrimSpace(v.GetString(KeyAppEnv)),
		ServerReadTimeout:       v.GetDuration(KeyServerReadTimeout),
		ServerWriteTimeout:      v.GetDuration(KeyServerWriteTimeout),
		ServerIdleTimeout:       v.GetDuration(KeyServerIdleTimeout),
		GracefulShutdownTimeout: v.GetDuration(KeyGracefulShutdown),
		MetricsEnabled:          v.GetBool(KeyMetricsEnabled),
		StatsdAddr:              strings.TrimSpace(v.GetString(KeyStatsdAddr)),
		MetricSamplingRate:      v.GetFloat64(KeyMetricSamplingRate),
	}

	// The write deadline starts before the handler calls upstream, so the
	// upstream timeout must fire first for the failure envelope to be written.
	if cfg.RequestTimeout > 0 && cfg.ServerWriteTimeout > 0 && cfg.RequestTimeout >= cfg.ServerWriteTimeout {
		return Config{}, fmt.Errorf("request_timeout (%s) must be shorter than server_write_timeout (%s)",
			cfg.RequestTimeout, cfg.ServerWriteTimeout)
	}

	return cfg, nil
}
