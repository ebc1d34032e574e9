// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package metric emits request and upstream metrics over statsd.
package metric

import (
	"fmt"
	"io"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/model-proxy/pkg/config"
)

const (
	ApiRequestCount           = "api_request_count"
	ApiRequestLatency         = "api_request_latency"
	ExternalApiRequestCount   = "external_api_request_count"
	ExternalApiRequestLatency = "external_api_request_latency"
	ApiEnvelopeCount          = "api_envelope_count"
)

// Sink is the subset of the statsd client used by the proxy.
type Sink interface {
	Timing(name string, value time.Duration, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
}

// sink and samplingRate are replaced once at startup, before the server
// accepts traffic. Until then metrics are discarded.
var (
	sink         Sink    = &statsd.NoOpClient{}
	samplingRate float64 = 1.0
)

// Init points the package at a statsd agent when metrics are enabled. With
// metrics disabled every call is a no-op.
func Init(cfg config.Config) error {
	if !cfg.MetricsEnabled {
		log.Info().Msg("metrics disabled")
		return nil
	}

	globalTags := []string{
		TagAsString(TagEnv, cfg.AppEnv),
		TagAsString(TagService, cfg.AppName),
	}
	client, err := statsd.New(cfg.StatsdAddr, statsd.WithTags(globalTags))
	if err != nil {
		return fmt.Errorf("statsd client initialization failed: %w", err)
	}

	SetSink(client, cfg.MetricSamplingRate)
	log.Info().
		Str("statsd_addr", cfg.StatsdAddr).
		Strs("global_tags", globalTags).
		Float64("sampling_rate", cfg.MetricSamplingRate).
		Msg("metrics client initialized")
	return nil
}

// SetSink swaps the destination of all metrics.
func SetSink(s Sink, rate float64) {
	if s == nil {
		s = &statsd.NoOpClient{}
	}
	sink = s
	samplingRate = rate
}

// Close flushes and releases the current sink if it holds resources.
func Close() error {
	if c, ok := sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Timing sends timing information
func Timing(name string, value time.Duration, tags []string) {
	if err := sink.Timing(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("statsd timing failed")
	}
}

// Count increases metric counter by value
func Count(name string, value int64, tags []string) {
	if err := sink.Count(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("statsd count failed")
	}
}

// Incr increases metric counter by 1
func Incr(name string, tags []string) {
	Count(name, 1, tags)
}
