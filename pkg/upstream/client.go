// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package upstream talks to the model-serving process. Payloads are treated
// as opaque bytes in both directions.
package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/model-proxy/pkg/config"
	"github.com/go-core-stack/model-proxy/pkg/metric"
)

const (
	// PathFileNames lists the model weights known to the upstream.
	PathFileNames = "/file_names"
	// PathPredict runs inference on the posted parameters.
	PathPredict = "/predict"

	serviceName = "model-server"

	// maxErrorBody bounds how much of a failed upstream body ends up in errors.
	maxErrorBody = 4 * 1024
)

// Client performs the outbound calls to the model server. It is safe for
// concurrent use; one instance is shared by all inbound requests.
type Client struct {
	// client performs outbound HTTP requests with tuned transport settings.
	client *http.Client
	// baseURL is the parsed upstream address that paths are resolved against.
	baseURL *url.URL
	logger  zerolog.Logger
}

// New constructs a Client backed by an http.Client configured with
// connection pooling defaults and the configured request timeout. A zero
// timeout leaves requests bounded only by their context.
func New(cfg config.Config) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, // nolint:gosec -- opt-in for development scenarios
		},
	}

	return &Client{
		client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
		baseURL: cloneURL(cfg.Upstream),
		logger:  log.With().Str("component", "upstream").Logger(),
	}
}

// ListModels fetches the raw model list payload.
func (c *Client) ListModels(ctx context.Context) ([]byte, error) {
	return c.do(ctx, http.MethodGet, PathFileNames, nil)
}

// Predict posts payload unchanged and returns the raw prediction payload.
func (c *Client) Predict(ctx context.Context, payload []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, PathPredict, payload)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	start := time.Now()
	target := c.resolve(path)
	event := c.logger.With().
		Str("method", method).
		Str("url", target.String()).
		Logger()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		record(path, "error", start)
		event.Error().Err(err).Dur("duration", time.Since(start)).Msg("upstream request failed")
		return nil, classify(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			event.Error().Err(closeErr).Msg("close upstream response body failed")
		}
	}()

	record(path, strconv.Itoa(resp.StatusCode), start)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		event.Warn().
			Int("status", resp.StatusCode).
			Bytes("upstream_body", excerpt).
			Msg("upstream returned error")
		return nil, &StatusError{Status: resp.StatusCode, Body: string(excerpt)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		event.Error().Err(err).Msg("read upstream response body failed")
		return nil, fmt.Errorf("read upstream response: %w", classify(err))
	}

	event.Debug().
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("upstream request completed")
	return data, nil
}

// resolve joins path onto the configured base, keeping any base path prefix.
func (c *Client) resolve(path string) *url.URL {
	target := cloneURL(c.baseURL)
	target.Path = singleJoiningSlash(target.Path, path)
	target.RawPath = ""
	return target
}

// classify marks timeouts so callers can tell them apart with errors.As.
// A cancelled caller context is not a timeout and only gets wrapped.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("upstream request cancelled: %w", err)
	}
	return err
}

func record(path, status string, start time.Time) {
	tags := metric.BuildTag(
		metric.NewTag(metric.TagExternalService, serviceName),
		metric.NewTag(metric.TagPath, path),
		metric.NewTag(metric.TagHttpStatusCode, status),
	)
	metric.Incr(metric.ExternalApiRequestCount, tags)
	metric.Timing(metric.ExternalApiRequestLatency, time.Since(start), tags)
}

func singleJoiningSlash(a, b string) string {
	switch aslash, bslash := len(a) > 0 && a[len(a)-1] == '/', len(b) > 0 && b[0] == '/'; {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

// cloneURL makes a shallow copy of the provided URL pointer.
func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return &url.URL{}
	}
	clone := *u
	return &clone
}
