// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-core-stack/model-proxy/pkg/config"
	"github.com/go-core-stack/model-proxy/pkg/envelope"
	"github.com/go-core-stack/model-proxy/pkg/proxy"
)

func TestVersionCommand(t *testing.T) {
	root := newRootCmd(viper.New())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "model-proxy dev\n", out.String())
}

func TestFlagsOverrideConfig(t *testing.T) {
	v := viper.New()
	root := newRootCmd(v)
	require.NoError(t, root.ParseFlags([]string{"--upstream-url", "http://10.1.1.1:5000", "--log-level", "debug"}))

	cfg, err := config.Load(v)
	require.NoError(t, err)
	assert.Equal(t, "http://10.1.1.1:5000", cfg.Upstream.String())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	v := viper.New()
	v.Set(config.KeyListenAddr, "127.0.0.1:0")
	v.Set(config.KeyAppEnv, "test")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, v) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after context cancel")
	}
}

func TestRunWrapsMetricsInitError(t *testing.T) {
	v := viper.New()
	v.Set(config.KeyListenAddr, "127.0.0.1:0")
	v.Set(config.KeyAppEnv, "test")
	v.Set(config.KeyMetricsEnabled, true)
	v.Set(config.KeyStatsdAddr, "statsd-without-port")

	err := run(context.Background(), v)
	assert.ErrorContains(t, err, "init metrics: statsd client initialization failed")
}

func TestWaitForShutdownReportsServeError(t *testing.T) {
	serveErr := make(chan error, 1)
	serveErr <- errors.New("address already in use")

	err := waitForShutdown(context.Background(), &http.Server{}, serveErr, time.Second)
	assert.ErrorContains(t, err, "address already in use")
}

func TestServeWritesFailureEnvelopeWhenUpstreamHangs(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()
	defer close(release)

	v := viper.New()
	v.Set(config.KeyUpstreamURL, upstream.URL)
	v.Set(config.KeyRequestTimeout, "200ms")
	v.Set(config.KeyServerWriteTimeout, "2s")
	v.Set(config.KeyAppEnv, "test")
	cfg, err := config.Load(v)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, ln) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("serve did not return after context cancel")
		}
	}()

	base := "http://" + ln.Addr().String()
	client := &http.Client{Timeout: 5 * time.Second}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		prefix string
	}{
		{name: "file names", method: http.MethodGet, path: "/flask/file_names", prefix: proxy.MsgListModelsFailed},
		{name: "predict", method: http.MethodPost, path: "/flask/predict", body: `{"weight":"corn_best.pt"}`, prefix: proxy.MsgPredictFailed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, base+tc.path, strings.NewReader(tc.body))
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/json")

			resp, err := client.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

			var env envelope.Envelope
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
			assert.Equal(t, envelope.CodeFailure, env.Code)
			assert.Nil(t, env.Data)
			assert.True(t, strings.HasPrefix(env.Msg, tc.prefix+": upstream timeout"), env.Msg)
		})
	}
}
