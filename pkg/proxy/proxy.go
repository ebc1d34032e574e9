// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/model-proxy/pkg/config"
	"github.com/go-core-stack/model-proxy/pkg/envelope"
	"github.com/go-core-stack/model-proxy/pkg/metric"
	"github.com/go-core-stack/model-proxy/pkg/middleware"
	"github.com/go-core-stack/model-proxy/pkg/upstream"
)

// Failure message prefixes, one per operation.
const (
	MsgListModelsFailed = "failed to retrieve model list"
	MsgPredictFailed    = "prediction failed"
)

// Inbound routes, relative to the configured prefix.
const (
	RouteFileNames = "/file_names"
	RoutePredict   = "/predict"
	RouteHealth    = "/healthz"
)

var errNotObject = errors.New("request body must be a JSON object")

// Forwarder performs the upstream calls. upstream.Client is the production
// implementation.
type Forwarder interface {
	ListModels(ctx context.Context) ([]byte, error)
	Predict(ctx context.Context, payload []byte) ([]byte, error)
}

// Proxy routes inbound calls to a Forwarder and renders envelopes.
type Proxy struct {
	// upstream performs the single outbound call of each request.
	upstream Forwarder
	// logger emits structured logs for observability.
	logger zerolog.Logger
	// router dispatches inbound paths to the operations below.
	router *gin.Engine
}

// New constructs a Proxy that forwards to the upstream named in cfg.
func New(cfg config.Config) (http.Handler, error) {
	if cfg.Upstream == nil {
		return nil, errors.New("upstream url is not configured")
	}
	return NewWithForwarder(cfg, upstream.New(cfg)), nil
}

// NewWithForwarder constructs a Proxy around an existing Forwarder.
func NewWithForwarder(cfg config.Config, fwd Forwarder) *Proxy {
	p := &Proxy{
		upstream: fwd,
		logger:   log.With().Str("component", "proxy").Logger(),
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(middleware.HTTPLogger(), middleware.HTTPRecovery())
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, envelope.Failure("not found", fmt.Errorf("no route for %s", c.Request.URL.Path)))
	})
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, envelope.Failure("method not allowed", fmt.Errorf("%s %s", c.Request.Method, c.Request.URL.Path)))
	})

	router.GET(RouteHealth, p.Health)
	api := router.Group(cfg.RoutePrefix)
	{
		api.GET(RouteFileNames, p.ListModels)
		api.POST(RoutePredict, p.Predict)
	}

	p.router = router
	return p
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.router.ServeHTTP(w, r)
}

// ListModels forwards to the upstream model list.
func (p *Proxy) ListModels(c *gin.Context) {
	start := time.Now()
	body, err := p.upstream.ListModels(c.Request.Context())
	p.respond(c, MsgListModelsFailed, body, err, start)
}

// Predict forwards the request body, which must be a JSON object, to the
// upstream prediction endpoint without altering it.
func (p *Proxy) Predict(c *gin.Context) {
	start := time.Now()
	payload, err := readObject(c)
	if err != nil {
		p.respond(c, MsgPredictFailed, nil, err, start)
		return
	}
	body, err := p.upstream.Predict(c.Request.Context(), payload)
	p.respond(c, MsgPredictFailed, body, err, start)
}

// Health answers liveness checks without touching the upstream.
func (p *Proxy) Health(c *gin.Context) {
	c.JSON(http.StatusOK, envelope.Envelope{Code: envelope.CodeSuccess, Msg: envelope.MsgSuccess})
}

func (p *Proxy) respond(c *gin.Context, prefix string, body []byte, err error, start time.Time) {
	event := p.logger.With().
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Logger()

	if err != nil {
		event.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg(prefix)
		countEnvelope(c, envelope.CodeFailure)
		c.JSON(http.StatusInternalServerError, envelope.Failure(prefix, err))
		return
	}

	event.Debug().
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("request proxied")
	countEnvelope(c, envelope.CodeSuccess)
	c.JSON(http.StatusOK, envelope.Success(body))
}

func countEnvelope(c *gin.Context, code int) {
	metric.Incr(metric.ApiEnvelopeCount, metric.BuildTag(
		metric.NewTag(metric.TagPath, c.FullPath()),
		metric.NewTag(metric.TagEnvelopeCode, strconv.Itoa(code)),
	))
}

// readObject returns the raw request body after checking that it decodes to
// a JSON object. The bytes themselves are forwarded as received.
func readObject(c *gin.Context) ([]byte, error) {
	raw, err := c.GetRawData()
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode request body: %w", err)
	}
	if obj == nil {
		return nil, errNotObject
	}
	return raw, nil
}
