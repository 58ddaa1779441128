// Package gateway serves the AMF inspection endpoint over HTTP.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/danmuck/amfgate/internal/auth"
	"github.com/danmuck/amfgate/internal/config"
	"github.com/danmuck/amfgate/internal/inspect"
	"github.com/danmuck/amfgate/internal/observability"
	"github.com/danmuck/amfgate/internal/protocol"
	"github.com/danmuck/amfgate/internal/protocol/schema"
	"github.com/danmuck/amfgate/internal/protocol/stream"
	"github.com/danmuck/amfgate/internal/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	Version         = "0.1.0"
	ContentTypeAMF  = "application/x-amf"
	shutdownTimeout = 5 * time.Second
)

// Dispatcher receives every successfully parsed envelope. The returned
// document is rendered back to the client.
type Dispatcher interface {
	Dispatch(ctx context.Context, env *protocol.Envelope) (any, error)
}

// InspectDispatcher answers with the envelope summary.
type InspectDispatcher struct {
	Registry *schema.Registry
}

func (d InspectDispatcher) Dispatch(_ context.Context, env *protocol.Envelope) (any, error) {
	return inspect.Build(env, d.Registry), nil
}

type Gateway struct {
	cfg        config.GatewayConfig
	format     inspect.Format
	registry   *schema.Registry
	reader     *protocol.Reader
	dispatcher Dispatcher
	router     *gin.Engine
	started    time.Time
	ready      atomic.Bool
}

// New validates cfg and builds a gateway from it. A nil dispatcher is chosen
// by cfg.Mode.
func New(cfg config.GatewayConfig, dispatcher Dispatcher) (*Gateway, error) {
	if err := config.ValidateGatewayConfig(cfg); err != nil {
		return nil, err
	}
	format, err := inspect.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	registry, err := BuildRegistry(cfg.MessageClasses)
	if err != nil {
		return nil, err
	}
	if dispatcher == nil {
		switch cfg.Mode {
		case config.ModeRoutes:
			dispatcher = services.NewRouter(BuildServices(cfg.Destinations), registry)
		default:
			dispatcher = InspectDispatcher{Registry: registry}
		}
	}

	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger, cfg.Name))
	r.Use(observability.RequestMetricsMiddleware(cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	g := &Gateway{
		cfg:      cfg,
		format:   format,
		registry: registry,
		reader: protocol.NewReader(
			protocol.WithLimits(cfg.Limits()),
			protocol.WithRegistry(registry),
			protocol.WithLogger(log.Logger),
		),
		dispatcher: dispatcher,
		router:     r,
		started:    time.Now(),
	}
	g.registerRoutes()
	return g, nil
}

// BuildRegistry extends the default Flex classes with configured ones.
func BuildRegistry(classes []config.MessageClass) (*schema.Registry, error) {
	reg := schema.DefaultRegistry()
	for _, mc := range classes {
		kind := schema.MessageKind(mc.Kind)
		switch kind {
		case "":
			kind = schema.KindCustom
		case schema.KindRemoting, schema.KindCommand, schema.KindAcknowledge,
			schema.KindAsync, schema.KindError, schema.KindCustom:
		default:
			return nil, fmt.Errorf("gateway: unknown message kind %q for %s", mc.Kind, mc.Class)
		}
		reg.Register(mc.Class, kind)
	}
	return reg, nil
}

// BuildServices turns configured destinations into a service catalogue.
func BuildServices(dests []config.Destination) *services.ServiceRegistry {
	sr := services.NewServiceRegistry()
	for _, d := range dests {
		sr.Register(services.Destination{ID: d.Name, Ops: d.Operations})
	}
	return sr
}

func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) registerRoutes() {
	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(g.started).String(),
			"service": g.cfg.Name,
			"version": Version,
		})
	})

	g.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	g.router.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !g.ready.Load() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   g.ready.Load(),
			"uptime":  time.Since(g.started).String(),
			"service": g.cfg.Name,
			"classes": g.registry.Classes(),
			"version": Version,
		})
	})

	if g.cfg.AuthToken != "" {
		g.router.POST(g.cfg.Path, auth.Middleware(auth.StaticToken{Token: g.cfg.AuthToken}), g.handleEnvelope)
		return
	}
	g.router.POST(g.cfg.Path, g.handleEnvelope)
}

func (g *Gateway) handleEnvelope(c *gin.Context) {
	format := g.format
	if raw := c.Query("format"); raw != "" {
		f, err := inspect.ParseFormat(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		format = f
	}

	if ct := c.ContentType(); ct != "" && ct != ContentTypeAMF {
		log.Debug().Str("gateway", g.cfg.Name).Str("content_type", ct).Msg("gateway unexpected content type")
	}

	limits := g.cfg.Limits()
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, int64(limits.MaxPayloadBytes)+1))
	if err != nil {
		observability.RecordEnvelopeFailure(g.cfg.Name, "read", len(raw))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	env, err := g.reader.Parse(raw)
	if err != nil {
		reason := failureReason(err)
		observability.RecordEnvelopeFailure(g.cfg.Name, reason, len(raw))
		c.Set(observability.KeyParseError, err.Error())
		status := http.StatusBadRequest
		if reason == "payload" {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, parseErrorBody(err, reason))
		return
	}
	env.SetTime(time.Now())
	if creds, ok := auth.FromEnvelope(env); ok {
		c.Set(observability.KeyEnvelopeUser, creds.UserID)
	}

	version := env.ClientVersion().String()
	encoding := env.ObjectEncoding().String()
	observability.RecordEnvelope(g.cfg.Name, version, encoding, len(raw), len(env.Bodies()))
	c.Set(observability.KeyEnvelopeVersion, version)
	c.Set(observability.KeyEnvelopeEncoding, encoding)
	c.Set(observability.KeyEnvelopeBodies, len(env.Bodies()))

	out, err := g.dispatcher.Dispatch(c.Request.Context(), env)
	if err != nil {
		log.Error().Str("gateway", g.cfg.Name).Err(err).Msg("gateway dispatch failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	b, err := inspect.Marshal(format, out)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, format.ContentType(), b)
}

func failureReason(err error) string {
	var derr *protocol.DecodeError
	switch {
	case errors.Is(err, stream.ErrPayloadTooLarge):
		return "payload"
	case errors.Is(err, protocol.ErrUnknownVersion):
		return "version"
	case errors.As(err, &derr):
		return string(derr.Phase)
	default:
		return "other"
	}
}

func parseErrorBody(err error, reason string) gin.H {
	body := gin.H{"error": err.Error(), "reason": reason}
	var derr *protocol.DecodeError
	if errors.As(err, &derr) {
		body["phase"] = derr.Phase
		body["index"] = derr.Index
		body["field"] = derr.Field
		if derr.Name != "" {
			body["name"] = derr.Name
		}
	}
	var verr *protocol.VersionError
	if errors.As(err, &verr) {
		body["marker"] = verr.Marker
	}
	return body
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              g.cfg.Addr,
		Handler:           g.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if g.cfg.TLS() {
			serveErr <- srv.ListenAndServeTLS(g.cfg.TLSCertFile, g.cfg.TLSKeyFile)
			return
		}
		serveErr <- srv.ListenAndServe()
	}()
	g.ready.Store(true)
	log.Info().
		Str("gateway", g.cfg.Name).
		Str("addr", g.cfg.Addr).
		Str("path", g.cfg.Path).
		Bool("tls", g.cfg.TLS()).
		Msg("gateway listening")

	select {
	case err := <-serveErr:
		g.ready.Store(false)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	g.ready.Store(false)
	log.Info().Str("gateway", g.cfg.Name).Msg("gateway shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// SetReady overrides readiness, e.g. when the handler is mounted elsewhere.
func (g *Gateway) SetReady(v bool) {
	g.ready.Store(v)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
