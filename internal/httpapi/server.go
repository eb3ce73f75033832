// Package httpapi is the HTTP host of binwatch: the JSON API used by the
// dashboard and devices, the websocket push channel and the metrics endpoint.
package httpapi

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"

	"github.com/xtxerr/binwatch/config"
	"github.com/xtxerr/binwatch/internal/broadcast"
	"github.com/xtxerr/binwatch/internal/engine"
	"github.com/xtxerr/binwatch/internal/errors"
	"github.com/xtxerr/binwatch/internal/logging"
	"github.com/xtxerr/binwatch/internal/metrics"
	"github.com/xtxerr/binwatch/internal/storage/query"
)

var log = logging.Component("http")

// Config holds HTTP host configuration.
type Config struct {
	// Listen is the address to bind.
	Listen string

	// AllowedOrigins for CORS and websocket upgrades. Empty allows any
	// origin.
	AllowedOrigins []string

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// WriteTimeout bounds a single websocket write.
	WriteTimeout time.Duration
}

// Deps are the components the API serves.
type Deps struct {
	Engine  *engine.Engine
	Hub     *broadcast.Hub
	Query   *query.Service // optional, /daily answers 503 without it
	Metrics *metrics.Metrics

	// Status adds named sections to /api/status.
	Status map[string]func() any
}

// Server is the HTTP host.
type Server struct {
	cfg     Config
	engine  *engine.Engine
	hub     *broadcast.Hub
	query   *query.Service
	metrics *metrics.Metrics
	status  map[string]func() any

	router   *gin.Engine
	handler  http.Handler
	upgrader *websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// New creates the server and registers its routes.
func New(cfg Config, deps Deps) *Server {
	if cfg.Listen == "" {
		cfg.Listen = config.DefaultListenAddress
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = config.DefaultShutdownTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = config.DefaultWebsocketWriteTimeout
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:     cfg,
		engine:  deps.Engine,
		hub:     deps.Hub,
		query:   deps.Query,
		metrics: deps.Metrics,
		status:  deps.Status,
		router:  router,
		ready:   make(chan struct{}),
	}
	s.upgrader = s.newUpgrader()
	router.Use(s.requestLogger())
	s.registerRoutes()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(router)

	return s
}

// Handler returns the root handler including CORS.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) registerRoutes() {
	r := s.router

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.GET("/ws", s.handleWebsocket)

	api := r.Group("/api")
	api.POST("/ingest", s.handleIngest)
	api.POST("/sensors", s.handleSensor)
	api.POST("/classifications", s.handleClassification)
	api.POST("/ack", s.handleAck)
	api.POST("/override", s.handleOverride)

	api.GET("/last", s.handleLast)
	api.GET("/history", s.handleHistory)
	api.GET("/classifications", s.handleClassifications)
	api.GET("/export.csv", s.handleExport)
	api.GET("/pickups", s.handlePickups)

	api.GET("/status", s.handleStatus)
	api.GET("/bins", s.handleBins)

	bin := api.Group("/bins/:id", tagBin)
	bin.GET("", s.handleBin)
	bin.GET("/series", s.handleSeries)
	bin.GET("/predict", s.handlePredict)
	bin.GET("/stats", s.handleStats)
	bin.GET("/daily", s.handleDaily)
}

// tagBin adds the path bin id to the request context for logging.
func tagBin(c *gin.Context) {
	c.Request = c.Request.WithContext(logging.ContextWithBinID(c.Request.Context(), c.Param("id")))
	c.Next()
}

// requestLogger tags each request with an id and records it.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(logging.ContextWithRequestID(c.Request.Context(), requestID))

		c.Next()

		status := c.Writer.Status()
		elapsed := time.Since(start)
		s.metrics.HTTPRequest(c.FullPath(), status, elapsed)
		logging.WithContext(c.Request.Context()).Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", elapsed)
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return errors.Wrapf(err, "listen %s", s.cfg.Listen)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Hijacked websocket connections are not closed by Shutdown; they
		// watch the request context instead.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info("http listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Addr blocks until the server is listening and returns its address.
func (s *Server) Addr() net.Addr {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener.Addr()
}

// fail writes err as a JSON error with the mapped status.
func fail(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.WithContext(c.Request.Context()).Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
