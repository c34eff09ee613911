package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"tw-tick-api/src/governor"
	"tw-tick-api/src/helpers"
	"tw-tick-api/src/logger"
	"tw-tick-api/src/models"
	"tw-tick-api/src/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// -----------------------------------------------------------------------------
// FastAPIServer
// -----------------------------------------------------------------------------

// FastAPIServer serves the REST read paths and the WebSocket streams.
type FastAPIServer struct {
	Config   *models.MConfig
	Logger   *logger.Logger
	Query    *service.QueryService
	Governor *governor.ConnectionGovernor
	Sources  []string

	engine     *gin.Engine
	handler    http.Handler
	httpServer *http.Server
	errHandler *helpers.ErrorHandler

	// WebSocket clients, owned by the hub loop
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	stopOnce   sync.Once
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewFastAPIServer(cfg *models.MConfig, query *service.QueryService, gov *governor.ConnectionGovernor, sources []string, log *logger.Logger) *FastAPIServer {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &FastAPIServer{
		Config:     cfg,
		Logger:     log,
		Query:      query,
		Governor:   gov,
		Sources:    sources,
		engine:     gin.New(),
		errHandler: helpers.NewErrorHandler(log),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
	}

	// RemoteAddr is the client IP; forwarded headers are not trusted
	_ = s.engine.SetTrustedProxies(nil)
	s.engine.Use(gin.Recovery(), s.requestLogger(), s.cors())

	s.setupRoutes()
	s.handler = otelhttp.NewHandler(s.engine, cfg.Name)
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.handleWebsockets()
	return s
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *FastAPIServer) cors() gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]struct{}, len(s.Config.CorsOrigins))
	for _, o := range s.Config.CorsOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowAll {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if _, ok := allowed[origin]; ok && origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// -----------------------------------------------------------------------------

// rateLimit applies the per-IP REST request cap.
func (s *FastAPIServer) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Governor.CheckRestRate(c.ClientIP()); err != nil {
			s.abortWithError(c, err)
			return
		}
		c.Next()
	}
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Debug("%s %s -> %d (%s, %s)", c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start).Round(time.Microsecond), c.ClientIP())
	}
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *FastAPIServer) setupRoutes() {
	s.engine.GET("/", s.getRoot)
	s.engine.GET("/api/health", s.getHealth)

	api := s.engine.Group("/api/v1/tick-data", s.rateLimit())
	api.GET("/:stock_id/date/:date", s.getTickDataByDate)
	api.GET("/:stock_id/range/:start_date/:end_date", s.getTickDataByRange)
	api.GET("/:stock_id/latest", s.getLatestTick)
	api.GET("/price/round/:price", s.getRoundPrice)
	api.GET("/stocks", s.getStocks)

	// WebSocket endpoints
	s.engine.GET("/ws/tick/:stock_id/:date", s.handleTickStream)
	s.engine.GET("/ws/heartbeat", s.handleHeartbeat)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Handler is the instrumented root handler.
func (s *FastAPIServer) Handler() http.Handler {
	return s.handler
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) Start() error {
	s.Logger.Info("Starting server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

// Stop drains HTTP requests and cancels every open WebSocket session.
func (s *FastAPIServer) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.quit) })
	return s.httpServer.Shutdown(ctx)
}
