// Package server is the reconciliation server devices sync with. It keeps
// the authoritative ledger in memory, answers every mutation endpoint the
// device queue routes to, and serves the snapshot devices refresh from.
package server

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
)

// Server wires a Ledger to HTTP.
type Server struct {
	ledger  *Ledger
	cache   IdempotencyCache
	log     *zap.Logger
	secret  []byte
	origins []string
	router  *gin.Engine
}

type Option func(*Server)

func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithCache replaces the default in-memory idempotency cache.
func WithCache(c IdempotencyCache) Option { return func(s *Server) { s.cache = c } }

// WithJWTSecret requires a device token signed with secret on /api routes.
func WithJWTSecret(secret string) Option {
	return func(s *Server) {
		if secret != "" {
			s.secret = []byte(secret)
		}
	}
}

func WithAllowedOrigins(origins []string) Option { return func(s *Server) { s.origins = origins } }

func New(ledger *Ledger, opts ...Option) *Server {
	s := &Server{
		ledger: ledger,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = NewMemoryCache(DefaultCacheTTL)
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests)
	r.Use(cors.New(corsConfig(s.origins)))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	if s.secret != nil {
		api.Use(s.authenticate)
	}
	api.GET("/snapshot", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.ledger.Snapshot())
	})

	api.Use(s.idempotent)
	{
		api.POST("/products", s.create(bind(s.ledger.CreateProduct)))
		api.POST("/products/bulk", s.create(bind(s.ledger.ImportProducts)))
		api.PUT("/products/:id", s.update(bindID(s.ledger.UpdatePricing)))
		api.DELETE("/products/:id", s.update(byID(s.ledger.DeleteProduct)))

		api.POST("/inventory/addition", s.create(bind(s.ledger.AddInventory)))

		api.POST("/transfer", s.create(bind(s.ledger.CreateTransfer)))
		api.POST("/transfer/:id/confirm", s.update(byID(s.ledger.ConfirmTransfer)))
		api.POST("/transfer/:id/cancel", s.update(byID(s.ledger.CancelTransfer)))

		api.POST("/inventory/pending-changes", s.create(bind(s.ledger.RequestChange)))
		api.POST("/inventory/pending-changes/:id/approve", s.update(byID(s.ledger.ApproveChange)))
		api.POST("/inventory/pending-changes/:id/reject", s.update(byID(s.ledger.RejectChange)))
		api.POST("/inventory/pending-changes/:id/complete", s.update(byID(s.ledger.CompleteReturn)))

		api.POST("/transactions", s.create(bind(s.ledger.RecordSale)))
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key", "X-Device-ID"},
		ExposeHeaders: []string{"Content-Length", "Idempotent-Replayed"},
		MaxAge:        12 * time.Hour,
	}
	var allowed []string
	for _, o := range origins {
		for _, part := range strings.Split(o, ",") {
			part = strings.TrimSpace(part)
			switch part {
			case "":
			case "*":
				cfg.AllowAllOrigins = true
			default:
				allowed = append(allowed, part)
			}
		}
	}
	if !cfg.AllowAllOrigins {
		if len(allowed) == 0 {
			allowed = []string{"http://localhost:3000"}
		}
		cfg.AllowOrigins = allowed
	}
	return cfg
}

// op is a ledger call bound to a request.
type op func(c *gin.Context) (model.SyncResponse, error)

func bind[T any](fn func(T) (model.SyncResponse, error)) op {
	return func(c *gin.Context) (model.SyncResponse, error) {
		var body T
		if err := c.ShouldBindJSON(&body); err != nil {
			return model.SyncResponse{}, invalidf("body: %v", err)
		}
		return fn(body)
	}
}

func bindID[T any](fn func(string, T) (model.SyncResponse, error)) op {
	return func(c *gin.Context) (model.SyncResponse, error) {
		var body T
		if err := c.ShouldBindJSON(&body); err != nil {
			return model.SyncResponse{}, invalidf("body: %v", err)
		}
		return fn(c.Param("id"), body)
	}
}

// byID ignores the body. Transition bodies only carry the local id, which
// the path already names.
func byID(fn func(string) (model.SyncResponse, error)) op {
	return func(c *gin.Context) (model.SyncResponse, error) {
		return fn(c.Param("id"))
	}
}

func (s *Server) create(fn op) gin.HandlerFunc { return s.respond(http.StatusCreated, fn) }

func (s *Server) update(fn op) gin.HandlerFunc { return s.respond(http.StatusOK, fn) }

func (s *Server) respond(status int, fn op) gin.HandlerFunc {
	return func(c *gin.Context) {
		reply, err := fn(c)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(status, reply)
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalid):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrConflict):
		status = http.StatusConflict
	}
	s.log.Info("request refused",
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", status),
		zap.Error(err))
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// captureWriter keeps a copy of the response body.
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(str string) (int, error) {
	w.body.WriteString(str)
	return w.ResponseWriter.WriteString(str)
}

// idempotent replays the stored response for a repeated Idempotency-Key.
// Only successful responses are stored.
func (s *Server) idempotent(c *gin.Context) {
	key := c.GetHeader("Idempotency-Key")
	if key == "" {
		c.Next()
		return
	}

	cached, ok, err := s.cache.Get(c.Request.Context(), key)
	if err != nil {
		s.log.Warn("idempotency cache read failed", zap.Error(err))
	}
	if ok {
		c.Header("Idempotent-Replayed", "true")
		c.Data(cached.Status, "application/json; charset=utf-8", cached.Body)
		c.Abort()
		return
	}

	w := &captureWriter{ResponseWriter: c.Writer}
	c.Writer = w
	c.Next()

	if status := w.Status(); status >= 200 && status < 300 {
		resp := CachedResponse{Status: status, Body: w.body.Bytes()}
		if err := s.cache.Put(c.Request.Context(), key, resp); err != nil {
			s.log.Warn("idempotency cache write failed", zap.Error(err))
		}
	}
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", c.Writer.Status()),
		zap.String("device", c.GetHeader("X-Device-ID")),
		zap.Duration("latency", time.Since(start)))
}
