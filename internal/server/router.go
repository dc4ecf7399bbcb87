// Package server wires the hosted backend: gin routes for records and auth,
// the realtime websocket hub, and the listener lifecycle.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/galyarder/galyarder-store/internal/api"
	"github.com/galyarder/galyarder-store/internal/db"
)

// Config tunes the router.
type Config struct {
	// RequireAuth gates /rest and /realtime behind a bearer session.
	RequireAuth bool
	SessionTTL  time.Duration
	Logger      *log.Logger
}

type Router struct {
	engine *gin.Engine
	hub    *Hub
	cert   *tls.Certificate
	logger *log.Logger

	mu       sync.Mutex
	listener net.Listener
	srv      *http.Server
	stopped  bool
}

// NewRouter builds every route over store.
func NewRouter(store *db.DB, cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[server] ", log.LstdFlags)
	}
	hub := NewHub(logger)
	h := &api.Handler{
		Records:    store,
		Accounts:   store,
		Events:     hub,
		SessionTTL: cfg.SessionTTL,
		Ping:       store.Ping,
	}

	r := gin.New()
	r.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PATCH, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, apikey")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	r.GET("/health", h.Health)

	auth := r.Group("/auth")
	{
		auth.POST("/signup", h.SignUp)
		auth.POST("/signin", h.SignIn)
		auth.POST("/signout", h.RequireUser, h.SignOut)
		auth.GET("/user", h.RequireUser, h.CurrentUser)
	}

	var gate []gin.HandlerFunc
	if cfg.RequireAuth {
		gate = append(gate, h.RequireUser)
	}

	rest := r.Group("/rest", gate...)
	{
		rest.GET("", h.ListTables)
		rest.GET("/:table", h.Select)
		rest.POST("/:table", h.Insert)
		rest.PATCH("/:table/:id", h.Update)
		rest.DELETE("/:table/:id", h.Delete)
	}

	r.GET("/realtime/:table", append(gate, hub.Serve)...)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	return &Router{engine: r, hub: hub, logger: logger}
}

// Handler exposes the routes, for tests and embedding.
func (r *Router) Handler() http.Handler {
	return r.engine
}

// Hub returns the realtime hub.
func (r *Router) Hub() *Hub {
	return r.hub
}

// SetCertificate sets the TLS certificate for the router
func (r *Router) SetCertificate(cert tls.Certificate) {
	r.cert = &cert
}

// Listen serves HTTP (or HTTPS when a certificate is set) on addr until Stop.
func (r *Router) Listen(addr string) error {
	var listener net.Listener
	var err error

	if r.cert != nil {
		config := &tls.Config{Certificates: []tls.Certificate{*r.cert}}
		listener, err = tls.Listen("tcp", addr, config)
	} else {
		listener, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           r.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return listener.Close()
	}
	r.listener = listener
	r.srv = srv
	r.mu.Unlock()

	r.logger.Printf("Listening on %s (tls=%v)", listener.Addr(), r.cert != nil)
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address once Listen is running, or nil.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Stop closes realtime feeds and drains in-flight requests.
func (r *Router) Stop(ctx context.Context) error {
	r.hub.Close()

	r.mu.Lock()
	r.stopped = true
	srv := r.srv
	r.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
