// Package api exposes the desk service as a JSON HTTP API.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"stockdesk/internal/desk"
)

// Options configures the HTTP server
type Options struct {
	Addr        string
	CORSOrigins []string
	Debug       bool

	// Relay serves /ws when set
	Relay http.Handler
}

// Server is the HTTP front end of the desk
type Server struct {
	desk    *desk.Service
	engine  *gin.Engine
	handler http.Handler
	relay   http.Handler
	addr    string
	started time.Time
}

// New builds the router. CORS wraps the whole engine so preflight requests
// never reach gin. svc may be nil for a server that only relays.
func New(svc *desk.Service, opts Options) *Server {
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		desk:    svc,
		engine:  gin.New(),
		relay:   opts.Relay,
		addr:    opts.Addr,
		started: time.Now(),
	}
	s.engine.Use(gin.Recovery(), requestLogger())
	s.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedHeaders: []string{"Content-Type"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
	})
	s.handler = c.Handler(s.engine)
	return s
}

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)

	if s.relay != nil {
		s.engine.GET("/ws", gin.WrapH(s.relay))
	}

	// Relay-only servers have no desk
	if s.desk == nil {
		return
	}

	api.GET("/quotes/:symbol", s.getQuote)
	api.GET("/popular", s.getPopular)
	api.GET("/market", s.getMarket)

	api.GET("/favorites", s.listFavorites)
	api.POST("/favorites", s.addFavorite)
	api.DELETE("/favorites", s.clearFavorites)
	api.POST("/favorites/refresh", s.refreshFavorites)
	api.POST("/favorites/import", s.importFavorites)
	api.POST("/favorites/:symbol/toggle", s.toggleFavorite)
	api.DELETE("/favorites/:symbol", s.removeFavorite)

	api.POST("/compare", s.compare)
	api.GET("/compare/history", s.history)
}

// Handler returns the CORS-wrapped router
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
