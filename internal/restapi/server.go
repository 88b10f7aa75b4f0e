// Package restapi is the paper broker's JSON HTTP surface: a thin
// chi router translating requests into internal/facade.Broker calls.
package restapi

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/scranton-trading/paperbroker/internal/facade"
)

// Server is the REST surface wrapping one Broker.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	broker    *facade.Broker
	logger    *logrus.Logger
	port      int
	authToken string
}

// Config configures a Server.
type Config struct {
	Port      int
	AuthToken string // empty disables auth entirely
}

// NewServer builds a Server and registers its routes.
func NewServer(cfg Config, b *facade.Broker, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		router:    chi.NewRouter(),
		broker:    b,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLoggerMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(middleware.Compress(5))

	register := func(r chi.Router) {
		r.Post("/accounts", s.handleCreateAccount)
		r.Get("/accounts", s.handleListAccounts)
		r.Get("/accounts/{accountID}", s.handleGetAccount)
		r.Get("/accounts/{accountID}/summary", s.handleGetAccountSummary)
		r.Get("/accounts/{accountID}/positions", s.handleGetPositions)
		r.Get("/accounts/{accountID}/strategies", s.handleGetStrategies)
		r.Get("/accounts/{accountID}/margin", s.handleGetMargin)
		r.Post("/accounts/{accountID}/orders", s.handleSubmitOrder)
		r.Post("/accounts/{accountID}/orders/simulate", s.handleSimulateOrder)
		r.Post("/accounts/{accountID}/positions/{symbol}/close", s.handleClosePosition)
		r.Post("/accounts/{accountID}/expirations/run", s.handleRunExpirations)
	}

	if s.authToken != "" {
		s.router.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			register(r)
		})
	} else {
		register(s.router)
	}

	s.router.Get("/health", s.handleHealth)
}

func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loggedURL := s.redactTokenFromURL(r.URL)
		logEntry := s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"url":        loggedURL.String(),
			"user_agent": r.UserAgent(),
			"remote_ip":  r.RemoteAddr,
		})

		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)

		logEntry.WithFields(logrus.Fields{
			"status":   wrapped.Status(),
			"bytes":    wrapped.BytesWritten(),
			"duration": time.Since(start),
		}).Info("HTTP request")
	})
}

func (s *Server) redactTokenFromURL(originalURL *url.URL) *url.URL {
	loggedURL := &url.URL{
		Scheme:   originalURL.Scheme,
		Host:     originalURL.Host,
		Path:     originalURL.Path,
		RawQuery: originalURL.RawQuery,
		Fragment: originalURL.Fragment,
	}

	if originalURL.RawQuery != "" {
		values := originalURL.Query()
		for _, k := range []string{"token", "auth_token"} {
			if values.Has(k) {
				values.Set(k, "[REDACTED]")
			}
		}
		loggedURL.RawQuery = values.Encode()
	}

	return loggedURL
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			if cookie, err := r.Cookie("auth_token"); err == nil {
				token = cookie.Value
			}
		}

		if !s.isValidToken(token) {
			writeError(w, http.StatusUnauthorized, "invalid or missing auth token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isValidToken(token string) bool {
	if len(token) != len(s.authToken) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start runs the HTTP server until it is shut down or fails. It blocks.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Infof("starting REST server on port %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

