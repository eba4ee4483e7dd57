// Package api exposes the booking engine as a small JSON HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"retreat/internal/availability"
	"retreat/internal/conflict"
	"retreat/internal/models"
	"retreat/internal/pricing"
	"retreat/internal/service"
)

// Engine is the booking engine surface the API drives.
type Engine interface {
	Quote(ctx context.Context, req service.StayRequest) (*pricing.Breakdown, error)
	CheckAvailability(ctx context.Context, sessionID string, roomIDs []string, stay models.Stay) ([]availability.Check, error)
	Occupancy(ctx context.Context, stay models.Stay) (*availability.Stats, error)
	Suggest(ctx context.Context, req conflict.SuggestionRequest) ([]conflict.Suggestion, error)
	Validate(ctx context.Context, req service.StayRequest) (conflict.Result, error)
	Hold(ctx context.Context, sessionID string, roomIDs []string, stay models.Stay) (*service.HoldResult, error)
	Release(ctx context.Context, sessionID string)
	LockStatus(ctx context.Context, sessionID string) service.LockStatus
	Submit(ctx context.Context, req service.StayRequest) (*service.SubmitResult, error)
	Cancel(ctx context.Context, bookingID string, version int64) error
	InvalidateRates(ctx context.Context)
}

// Options configures the HTTP server.
type Options struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	LockProbeRate  float64
	LockProbeBurst int
}

// HTTPServer serves the JSON API.
type HTTPServer struct {
	engine  Engine
	ready   func(context.Context) error
	limiter *sessionLimiter
	server  *http.Server
	logger  *zerolog.Logger
}

// NewHTTPServer builds the router. ready backs /readyz and may be nil.
func NewHTTPServer(opts Options, engine Engine, ready func(context.Context) error, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		engine:  engine,
		ready:   ready,
		limiter: newSessionLimiter(opts.LockProbeRate, opts.LockProbeBurst),
		logger:  logger,
	}

	router := httprouter.New()
	router.POST("/api/price", s.handlePrice)
	router.POST("/api/availability", s.handleAvailability)
	router.GET("/api/occupancy", s.handleOccupancy)
	router.POST("/api/suggestions", s.handleSuggestions)
	router.POST("/api/validate", s.handleValidate)
	router.POST("/api/locks", s.handleAcquireLock)
	router.GET("/api/locks/:session", s.handleLockStatus)
	router.DELETE("/api/locks/:session", s.handleReleaseLock)
	router.POST("/api/bookings", s.handleSubmit)
	router.DELETE("/api/bookings/:id", s.handleCancel)
	router.POST("/api/rates/invalidate", s.handleInvalidateRates)
	router.GET("/healthz", s.handleHealth)
	router.GET("/readyz", s.handleReady)
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		s.logger.Error().Interface("panic", v).Str("path", r.URL.Path).Msg("handler panic")
		writeError(w, http.StatusInternalServerError, "internal error")
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      router,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start blocks serving until Shutdown.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, details ...string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
