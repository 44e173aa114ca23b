// Package api serves the indexer's admin surface: health, status, start,
// stop, resync, domain lookup and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apimiddleware "github.com/0xmhha/pns-indexer/api/middleware"
	"github.com/0xmhha/pns-indexer/indexer"
	"github.com/0xmhha/pns-indexer/internal/constants"
	"github.com/0xmhha/pns-indexer/internal/logger"
	"github.com/0xmhha/pns-indexer/storage"
)

// Controller is the indexer control surface exposed over HTTP
type Controller interface {
	Start(ctx context.Context)
	Stop()
	Resync(ctx context.Context, fromBlock uint64) error
	Status() indexer.Status
}

// DomainReader is the projection lookup behind GET /domains/{name}
type DomainReader interface {
	GetDomain(ctx context.Context, nameHash common.Hash) (*storage.Domain, error)
	GetDomainByName(ctx context.Context, name string) (*storage.Domain, error)
	TextRecords(ctx context.Context, nameHash common.Hash) ([]*storage.TextRecord, error)
	AddressRecords(ctx context.Context, nameHash common.Hash) ([]*storage.AddressRecord, error)
}

// Server represents the admin API server
type Server struct {
	config     *Config
	logger     *zap.Logger
	controller Controller
	reader     DomainReader
	router     *chi.Mux
	server     *http.Server

	// baseCtx outlives requests; scans started over HTTP run under it
	baseCtx context.Context
}

// NewServer creates a new admin server. Scans started through it run
// under baseCtx, so cancelling baseCtx stops them. A nil reader leaves
// the domain lookup route unmounted.
func NewServer(baseCtx context.Context, config *Config, controller Controller, reader DomainReader, logger *zap.Logger) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if controller == nil {
		return nil, errors.New("controller cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:     config,
		logger:     logger,
		controller: controller,
		reader:     reader,
		router:     chi.NewRouter(),
		baseCtx:    baseCtx,
	}

	if err := s.setupMiddleware(); err != nil {
		return nil, err
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware() error {
	s.router.Use(apimiddleware.Recovery(s.logger))
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apimiddleware.Logger(s.logger))

	if s.config.EnableRateLimit {
		limiter, err := apimiddleware.NewRateLimiter(
			s.config.RateLimitPerSecond,
			s.config.RateLimitBurst,
			constants.DefaultRateLimitClients)
		if err != nil {
			return fmt.Errorf("failed to create rate limiter: %w", err)
		}
		s.router.Use(apimiddleware.RateLimit(limiter, s.logger))
	}
	return nil
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	s.router.Handle("/metrics", promhttp.Handler())
	if s.reader != nil {
		s.router.Get("/domains/{name}", s.handleDomain)
	}

	s.router.Group(func(r chi.Router) {
		r.Use(apimiddleware.AdminKey(s.config.AdminKeys, s.logger))
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
		r.Post("/resync", s.handleResync)
	})
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
	Running    bool   `json:"running"`
	LastBlock  uint64 `json:"lastProcessedBlock"`
	LastError  string `json:"lastError,omitempty"`
	LastTickAt string `json:"lastTickAt,omitempty"`
}

// handleHealth reports liveness; a failing last tick marks the indexer degraded
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.controller.Status()

	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Running:   st.IsRunning,
		LastBlock: st.LastProcessedBlock,
		LastError: st.LastError,
	}
	if st.LastError != "" {
		resp.Status = "degraded"
	}
	if !st.LastTickAt.IsZero() {
		resp.LastTickAt = st.LastTickAt.UTC().Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.controller.Start(s.baseCtx)
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.controller.Stop()
	writeJSON(w, http.StatusOK, s.controller.Status())
}

// handleResync rewinds to ?block=N. With ?wait=true the scan runs inside
// the request; otherwise it runs in the background and 202 is returned.
func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("block")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing block parameter")
		return
	}
	block, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid block parameter")
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if wait {
		if err := s.controller.Resync(r.Context(), block); err != nil {
			writeError(w, resyncStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, s.controller.Status())
		return
	}

	st := s.controller.Status()
	if st.IsRunning {
		writeError(w, http.StatusConflict, indexer.ErrRunning.Error())
		return
	}
	if st.TickInProgress {
		writeError(w, http.StatusConflict, indexer.ErrTickInProgress.Error())
		return
	}

	log := logger.FromContext(r.Context())
	go func() {
		if err := s.controller.Resync(s.baseCtx, block); err != nil {
			log.Error("Resync failed", zap.Uint64("from_block", block), zap.Error(err))
			return
		}
		log.Info("Resync finished", zap.Uint64("from_block", block))
	}()

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":    "accepted",
		"fromBlock": block,
	})
}

// DomainResponse is a domain row with its records
type DomainResponse struct {
	*storage.Domain
	Texts     []*storage.TextRecord    `json:"texts"`
	Addresses []*storage.AddressRecord `json:"addresses"`
}

// handleDomain looks a domain up by 0x-prefixed name hash or by plaintext name
func (s *Server) handleDomain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "name")

	var (
		d   *storage.Domain
		err error
	)
	if strings.HasPrefix(key, "0x") && len(key) == 2*common.HashLength+2 {
		d, err = s.reader.GetDomain(ctx, common.HexToHash(key))
	} else {
		d, err = s.reader.GetDomainByName(ctx, key)
	}
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "domain not found")
		return
	}
	if err != nil {
		logger.FromContext(ctx).Error("Domain lookup failed", zap.String("name", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	nameHash := common.HexToHash(d.NameHash)
	texts, err := s.reader.TextRecords(ctx, nameHash)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	addrs, err := s.reader.AddressRecords(ctx, nameHash)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, DomainResponse{Domain: d, Texts: texts, Addresses: addrs})
}

func resyncStatus(err error) int {
	switch {
	case errors.Is(err, indexer.ErrRunning), errors.Is(err, indexer.ErrTickInProgress):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Start starts the admin server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info("starting admin server",
		zap.String("address", s.config.Address()),
		zap.Bool("auth", len(s.config.AdminKeys) > 0),
		zap.Bool("rate_limit", s.config.EnableRateLimit))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the admin server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping admin server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("admin server stopped gracefully")
	return nil
}

// Router returns the underlying chi router (for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
