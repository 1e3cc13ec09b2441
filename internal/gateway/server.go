// Package gateway serves the local admin API: service status, provider
// usage, manual sends, and per-contact auto-reply control. It binds to
// loopback by default and carries no authentication.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vivoly/sofia/internal/genai"
	"github.com/vivoly/sofia/internal/history"
	"github.com/vivoly/sofia/internal/pipeline"
)

// ServerConfig holds construction parameters for Server.
type ServerConfig struct {
	Addr     string
	Service  *pipeline.Service
	Router   *genai.Router
	Store    *history.Store
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// Server is the admin HTTP server.
type Server struct {
	cfg    ServerConfig
	logger *slog.Logger

	httpServer *http.Server
}

// NewServer creates the admin server. Start begins listening.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: cfg.Logger}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /usage", s.handleUsage)
	mux.HandleFunc("POST /usage/reset", s.handleUsageReset)
	mux.HandleFunc("POST /messages", s.handleSendMessage)
	mux.HandleFunc("POST /contacts/{phone}/auto-reply", s.handleAutoReply)
	mux.HandleFunc("POST /providers/preferred", s.handlePreferredProvider)

	if s.cfg.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.Registry,
			promhttp.HandlerOpts{}))
	}

	return mux
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("admin listen: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin server error", "error", err)
		}
	}()

	s.logger.Info("admin server listening", "addr", s.cfg.Addr)
	return nil
}

// Shutdown stops the server, waiting up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("admin server shutdown error", "error", err)
	}
	s.httpServer = nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Service.Status())
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Router.UsageStats())
}

func (s *Server) handleUsageReset(w http.ResponseWriter, r *http.Request) {
	s.cfg.Router.ResetUsage()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
		Body  string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Phone == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "phone and body are required")
		return
	}

	disp, err := s.cfg.Service.SendManual(r.Context(), req.Phone, req.Body)
	if err != nil {
		s.logger.Error("manual send failed", "phone", req.Phone, "error", err)
		writeError(w, http.StatusInternalServerError, "send failed")
		return
	}
	if disp == pipeline.DispositionUnavailable {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": string(disp)})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": string(disp)})
}

func (s *Server) handleAutoReply(w http.ResponseWriter, r *http.Request) {
	phone := r.PathValue("phone")

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.cfg.Store.SetAutoReply(r.Context(), phone, req.Enabled); err != nil {
		if errors.Is(err, history.ErrContactNotFound) {
			writeError(w, http.StatusNotFound, "contact not found")
			return
		}
		s.logger.Error("auto-reply update failed", "phone", phone, "error", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"phone": phone, "auto_reply": req.Enabled})
}

func (s *Server) handlePreferredProvider(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	name := genai.ProviderName(req.Provider)
	if name != genai.ProviderAnthropic && name != genai.ProviderOpenAI {
		writeError(w, http.StatusBadRequest, "unknown provider")
		return
	}

	s.cfg.Router.SetPreferred(name)
	writeJSON(w, http.StatusOK, map[string]string{"preferred": req.Provider})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
