// Package httpapi exposes the chatbot over HTTP and provides the client
// that remote front ends use to reach it.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cleanse/internal/domain"
)

// WelcomeMessage is returned by GET /.
const WelcomeMessage = "Bem-vindo à API do Cleanse Chatbot. Use o endpoint /ask para fazer perguntas."

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Query     string `json:"query"`
	ChannelID string `json:"channel_id"`
}

// AskResponse is the body returned by POST /ask.
type AskResponse struct {
	Answer string `json:"answer"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server serves the chatbot API.
type Server struct {
	answerer domain.Answerer
	logger   *slog.Logger
}

// NewServer creates a Server around an answerer.
func NewServer(answerer domain.Answerer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{answerer: answerer, logger: logger}
}

// Handler returns the routed handler wrapped in tracing, access logging and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /ask", s.handleAsk)
	return Chain(mux, Tracing("cleanse-api"), AccessLog(s.logger), Recover(s.logger))
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": WelcomeMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	// Conversation memory is keyed by channel, so an anonymous caller would
	// share history with every other one.
	if strings.TrimSpace(req.ChannelID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "channel_id is required"})
		return
	}
	requestLogger(r.Context(), s.logger).Info("ask", "channel_id", req.ChannelID, "query_len", len(req.Query))
	// Failures are already replaced by a user-facing message.
	answer := s.answerer.Answer(r.Context(), req.ChannelID, req.Query)
	writeJSON(w, http.StatusOK, AskResponse{Answer: answer})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}
