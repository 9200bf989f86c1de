// Package server exposes the inbound event endpoint the webhook transport
// delivers to. Response codes encode redelivery semantics: 2xx means the
// delivery layer must not retry (processed, dropped, or permanently
// failed), 503 means a transient failure worth redelivering.
package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/mergewarden/mergewarden/internal/core/engine"
	"github.com/mergewarden/mergewarden/internal/core/host"
	"github.com/mergewarden/mergewarden/internal/core/pipeline"
)

// Server routes inbound events to the engine.
type Server struct {
	engine *engine.Engine
	secret string
	router *chi.Mux
}

// New creates a server for the given engine. secret, when non-empty,
// enables HMAC-SHA256 signature verification of request bodies.
func New(eng *engine.Engine, secret string) *Server {
	s := &Server{
		engine: eng,
		secret: secret,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Post("/api/v1/events", s.handleEvent)

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// eventRequest is the inbound event shape delivered by the webhook
// transport.
type eventRequest struct {
	ID         string          `json:"id,omitempty"`
	Type       string          `json:"type"`
	Repository string          `json:"repository"`
	PRNumber   int             `json:"pr_number"`
	Action     string          `json:"action,omitempty"`
	Author     string          `json:"author,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// eventResponse reports what happened to a delivery.
type eventResponse struct {
	Status string           `json:"status"` // ok, dropped, failed, retry
	Error  string           `json:"error,omitempty"`
	Result *pipeline.Result `json:"result,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, eventResponse{Status: "dropped", Error: "unreadable body"})
		return
	}

	if s.secret != "" && !s.verifySignature(r, body) {
		writeJSON(w, http.StatusUnauthorized, eventResponse{Status: "dropped", Error: "invalid signature"})
		return
	}

	var req eventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		// Malformed deliveries are dropped, not retried; 2xx keeps the
		// transport from redelivering garbage.
		writeJSON(w, http.StatusOK, eventResponse{Status: "dropped", Error: "malformed event payload"})
		return
	}

	ev := toEvent(&req)

	result, err := s.engine.HandleEvent(r.Context(), ev)
	if err != nil {
		var transient *host.TransientError
		if errors.As(err, &transient) {
			log.Printf("[server] transient failure for event %s: %v", ev.ID, err)
			writeJSON(w, http.StatusServiceUnavailable, eventResponse{
				Status: "retry",
				Error:  err.Error(),
				Result: result,
			})
			return
		}
		// Permanent failures are surfaced to the operator and must not be
		// redelivered.
		log.Printf("[server] permanent failure for event %s: %v", ev.ID, err)
		writeJSON(w, http.StatusOK, eventResponse{
			Status: "failed",
			Error:  err.Error(),
			Result: result,
		})
		return
	}

	status := "ok"
	if result.Skipped {
		status = "dropped"
	}
	writeJSON(w, http.StatusOK, eventResponse{Status: status, Result: result})
}

// toEvent converts a delivery into the engine's event form, splitting the
// "org/repo" repository field and assigning a delivery ID when the
// transport did not send one.
func toEvent(req *eventRequest) *pipeline.Event {
	ev := &pipeline.Event{
		ID:      req.ID,
		Type:    pipeline.EventType(req.Type),
		Number:  req.PRNumber,
		Action:  req.Action,
		Author:  req.Author,
		Payload: req.Payload,
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if parts := strings.SplitN(req.Repository, "/", 2); len(parts) == 2 {
		ev.Org, ev.Repo = parts[0], parts[1]
	}
	return ev
}

// verifySignature checks the X-Hub-Signature-256 header against the body.
func (s *Server) verifySignature(r *http.Request, body []byte) bool {
	sig := r.Header.Get("X-Hub-Signature-256")
	if !strings.HasPrefix(sig, "sha256=") {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(want))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] failed to encode response: %v", err)
	}
}
