package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mosaic-crm/prospector/internal/lead"
	"github.com/mosaic-crm/prospector/internal/orchestrator"
	"github.com/mosaic-crm/prospector/internal/session"
)

type Server struct {
	router   *chi.Mux
	port     int
	sessions *session.Store
	orch     *orchestrator.Orchestrator
	logger   *slog.Logger
}

func NewServer(port int, sessions *session.Store, orch *orchestrator.Orchestrator, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		sessions: sessions,
		orch:     orch,
		logger:   logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/leadgen/status", s.status)
	router.Post("/api/v1/leadgen/start", s.start)
	router.Get("/api/v1/leadgen/stream", s.stream)
	router.Get("/api/v1/leadgen/sessions/{id}", s.sessionSnapshot)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":     "prospector",
		"providers": s.orch.Providers(),
	})
}

// start validates the targeting parameters, creates a session and hands
// it to the orchestrator. It returns the session id immediately; results
// arrive on the stream endpoint.
func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	var params lead.GenerationParameters
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	params.Normalize()
	if err := params.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	sess := s.sessions.Create(params)
	s.orch.Start(sess.ID)

	s.logger.Info("session created", "session_id", sess.ID, "depth", string(params.Depth))
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": sess.ID})
}

func (s *Server) sessionSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.sessions.Get(id)
	if errors.Is(err, session.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
