package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/mvellano/pulsecheck/internal/config"
	"github.com/mvellano/pulsecheck/internal/observability"
	"github.com/mvellano/pulsecheck/internal/reliability"
	"github.com/mvellano/pulsecheck/internal/survey"
)

type Server struct {
	cfg      config.Config
	service  *survey.Service
	sessions *survey.Manager
	runner   *survey.Runner
	resolver *survey.Resolver
	metrics  *observability.Metrics
	validate *validator.Validate
	upgrader websocket.Upgrader
	static   http.Handler
}

func New(cfg config.Config, service *survey.Service, sessions *survey.Manager, runner *survey.Runner, resolver *survey.Resolver, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		service:  service,
		sessions: sessions,
		runner:   runner,
		resolver: resolver,
		metrics:  metrics,
		validate: validator.New(),
		static:   newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive a survey session if the
				// service is ever exposed beyond localhost. Non-browser
				// clients omit Origin and are allowed.
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Post("/survay", s.handleRound)
	r.Post("/submit-survay", s.handleSubmit)
	r.Post("/survay-chat", s.handleChat)
	r.Get("/survay/{id}", s.handleGetSurvey)
	r.Get("/surveys", s.handleListSurveys)

	r.Post("/v1/survey/session", s.handleCreateSession)
	r.Post("/v1/survey/session/{id}/end", s.handleEndSession)
	r.Get("/v1/survey/session/ws", s.handleSessionWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"stages":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.SnapshotStages())
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondClassified maps an operation error to its taxonomy kind and status.
func respondClassified(w http.ResponseWriter, err error) {
	kind := reliability.Classify(err)
	respondError(w, kind.HTTPStatus(), string(kind), err.Error())
}
