// Package server mounts the connect and callback phases on a chi router.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goliatone/go-provider-link/core"
	glog "github.com/goliatone/go-logger/glog"
)

const DefaultHealthPath = "/healthz"

// Engine is the part of core.Engine the transport drives.
type Engine interface {
	Config() core.Config
	Connect(ctx context.Context, w http.ResponseWriter, r *http.Request) (core.ConnectResult, error)
	Callback(ctx context.Context, w http.ResponseWriter, r *http.Request) (core.CallbackCompletion, error)
}

type Server struct {
	engine       Engine
	logger       core.Logger
	connectPath  string
	callbackPath string
	healthPath   string
	extra        map[string]http.Handler
	middlewares  []func(http.Handler) http.Handler
}

type Option func(*Server)

func WithLogger(logger core.Logger) Option {
	return func(s *Server) {
		s.logger = glog.Ensure(logger)
	}
}

func WithHealthPath(path string) Option {
	return func(s *Server) {
		s.healthPath = strings.TrimSpace(path)
	}
}

// WithHandler mounts an additional GET handler, e.g. a metrics endpoint.
func WithHandler(path string, handler http.Handler) Option {
	return func(s *Server) {
		if trimmed := strings.TrimSpace(path); trimmed != "" && handler != nil {
			s.extra[trimmed] = handler
		}
	}
}

func WithMiddleware(middlewares ...func(http.Handler) http.Handler) Option {
	return func(s *Server) {
		s.middlewares = append(s.middlewares, middlewares...)
	}
}

func New(engine Engine, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("server: engine is required")
	}
	cfg := engine.Config()
	s := &Server{
		engine:       engine,
		logger:       glog.Ensure(nil),
		connectPath:  defaultPath(cfg.ConnectPath, core.DefaultConnectPath),
		callbackPath: defaultPath(cfg.CallbackPath, core.DefaultCallbackPath),
		healthPath:   DefaultHealthPath,
		extra:        map[string]http.Handler{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Routes returns a router with the link endpoints registered.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	for _, mw := range s.middlewares {
		r.Use(mw)
	}
	s.Mount(r)
	return r
}

// Mount registers the link endpoints on an existing router.
func (s *Server) Mount(r chi.Router) {
	r.Get(s.connectPath, s.handleConnect)
	r.Get(s.callbackPath, s.handleCallback)
	if s.healthPath != "" {
		r.Get(s.healthPath, handleHealth)
	}
	for path, handler := range s.extra {
		r.Method(http.MethodGet, path, handler)
	}
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Connect(r.Context(), w, r)
	if err != nil {
		s.writeError(w, r, err, result.Responded)
		return
	}
	if !result.Responded {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	completion, err := s.engine.Callback(r.Context(), w, r)
	if err != nil {
		s.writeError(w, r, err, completion.Responded)
		return
	}
	if completion.Responded {
		return
	}
	http.Redirect(w, r, completion.RedirectURL, http.StatusFound)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code      int    `json:"code"`
	TextCode  string `json:"text_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError renders err unless a hook already answered the request.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, responded bool) {
	envelope := core.ErrorEnvelope(err)
	if responded {
		s.logger.Warn("link phase failed after hook responded",
			"path", r.URL.Path,
			"text_code", envelope.TextCode,
			"error", err,
		)
		return
	}
	status := envelope.Code
	if status == 0 {
		status = core.HTTPStatus(err)
	}
	payload := errorBody{Error: errorPayload{
		Code:      status,
		TextCode:  envelope.TextCode,
		Message:   envelope.Message,
		RequestID: middleware.GetReqID(r.Context()),
	}}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encodeErr := json.NewEncoder(w).Encode(payload); encodeErr != nil {
		s.logger.Error("write error response failed", "error", encodeErr)
	}
}

func defaultPath(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
