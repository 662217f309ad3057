// Package server exposes the dust-zap engine over HTTP: intent creation
// plus the server-sent-events stream that delivers the prepared
// transactions.
package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/nimazeighami/dust-zap-engine/internal/configs"
	"github.com/nimazeighami/dust-zap-engine/internal/intents"
	"github.com/nimazeighami/dust-zap-engine/internal/stream"
	"github.com/nimazeighami/dust-zap-engine/internal/zaperr"
)

type Server struct {
	cfg      *configs.Config
	registry *intents.Registry
	store    *intents.Manager
	pipeline *stream.Pipeline
	log      *logrus.Logger

	router        chi.Router
	activeStreams int64
	startedAt     time.Time
}

func New(cfg *configs.Config, registry *intents.Registry, store *intents.Manager, pipeline *stream.Pipeline, log *logrus.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		registry:  registry,
		store:     store,
		pipeline:  pipeline,
		log:       log,
		startedAt: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Post("/intents/dustZap", s.handleCreateDustZap)
	r.Get("/intents/{intentId}/stream", s.handleStream)
	r.Get("/healthz", s.handleHealth)

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleCreateDustZap(w http.ResponseWriter, r *http.Request) {
	var req intents.IntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, zaperr.New(zaperr.KindValidation, "request body must be valid JSON"))
		return
	}

	resp, err := s.registry.Execute(r.Context(), intents.IntentTypeDustZap, &req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "intentId")

	if active := atomic.LoadInt64(&s.activeStreams); active >= int64(s.cfg.MaxConnections) {
		s.writeError(w, zaperr.Newf(zaperr.KindRateLimited, "too many active streams (%d)", active))
		return
	}

	ectx, ok := s.store.Take(id)
	if !ok {
		// The id embeds its creation time, so an evicted intent can still
		// be told apart from one that never existed.
		if createdAt, parsed := intents.ParseIntentTimestamp(id); parsed && time.Since(createdAt) > s.cfg.ConnectionTimeout {
			s.writeJSON(w, http.StatusGone, map[string]string{"error": "intent expired", "code": "EXPIRED"})
			return
		}
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown intent", "code": "UNKNOWN_INTENT"})
		return
	}

	writer, err := stream.NewSSEWriter(w)
	if err != nil {
		s.writeError(w, zaperr.Wrap(zaperr.KindInternal, err, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	atomic.AddInt64(&s.activeStreams, 1)
	defer atomic.AddInt64(&s.activeStreams, -1)

	if err := s.pipeline.Run(r.Context(), ectx, writer); err != nil {
		// Client is gone or cancelled; nothing to report over HTTP.
		s.log.WithFields(logrus.Fields{"intentId": id}).WithError(err).Debug("stream terminated early")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"contexts":      s.store.Len(),
		"activeStreams": atomic.LoadInt64(&s.activeStreams),
		"uptimeSeconds": int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := zaperr.KindOf(err)
	msg := err.Error()
	if kind == zaperr.KindInternal || kind == zaperr.KindUnknown {
		// Internal detail stays in the logs.
		msg = "internal error"
		s.log.WithError(err).Error("request failed")
	}
	s.writeJSON(w, zaperr.HTTPStatus(kind), map[string]string{
		"error": msg,
		"code":  string(kind),
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start).String(),
		}).Info("request")
	})
}
