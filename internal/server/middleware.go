//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package server

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pgEdge/pgedge-ask-server/internal/telemetry"
)

type middleware func(http.Handler) http.Handler

// applyMiddleware wraps handler so that, from the outside in, requests
// pass CORS, then observation, then panic recovery.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	chain := []middleware{s.recoverPanics, s.observe}
	if s.config.Server.CORS.Enabled {
		chain = append(chain, s.cors)
	}
	for _, m := range chain {
		handler = m(handler)
	}
	return handler
}

// statusRecorder remembers the status and whether anything reached the
// client. It forwards Flush so streamed answers are not buffered.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	bytes   int
	started bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.started {
		return
	}
	r.started = true
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.started {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// observe records one server span and one log line per request.
func (s *Server) observe(next http.Handler) http.Handler {
	tracer := telemetry.Tracer()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			))
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		session := rec.Header().Get(sessionHeader)
		span.SetAttributes(
			attribute.Int("http.response.status_code", rec.status),
			attribute.String("session.id", session),
		)
		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
			level = slog.LevelError
		}

		s.logger.Log(ctx, level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"session_id", session,
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr)
	})
}

// recoverPanics turns a handler panic into a 500. A stream that already
// started cannot change its status, so it is only cut short.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			s.logger.Error("panic recovered", "error", rec, "path", r.URL.Path, "stack", string(debug.Stack()))

			if sr, ok := w.(*statusRecorder); ok && sr.started {
				return
			}
			s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}()

		next.ServeHTTP(w, r)
	})
}

// cors answers preflight requests and marks responses readable by the
// configured origins. The session header is both accepted and exposed so
// browser clients can keep a conversation going.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Origin")
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Accept, "+sessionHeader)
			h.Set("Access-Control-Expose-Headers", sessionHeader)
			h.Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allowedOrigin returns the value for Access-Control-Allow-Origin, or ""
// when origin may not read responses. "*" in the configuration admits
// every origin.
func (s *Server) allowedOrigin(origin string) string {
	allowed := s.config.Server.CORS.AllowedOrigins
	switch {
	case origin == "":
		return ""
	case slices.Contains(allowed, "*"):
		return "*"
	case slices.Contains(allowed, origin):
		return origin
	}
	return ""
}
