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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pgEdge/pgedge-ask-server/internal/agent/tools"
	"github.com/pgEdge/pgedge-ask-server/internal/memory"
	"github.com/pgEdge/pgedge-ask-server/internal/pipeline"
)

const (
	sessionHeader = "X-Session-ID"
	maxBodyBytes  = 1 << 20
)

// AskRequest is the body of POST /api/ask.
type AskRequest struct {
	Question      string   `json:"question" validate:"required"`
	Model         string   `json:"model"`
	UseRAG        bool     `json:"use_rag"`
	UseCoT        bool     `json:"use_cot"`
	SelectedFiles []string `json:"selected_files" validate:"dive,required"`
}

// AgentRequest is the body of POST /api/agent.
type AgentRequest struct {
	AskRequest
	PluginDetail []tools.Plugin `json:"plugin_detail" validate:"dive"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it, responding with
// 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, "INVALID_REQUEST",
			"invalid request body: "+err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, "INVALID_REQUEST", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			msgs = append(msgs, fe.Field()+" is required")
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

// session returns the request's session id and echoes it on the
// response. A request without one gets a fresh anonymous session.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (string, bool, bool) {
	id := r.Header.Get(sessionHeader)
	anonymous := false
	if id == "" {
		id = uuid.NewString()
		anonymous = true
	} else if !memory.ValidSessionID(id) {
		s.respondError(w, http.StatusBadRequest, "INVALID_SESSION",
			"X-Session-ID must be 1-128 printable ASCII characters without path separators")
		return "", false, false
	}
	w.Header().Set(sessionHeader, id)
	return id, anonymous, true
}

func (s *Server) pipelineRequest(w http.ResponseWriter, r *http.Request, body AskRequest, defaultModel string) (pipeline.Request, bool) {
	id, anonymous, ok := s.session(w, r)
	if !ok {
		return pipeline.Request{}, false
	}
	model := body.Model
	if model == "" {
		model = defaultModel
	}
	return pipeline.Request{
		Question:  body.Question,
		Model:     model,
		UseRAG:    body.UseRAG,
		UseCoT:    body.UseCoT,
		Documents: body.SelectedFiles,
		SessionID: id,
		Anonymous: anonymous,
	}, true
}

// handleAsk handles the POST /api/ask endpoint. Reasoning shapes answer
// with one text/plain body; the others stream Server-Sent Events.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var body AskRequest
	if !s.decode(w, r, &body) {
		return
	}
	req, ok := s.pipelineRequest(w, r, body, s.config.Defaults.AskModel)
	if !ok {
		return
	}

	p, err := s.deps.Composer.Compose(req)
	if err != nil {
		s.respondPipelineError(w, r, err)
		return
	}

	if p.Batch() {
		payload, err := p.Answer(r.Context())
		if err != nil {
			s.respondPipelineError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(payload)); err != nil {
			s.logger.Debug("failed to write answer", "error", err)
		}
		return
	}

	events, err := p.Stream(r.Context())
	if err != nil {
		s.respondPipelineError(w, r, err)
		return
	}
	s.stream(w, r, events, s.sendSSE)
}

// handleAgent handles the POST /api/agent endpoint. Only the agent's
// final output is written, trimmed and followed by a blank line.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	var body AgentRequest
	if !s.decode(w, r, &body) {
		return
	}
	req, ok := s.pipelineRequest(w, r, body.AskRequest, s.config.Defaults.AgentModel)
	if !ok {
		return
	}

	run, err := s.deps.Composer.ComposeAgent(req, s.deps.Tools.Select(body.PluginDetail), pipeline.AgentOptions{
		MaxIterations: s.config.Agent.MaxIterations,
		ToolTimeout:   s.config.Agent.ToolTimeout,
	})
	if err != nil {
		s.respondPipelineError(w, r, err)
		return
	}

	events, err := run.Stream(r.Context())
	if err != nil {
		s.respondPipelineError(w, r, err)
		return
	}
	s.stream(w, r, events, s.sendRaw)
}

// stream writes events with send. The first event is awaited before any
// header is written, so a failure before output is a JSON error response.
func (s *Server) stream(
	w http.ResponseWriter,
	r *http.Request,
	events <-chan pipeline.Event,
	send func(http.ResponseWriter, http.Flusher, pipeline.Event) error,
) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "STREAMING_ERROR",
			"streaming not supported")
		return
	}

	var first pipeline.Event
	select {
	case e, ok := <-events:
		if !ok {
			return
		}
		first = e
	case <-r.Context().Done():
		s.logger.Debug("client disconnected before streaming")
		return
	}
	if first.Type == pipeline.EventError {
		s.respondPipelineError(w, r, first.Err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	event := first
	for {
		if event.Type == pipeline.EventError {
			s.logger.Error("stream failed after output", "path", r.URL.Path, "error", event.Err)
		}
		if err := send(w, flusher, event); err != nil {
			s.logger.Debug("failed to write stream event", "error", err)
			return
		}

		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			event = e
		case <-r.Context().Done():
			s.logger.Debug("client disconnected during streaming")
			return
		}
	}
}

// sendSSE writes an event as a Server-Sent Event.
func (s *Server) sendSSE(w http.ResponseWriter, flusher http.Flusher, event pipeline.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE event: %w", err)
	}

	// SSE format: data: {json}\n\n
	if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// sendRaw writes chunk content followed by a blank line. Other events
// carry nothing for the agent framing.
func (s *Server) sendRaw(w http.ResponseWriter, flusher http.Flusher, event pipeline.Event) error {
	if event.Type != pipeline.EventChunk {
		return nil
	}
	if _, err := w.Write([]byte(event.Content + "\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
