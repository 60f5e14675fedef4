//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pgEdge/pgedge-ask-server/internal/document"
	"github.com/pgEdge/pgedge-ask-server/internal/pipeline"
	"github.com/pgEdge/pgedge-ask-server/internal/uploads"
)

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// UploadResponse is the response for a stored upload.
type UploadResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	FileName string `json:"file_name"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleHealth handles the GET /api/health endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// handleListFiles handles the GET /api/files endpoint.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.deps.Uploads.List()
	if err != nil {
		s.logger.Error("failed to list uploads", "error", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list files")
		return
	}
	s.respondJSON(w, http.StatusOK, files)
}

// handleUpload handles the POST /api/upload endpoint. The file is stored
// under a free name and indexing is scheduled; an indexing failure does
// not fail the upload since the file is indexed again on first use.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.config.Uploads.MaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.Uploads.MaxBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
				"file exceeds the upload size limit")
			return
		}
		s.respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	if err := document.Supported(header.Filename); err != nil {
		s.respondError(w, http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE", err.Error())
		return
	}

	stored, err := s.deps.Uploads.Save(header.Filename, file)
	if err != nil {
		if errors.Is(err, uploads.ErrInvalidName) {
			s.respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		s.logger.Error("failed to store upload", "file_name", header.Filename, "error", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to store file")
		return
	}
	s.logger.Info("file uploaded", "file_name", stored, "size", header.Size)

	if s.deps.Publisher != nil {
		path, err := s.deps.Uploads.Resolve(stored)
		if err == nil {
			err = s.deps.Publisher.Publish(r.Context(), path)
		}
		if err != nil {
			s.logger.Warn("failed to schedule indexing", "file_name", stored, "error", err)
		}
	}

	s.respondJSON(w, http.StatusOK, UploadResponse{
		Status:   "success",
		Message:  "File uploaded and indexing scheduled",
		FileName: stored,
	})
}

// errorStatus maps a pipeline failure to a status, an error code and the
// message shown to the caller. Client errors carry their cause; server
// errors do not.
func errorStatus(err error) (int, string, string) {
	switch {
	case document.IsUnsupported(err):
		var unsupported *document.UnsupportedFileTypeError
		errors.As(err, &unsupported)
		return http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE", unsupported.Error()
	case pipeline.IsTimeout(err):
		return http.StatusGatewayTimeout, "TIMEOUT", "the request timed out"
	case errors.Is(err, pipeline.ErrConfiguration):
		return http.StatusBadRequest, "INVALID_REQUEST", err.Error()
	case errors.Is(err, pipeline.ErrRetrieval):
		return http.StatusBadGateway, "RETRIEVAL_ERROR", "retrieval failed"
	case errors.Is(err, pipeline.ErrModelInvocation):
		return http.StatusBadGateway, "MODEL_ERROR", "model invocation failed"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

// respondPipelineError logs err and sends its mapped error response.
func (s *Server) respondPipelineError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		s.logger.Warn("request rejected", "path", r.URL.Path, "error", err)
	}
	s.respondError(w, status, code, message)
}

// respondJSON sends a JSON response with RFC 8631 Link header for API discovery.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	// RFC 8631: Link header for API documentation discovery
	w.Header().Set("Link", "<"+openAPIPath+`>; rel="service-desc"`)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// respondError sends an error response.
func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
