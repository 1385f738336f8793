package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/privacyshield/privacyshield/internal/app"
	"github.com/privacyshield/privacyshield/internal/audit"
	"github.com/privacyshield/privacyshield/internal/privacy"
	"github.com/privacyshield/privacyshield/internal/scrub"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, message, typ string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Message: message, Type: typ}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		scrub.Logf("failed to write response: %v", err)
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
	return false
}

// decodeBody reads a JSON body, writing the error response itself when
// it fails.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if isRequestTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large", "invalid_request_error")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body", "invalid_request_error")
		return false
	}
	return true
}

// --- Handlers ---

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "Not found", "not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"version": s.version,
		"endpoints": map[string]string{
			"analyze":  "/v1/analyze",
			"score":    "/v1/score",
			"sample":   "/v1/sample",
			"entities": "/v1/entities",
			"audit":    "/v1/audit",
			"health":   "/health",
			"console":  "/console",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": apiVersion,
		"service": serviceName,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "ok")
}

type analyzeRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	// Generate defaults to true when omitted.
	Generate *bool `json:"generate,omitempty"`
}

type generationBody struct {
	Provider string `json:"provider"`
	Status   string `json:"status"`
	Text     string `json:"text,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type analyzeResponse struct {
	Entities      []privacy.Span  `json:"entities"`
	RedactedText  string          `json:"redacted_text"`
	PrivacyScore  int             `json:"privacy_score"`
	RejectedCount int             `json:"rejected_count"`
	Generation    *generationBody `json:"generation,omitempty"`
}

func newAnalyzeResponse(out *app.Analysis) analyzeResponse {
	res := out.Result
	resp := analyzeResponse{
		Entities:      res.Entities,
		RedactedText:  res.RedactedText,
		PrivacyScore:  res.Score,
		RejectedCount: len(res.Rejected),
	}
	if g := out.Generation; g != nil {
		resp.Generation = &generationBody{Provider: g.Provider, Status: g.Status, Text: g.Text, Reason: g.Reason}
	}
	return resp
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req analyzeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := r.Context()
	if secs := s.app.Config.Server.RequestTimeoutSeconds; secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	generate := req.Generate == nil || *req.Generate
	out, err := s.app.Analyze(ctx, app.Request{
		Text:     req.Text,
		Language: req.Language,
		Generate: generate,
		Route:    "/v1/analyze",
	})
	switch {
	case errors.Is(err, privacy.ErrEmptyText):
		writeError(w, http.StatusBadRequest, "Text cannot be empty", "invalid_request_error")
		return
	case errors.Is(err, privacy.ErrTextTooLong):
		writeError(w, http.StatusRequestEntityTooLarge, "Text exceeds the maximum length", "invalid_request_error")
		return
	case err != nil:
		scrub.Logf("analyze failed: %v", err)
		writeError(w, http.StatusBadGateway, "Entity detection failed", "detector_error")
		return
	}

	writeJSON(w, http.StatusOK, newAnalyzeResponse(out))
}

type scoreEntity struct {
	EntityType string   `json:"entity_type"`
	Confidence *float64 `json:"confidence,omitempty"`
	// Score is accepted as an alias so analyze output can be posted back.
	Score *float64 `json:"score,omitempty"`
}

type scoreRequest struct {
	Entities []scoreEntity `json:"entities"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req scoreRequest
	if !decodeBody(w, r, &req) {
		return
	}

	spans := make([]privacy.Span, 0, len(req.Entities))
	for i, e := range req.Entities {
		typ := privacy.ParseEntityType(e.EntityType)
		if typ == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("entities[%d]: entity_type is required", i), "invalid_request_error")
			return
		}
		conf := 1.0
		switch {
		case e.Confidence != nil:
			conf = *e.Confidence
		case e.Score != nil:
			conf = *e.Score
		}
		if conf < 0 || conf > 1 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("entities[%d]: confidence must be within [0,1]", i), "invalid_request_error")
			return
		}
		spans = append(spans, privacy.Span{Type: typ, Confidence: conf})
	}

	writeJSON(w, http.StatusOK, map[string]int{"privacy_score": s.app.Score(spans)})
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, buildSample(r.Context(), s.app.Engine))
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entities": s.app.Engine.Tables().Describe(),
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if s.app.Store == nil {
		writeError(w, http.StatusNotFound, "audit store is not configured", "not_found")
		return
	}

	limit := audit.DefaultRecentLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", "invalid_request_error")
			return
		}
		limit = n
	}

	recs, err := s.app.Store.Recent(r.Context(), limit)
	if err != nil {
		scrub.Logf("audit query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "audit query failed", "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": recs, "count": len(recs)})
}

func (s *Server) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.app.Audit.Stats())
}

const robotsTxt = "User-agent: *\nDisallow: /\n"

func handleRobots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(robotsTxt))
}
