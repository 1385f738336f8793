// Package mockprovider serves a local stand-in for the OpenAI and Gemini
// generation APIs. It records every prompt it receives.
package mockprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/privacyshield/privacyshield/internal/scrub"
)

const (
	defaultPort    = 18080
	defaultDelayMS = 50
)

// Server is a running mock upstream.
type Server struct {
	URL string

	srv   *http.Server
	delay time.Duration

	mu      sync.Mutex
	prompts []string
}

// Start launches the mock on addr. If addr is empty, it listens on
// 127.0.0.1:MOCK_PROVIDER_PORT (default 18080). MOCK_DELAY_MS adds a
// fixed delay to every completion (default 50ms).
func Start(addr string) (*Server, error) {
	if strings.TrimSpace(addr) == "" {
		port := strings.TrimSpace(os.Getenv("MOCK_PROVIDER_PORT"))
		if port == "" {
			port = strconv.Itoa(defaultPort)
		}
		addr = "127.0.0.1:" + port
	}

	delay := defaultDelayMS
	if val := strings.TrimSpace(os.Getenv("MOCK_DELAY_MS")); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed >= 0 {
			delay = parsed
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	s := &Server{
		URL:   "http://" + ln.Addr().String(),
		delay: time.Duration(delay) * time.Millisecond,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.route)
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			scrub.Logf("mock provider server error: %v", err)
		}
	}()

	scrub.Logf("mock provider listening on %s (delay_ms=%d)", s.URL, delay)
	return s, nil
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Prompts returns a copy of the user prompts received so far.
func (s *Server) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

func (s *Server) record(prompt string) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	scrub.Debugf("mock upstream request method=%s path=%s", r.Method, r.URL.Path)

	p := r.URL.Path
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}

	switch {
	case r.Method == http.MethodPost && (p == "/v1/chat/completions" || p == "/chat/completions"):
		s.chatCompletion(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(p, ":generateContent"):
		s.generateContent(w, r)
	case r.Method == http.MethodGet && (p == "/v1/models" || p == "/models"):
		writeModels(w)
	default:
		writeNotFoundJSON(w)
	}
}

func (s *Server) wait(ctx context.Context) {
	if s.delay <= 0 {
		return
	}
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
	}
}

// Reply is the deterministic completion text for prompt.
func Reply(prompt string) string {
	return "mock reply to: " + prompt
}

func (s *Server) chatCompletion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	var prompt string
	for _, m := range req.Messages {
		if m.Role == "user" {
			prompt = m.Content
		}
	}
	s.record(prompt)
	s.wait(r.Context())

	model := req.Model
	if model == "" {
		model = "mock-llm"
	}
	writeJSON(w, map[string]any{
		"id":      "chatcmpl-mock",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]string{
					"role":    "assistant",
					"content": Reply(prompt),
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     5,
			"completion_tokens": 5,
			"total_tokens":      10,
		},
	})
}

func (s *Server) generateContent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Contents []struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	var parts []string
	for _, c := range req.Contents {
		for _, p := range c.Parts {
			parts = append(parts, p.Text)
		}
	}
	prompt := strings.Join(parts, "\n")
	s.record(prompt)
	s.wait(r.Context())

	writeJSON(w, map[string]any{
		"candidates": []map[string]any{
			{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]string{{"text": Reply(prompt)}},
				},
				"finishReason": "STOP",
			},
		},
		"usageMetadata": map[string]int{
			"promptTokenCount":     5,
			"candidatesTokenCount": 5,
			"totalTokenCount":      10,
		},
		"modelVersion": "mock-llm",
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": msg, "type": "invalid_request_error"},
	})
}

func writeNotFoundJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": "Not found",
			"type":    "invalid_request_error",
		},
	})
}

func writeModels(w http.ResponseWriter) {
	writeJSON(w, map[string]any{
		"object": "list",
		"data": []map[string]any{
			{
				"id":       "mock-llm",
				"object":   "model",
				"owned_by": "mock",
			},
		},
	})
}
