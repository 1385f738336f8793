// Package provider sends redacted text to a generation model.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// DefaultSystemPrompt tells the model about the redaction placeholders.
const DefaultSystemPrompt = "You are a helpful AI assistant. Note that the user's message may contain privacy placeholders like [PERSON], [EMAIL], [PHONE], etc. Respond naturally while acknowledging these placeholders when relevant."

var (
	// ErrNotConfigured is returned when the provider has no API key or
	// generation is switched off.
	ErrNotConfigured = errors.New("provider: not configured")
	// ErrEmptyResponse is returned when the model answered without text.
	ErrEmptyResponse = errors.New("provider: empty response")
)

// Request is what a provider may see: redacted text only.
type Request struct {
	Prompt string
	System string
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Provider is the interface for all upstream generation models.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
}

// StatusError is an HTTP error answer from an upstream API.
type StatusError struct {
	Provider string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s error status %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s error status %d: %s", e.Provider, e.Code, e.Message)
}

// Outcome statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "error"
)

// Failure reasons reported in Outcome.Reason.
const (
	ReasonUnauthorized  = "unauthorized"
	ReasonRateLimited   = "rate_limited"
	ReasonBadRequest    = "bad_request"
	ReasonUnavailable   = "unavailable"
	ReasonNotConfigured = "not_configured"
	ReasonEmpty         = "empty_response"
	ReasonError         = "error"
)

// Outcome is the tagged result of a generation call. Failures carry a
// reason class instead of text.
type Outcome struct {
	Provider string `json:"provider"`
	Status   string `json:"status"`
	Text     string `json:"text,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Err      error  `json:"-"`
}

// OK reports whether generation succeeded.
func (o Outcome) OK() bool { return o.Status == StatusOK }

// Complete calls p and folds any error into the Outcome.
func Complete(ctx context.Context, p Provider, req Request) Outcome {
	if p == nil {
		return Outcome{Provider: "none", Status: StatusFailed, Reason: ReasonNotConfigured, Err: ErrNotConfigured}
	}
	resp, err := p.Generate(ctx, req)
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		return Outcome{Provider: p.Name(), Status: StatusFailed, Reason: Classify(err), Err: err}
	}
	return Outcome{Provider: p.Name(), Status: StatusOK, Text: resp.Text}
}

// Classify maps an error from Generate to a failure reason.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrNotConfigured) {
		return ReasonNotConfigured
	}
	if errors.Is(err, ErrEmptyResponse) {
		return ReasonEmpty
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == 401 || se.Code == 403:
			return ReasonUnauthorized
		case se.Code == 429:
			return ReasonRateLimited
		case se.Code >= 500:
			return ReasonUnavailable
		case se.Code >= 400:
			return ReasonBadRequest
		}
		return ReasonError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonUnavailable
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ReasonUnavailable
	}
	return ReasonError
}

// Settings selects and configures a provider.
type Settings struct {
	Type             string // gemini | openai | echo | none
	Model            string
	BaseURL          string
	APIKey           string
	SystemPrompt     string
	Temperature      float64
	MaxTokens        int
	Timeout          time.Duration
	MaxResponseBytes int64
}

// New builds the provider named by s.Type. Remote providers without an
// API key are still built; their calls fail with ErrNotConfigured.
func New(s Settings) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s.Type)) {
	case "gemini":
		return NewGemini(s), nil
	case "openai":
		return NewOpenAI(s), nil
	case "echo":
		return Echo{}, nil
	case "none", "":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", s.Type)
	}
}

// Echo returns the prompt unchanged.
type Echo struct{}

func (Echo) Name() string { return "echo" }

func (Echo) Generate(ctx context.Context, req Request) (*Response, error) {
	return &Response{Text: req.Prompt, Model: "echo"}, nil
}

// Disabled refuses every call.
type Disabled struct{}

func (Disabled) Name() string { return "none" }

func (Disabled) Generate(ctx context.Context, req Request) (*Response, error) {
	return nil, ErrNotConfigured
}
