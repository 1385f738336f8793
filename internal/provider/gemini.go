package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultGeminiURL   = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultGeminiModel = "gemini-1.5-flash"
)

// geminiProvider calls the Gemini generateContent endpoint.
type geminiProvider struct {
	baseURL          string
	apiKey           string
	model            string
	system           string
	temperature      float64
	maxTokens        int
	client           *http.Client
	maxResponseBytes int64
}

// NewGemini creates a Gemini provider. The system prompt is only sent when
// configured.
func NewGemini(s Settings) Provider {
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = defaultGeminiURL
	}
	model := s.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &geminiProvider{
		baseURL:          base,
		apiKey:           s.APIKey,
		model:            model,
		system:           s.SystemPrompt,
		temperature:      s.Temperature,
		maxTokens:        s.MaxTokens,
		client:           newHTTPClient(s.Timeout),
		maxResponseBytes: s.MaxResponseBytes,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (p *geminiProvider) Name() string { return "gemini" }

func (p *geminiProvider) endpoint() string {
	return fmt.Sprintf("%s/%s:generateContent?key=%s", p.baseURL, p.model, url.QueryEscape(p.apiKey))
}

func (p *geminiProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if p.apiKey == "" {
		return nil, ErrNotConfigured
	}
	gReq := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     p.temperature,
			MaxOutputTokens: p.maxTokens,
		},
	}
	system := req.System
	if system == "" {
		system = p.system
	}
	if system != "" {
		gReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}

	respBody, err := postJSON(ctx, p.client, p.Name(), p.endpoint(), nil, gReq, p.maxResponseBytes, geminiErrorMessage)
	if err != nil {
		return nil, err
	}

	var gResp geminiResponse
	if err := json.Unmarshal(respBody, &gResp); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(gResp.Candidates) == 0 || len(gResp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range gResp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	model := gResp.ModelVersion
	if model == "" {
		model = p.model
	}
	return &Response{
		Text:  b.String(),
		Model: model,
		Usage: Usage{
			PromptTokens:     gResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: gResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gResp.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

func geminiErrorMessage(body []byte) string {
	var errBody geminiErrorResponse
	if err := json.Unmarshal(body, &errBody); err != nil || errBody.Error.Message == "" {
		return strings.TrimSpace(string(body))
	}
	if errBody.Error.Status != "" {
		return fmt.Sprintf("%s (status=%s)", errBody.Error.Message, errBody.Error.Status)
	}
	return errBody.Error.Message
}
