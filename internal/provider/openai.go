package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultOpenAIURL   = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel = "gpt-3.5-turbo"
)

// openAIProvider implements Provider for the OpenAI Chat Completions API.
type openAIProvider struct {
	url              string
	apiKey           string
	model            string
	system           string
	temperature      float64
	maxTokens        int
	client           *http.Client
	maxResponseBytes int64
}

// NewOpenAI creates a new OpenAI provider. BaseURL may name either the
// API root or the chat completions endpoint.
func NewOpenAI(s Settings) Provider {
	url := strings.TrimRight(s.BaseURL, "/")
	switch {
	case url == "":
		url = defaultOpenAIURL
	case !strings.HasSuffix(url, "/chat/completions"):
		url += "/chat/completions"
	}
	model := s.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	system := s.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}
	return &openAIProvider{
		url:              url,
		apiKey:           s.APIKey,
		model:            model,
		system:           system,
		temperature:      s.Temperature,
		maxTokens:        s.MaxTokens,
		client:           newHTTPClient(s.Timeout),
		maxResponseBytes: s.MaxResponseBytes,
	}
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Model   string             `json:"model"`
	Choices []openAIChatChoice `json:"choices"`
	Usage   openAIChatUsage    `json:"usage"`
}

type openAIChatChoice struct {
	Index        int               `json:"index"`
	Message      openAIChatMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type openAIChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *openAIProvider) Name() string { return "openai" }

func (p *openAIProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if p.apiKey == "" {
		return nil, ErrNotConfigured
	}
	system := req.System
	if system == "" {
		system = p.system
	}
	oaiReq := openAIChatRequest{
		Model: p.model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}

	respBody, err := postJSON(ctx, p.client, p.Name(), p.url,
		map[string]string{"Authorization": "Bearer " + p.apiKey},
		oaiReq, p.maxResponseBytes, openAIErrorMessage)
	if err != nil {
		return nil, err
	}

	var oaiResp openAIChatResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, fmt.Errorf("decode openai response: %w", err)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	model := oaiResp.Model
	if model == "" {
		model = p.model
	}
	return &Response{
		Text:  strings.TrimSpace(oaiResp.Choices[0].Message.Content),
		Model: model,
		Usage: Usage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		},
	}, nil
}

func openAIErrorMessage(body []byte) string {
	var errBody openAIErrorResponse
	if err := json.Unmarshal(body, &errBody); err != nil || errBody.Error.Message == "" {
		return strings.TrimSpace(string(body))
	}
	if errBody.Error.Type != "" {
		return fmt.Sprintf("%s (type=%s)", errBody.Error.Message, errBody.Error.Type)
	}
	return errBody.Error.Message
}
