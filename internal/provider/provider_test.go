package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Equal(t, 0.7, req.Temperature)
		assert.Equal(t, 1000, req.MaxTokens)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, DefaultSystemPrompt, req.Messages[0].Content)
		assert.Equal(t, "Hello [PERSON]", req.Messages[1].Content)

		_, _ = w.Write([]byte(`{"model":"gpt-4o-mini-2024","choices":[{"index":0,"message":{"role":"assistant","content":"  Hi there.  "}}],"usage":{"prompt_tokens":9,"completion_tokens":3,"total_tokens":12}}`))
	}))
	defer srv.Close()

	p := NewOpenAI(Settings{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "gpt-4o-mini", Temperature: 0.7, MaxTokens: 1000})
	resp, err := p.Generate(context.Background(), Request{Prompt: "Hello [PERSON]"})
	require.NoError(t, err)
	assert.Equal(t, "Hi there.", resp.Text)
	assert.Equal(t, "gpt-4o-mini-2024", resp.Model)
	assert.Equal(t, 12, resp.Usage.TotalTokens)
}

func TestOpenAIErrorStatus(t *testing.T) {
	cases := []struct {
		code   int
		reason string
	}{
		{http.StatusUnauthorized, ReasonUnauthorized},
		{http.StatusTooManyRequests, ReasonRateLimited},
		{http.StatusBadRequest, ReasonBadRequest},
		{http.StatusBadGateway, ReasonUnavailable},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			}))
			defer srv.Close()

			p := NewOpenAI(Settings{BaseURL: srv.URL, APIKey: "sk-test"})
			out := Complete(context.Background(), p, Request{Prompt: "x"})
			assert.Equal(t, StatusFailed, out.Status)
			assert.Equal(t, tc.reason, out.Reason)
			assert.Empty(t, out.Text)

			var se *StatusError
			require.ErrorAs(t, out.Err, &se)
			assert.Equal(t, tc.code, se.Code)
			assert.Contains(t, se.Message, "nope (type=invalid_request_error)")
		})
	}
}

func TestGeminiGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.URL.Query().Get("key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "Meet [PERSON] in [LOCATION]", req.Contents[0].Parts[0].Text)
		assert.Nil(t, req.SystemInstruction)

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Sure, "},{"text":"noted."}]}}],"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":3,"totalTokenCount":10}}`))
	}))
	defer srv.Close()

	p := NewGemini(Settings{BaseURL: srv.URL + "/v1beta/models/", APIKey: "g-key"})
	out := Complete(context.Background(), p, Request{Prompt: "Meet [PERSON] in [LOCATION]"})
	require.True(t, out.OK(), "reason=%s err=%v", out.Reason, out.Err)
	assert.Equal(t, "Sure, noted.", out.Text)
	assert.Equal(t, "gemini", out.Provider)
}

func TestGeminiSystemAndEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		assert.Equal(t, "be brief", req.SystemInstruction.Parts[0].Text)
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	p := NewGemini(Settings{BaseURL: srv.URL, APIKey: "g-key", SystemPrompt: "be brief"})
	out := Complete(context.Background(), p, Request{Prompt: "x"})
	assert.Equal(t, ReasonEmpty, out.Reason)
}

func TestGeminiErrorHidesKey(t *testing.T) {
	p := NewGemini(Settings{BaseURL: "http://127.0.0.1:1", APIKey: "secret-key-123", Timeout: time.Second})
	_, err := p.Generate(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-key-123")
	assert.Equal(t, ReasonUnavailable, Classify(err))
}

func TestNotConfigured(t *testing.T) {
	for _, p := range []Provider{NewOpenAI(Settings{}), NewGemini(Settings{}), Disabled{}} {
		out := Complete(context.Background(), p, Request{Prompt: "x"})
		assert.Equal(t, ReasonNotConfigured, out.Reason, p.Name())
		assert.ErrorIs(t, out.Err, ErrNotConfigured)
	}

	out := Complete(context.Background(), nil, Request{Prompt: "x"})
	assert.Equal(t, ReasonNotConfigured, out.Reason)
}

func TestClassify(t *testing.T) {
	assert.Empty(t, Classify(nil))
	assert.Equal(t, ReasonUnavailable, Classify(context.DeadlineExceeded))
	assert.Equal(t, ReasonError, Classify(errors.New("boom")))
	assert.Equal(t, ReasonUnauthorized, Classify(&StatusError{Provider: "x", Code: 403}))
}

func TestNew(t *testing.T) {
	for typ, name := range map[string]string{"gemini": "gemini", "OpenAI": "openai", "echo": "echo", "none": "none", "": "none"} {
		p, err := New(Settings{Type: typ})
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
	}
	_, err := New(Settings{Type: "anthropic"})
	assert.Error(t, err)
}

func TestEchoAndFake(t *testing.T) {
	out := Complete(context.Background(), Echo{}, Request{Prompt: "[PERSON] says hi"})
	assert.Equal(t, Outcome{Provider: "echo", Status: StatusOK, Text: "[PERSON] says hi"}, out)

	f := NewFake("ok")
	out = Complete(context.Background(), f, Request{Prompt: "p1"})
	assert.True(t, out.OK())
	require.Len(t, f.Requests(), 1)
	assert.Equal(t, "p1", f.Requests()[0].Prompt)

	f.Error = &StatusError{Provider: "fake", Code: 429}
	out = Complete(context.Background(), f, Request{Prompt: "p2"})
	assert.Equal(t, ReasonRateLimited, out.Reason)

	blank := NewFake("   ")
	assert.Equal(t, ReasonEmpty, Complete(context.Background(), blank, Request{}).Reason)
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{Provider: "openai", Code: 500}
	assert.Equal(t, "openai error status 500", err.Error())
	err.Message = "overloaded"
	assert.True(t, strings.HasSuffix(err.Error(), ": overloaded"))
}
