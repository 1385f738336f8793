package mockprovider

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privacyshield/privacyshield/internal/provider"
)

func startMock(t *testing.T) *Server {
	t.Helper()
	t.Setenv("MOCK_DELAY_MS", "0")
	s, err := Start("127.0.0.1:0")
	if err != nil {
		t.Skipf("start mock provider: %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func TestMockOpenAI(t *testing.T) {
	s := startMock(t)

	p, err := provider.New(provider.Settings{Type: "openai", BaseURL: s.URL + "/v1", APIKey: "mock", Timeout: 5 * time.Second})
	require.NoError(t, err)

	out := provider.Complete(context.Background(), p, provider.Request{Prompt: "Hi [PERSON]"})
	require.True(t, out.OK(), out.Reason)
	assert.Equal(t, Reply("Hi [PERSON]"), out.Text)
	assert.Equal(t, []string{"Hi [PERSON]"}, s.Prompts())
}

func TestMockGemini(t *testing.T) {
	s := startMock(t)

	p, err := provider.New(provider.Settings{Type: "gemini", BaseURL: s.URL + "/v1beta/models", APIKey: "mock", Timeout: 5 * time.Second})
	require.NoError(t, err)

	out := provider.Complete(context.Background(), p, provider.Request{Prompt: "Mail [EMAIL]"})
	require.True(t, out.OK(), out.Reason)
	assert.Equal(t, Reply("Mail [EMAIL]"), out.Text)
	assert.Equal(t, []string{"Mail [EMAIL]"}, s.Prompts())
}

func TestMockNotFound(t *testing.T) {
	s := startMock(t)

	resp, err := http.Get(s.URL + "/v1/unknown")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	models, err := http.Get(s.URL + "/v1/models")
	require.NoError(t, err)
	defer models.Body.Close()
	assert.Equal(t, http.StatusOK, models.StatusCode)
}
