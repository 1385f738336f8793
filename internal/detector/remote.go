package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/privacyshield/privacyshield/internal/privacy"
)

const (
	defaultRemoteTimeout  = 5 * time.Second
	defaultRemoteMaxBytes = 2 * 1024 * 1024
)

// RemoteConfig points at an HTTP classification sidecar.
type RemoteConfig struct {
	URL              string
	APIKey           string
	Timeout          time.Duration
	MaxResponseBytes int64
	Client           *http.Client
}

// Remote asks a sidecar service for entities. The sidecar answers
// POST {url}/classify with character offsets, which Remote converts to
// byte offsets.
type Remote struct {
	url      string
	apiKey   string
	client   *http.Client
	maxBytes int64
}

type remoteRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type remoteResponse struct {
	Spans []remoteSpan `json:"spans"`
}

type remoteSpan struct {
	Start int     `json:"start"`
	End   int     `json:"end"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func NewRemote(cfg RemoteConfig) (*Remote, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errors.New("remote detector: url is empty")
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultRemoteTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = defaultRemoteMaxBytes
	}
	return &Remote{url: base, apiKey: cfg.APIKey, client: client, maxBytes: maxBytes}, nil
}

func (r *Remote) Name() string { return "remote" }

func (r *Remote) Detect(ctx context.Context, text, language string) ([]privacy.Span, error) {
	body, err := json.Marshal(remoteRequest{Text: text, Language: language})
	if err != nil {
		return nil, fmt.Errorf("marshal classify request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call classify: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read classify response: %w", err)
	}
	if int64(len(respBody)) > r.maxBytes {
		return nil, fmt.Errorf("classify response exceeded limit (%d bytes)", r.maxBytes)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("classify status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed remoteResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode classify response: %w", err)
	}
	return r.toSpans(text, parsed.Spans), nil
}

// toSpans converts sidecar spans. "O" labels are dropped. Offsets past
// the end of text stay past the end so the engine rejects or clamps them.
func (r *Remote) toSpans(text string, in []remoteSpan) []privacy.Span {
	idx := newRuneIndex(text)
	last := len(idx.bytes) - 1
	toByte := func(off int) int {
		if b, ok := idx.byteOffset(off); ok {
			return b
		}
		if off < 0 {
			return off
		}
		return len(text) + (off - last)
	}

	out := make([]privacy.Span, 0, len(in))
	for _, s := range in {
		typ, ok := remoteLabel(s.Label)
		if !ok {
			continue
		}
		span := privacy.Span{
			Type:       typ,
			Start:      toByte(s.Start),
			End:        toByte(s.End),
			Confidence: s.Score,
			Source:     r.Name(),
		}
		if span.Start >= 0 && span.Start <= span.End && span.End <= len(text) {
			span.Text = text[span.Start:span.End]
		}
		out = append(out, span)
	}
	return out
}

// remoteLabel accepts entity type names as well as NER tags such as
// B-PER. Other labels pass through as custom types.
func remoteLabel(label string) (privacy.EntityType, bool) {
	t := privacy.ParseEntityType(label)
	if t.Known() {
		return t, true
	}
	_, tag := splitTag(label)
	if tag == "" {
		return "", false
	}
	if mapped, ok := DefaultNERLabels[strings.ToUpper(tag)]; ok {
		return mapped, true
	}
	return privacy.ParseEntityType(tag), true
}
