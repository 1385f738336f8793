package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookOptions configures delivery retries.
type WebhookOptions struct {
	Headers    map[string]string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// WebhookSink POSTs each record to an HTTP endpoint. Failed attempts are
// retried with a doubling backoff.
type WebhookSink struct {
	url      string
	headers  map[string]string
	client   *http.Client
	backoffs []time.Duration
}

func NewWebhookSink(url string, opts WebhookOptions) (*WebhookSink, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url is empty")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	backoffs := make([]time.Duration, max(opts.MaxRetries, 0))
	for i := range backoffs {
		backoffs[i] = backoff << i
	}
	hdr := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		hdr[k] = v
	}
	return &WebhookSink{
		url:      url,
		headers:  hdr,
		client:   &http.Client{Timeout: timeout},
		backoffs: backoffs,
	}, nil
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Deliver(ctx context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= len(s.backoffs); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = s.post(ctx, payload)
		if lastErr == nil {
			return nil
		}
		if attempt < len(s.backoffs) {
			timer := time.NewTimer(s.backoffs[attempt])
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func (s *WebhookSink) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("status %d body=%q", resp.StatusCode, truncateBody(body))
}

func (s *WebhookSink) Close(context.Context) error {
	return nil
}

func truncateBody(b []byte) string {
	const limit = 200
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}
