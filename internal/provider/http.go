package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultMaxResponseBytes = 4 * 1024 * 1024
)

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// postJSON sends payload and returns the body of a 2xx answer. Error
// answers become a *StatusError with the message extracted by errMessage.
func postJSON(ctx context.Context, client *http.Client, name, endpoint string, headers map[string]string, payload any, maxBytes int64, errMessage func([]byte) string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		// Drop the URL, Gemini carries the key in its query.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, fmt.Errorf("call %s: %w", name, err)
	}
	defer resp.Body.Close()

	if maxBytes <= 0 {
		maxBytes = defaultMaxResponseBytes
	}
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", name, err)
	}
	if int64(len(respBody)) > maxBytes {
		return nil, fmt.Errorf("%s response exceeded limit (%d bytes)", name, maxBytes)
	}
	if resp.StatusCode >= 400 {
		return nil, &StatusError{Provider: name, Code: resp.StatusCode, Message: errMessage(respBody)}
	}
	return respBody, nil
}
