package console

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandlerServesPlayground(t *testing.T) {
	handler := Handler()
	req := httptest.NewRequest(http.MethodGet, "/console", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := rr.Header().Get(RobotsTagHeader); got != RobotsTagValue {
		t.Fatalf("expected %s header %q, got %q", RobotsTagHeader, RobotsTagValue, got)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if len(rr.Body.Bytes()) == 0 {
		t.Fatalf("expected a page body")
	}
}

func TestHandlerRejectsPost(t *testing.T) {
	handler := Handler()
	req := httptest.NewRequest(http.MethodPost, "/console", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rr.Code)
	}
}
