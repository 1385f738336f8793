// Package console serves the browser playground for the analyze API.
package console

import (
	_ "embed"
	"net/http"
)

const (
	RobotsTagHeader = "X-Robots-Tag"
	RobotsTagValue  = "noindex, nofollow"
)

//go:embed console.html
var consoleHTML []byte

// Handler serves the playground page. The page calls /v1/analyze and
// /v1/sample on the same origin.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set(RobotsTagHeader, RobotsTagValue)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(consoleHTML)
	})
}
