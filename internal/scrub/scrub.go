// Package scrub masks secrets and contact details in log lines.
package scrub

import (
	"fmt"
	"log"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync/atomic"
)

var (
	authHeaderRe  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	bearerRe      = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	apiKeyValueRe = regexp.MustCompile(`(?i)(api[_-]?keys?\s*[:=]\s*)([A-Za-z0-9._\-+/=]+)`)
	openAIKeyRe   = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{8,}`)
	googleKeyRe   = regexp.MustCompile(`\bAIza[A-Za-z0-9_\-]{20,}`)
	headerKeyRe   = regexp.MustCompile(`(?i)(x-api-key|x-goog-api-key)\s*[:=]\s*([A-Za-z0-9._\-+/=]+)`)
	tokenishKeyRe = regexp.MustCompile(`(?i)\b(key|token|secret)\s*[:=]\s*([A-Za-z0-9._\-+/=]{6,})`)
	emailRe       = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	urlRe         = regexp.MustCompile(`https?://[^\s"'<>]+`)
)

const mask = "[REDACTED]"

// String masks known secret patterns and email addresses.
func String(s string) string {
	if s == "" {
		return s
	}

	out := s
	out = urlRe.ReplaceAllStringFunc(out, redactURL)
	out = authHeaderRe.ReplaceAllString(out, "${1}"+mask)
	out = bearerRe.ReplaceAllString(out, "${1}"+mask)
	out = apiKeyValueRe.ReplaceAllString(out, "${1}"+mask)
	out = headerKeyRe.ReplaceAllString(out, "${1}="+mask)
	out = openAIKeyRe.ReplaceAllString(out, "sk-"+mask)
	out = googleKeyRe.ReplaceAllString(out, mask)
	out = tokenishKeyRe.ReplaceAllStringFunc(out, func(s string) string {
		if strings.Contains(s, mask) {
			return s
		}
		m := tokenishKeyRe.FindStringSubmatch(s)
		if len(m) < 3 {
			return s
		}
		return m[1] + "=" + mask
	})
	out = emailRe.ReplaceAllString(out, "[EMAIL]")
	for strings.Contains(out, mask+mask) {
		out = strings.ReplaceAll(out, mask+mask, mask)
	}
	return out
}

// Any formats the value with %+v and scrubs it.
func Any(v any) string {
	return String(fmt.Sprintf("%+v", v))
}

// Sprintf formats like fmt.Sprintf and scrubs the result.
func Sprintf(format string, args ...any) string {
	return String(fmt.Sprintf(format, args...))
}

// Logf prints a scrubbed log line.
func Logf(format string, args ...any) {
	log.Print(Sprintf(format, args...))
}

// Fatalf prints a scrubbed log line and exits.
func Fatalf(format string, args ...any) {
	log.Fatal(Sprintf(format, args...))
}

var verbose atomic.Bool

// SetVerbose enables Debugf output.
func SetVerbose(v bool) { verbose.Store(v) }

// Debugf logs like Logf when verbose output is enabled.
func Debugf(format string, args ...any) {
	if verbose.Load() {
		Logf(format, args...)
	}
}

// redactURL keeps scheme, host and the last path element. Query strings
// are dropped since providers pass keys there.
func redactURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "[REDACTED_URL]"
	}

	host := u.Host
	if strings.HasSuffix(u.Path, "/") || u.Path == "" {
		return fmt.Sprintf("%s://%s/", u.Scheme, host)
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return fmt.Sprintf("%s://%s/", u.Scheme, host)
	}
	return fmt.Sprintf("%s://%s/.../%s", u.Scheme, host, base)
}
