package logging

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"unicode"
)

// Mask replaces redacted values.
const Mask = "***"

// DefaultSensitiveKeys matches header and attribute names whose values are
// never logged.
var DefaultSensitiveKeys = []string{
	`(?i)^authorization$`,
	`(?i)^cookie$`,
	`(?i)^set-cookie$`,
	`(?i)token`,
	`(?i)secret`,
	`(?i)password`,
	`(?i)^sec-websocket-key$`,
}

// Redactor masks sensitive values and strips control characters from
// strings, so peer-supplied text cannot forge log lines.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor compiles patterns. It panics on an invalid pattern.
func NewRedactor(patterns ...string) *Redactor {
	r := &Redactor{patterns: make([]*regexp.Regexp, len(patterns))}
	for i, p := range patterns {
		r.patterns[i] = regexp.MustCompile(p)
	}
	return r
}

func (r *Redactor) sensitive(key string) bool {
	for _, p := range r.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook.
func (r *Redactor) ReplaceAttr(groups []string, a slog.Attr) slog.Attr {
	if r.sensitive(a.Key) {
		return slog.String(a.Key, Mask)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, stripControl(a.Value.String()))
	case slog.KindAny:
		switch v := a.Value.Any().(type) {
		case http.Header:
			return slog.Any(a.Key, r.header(v))
		case map[string]any:
			return slog.Any(a.Key, r.mask(v))
		}
	}
	return a
}

func (r *Redactor) header(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		if r.sensitive(k) {
			out[k] = []string{Mask}
			continue
		}
		clean := make([]string, len(vs))
		for i, v := range vs {
			clean[i] = stripControl(v)
		}
		out[k] = clean
	}
	return out
}

// mask returns a copy of m with sensitive keys masked, recursing into nested maps.
func (r *Redactor) mask(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch {
		case r.sensitive(k):
			out[k] = Mask
		case isMap(v):
			out[k] = r.mask(v.(map[string]any))
		default:
			out[k] = v
		}
	}
	return out
}

func isMap(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

// stripControl drops control characters other than tab and newlines.
func stripControl(s string) string {
	clean := true
	for _, c := range s {
		if unicode.IsControl(c) && !isSafeControl(c) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if !unicode.IsControl(c) || isSafeControl(c) {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func isSafeControl(c rune) bool {
	return c == '\n' || c == '\t' || c == '\r'
}
