package observability

import (
	"net/url"
	"strings"
	"unicode"
)

// Query parameters that carry credentials and never reach logs or spans verbatim.
var sensitiveQueryParams = []string{"sessionId", "token"}

func clean(value string, limit int) string {
	var b strings.Builder
	n := 0
	for _, r := range value {
		if n >= limit {
			break
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// SanitizeRoute strips control characters from a route pattern and bounds its length.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return clean(route, 180)
}

func SanitizeMethod(method string) string {
	return clean(strings.ToUpper(method), 10)
}

// SanitizeIdentifier bounds customer and order identifiers written to logs.
func SanitizeIdentifier(id string) string {
	return clean(strings.TrimSpace(id), 64)
}

// MaskSessionID keeps a short prefix of a guest session id. The full value works as a cart
// credential, so it is never logged.
func MaskSessionID(sessionID string) string {
	sessionID = SanitizeIdentifier(sessionID)
	if sessionID == "" {
		return ""
	}
	runes := []rune(sessionID)
	if len(runes) <= 8 {
		return "***"
	}
	return string(runes[:8]) + "***"
}

// RedactQuery returns the request target with credential query values masked.
func RedactQuery(u *url.URL) string {
	if u == nil {
		return ""
	}
	if u.RawQuery == "" {
		return u.EscapedPath()
	}
	q := u.Query()
	for _, key := range sensitiveQueryParams {
		if q.Has(key) {
			q.Set(key, "redacted")
		}
	}
	return u.EscapedPath() + "?" + q.Encode()
}
