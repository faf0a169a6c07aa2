package mime

import (
	"regexp"
	"strings"
)

// Headers maps a lower-cased header name to its decoded values.
type Headers map[string][]string

// emailPattern matches a bare email address inside a header value.
var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// ParseHeaders converts raw provider headers into Headers.
//
// Address headers (from, to) keep only the email addresses found in the
// value; display names are dropped. Every other header becomes a single
// value. When a name repeats, the last occurrence wins.
func ParseHeaders(raw []Header) Headers {
	result := make(Headers, len(raw))
	for _, h := range raw {
		key := strings.ToLower(h.Name)
		switch key {
		case "from", "to":
			addrs := emailPattern.FindAllString(h.Value, -1)
			if addrs == nil {
				addrs = []string{}
			}
			result[key] = addrs
		default:
			result[key] = []string{h.Value}
		}
	}
	return result
}

// Get returns the first value for name, or "".
func (h Headers) Get(name string) string {
	if vals := h[strings.ToLower(name)]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}
