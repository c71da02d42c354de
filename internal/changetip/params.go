package changetip

import (
	"net/url"
	"slices"
	"strings"
)

// EscapeParam percent-encodes s for use as a query or form key or value.
// Spaces become %20 and every reserved character is escaped.
func EscapeParam(s string) string {
	// QueryEscape turns a literal '+' into %2B, so any '+' left is an encoded space.
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// EncodeParams encodes params as key=value pairs joined by '&', sorted by key.
func EncodeParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(EscapeParam(k))
		sb.WriteByte('=')
		sb.WriteString(EscapeParam(params[k]))
	}
	return sb.String()
}

// DecodeParams is the inverse of EncodeParams. Pairs are accepted in any order;
// pairs without '=' or with invalid escapes are skipped, and a later duplicate key
// wins. An empty key is kept. Only %XX escapes are decoded: a literal '+' stays a
// '+', since EncodeParams never writes one for a space. An empty string yields an
// empty map.
func DecodeParams(raw string) map[string]string {
	params := make(map[string]string)
	for pair := range strings.SplitSeq(raw, "&") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, err := url.PathUnescape(name)
		if err != nil {
			continue
		}
		val, err := url.PathUnescape(value)
		if err != nil {
			continue
		}
		params[key] = val
	}
	return params
}
