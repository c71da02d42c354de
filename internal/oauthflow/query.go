package oauthflow

import (
	"github.com/florianilch/changekit/internal/changetip"
)

// ParseQuery decodes a raw query string into a map. Percent-encoded keys and values
// are decoded; a missing or empty query yields an empty map.
func ParseQuery(rawQuery string) map[string]string {
	return changetip.DecodeParams(rawQuery)
}
