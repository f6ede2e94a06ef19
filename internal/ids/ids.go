// Package ids generates sortable identifiers for session rows and requests.
package ids

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	return ulid.Make().String()
}

// NewRequestID returns an identifier for correlating log lines of one request.
func NewRequestID() string {
	return "req_" + strings.ToLower(ulid.Make().String())
}
