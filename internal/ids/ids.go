// Package ids generates storage keys.
package ids

import "github.com/oklog/ulid/v2"

// New returns a lexicographically sortable ULID. Ids are Crockford base32,
// so they never contain the "_" used as the session bearer separator.
func New() string {
	return ulid.Make().String()
}

