package id

import (
	"crypto/rand"
	"strings"

	"github.com/oklog/ulid/v2"
)

const tempPrefix = "temp-"

// New generates a new ULID string. ULIDs are lexicographically sortable
// by creation time.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// NewTemp returns an id for an optimistic message that the server has not
// acknowledged yet.
func NewTemp() string {
	return tempPrefix + New()
}

// IsTemp reports whether id was produced by NewTemp.
func IsTemp(id string) bool {
	return strings.HasPrefix(id, tempPrefix)
}
