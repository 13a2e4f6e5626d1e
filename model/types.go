package model

import (
	"fmt"
	"path"
	"strings"

	"github.com/hupe1980/rescache/internal/hash"
)

// Hash is the content-addressing key of a resource.
type Hash uint64

// String returns the hash as 16 hex digits.
func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// Fingerprint derives the Hash of a logical resource path.
//
// The path is normalized first: backslashes become slashes, the result is
// cleaned and a leading "./" or "/" is dropped. Equivalent spellings of the same
// path therefore map to the same hash.
func Fingerprint(p string) Hash {
	return Hash(hash.FNV64a([]byte(NormalizePath(p))))
}

// NormalizePath returns the canonical spelling used by Fingerprint.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// State is the position of a cache entry in the construction pipeline.
type State uint8

const (
	// StatePending means the entry exists but construction has not started.
	StatePending State = iota
	// StateConstructing means raw bytes are being loaded and the construct hook runs.
	StateConstructing
	// StateWaitingOnDependencies means construction succeeded and declared
	// dependencies are still on their way to Ready.
	StateWaitingOnDependencies
	// StateReady means the payload is fully usable.
	StateReady
	// StateDeleting means the last reference was released and the payload is being torn down.
	StateDeleting
	// StateFailed means loading, construction or a dependency failed.
	StateFailed
)

// String returns a human readable state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConstructing:
		return "constructing"
	case StateWaitingOnDependencies:
		return "waiting-on-dependencies"
	case StateReady:
		return "ready"
	case StateDeleting:
		return "deleting"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// InFlight reports whether a construction pipeline owns the entry in this state.
func (s State) InFlight() bool {
	return s == StatePending || s == StateConstructing || s == StateWaitingOnDependencies
}

// Counters holds cumulative lifecycle hook call counts.
// They keep growing across hot reloads.
type Counters struct {
	Construct             int64
	DependenciesFulfilled int64
	Delete                int64
}
