package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_Normalization(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"dot prefix", "a/b.txt", "./a/b.txt"},
		{"double slash", "a/b.txt", "a//b.txt"},
		{"backslash", "a/b.txt", "a\\b.txt"},
		{"leading slash", "a/b.txt", "/a/b.txt"},
		{"parent", "a/b.txt", "a/c/../b.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Fingerprint(tt.a), Fingerprint(tt.b))
		})
	}

	assert.NotEqual(t, Fingerprint("a/b.txt"), Fingerprint("a/c.txt"))
}

func TestFingerprint_Stable(t *testing.T) {
	// FNV-1a 64 of the empty string is the offset basis.
	assert.Equal(t, Hash(0xcbf29ce484222325), Fingerprint(""))
	assert.Equal(t, "cbf29ce484222325", Fingerprint(".").String())
}

func TestState(t *testing.T) {
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "waiting-on-dependencies", StateWaitingOnDependencies.String())
	assert.Equal(t, "state(42)", State(42).String())

	assert.True(t, StatePending.InFlight())
	assert.True(t, StateConstructing.InFlight())
	assert.True(t, StateWaitingOnDependencies.InFlight())
	assert.False(t, StateReady.InFlight())
	assert.False(t, StateFailed.InFlight())
	assert.False(t, StateDeleting.InFlight())
}
