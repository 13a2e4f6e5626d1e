package testutil

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"
)

// RNG is a seeded, goroutine-safe source of test content. Two RNGs with the
// same seed produce the same paths and bytes.
type RNG struct {
	seed uint64

	mu  sync.Mutex
	src *rand.ChaCha8
	r   *rand.Rand
}

// NewRNG creates an RNG for seed.
func NewRNG(seed uint64) *RNG {
	g := &RNG{seed: seed}
	g.Reset()
	return g
}

// Reset rewinds the RNG to its seed.
func (g *RNG) Reset() {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], g.seed)

	g.mu.Lock()
	g.src = rand.NewChaCha8(key)
	g.r = rand.New(g.src)
	g.mu.Unlock()
}

// Seed returns the seed.
func (g *RNG) Seed() uint64 {
	return g.seed
}

// IntN returns a number in [0,n).
func (g *RNG) IntN(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.r.IntN(n)
}

// Bytes returns n random bytes.
func (g *RNG) Bytes(n int) []byte {
	b := make([]byte, n)
	g.mu.Lock()
	_, _ = g.src.Read(b)
	g.mu.Unlock()
	return b
}

var extensions = []string{"bin", "json", "mesh", "png", "wav"}

// Paths returns n distinct resource paths below dir.
func (g *RNG) Paths(dir string, n int) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	seen := make(map[string]bool, n)
	out := make([]string, 0, n)
	for len(out) < n {
		p := fmt.Sprintf("%s/%08x.%s", dir, g.r.Uint32(), extensions[g.r.IntN(len(extensions))])
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Tree returns n files below dir with random content of minSize up to
// maxSize bytes, ready for NewFiles.
func (g *RNG) Tree(dir string, n, minSize, maxSize int) map[string][]byte {
	files := make(map[string][]byte, n)
	for _, p := range g.Paths(dir, n) {
		files[p] = g.Bytes(minSize + g.IntN(maxSize-minSize+1))
	}
	return files
}
