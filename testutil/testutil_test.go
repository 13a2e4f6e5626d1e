package testutil

import (
	"context"
	"strings"
	"testing"

	"github.com/hupe1980/rescache/codec"
	"github.com/hupe1980/rescache/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRNG(t *testing.T) {
	rng := NewRNG(4711)
	assert.Equal(t, uint64(4711), rng.Seed())

	first := rng.Bytes(16)
	paths := rng.Paths("assets", 50)
	require.Len(t, paths, 50)

	seen := make(map[string]struct{})
	for _, p := range paths {
		assert.True(t, strings.HasPrefix(p, "assets/"))
		seen[p] = struct{}{}
	}
	assert.Len(t, seen, 50)

	rng.Reset()
	assert.Equal(t, first, rng.Bytes(16))
	assert.Equal(t, paths, rng.Paths("assets", 50))
	assert.Equal(t, NewRNG(4711).Tree("a", 5, 1, 8), NewRNG(4711).Tree("a", 5, 1, 8))

	for _, data := range rng.Tree("levels", 20, 4, 6) {
		assert.GreaterOrEqual(t, len(data), 4)
		assert.LessOrEqual(t, len(data), 6)
	}
}

func TestFiles(t *testing.T) {
	ctx := context.Background()
	files := NewFiles(t, map[string][]byte{"a.bin": []byte("abc")})

	h := model.Fingerprint("a.bin")
	assert.True(t, files.Loader.Exists(ctx, h))

	size, err := files.Loader.Size(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)

	files.Remove("a.bin")
	assert.False(t, files.Loader.Exists(ctx, h))
}

func TestMarshalManifest(t *testing.T) {
	data := MarshalManifest("root", Require{Path: "a.bin", Kind: "blob"}, Require{Path: "b.json"})

	var m Manifest
	require.NoError(t, codec.Default.Unmarshal(data, &m))
	assert.Equal(t, "root", m.Name)
	assert.Equal(t, []Require{{Path: "a.bin", Kind: "blob"}, {Path: "b.json"}}, m.Requires)
}

func TestManifestKind_Resolve(t *testing.T) {
	blob := NewCountingKind("blob")
	k := NewManifestKind("manifest", blob)

	assert.Equal(t, "manifest", k.resolve("").Name())
	assert.Equal(t, "manifest", k.resolve("manifest").Name())
	assert.Equal(t, "blob", k.resolve("blob").Name())
	assert.Nil(t, k.resolve("texture"))
}
