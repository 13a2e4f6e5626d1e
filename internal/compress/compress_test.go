package compress

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compressible(n int) []byte {
	return bytes.Repeat([]byte("resource-cache "), n/15+1)[:n]
}

func random(n int) []byte {
	b := make([]byte, n)
	r := rand.New(rand.NewSource(42))
	_, _ = r.Read(b)
	return b
}

func TestRoundTrip(t *testing.T) {
	inputs := map[string][]byte{
		"empty":              {},
		"small":              []byte("hello"),
		"compressible":       compressible(10_000),
		"random":             random(10_000),
		"multi-block":        compressible(3*DefaultBlockSize + 17),
		"multi-block-random": random(DefaultBlockSize + 1),
	}

	for _, algo := range []Algorithm{LZ4, ZSTD} {
		for name, in := range inputs {
			t.Run(algo.String()+"/"+name, func(t *testing.T) {
				framed, err := Encode(in, algo)
				require.NoError(t, err)

				size, err := DecodedSize(framed)
				require.NoError(t, err)
				assert.Equal(t, int64(len(in)), size)

				out, err := Decode(framed, algo)
				require.NoError(t, err)
				assert.True(t, bytes.Equal(in, out))
			})
		}
	}
}

func TestEncode_ShrinksCompressibleData(t *testing.T) {
	in := compressible(100_000)
	for _, algo := range []Algorithm{LZ4, ZSTD} {
		framed, err := Encode(in, algo)
		require.NoError(t, err)
		assert.Less(t, len(framed), len(in)/2, algo.String())
	}
}

func TestNone(t *testing.T) {
	in := []byte("raw")
	framed, err := Encode(in, None)
	require.NoError(t, err)
	assert.Equal(t, in, framed)

	out, err := Decode(framed, None)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	dst := make([]byte, 3)
	require.NoError(t, DecodeInto(framed, None, dst))
	assert.ErrorIs(t, DecodeInto(framed, None, make([]byte, 2)), ErrCorrupt)
}

func TestDecode_Corrupt(t *testing.T) {
	framed, err := Encode(compressible(4096), LZ4)
	require.NoError(t, err)

	_, err = Decode(framed[:5], LZ4)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Decode(framed[:len(framed)-1], LZ4)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Encode([]byte("x"), Algorithm(9))
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestFromName(t *testing.T) {
	tests := []struct {
		name string
		algo Algorithm
		base string
	}{
		{"mesh/a.bin.lz4", LZ4, "mesh/a.bin"},
		{"mesh/a.bin.zst", ZSTD, "mesh/a.bin"},
		{"mesh/a.bin", None, "mesh/a.bin"},
	}
	for _, tt := range tests {
		algo, base := FromName(tt.name)
		assert.Equal(t, tt.algo, algo, tt.name)
		assert.Equal(t, tt.base, base, tt.name)
		assert.Equal(t, tt.name, base+algo.Suffix())
	}
}
