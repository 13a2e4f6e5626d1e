package hash

import (
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFNV64a_MatchesStdlib(t *testing.T) {
	inputs := []string{"", "a", "textures/stone.png", "models/level01/ground.mesh"}

	for _, in := range inputs {
		ref := fnv.New64a()
		_, _ = ref.Write([]byte(in))
		assert.Equal(t, ref.Sum64(), FNV64a([]byte(in)), in)
	}
}

func TestCRC32C(t *testing.T) {
	data := []byte("123456789")
	// Standard CRC32C check value.
	assert.Equal(t, uint32(0xe3069283), CRC32C(data))
	assert.Zero(t, CRC32C(nil))
	assert.NotEqual(t, CRC32C(data), CRC32C([]byte("123456780")))
}
