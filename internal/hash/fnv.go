package hash

const (
	fnv64Offset = 0xcbf29ce484222325
	fnv64Prime  = 0x100000001b3
)

// FNV64a computes the 64-bit FNV-1a hash of data.
// It is allocation free and stable across processes and platforms.
func FNV64a(data []byte) uint64 {
	h := uint64(fnv64Offset)
	for _, c := range data {
		h ^= uint64(c)
		h *= fnv64Prime
	}
	return h
}
