package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm identifies a block compression algorithm.
type Algorithm uint8

const (
	// None indicates no compression; the blob is stored raw, without frame.
	None Algorithm = 0
	// LZ4 indicates LZ4 block compression (fast, good for hot data).
	LZ4 Algorithm = 1
	// ZSTD indicates ZSTD block compression (better ratio, good for cold data).
	ZSTD Algorithm = 2
)

// String returns the algorithm name.
func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("algorithm(%d)", uint8(a))
	}
}

// Suffix returns the blob name suffix of the algorithm.
func (a Algorithm) Suffix() string {
	switch a {
	case LZ4:
		return ".lz4"
	case ZSTD:
		return ".zst"
	default:
		return ""
	}
}

// FromName returns the algorithm selected by the name suffix and the logical
// name with the suffix removed.
func FromName(name string) (Algorithm, string) {
	switch {
	case strings.HasSuffix(name, ".lz4"):
		return LZ4, strings.TrimSuffix(name, ".lz4")
	case strings.HasSuffix(name, ".zst"):
		return ZSTD, strings.TrimSuffix(name, ".zst")
	default:
		return None, name
	}
}

// DefaultBlockSize is the uncompressed size of a block.
const DefaultBlockSize = 256 * 1024

const blockHeaderSize = 8

var (
	// ErrCorrupt is returned when a frame cannot be decoded.
	ErrCorrupt = errors.New("compress: corrupt frame")
	// ErrUnknownAlgorithm is returned for unsupported algorithms.
	ErrUnknownAlgorithm = errors.New("compress: unknown algorithm")
)

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Encode frames data with the given algorithm. None returns data unchanged.
func Encode(data []byte, algo Algorithm) ([]byte, error) {
	switch algo {
	case None:
		return data, nil
	case LZ4, ZSTD:
	default:
		return nil, ErrUnknownAlgorithm
	}

	out := make([]byte, 0, len(data)/2+blockHeaderSize)
	for off := 0; off < len(data); off += DefaultBlockSize {
		end := min(off+DefaultBlockSize, len(data))
		block, err := encodeBlock(data[off:end], algo)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
	}
	return out, nil
}

func encodeBlock(data []byte, algo Algorithm) ([]byte, error) {
	var compressed []byte
	switch algo {
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n] // n == 0 means incompressible
	case ZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	}

	header := make([]byte, blockHeaderSize, blockHeaderSize+len(data))
	binary.LittleEndian.PutUint32(header[0:], uint32(len(data)))

	// If compression doesn't help (ratio > 0.9), store uncompressed
	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		return append(header, data...), nil
	}
	binary.LittleEndian.PutUint32(header[4:], uint32(len(compressed)))
	return append(header, compressed...), nil
}

// DecodedSize walks the block headers and returns the total uncompressed size.
func DecodedSize(framed []byte) (int64, error) {
	var total int64
	for off := 0; off < len(framed); {
		raw, stored, err := readHeader(framed, off)
		if err != nil {
			return 0, err
		}
		total += int64(raw)
		off += blockHeaderSize + stored
	}
	return total, nil
}

// Decode decodes a framed blob. None returns framed unchanged.
func Decode(framed []byte, algo Algorithm) ([]byte, error) {
	if algo == None {
		return framed, nil
	}
	size, err := DecodedSize(framed)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	if err := DecodeInto(framed, algo, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeInto decodes a framed blob into dst, which must be exactly DecodedSize bytes.
func DecodeInto(framed []byte, algo Algorithm, dst []byte) error {
	if algo == None {
		if len(dst) != len(framed) {
			return ErrCorrupt
		}
		copy(dst, framed)
		return nil
	}

	pos := 0
	for off := 0; off < len(framed); {
		raw, stored, err := readHeader(framed, off)
		if err != nil {
			return err
		}
		if pos+raw > len(dst) {
			return fmt.Errorf("%w: destination too small", ErrCorrupt)
		}
		payload := framed[off+blockHeaderSize : off+blockHeaderSize+stored]
		out := dst[pos : pos+raw]

		if err := decodeBlock(payload, stored, algo, out); err != nil {
			return err
		}
		pos += raw
		off += blockHeaderSize + stored
	}
	if pos != len(dst) {
		return fmt.Errorf("%w: decoded %d of %d bytes", ErrCorrupt, pos, len(dst))
	}
	return nil
}

func decodeBlock(payload []byte, stored int, algo Algorithm, out []byte) error {
	// Compressed payloads are at most 90% of the block, so equal sizes mean stored.
	if stored == len(out) {
		copy(out, payload)
		return nil
	}

	switch algo {
	case LZ4:
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if n != len(out) {
			return fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
	case ZSTD:
		dec := getZstdDecoder()
		decoded, err := dec.DecodeAll(payload, out[:0])
		zstdDecoderPool.Put(dec)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if len(decoded) != len(out) {
			return fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
	default:
		return ErrUnknownAlgorithm
	}
	return nil
}

// readHeader returns the uncompressed size and the stored payload size of the
// block at off.
func readHeader(framed []byte, off int) (raw, stored int, err error) {
	if off+blockHeaderSize > len(framed) {
		return 0, 0, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	raw = int(binary.LittleEndian.Uint32(framed[off:]))
	stored = int(binary.LittleEndian.Uint32(framed[off+4:]))
	if stored == 0 {
		stored = raw
	}
	if off+blockHeaderSize+stored > len(framed) {
		return 0, 0, fmt.Errorf("%w: block extends beyond data", ErrCorrupt)
	}
	return raw, stored, nil
}
