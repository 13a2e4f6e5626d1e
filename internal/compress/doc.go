// Package compress implements the framed block codec for compressed resource
// blobs.
//
// A framed blob is a sequence of blocks. Each block starts with an 8 byte
// little-endian header:
//
//	[UncompressedSize uint32][CompressedSize uint32][Data...]
//
// CompressedSize == 0 marks a block stored uncompressed (compression did not
// help). The algorithm is not stored in the frame; it is selected by the blob
// name suffix (".lz4" or ".zst").
package compress
