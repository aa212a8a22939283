package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// DefaultChunkSize is the chunk size used by the uploader.
const DefaultChunkSize int64 = 2 << 20

// Range is the half-open byte range [Start, End) of one chunk.
type Range struct {
	Index int
	Start int64
	End   int64
}

// Len returns the number of bytes in the range
func (r Range) Len() int64 {
	return r.End - r.Start
}

// ContentRange renders the range as a Content-Range value with an inclusive end.
func (r Range) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End-1, total)
}

// Plan splits total bytes into contiguous ranges of chunkSize bytes. The last
// range may be shorter. An empty file yields no ranges.
func Plan(total, chunkSize int64) []Range {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	ranges := make([]Range, 0, (total+chunkSize-1)/chunkSize)
	for start := int64(0); start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		ranges = append(ranges, Range{Index: len(ranges), Start: start, End: end})
	}
	return ranges
}

// ReadChunk reads the bytes of r from src.
func ReadChunk(src io.ReaderAt, r Range) ([]byte, error) {
	buf := make([]byte, r.Len())
	n, err := src.ReadAt(buf, r.Start)
	if int64(n) == r.Len() {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("error reading chunk %d: %w", r.Index, err)
}

// ComputeHash computes SHA256 hash of data
func ComputeHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// VerifyChunkHash verifies that chunk data matches the expected hash
func VerifyChunkHash(data []byte, expectedHash string) bool {
	return ComputeHash(data) == expectedHash
}
