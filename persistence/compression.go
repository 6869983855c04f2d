package persistence

import (
	"fmt"

	"github.com/hupe1980/imgmatch/internal/compress"
)

// Compression selects the optional frame written around a container.
type Compression = compress.Type

const (
	CompressionNone = compress.None
	CompressionLZ4  = compress.LZ4
	CompressionZSTD = compress.ZSTD
)

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	return compress.ParseType(s)
}

// Frame wraps payload in the given compression frame.
func Frame(payload []byte, c Compression) ([]byte, error) {
	out, err := compress.Encode(payload, c)
	if err != nil {
		return nil, fmt.Errorf("frame %s: %w", c, err)
	}
	return out, nil
}

// Unframe strips a zstd or lz4 frame if one is present.
func Unframe(data []byte) ([]byte, error) {
	return compress.Decode(data)
}
