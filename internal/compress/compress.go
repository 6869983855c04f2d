// Package compress wraps whole-file zstd and lz4 framing for the binary
// artifacts read by the matcher (vocabulary trees, weight vectors and
// descriptor files). Readers detect the framing from the leading magic bytes,
// so plain and compressed files can be mixed freely.
package compress

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type defines the compression algorithm used for a file.
type Type uint8

const (
	// None writes the payload as-is.
	None Type = iota
	// LZ4 uses the lz4 frame format (fast, good for descriptor files).
	LZ4
	// ZSTD uses the zstd frame format (better ratio, good for trees and weights).
	ZSTD
)

const (
	lz4FrameMagic  = 0x184D2204
	zstdFrameMagic = 0xFD2FB528
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// ParseType parses a compression name ("", "none", "lz4", "zstd").
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("unknown compression %q", s)
	}
}

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

// Detect reports the framing of data based on its first four bytes.
func Detect(data []byte) Type {
	if len(data) < 4 {
		return None
	}
	switch binary.LittleEndian.Uint32(data) {
	case lz4FrameMagic:
		return LZ4
	case zstdFrameMagic:
		return ZSTD
	default:
		return None
	}
}

// Encode frames data with the given algorithm.
func Encode(data []byte, t Type) ([]byte, error) {
	switch t {
	case None:
		return data, nil
	case ZSTD:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), nil
	case LZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown compression type %d", t)
	}
}

// Decode removes any zstd or lz4 framing from data. Unframed data is
// returned unchanged.
func Decode(data []byte) ([]byte, error) {
	switch Detect(data) {
	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return out, nil
	case LZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		return out, nil
	default:
		return data, nil
	}
}
