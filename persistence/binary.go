package persistence

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// Writer writes a checksummed container.
type Writer struct {
	cw  *ChecksumWriter
	buf [8]byte
	err error
}

// NewWriter creates a container writer. The caller must call Close to emit
// the checksum trailer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{cw: NewChecksumWriter(w)}
}

func (bw *Writer) write(p []byte) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.cw.Write(p)
}

// WriteHeader writes the magic number and the current format version.
func (bw *Writer) WriteHeader(magic uint32) error {
	bw.WriteUint32(magic)
	bw.WriteUint32(Version)
	return bw.err
}

// WriteUint32 writes a single little-endian uint32.
func (bw *Writer) WriteUint32(v uint32) {
	binary.LittleEndian.PutUint32(bw.buf[:4], v)
	bw.write(bw.buf[:4])
}

// WriteUint64 writes a single little-endian uint64.
func (bw *Writer) WriteUint64(v uint64) {
	binary.LittleEndian.PutUint64(bw.buf[:8], v)
	bw.write(bw.buf[:8])
}

// WriteFloat32Slice writes vec as consecutive IEEE-754 values.
func (bw *Writer) WriteFloat32Slice(vec []float32) error {
	if len(vec) == 0 || bw.err != nil {
		return bw.err
	}
	out := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	bw.write(out)
	return bw.err
}

// WriteUint64Slice writes s as consecutive little-endian values.
func (bw *Writer) WriteUint64Slice(s []uint64) error {
	if len(s) == 0 || bw.err != nil {
		return bw.err
	}
	out := make([]byte, 8*len(s))
	for i, v := range s {
		binary.LittleEndian.PutUint64(out[8*i:], v)
	}
	bw.write(out)
	return bw.err
}

// Close writes the CRC32 trailer. It does not close the underlying writer.
func (bw *Writer) Close() error {
	if bw.err != nil {
		return bw.err
	}
	var trailer [trailerSize]byte
	binary.LittleEndian.PutUint32(trailer[:], bw.cw.Sum())
	_, err := bw.cw.w.Write(trailer[:])
	return err
}

// Reader decodes a container held fully in memory.
type Reader struct {
	data []byte
	off  int
}

// NewReader verifies the trailer checksum of data and returns a reader
// positioned at the header.
func NewReader(data []byte) (*Reader, error) {
	if len(data) < headerSize+trailerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(data))
	}
	body := data[:len(data)-trailerSize]
	expected := binary.LittleEndian.Uint32(data[len(body):])
	if actual := CalculateChecksum(body); actual != expected {
		return nil, &ChecksumMismatchError{Expected: expected, Actual: actual}
	}
	return &Reader{data: body}, nil
}

// ReadHeader validates the magic number and version.
func (br *Reader) ReadHeader(magic uint32) error {
	got, err := br.ReadUint32()
	if err != nil {
		return err
	}
	if got != magic {
		return fmt.Errorf("%w: got 0x%08x, want 0x%08x", ErrInvalidMagic, got, magic)
	}
	version, err := br.ReadUint32()
	if err != nil {
		return err
	}
	if version != Version {
		return fmt.Errorf("%w: got 0x%08x", ErrInvalidVersion, version)
	}
	return nil
}

func (br *Reader) next(n int) ([]byte, error) {
	if n < 0 || len(br.data)-br.off < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d", ErrTruncated, n, br.off)
	}
	b := br.data[br.off : br.off+n]
	br.off += n
	return b, nil
}

// ReadUint32 reads a single little-endian uint32.
func (br *Reader) ReadUint32() (uint32, error) {
	b, err := br.next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint64 reads a single little-endian uint64.
func (br *Reader) ReadUint64() (uint64, error) {
	b, err := br.next(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadFloat32Slice reads count float32 values.
func (br *Reader) ReadFloat32Slice(count int) ([]float32, error) {
	if count > (len(br.data)-br.off)/4 {
		return nil, fmt.Errorf("%w: %d float32 values", ErrTruncated, count)
	}
	b, err := br.next(4 * count)
	if err != nil {
		return nil, err
	}
	vec := make([]float32, count)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return vec, nil
}

// ReadUint64Slice reads count uint64 values.
func (br *Reader) ReadUint64Slice(count int) ([]uint64, error) {
	if count > (len(br.data)-br.off)/8 {
		return nil, fmt.Errorf("%w: %d uint64 values", ErrTruncated, count)
	}
	b, err := br.next(8 * count)
	if err != nil {
		return nil, err
	}
	s := make([]uint64, count)
	for i := range s {
		s[i] = binary.LittleEndian.Uint64(b[8*i:])
	}
	return s, nil
}

// Remaining returns the number of unread payload bytes.
func (br *Reader) Remaining() int {
	return len(br.data) - br.off
}

// SaveToFile atomically replaces filename with the bytes produced by writeFunc.
// Parent directories are created as needed. On failure the previous file (if
// any) is left untouched and no partial file remains.
func SaveToFile(filename string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// Temp file in the same directory so the rename is atomic.
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	_ = tmp.Chmod(0o644)

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := writeFunc(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, filename); err != nil {
		return err
	}

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	tmpName = ""
	return nil
}
