package descriptor

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/hupe1980/imgmatch/blobstore"
	"github.com/hupe1980/imgmatch/distance"
	"github.com/hupe1980/imgmatch/internal/compress"
	"github.com/hupe1980/imgmatch/persistence"
)

var (
	// ErrTruncated is returned when a file holds fewer elements than its
	// header declares.
	ErrTruncated = errors.New("descriptor: truncated file")
	// ErrInvalidOptions is returned for a non-positive dimension or an
	// unknown element kind.
	ErrInvalidOptions = errors.New("descriptor: invalid options")
)

const countSize = 8

// Kind is the element type stored in a descriptor file.
type Kind int

const (
	// KindUint8 stores one byte per element.
	KindUint8 Kind = iota
	// KindFloat32 stores one little-endian float32 per element.
	KindFloat32
)

func (k Kind) String() string {
	switch k {
	case KindUint8:
		return "uint8"
	case KindFloat32:
		return "float32"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Size returns the number of bytes per element.
func (k Kind) Size() int {
	switch k {
	case KindUint8:
		return 1
	case KindFloat32:
		return 4
	default:
		return 0
	}
}

// ParseKind parses "uint8" or "float32".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "uint8", "uchar":
		return KindUint8, nil
	case "float32", "float":
		return KindFloat32, nil
	default:
		return 0, fmt.Errorf("%w: kind %q", ErrInvalidOptions, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	v, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Options configures Load.
type Options struct {
	// Dim is the number of elements per descriptor.
	Dim int
	// Kind is the element type.
	Kind Kind
	// MaxDescriptors keeps only the first descriptors of a file.
	// 0 keeps all.
	MaxDescriptors int
	// Normalize scales every descriptor to unit L2 norm.
	Normalize bool
}

// Validate reports invalid options as ErrInvalidOptions.
func (o Options) Validate() error {
	if o.Dim <= 0 {
		return fmt.Errorf("%w: dim %d", ErrInvalidOptions, o.Dim)
	}
	if o.Kind.Size() == 0 {
		return fmt.Errorf("%w: kind %s", ErrInvalidOptions, o.Kind)
	}
	if o.MaxDescriptors < 0 {
		return fmt.Errorf("%w: max descriptors %d", ErrInvalidOptions, o.MaxDescriptors)
	}
	return nil
}

// Filename returns the conventional descriptor file name of a view.
func Filename(viewID uint32, describer string) string {
	return fmt.Sprintf("%d.%s.desc", viewID, describer)
}

// Load reads the descriptors stored under name.
func Load(ctx context.Context, store blobstore.BlobStore, name string, opts Options) ([][]float32, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("descriptor: open %q: %w", name, err)
	}
	defer blob.Close()

	descs, err := read(ctx, blob, opts)
	if err != nil {
		return nil, fmt.Errorf("descriptor: read %q: %w", name, err)
	}
	return descs, nil
}

func read(ctx context.Context, blob blobstore.Blob, opts Options) ([][]float32, error) {
	size := blob.Size()
	if size < countSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, size)
	}

	head := make([]byte, countSize)
	if _, err := blob.ReadAt(ctx, head, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if compress.Detect(head) != compress.None {
		data := make([]byte, size)
		if _, err := blob.ReadAt(ctx, data, 0); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		payload, err := persistence.Unframe(data)
		if err != nil {
			return nil, err
		}
		return decode(payload, opts)
	}

	count := binary.LittleEndian.Uint64(head)
	n, err := capped(count, size-countSize, opts)
	if err != nil {
		return nil, err
	}
	body := make([]byte, n*opts.Dim*opts.Kind.Size())
	if len(body) > 0 {
		if _, err := blob.ReadAt(ctx, body, countSize); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}
	return convert(body, n, opts), nil
}

// Decode parses an in-memory descriptor file.
func Decode(data []byte, opts Options) ([][]float32, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	payload, err := persistence.Unframe(data)
	if err != nil {
		return nil, err
	}
	return decode(payload, opts)
}

func decode(payload []byte, opts Options) ([][]float32, error) {
	if len(payload) < countSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(payload))
	}
	count := binary.LittleEndian.Uint64(payload)
	n, err := capped(count, int64(len(payload)-countSize), opts)
	if err != nil {
		return nil, err
	}
	return convert(payload[countSize:], n, opts), nil
}

// capped validates the declared count against the available bytes and
// applies the descriptor cap.
func capped(count uint64, avail int64, opts Options) (int, error) {
	stride := uint64(opts.Dim * opts.Kind.Size())
	if count > uint64(avail)/stride {
		return 0, fmt.Errorf("%w: %d descriptors declared, %d bytes available", ErrTruncated, count, avail)
	}
	n := int(count)
	if opts.MaxDescriptors > 0 && n > opts.MaxDescriptors {
		n = opts.MaxDescriptors
	}
	return n, nil
}

func convert(body []byte, n int, opts Options) [][]float32 {
	dim := opts.Dim
	data := make([]float32, n*dim)
	descs := make([][]float32, n)

	for i := 0; i < n; i++ {
		vec := data[i*dim : (i+1)*dim]
		switch opts.Kind {
		case KindUint8:
			for j, b := range body[i*dim : (i+1)*dim] {
				vec[j] = float32(b)
			}
		case KindFloat32:
			off := i * dim * 4
			for j := range vec {
				vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(body[off+4*j:]))
			}
		}
		if opts.Normalize {
			distance.NormalizeL2InPlace(vec)
		}
		descs[i] = vec
	}
	return descs
}

// Encode serializes descriptors. Byte elements are rounded and clamped to
// 0..255.
func Encode(descs [][]float32, kind Kind, c persistence.Compression) ([]byte, error) {
	if kind.Size() == 0 {
		return nil, fmt.Errorf("%w: kind %s", ErrInvalidOptions, kind)
	}
	dim := 0
	if len(descs) > 0 {
		dim = len(descs[0])
	}

	buf := bytes.NewBuffer(make([]byte, 0, countSize+len(descs)*dim*kind.Size()))
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(len(descs)))
	buf.Write(tmp[:])

	for i, d := range descs {
		if len(d) != dim {
			return nil, fmt.Errorf("%w: descriptor %d has dim %d, want %d", ErrInvalidOptions, i, len(d), dim)
		}
		for _, v := range d {
			switch kind {
			case KindUint8:
				buf.WriteByte(byte(min(max(math.Round(float64(v)), 0), 255)))
			case KindFloat32:
				binary.LittleEndian.PutUint32(tmp[:4], math.Float32bits(v))
				buf.Write(tmp[:4])
			}
		}
	}

	return persistence.Frame(buf.Bytes(), c)
}

// Write serializes descriptors to w.
func Write(w io.Writer, descs [][]float32, kind Kind, c persistence.Compression) error {
	data, err := Encode(descs, kind, c)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// WriteFile atomically writes descriptors to path.
func WriteFile(path string, descs [][]float32, kind Kind, c persistence.Compression) error {
	return persistence.SaveToFile(path, func(w io.Writer) error {
		return Write(w, descs, kind, c)
	})
}
