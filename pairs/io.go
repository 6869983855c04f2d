package pairs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hupe1980/imgmatch/persistence"
)

// ErrMalformed is returned by Read for lines that are not lists of ids.
var ErrMalformed = errors.New("pairs: malformed pair list")

// Write emits the text format to w.
func (o *OrderedPairList) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 64)
	for _, id := range o.IDs() {
		buf = strconv.AppendUint(buf[:0], uint64(id), 10)
		it := o.sets[id].Iterator()
		for it.HasNext() {
			buf = append(buf, ' ')
			buf = strconv.AppendUint(buf, uint64(it.Next()), 10)
		}
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile atomically replaces path with the text format, creating parent
// directories as needed.
func (o *OrderedPairList) WriteFile(path string) error {
	return persistence.SaveToFile(path, o.Write)
}

// String returns the text format.
func (o *OrderedPairList) String() string {
	var sb strings.Builder
	_ = o.Write(&sb)
	return sb.String()
}

// Read parses the text format. Blank lines are ignored; repeated ids are
// merged.
func Read(r io.Reader) (*OrderedPairList, error) {
	out := NewOrderedPairList()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		ids := make([]ImageID, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseUint(f, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %q", ErrMalformed, line, f)
			}
			ids[i] = ImageID(v)
		}
		for _, m := range ids[1:] {
			if m == ids[0] {
				return nil, fmt.Errorf("%w: line %d: self pair %d", ErrMalformed, line, m)
			}
		}
		out.AddAll(ids[0], ids[1:]...)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
