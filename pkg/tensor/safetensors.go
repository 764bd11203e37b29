package tensor

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
)

const (
	metadataKey    = "__metadata__"
	headerLenSize  = 8
	maxHeaderSize  = 100 << 20
	headerAlign    = 8
	headerPaddingB = ' '
)

// ErrMalformed is returned by Decode for input that is not a valid
// safetensors buffer.
var ErrMalformed = errors.New("malformed safetensors buffer")

type headerEntry struct {
	DType       DType  `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets [2]int `json:"data_offsets"`
}

// Encode serializes m in the safetensors format. Tensors are laid out in
// name order so equal maps always produce equal bytes.
func Encode(m Map) ([]byte, error) {
	names := m.Names()
	header := make(map[string]headerEntry, len(names))

	offset := 0
	for _, name := range names {
		t := m[name]
		if t == nil {
			return nil, fmt.Errorf("tensor %q is nil", name)
		}
		if !t.DType.Valid() {
			return nil, fmt.Errorf("tensor %q: unsupported dtype %q", name, t.DType)
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("tensor %q: %w", name, err)
		}
		if t.DType == I64 {
			for _, v := range t.Data {
				if math.Abs(v) > maxExactInt {
					return nil, fmt.Errorf("tensor %q: value %v exceeds ±2^53", name, v)
				}
			}
		}
		size := t.Len() * t.DType.Size()
		shape := t.Shape
		if shape == nil {
			shape = []int{}
		}
		header[name] = headerEntry{DType: t.DType, Shape: shape, DataOffsets: [2]int{offset, offset + size}}
		offset += size
	}

	hdr, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}
	if pad := len(hdr) % headerAlign; pad != 0 {
		hdr = append(hdr, bytes.Repeat([]byte{headerPaddingB}, headerAlign-pad)...)
	}

	buf := make([]byte, headerLenSize+len(hdr)+offset)
	binary.LittleEndian.PutUint64(buf, uint64(len(hdr)))
	copy(buf[headerLenSize:], hdr)

	data := buf[headerLenSize+len(hdr):]
	for _, name := range names {
		t := m[name]
		entry := header[name]
		size := t.DType.Size()
		for i, v := range t.Data {
			start := entry.DataOffsets[0] + i*size
			t.DType.put(data[start:start+size], v)
		}
	}

	return buf, nil
}

// Decode parses a safetensors buffer. Metadata is ignored.
func Decode(b []byte) (Map, error) {
	if len(b) < headerLenSize {
		return nil, fmt.Errorf("%w: buffer too short", ErrMalformed)
	}

	n := binary.LittleEndian.Uint64(b)
	if n > maxHeaderSize || n > uint64(len(b)-headerLenSize) {
		return nil, fmt.Errorf("%w: invalid header length %d", ErrMalformed, n)
	}
	hdr := b[headerLenSize : headerLenSize+int(n)]
	data := b[headerLenSize+int(n):]

	if len(hdr) == 0 || hdr[0] != '{' {
		return nil, fmt.Errorf("%w: header is not a JSON object", ErrMalformed)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(hdr, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	delete(raw, metadataKey)

	type span struct{ start, end int }
	spans := make([]span, 0, len(raw))
	out := make(Map, len(raw))

	for name, msg := range raw {
		var entry headerEntry
		if err := json.Unmarshal(msg, &entry); err != nil {
			return nil, fmt.Errorf("%w: tensor %q: %w", ErrMalformed, name, err)
		}
		if !entry.DType.Valid() {
			return nil, fmt.Errorf("%w: tensor %q: unsupported dtype %q", ErrMalformed, name, entry.DType)
		}

		start, end := entry.DataOffsets[0], entry.DataOffsets[1]
		if start < 0 || end < start || end > len(data) {
			return nil, fmt.Errorf("%w: tensor %q: offsets [%d, %d) outside data", ErrMalformed, name, start, end)
		}
		size := entry.DType.Size()
		count := (end - start) / size
		if (end-start)%size != 0 {
			return nil, fmt.Errorf("%w: tensor %q: byte length %d not a multiple of %d", ErrMalformed, name, end-start, size)
		}

		values := make([]float64, count)
		for i := range values {
			off := start + i*size
			elem := data[off : off+size]
			if !entry.DType.exact(elem) {
				return nil, fmt.Errorf("%w: tensor %q: element %d exceeds ±2^53", ErrMalformed, name, i)
			}
			values[i] = entry.DType.get(elem)
		}

		t, err := New(entry.DType, entry.Shape, values)
		if err != nil {
			return nil, fmt.Errorf("%w: tensor %q: %w", ErrMalformed, name, err)
		}
		out[name] = t
		spans = append(spans, span{start, end})
	}

	// Tensors must tile the data section exactly.
	slices.SortFunc(spans, func(a, b span) int { return a.start - b.start })
	next := 0
	for _, s := range spans {
		if s.start != next {
			return nil, fmt.Errorf("%w: tensor data is not contiguous at offset %d", ErrMalformed, next)
		}
		next = s.end
	}
	if next != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes after tensor data", ErrMalformed, len(data)-next)
	}

	return out, nil
}
