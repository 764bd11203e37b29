package tensor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// DType is a safetensors element type.
type DType string

const (
	F64  DType = "F64"
	F32  DType = "F32"
	F16  DType = "F16"
	BF16 DType = "BF16"
	I64  DType = "I64"
	I32  DType = "I32"
	U8   DType = "U8"
)

// Size is the encoded width of one element in bytes, or 0 for unknown types.
func (d DType) Size() int {
	switch d {
	case F64, I64:
		return 8
	case F32, I32:
		return 4
	case F16, BF16:
		return 2
	case U8:
		return 1
	default:
		return 0
	}
}

func (d DType) Valid() bool {
	return d.Size() > 0
}

func (d DType) put(b []byte, v float64) {
	le := binary.LittleEndian
	switch d {
	case F64:
		le.PutUint64(b, math.Float64bits(v))
	case F32:
		le.PutUint32(b, math.Float32bits(float32(v)))
	case F16:
		le.PutUint16(b, float16.Fromfloat32(float32(v)).Bits())
	case BF16:
		le.PutUint16(b, bfloat16(float32(v)))
	case I64:
		le.PutUint64(b, uint64(int64(math.Round(v))))
	case I32:
		le.PutUint32(b, uint32(int32(math.Round(v))))
	case U8:
		b[0] = uint8(math.Round(math.Max(0, math.Min(255, v))))
	}
}

func (d DType) get(b []byte) float64 {
	le := binary.LittleEndian
	switch d {
	case F64:
		return math.Float64frombits(le.Uint64(b))
	case F32:
		return float64(math.Float32frombits(le.Uint32(b)))
	case F16:
		return float64(float16.Frombits(le.Uint16(b)).Float32())
	case BF16:
		return float64(math.Float32frombits(uint32(le.Uint16(b)) << 16))
	case I64:
		return float64(int64(le.Uint64(b)))
	case I32:
		return float64(int32(le.Uint32(b)))
	case U8:
		return float64(b[0])
	default:
		panic(fmt.Sprintf("tensor: unsupported dtype %q", string(d)))
	}
}

// maxExactInt is the largest integer magnitude a float64 holds exactly.
const maxExactInt = 1 << 53

// exact reports whether the element in b survives the float64 round trip.
func (d DType) exact(b []byte) bool {
	if d != I64 {
		return true
	}
	v := int64(binary.LittleEndian.Uint64(b))

	return v >= -maxExactInt && v <= maxExactInt
}

// bfloat16 truncates f to its upper 16 bits with round-to-nearest-even.
func bfloat16(f float32) uint16 {
	bits := math.Float32bits(f)
	if math.IsNaN(float64(f)) {
		return uint16(bits>>16) | 0x40
	}
	bits += 0x7fff + (bits>>16)&1

	return uint16(bits >> 16)
}
