package tensor

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	cases := []struct {
		desc  string
		shape []int
		data  []float64
		err   error
	}{
		{desc: "vector", shape: []int{3}, data: []float64{1, 2, 3}},
		{desc: "matrix", shape: []int{2, 2}, data: []float64{1, 2, 3, 4}},
		{desc: "scalar", shape: []int{}, data: []float64{7}},
		{desc: "too few values", shape: []int{2, 2}, data: []float64{1, 2, 3}, err: ErrInvalidShape},
		{desc: "negative dimension", shape: []int{-1}, data: nil, err: ErrInvalidShape},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			tn, err := New(F32, tc.shape, tc.data)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tc.data), tn.Len())
		})
	}
}

func TestAddScale(t *testing.T) {
	a, err := New(F64, []int{2, 2}, []float64{1, 2, 2, 1})
	require.NoError(t, err)
	b, err := New(F64, []int{2, 2}, []float64{2, 1, 1, 2})
	require.NoError(t, err)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3, 3, 3}, sum.Data)
	assert.Equal(t, []float64{1, 2, 2, 1}, a.Data, "Add must not mutate its receiver")

	half := sum.Scale(0.5)
	assert.InDeltaSlice(t, []float64{1.5, 1.5, 1.5, 1.5}, half.Data, 1e-12)
	assert.Equal(t, []int{2, 2}, half.Shape)

	c := Zeros(F64, 4)
	_, err = a.Add(c)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestEncodeDecode(t *testing.T) {
	in := Map{
		"ln1.weight": mustNew(t, F32, []int{2, 3}, []float64{0.5, -1, 2, 0.25, 3, -4}),
		"ln1.bias":   mustNew(t, F64, []int{3}, []float64{0.1, 0.2, 0.3}),
		"half":       mustNew(t, F16, []int{2}, []float64{1.5, -2}),
		"brain":      mustNew(t, BF16, []int{2}, []float64{1, -0.5}),
		"steps":      mustNew(t, I64, []int{1}, []float64{42}),
		"mask":       mustNew(t, U8, []int{4}, []float64{0, 1, 1, 0}),
	}

	b, err := Encode(in)
	require.NoError(t, err)

	hdrLen := binary.LittleEndian.Uint64(b)
	assert.Zero(t, hdrLen%headerAlign, "header must be padded to 8 bytes")

	out, err := Decode(b)
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for name, want := range in {
		got, ok := out[name]
		require.True(t, ok, name)
		assert.Equal(t, want.DType, got.DType, name)
		assert.Equal(t, want.Shape, got.Shape, name)
		assert.InDeltaSlice(t, want.Data, got.Data, 1e-6, name)
	}

	again, err := Encode(out)
	require.NoError(t, err)
	assert.Equal(t, b, again, "encoding must be deterministic")
}

func TestDecodeMalformed(t *testing.T) {
	valid, err := Encode(Map{"w": mustNew(t, F32, []int{2}, []float64{1, 2})})
	require.NoError(t, err)

	hugeHeader := make([]byte, 8)
	binary.LittleEndian.PutUint64(hugeHeader, 1<<40)

	notObject := make([]byte, 8, 16)
	binary.LittleEndian.PutUint64(notObject, 8)
	notObject = append(notObject, []byte("[1,2,3] ")...)

	overflowShape := rawBuffer(t, `{"w":{"dtype":"F32","shape":[4294967296,4294967296],"data_offsets":[0,0]}}`, nil)

	wide := make([]byte, 8)
	binary.LittleEndian.PutUint64(wide, 1<<53+1)
	inexact := rawBuffer(t, `{"n":{"dtype":"I64","shape":[1],"data_offsets":[0,8]}}`, wide)

	cases := []struct {
		desc string
		data []byte
	}{
		{desc: "empty", data: nil},
		{desc: "short", data: []byte{1, 2, 3}},
		{desc: "header length beyond buffer", data: hugeHeader},
		{desc: "header not an object", data: notObject},
		{desc: "truncated data", data: valid[:len(valid)-1]},
		{desc: "trailing bytes", data: append(append([]byte{}, valid...), 0)},
		{desc: "shape overflows", data: overflowShape},
		{desc: "I64 beyond float64 precision", data: inexact},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := Decode(tc.data)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestI64RoundTrip(t *testing.T) {
	in := Map{"n": mustNew(t, I64, []int{3}, []float64{1 << 53, -(1 << 53), -7})}

	b, err := Encode(in)
	require.NoError(t, err)
	out, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, in["n"].Data, out["n"].Data)

	again, err := Encode(out)
	require.NoError(t, err)
	assert.Equal(t, b, again)

	_, err = Encode(Map{"n": mustNew(t, I64, []int{1}, []float64{1<<53 + 2})})
	assert.Error(t, err)
}

func TestNewOverflowingShape(t *testing.T) {
	_, err := New(F32, []int{1 << 32, 1 << 32}, nil)
	assert.ErrorIs(t, err, ErrInvalidShape)
}

// rawBuffer assembles a safetensors buffer from a literal header.
func rawBuffer(t *testing.T, header string, data []byte) []byte {
	t.Helper()

	hdr := []byte(header)
	for len(hdr)%headerAlign != 0 {
		hdr = append(hdr, ' ')
	}
	b := make([]byte, headerLenSize, headerLenSize+len(hdr)+len(data))
	binary.LittleEndian.PutUint64(b, uint64(len(hdr)))
	b = append(b, hdr...)

	return append(b, data...)
}

func mustNew(t *testing.T, dtype DType, shape []int, data []float64) *Tensor {
	t.Helper()

	tn, err := New(dtype, shape, data)
	require.NoError(t, err)

	return tn
}
