package assets

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Vector is an embedding. Stored vectors are unit length so the dot product
// of two of them is their cosine similarity.
type Vector []float32

// Dot returns the dot product of v and w. Lengths must match.
func (v Vector) Dot(w Vector) float64 {
	var sum float64
	for i := range v {
		sum += float64(v[i]) * float64(w[i])
	}
	return sum
}

// Norm returns the L2 norm of v.
func (v Vector) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalize scales v to unit length in place. Zero vectors are left alone.
func (v Vector) Normalize() Vector {
	n := v.Norm()
	if n == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
	return v
}

// Clone returns a copy of v.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// MarshalBinary encodes v as little-endian float32 values.
func (v Vector) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf, nil
}

// UnmarshalBinary decodes little-endian float32 values into v.
func (v *Vector) UnmarshalBinary(data []byte) error {
	if len(data)%4 != 0 {
		return fmt.Errorf("vector blob length %d is not a multiple of 4", len(data))
	}
	out := make(Vector, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	*v = out
	return nil
}
