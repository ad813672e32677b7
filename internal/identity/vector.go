package identity

import (
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Vector is a voice-signature vector. Stored vectors are unit-length;
// use Unit before comparing anything of unknown scale.
type Vector []float64

// Norm returns the L2 norm.
func (v Vector) Norm() float64 {
	return floats.Norm(v, 2)
}

// Unit returns a unit-normalized copy. A zero vector is returned
// unchanged since it carries no direction to preserve.
func (v Vector) Unit() Vector {
	norm := v.Norm()
	out := make(Vector, len(v))
	copy(out, v)
	if norm == 0 {
		return out
	}
	floats.Scale(1/norm, out)
	return out
}

// Dot returns the dot product, which equals cosine similarity when both
// vectors are unit-length.
func Dot(a, b Vector) float64 {
	return floats.Dot(a, b)
}

// Blend merges two unit vectors with the given weights and returns the
// normalized result: normalize(wa·a + wb·b).
func Blend(a Vector, wa float64, b Vector, wb float64) Vector {
	out := make(Vector, len(a))
	for i := range a {
		out[i] = wa*a[i] + wb*b[i]
	}
	return out.Unit()
}

// encodeVector serializes a vector as little-endian float32, matching
// the on-disk layout of the speakers table.
func encodeVector(v Vector) []byte {
	buf := make([]byte, 4*len(v))
	for i, value := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(value)))
	}
	return buf
}

// decodeVector deserializes a little-endian float32 blob.
func decodeVector(data []byte, dim int) (Vector, error) {
	if len(data) != 4*dim {
		return nil, fmt.Errorf("embedding blob is %d bytes, want %d for dim %d", len(data), 4*dim, dim)
	}
	out := make(Vector, dim)
	for i := range out {
		bits := binary.LittleEndian.Uint32(data[4*i:])
		out[i] = float64(math.Float32frombits(bits))
	}
	return out, nil
}
