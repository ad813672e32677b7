package identity

import (
	"math"
	"testing"
)

func TestUnitNormalizes(t *testing.T) {
	v := Vector{3, 4}
	u := v.Unit()
	if math.Abs(u.Norm()-1) > 1e-12 {
		t.Fatalf("expected unit norm, got %g", u.Norm())
	}
	if math.Abs(u[0]-0.6) > 1e-12 || math.Abs(u[1]-0.8) > 1e-12 {
		t.Fatalf("unexpected direction: %v", u)
	}
	if v[0] != 3 {
		t.Fatal("Unit must not mutate its receiver")
	}
}

func TestUnitZeroVector(t *testing.T) {
	u := Vector{0, 0, 0}.Unit()
	for _, x := range u {
		if x != 0 {
			t.Fatalf("zero vector changed: %v", u)
		}
	}
}

func TestDotOfIdenticalUnitVectorsIsOne(t *testing.T) {
	v := Vector{1, 2, 2}.Unit()
	if got := Dot(v, v); math.Abs(got-1) > 1e-12 {
		t.Fatalf("expected 1.0, got %g", got)
	}
}

func TestBlendStaysUnitNorm(t *testing.T) {
	a := Vector{1, 0}.Unit()
	b := Vector{0, 1}.Unit()
	out := Blend(a, 3, b, 1)
	if math.Abs(out.Norm()-1) > 1e-12 {
		t.Fatalf("blend lost unit norm: %g", out.Norm())
	}
	if out[0] <= out[1] {
		t.Fatalf("heavier side should dominate: %v", out)
	}
}

func TestVectorCodecRoundTrip(t *testing.T) {
	v := Vector{0.25, -1.5, 3.0, 0}
	decoded, err := decodeVector(encodeVector(v), len(v))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	for i := range v {
		if decoded[i] != v[i] {
			t.Fatalf("round trip mismatch at %d: %g != %g", i, decoded[i], v[i])
		}
	}
}

func TestDecodeVectorRejectsBadLength(t *testing.T) {
	if _, err := decodeVector(make([]byte, 7), 2); err == nil {
		t.Fatal("expected error for truncated blob")
	}
}
