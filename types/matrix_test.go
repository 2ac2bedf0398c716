package types

import (
	"math"
	"testing"
)

func matNearlyEqual(a, b Mat4) bool {
	for i := 0; i < 16; i++ {
		if math.Abs(float64(a[i]-b[i])) > 1e-5 {
			return false
		}
	}
	return true
}

func TestTranslate4(t *testing.T) {
	m := Translate4(Vec3{1, 2, 3})
	out := m.Mul4x1(Vec4{0, 0, 0, 1})

	expected := Vec4{1, 2, 3, 1}
	if out != expected {
		t.Fatalf("expected translated point to be %v; got %v", expected, out)
	}
}

func TestMul4Identity(t *testing.T) {
	m := Translate4(Vec3{1, 2, 3}).Mul4(Scale4(2))
	if got := m.Mul4(Ident4()); !matNearlyEqual(got, m) {
		t.Fatalf("expected multiplication with identity to yield the same matrix; got %v", got)
	}
}

func TestInv(t *testing.T) {
	m := Translate4(Vec3{1, -2, 3}).Mul4(Scale4(0.5))
	if got := m.Mul4(m.Inv()); !matNearlyEqual(got, Ident4()) {
		t.Fatalf("expected M * M^-1 to be the identity; got %v", got)
	}
}

func TestTranspose(t *testing.T) {
	m := Translate4(Vec3{1, 2, 3})
	if got := m.Transpose().Transpose(); got != m {
		t.Fatalf("expected double transpose to yield the original matrix; got %v", got)
	}
}

func TestLookAtV(t *testing.T) {
	view := LookAtV(Vec3{0, 0, 5}, Vec3{0, 0, 0}, Vec3{0, 1, 0})

	// A point at the origin should land on the -Z axis in view space.
	out := view.Mul4x1(Vec4{0, 0, 0, 1})
	expected := Vec4{0, 0, -5, 1}
	for i := 0; i < 4; i++ {
		if math.Abs(float64(out[i]-expected[i])) > 1e-5 {
			t.Fatalf("expected view space point to be %v; got %v", expected, out)
		}
	}
}

func TestPerspective4FlipsY(t *testing.T) {
	proj := Perspective4(65, 16.0/9.0, 0.1, 1000)
	if proj[5] >= 0 {
		t.Fatalf("expected Y scale to be negative for vulkan clip space; got %f", proj[5])
	}
}
