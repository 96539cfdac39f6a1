package geom

import (
	"math"
	"testing"
)

func TestVec3Arithmetic(t *testing.T) {
	a := Vec3{1, 2, 3}
	b := Vec3{4, 5, 6}

	if got := a.Add(b); got != (Vec3{5, 7, 9}) {
		t.Errorf("Add = %v", got)
	}
	if got := b.Sub(a); got != (Vec3{3, 3, 3}) {
		t.Errorf("Sub = %v", got)
	}
	if got := a.Scale(2); got != (Vec3{2, 4, 6}) {
		t.Errorf("Scale = %v", got)
	}
	if got := a.Dot(b); got != 32 {
		t.Errorf("Dot = %v", got)
	}
	if got := (Vec3{1, 0, 0}).Cross(Vec3{0, 1, 0}); got != (Vec3{0, 0, 1}) {
		t.Errorf("Cross = %v", got)
	}
	if got := a.Cross(a); got != (Vec3{}) {
		t.Errorf("Cross(self) = %v", got)
	}
}

func TestVec3Norm(t *testing.T) {
	tests := []struct {
		v    Vec3
		want float64
	}{
		{Vec3{3, 4, 0}, 5},
		{Vec3{}, 0},
		{Vec3{1, 1, 1}, math.Sqrt(3)},
	}
	for _, tt := range tests {
		if got := tt.v.Norm(); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Norm(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}

	if got := (Vec3{0, 0, -7}).Normalize(); got != (Vec3{0, 0, -1}) {
		t.Errorf("Normalize = %v", got)
	}
	if got := (Vec3{}).Normalize(); got != (Vec3{}) {
		t.Errorf("Normalize(zero) = %v", got)
	}
	if d := (Vec3{1, 0, 0}).Distance(Vec3{1, 3, 4}); d != 5 {
		t.Errorf("Distance = %v", d)
	}
}

func TestVec3IsValid(t *testing.T) {
	if !(Vec3{1, 2, 3}).IsValid() {
		t.Error("finite vector reported invalid")
	}
	if (Vec3{math.NaN(), 0, 0}).IsValid() {
		t.Error("NaN vector reported valid")
	}
	if (Vec3{0, math.Inf(-1), 0}).IsValid() {
		t.Error("Inf vector reported valid")
	}
}
