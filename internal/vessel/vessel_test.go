package vessel

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/boldsim/internal/dynamo"
)

const (
	testB0   = 3.0
	testDchi = 3e-8
	testSize = 1.0
)

func TestCylinderField2D(t *testing.T) {
	v, err := NewCylinder(0.1, Vec{}, math.Pi/2, 0, testDchi, 0, "vessel")
	if err != nil {
		t.Fatalf("new cylinder: %v", err)
	}
	peak := 2 * math.Pi * testDchi * testB0

	tests := []struct {
		name string
		p    Vec
		want float64
	}{
		{"wall along B0", Vec{0.05, 0}, peak},
		{"wall across B0", Vec{0, 0.05}, -peak},
		{"twice radius along B0", Vec{0.1, 0}, peak / 4},
		{"diagonal", Vec{0.1, 0.1}, 0},
		{"inside", Vec{0.01, 0.01}, 2 * math.Pi / 3 * testDchi * testB0 * -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Field(tt.p, testB0, testSize, 2, InsideLorentz)
			if math.Abs(got-tt.want) > 1e-15 {
				t.Errorf("expected %g, got %g", tt.want, got)
			}
		})
	}
}

func TestCylinderFieldOrientation(t *testing.T) {
	parallel, _ := NewCylinder(0.1, Vec{}, 0, 0, testDchi, 0, "")
	if got := parallel.Field(Vec{0.2, 0}, testB0, testSize, 2, InsideLorentz); got != 0 {
		t.Errorf("expected no outside field for axis parallel to B0, got %g", got)
	}

	rotated, _ := NewCylinder(0.1, Vec{}, math.Pi/2, math.Pi/2, testDchi, 0, "")
	peak := 2 * math.Pi * testDchi * testB0
	if got := rotated.Field(Vec{0, 0.05}, testB0, testSize, 2, InsideLorentz); math.Abs(got-peak) > 1e-15 {
		t.Errorf("expected peak along rotated B0, got %g", got)
	}

	if got := rotated.Field(Vec{}, testB0, testSize, 2, InsideNone); got != 0 {
		t.Errorf("expected zero inside field under InsideNone, got %g", got)
	}
}

func TestCylinderField3DMatches2D(t *testing.T) {
	theta := 1.1
	v2, _ := NewCylinder(0.1, Vec{}, theta, math.Pi/2, testDchi, 0, "")
	// In 3D the axis lies in the x-z plane; B0 projects onto +z of the cross-section.
	v3, _ := NewCylinder(0.1, Vec{}, theta, 0, testDchi, 0, "")

	for _, r := range []float64{0.06, 0.08, 0.2} {
		for _, psi := range []float64{0, 0.3, 1.2, 2.5} {
			// 2D offset with azimuth psi from the B0 projection (+y here).
			p2 := Vec{-r * math.Sin(psi), r * math.Cos(psi)}
			a := v3.Axis()
			bperp := Vec{0, 0, 1}.Sub(a.Scale(math.Cos(theta))).Scale(1 / math.Sin(theta))
			ortho := a.Cross(bperp)
			p3 := bperp.Scale(r * math.Cos(psi)).Add(ortho.Scale(r * math.Sin(psi))).Add(a.Scale(0.3))

			f2 := v2.Field(p2, testB0, 10, 2, InsideLorentz)
			f3 := v3.Field(p3, testB0, 10, 3, InsideLorentz)
			if math.Abs(f2-f3) > 1e-14 {
				t.Errorf("r=%g psi=%g: 2D %g vs 3D %g", r, psi, f2, f3)
			}
		}
	}
}

func TestSphereField(t *testing.T) {
	s, err := NewSphere(0.2, Vec{}, testDchi, 0, "")
	if err != nil {
		t.Fatalf("new sphere: %v", err)
	}
	pole := s.Field(Vec{0, 0, 0.2}, testB0, testSize, 3, InsideLorentz)
	equator := s.Field(Vec{0.2, 0, 0}, testB0, testSize, 3, InsideLorentz)

	want := 4 * math.Pi / 3 * testDchi * testB0 / 8 * 2
	if math.Abs(pole-want) > 1e-15 {
		t.Errorf("expected pole %g, got %g", want, pole)
	}
	if math.Abs(equator+want/2) > 1e-15 {
		t.Errorf("expected equator %g, got %g", -want/2, equator)
	}
	if got := s.Field(Vec{0.01, 0, 0}, testB0, testSize, 3, InsideLorentz); got != 0 {
		t.Errorf("expected zero inside sphere, got %g", got)
	}
}

func TestFieldPeriodic(t *testing.T) {
	v, _ := NewCylinder(0.1, Vec{0.45, 0}, math.Pi/2, 0, testDchi, 0, "")
	inside := v.Field(Vec{0.44, 0}, testB0, testSize, 2, InsideLorentz)
	wrapped := v.Field(Vec{-0.56, 0}, testB0, testSize, 2, InsideLorentz)
	if math.Abs(inside-wrapped) > 1e-20 {
		t.Errorf("expected periodic image to match, got %g vs %g", inside, wrapped)
	}
	outside := v.Field(Vec{0.38, 0.03}, testB0, testSize, 2, InsideLorentz)
	outsideWrapped := v.Field(Vec{-0.62, 0.03}, testB0, testSize, 2, InsideLorentz)
	if math.Abs(outside-outsideWrapped) > 1e-18 {
		t.Errorf("expected periodic outside field, got %g vs %g", outside, outsideWrapped)
	}
	if !v.Contains(Vec{-0.51, 0}, testSize, 2) {
		t.Error("expected wrapped point inside vessel")
	}
}

func TestContainsAndVolume(t *testing.T) {
	v, _ := NewCylinder(0.2, Vec{0.1, 0.1}, math.Pi/2, 0, testDchi, 0, "")

	if !v.Contains(Vec{0.15, 0.1}, testSize, 2) {
		t.Error("expected point inside")
	}
	if v.Contains(Vec{0.2, 0.1}, testSize, 2) {
		t.Error("expected point on the wall to be outside")
	}

	if got := v.Volume(testSize, 2); math.Abs(got-math.Pi*0.01) > 1e-15 {
		t.Errorf("expected area %g, got %g", math.Pi*0.01, got)
	}
	if got := v.Volume(2, 3); math.Abs(got-math.Pi*0.01*2) > 1e-15 {
		t.Errorf("expected 3D volume %g, got %g", math.Pi*0.02, got)
	}
}

func TestOverlaps(t *testing.T) {
	a, _ := NewCylinder(0.2, Vec{0, 0}, math.Pi/2, 0, 0, 0, "")
	b, _ := NewCylinder(0.2, Vec{0.15, 0}, math.Pi/2, 0, 0, 0, "")
	c, _ := NewCylinder(0.2, Vec{0.25, 0}, math.Pi/2, 0, 0, 0, "")
	edge, _ := NewCylinder(0.2, Vec{0.45, 0}, math.Pi/2, 0, 0, 0, "")
	far, _ := NewCylinder(0.2, Vec{-0.4, 0}, math.Pi/2, 0, 0, 0, "")

	tests := []struct {
		name string
		x, y Vessel
		want bool
	}{
		{"overlapping", a, b, true},
		{"separate", a, c, false},
		{"across boundary", edge, far, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.x.Overlaps(tt.y, testSize, 2); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	x, _ := NewCylinder(0.1, Vec{0, 0, 0}, math.Pi/2, 0, 0, 0, "")
	y, _ := NewCylinder(0.1, Vec{0, 0, 0.08}, math.Pi/2, math.Pi/2, 0, 0, "")
	z, _ := NewCylinder(0.1, Vec{0, 0, 0.2}, math.Pi/2, math.Pi/2, 0, 0, "")
	if !x.Overlaps(y, testSize, 3) {
		t.Error("expected skew cylinders 0.08 apart to overlap")
	}
	if x.Overlaps(z, testSize, 3) {
		t.Error("expected skew cylinders 0.2 apart to be separate")
	}
}

func TestValidate(t *testing.T) {
	if _, err := NewCylinder(0, Vec{}, 0, 0, 0, 0, ""); !errors.Is(err, dynamo.ErrGeometryConstruction) {
		t.Errorf("expected construction error for zero diameter, got %v", err)
	}
	if _, err := NewSphere(-1, Vec{}, 0, 0, ""); !errors.Is(err, dynamo.ErrGeometryConstruction) {
		t.Errorf("expected construction error for negative diameter, got %v", err)
	}
	if _, err := NewCylinder(0.1, Vec{}, 0, 0, 0, 1.5, ""); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected configuration error for permeability, got %v", err)
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.2, 0.2},
		{0.6, -0.4},
		{-0.7, 0.3},
		{0.5, -0.5},
		{2.25, 0.25},
	}
	for _, tt := range tests {
		got := Wrap(Vec{tt.in}, 1, 1)[0]
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("wrap(%g): expected %g, got %g", tt.in, tt.want, got)
		}
	}
}
