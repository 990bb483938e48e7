package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestIdentityTransform(t *testing.T) {
	p := NewZeroPose()
	for _, pt := range []r3.Vector{{X: 0, Y: 0, Z: 0}, {X: 1, Y: -2, Z: 3}, {X: 0.25, Y: 0.5, Z: 0.75}} {
		test.That(t, p.Transform(pt), test.ShouldResemble, pt)
	}
	test.That(t, mat.Equal(p.Matrix(), mat.NewDiagDense(4, []float64{1, 1, 1, 1})), test.ShouldBeTrue)
}

func TestAxisAngleRotation(t *testing.T) {
	// 90 degrees about z takes x onto y
	p, err := NewPoseFromAxisAngle(r3.Vector{Z: math.Pi / 2}, r3.Vector{X: 1})
	test.That(t, err, test.ShouldBeNil)
	out := p.Transform(r3.Vector{X: 1})
	test.That(t, out.X, test.ShouldAlmostEqual, 1)
	test.That(t, out.Y, test.ShouldAlmostEqual, 1)
	test.That(t, out.Z, test.ShouldAlmostEqual, 0)
	test.That(t, p.RotationAngle(), test.ShouldAlmostEqual, math.Pi/2)
	test.That(t, p.Orientation().Det(), test.ShouldAlmostEqual, 1)

	aa := p.Orientation().AxisAngles()
	test.That(t, aa.RZ, test.ShouldAlmostEqual, 1)
	test.That(t, aa.ToR3().Z, test.ShouldAlmostEqual, math.Pi/2)
}

func TestQuaternionRoundTrip(t *testing.T) {
	for _, aa := range []r3.Vector{{X: 0.1, Y: 0.2, Z: 0.3}, {X: -1.2, Y: 0.4, Z: 0.05}, {X: 0, Y: 3.0, Z: 0}, {X: 2.5, Y: 0, Z: -1.0}} {
		rm := R3ToR4(aa).RotationMatrix()
		back := rm.AxisAngles().ToR3()
		test.That(t, back.Sub(aa).Norm(), test.ShouldBeLessThan, 1e-9)
	}
}

func TestComposeInvert(t *testing.T) {
	a, err := NewPoseFromAxisAngle(r3.Vector{X: 0.1, Y: -0.3, Z: 0.2}, r3.Vector{X: 1, Y: 2, Z: 3})
	test.That(t, err, test.ShouldBeNil)
	b, err := NewPoseFromAxisAngle(r3.Vector{Y: 0.7}, r3.Vector{X: -0.5, Z: 0.25})
	test.That(t, err, test.ShouldBeNil)
	pt := r3.Vector{X: 0.3, Y: -0.2, Z: 1.5}

	composed := a.Compose(b).Transform(pt)
	sequential := a.Transform(b.Transform(pt))
	test.That(t, composed.Sub(sequential).Norm(), test.ShouldBeLessThan, 1e-12)

	identity := a.Compose(a.Invert())
	test.That(t, PoseAlmostEqual(identity, NewZeroPose(), 1e-9, 1e-9), test.ShouldBeTrue)
	test.That(t, PoseAlmostEqual(a, b, 1e-3, 1e-3), test.ShouldBeFalse)
}

func TestNewPoseFromMatrix(t *testing.T) {
	a, err := NewPoseFromAxisAngle(r3.Vector{X: 0.4, Z: -0.1}, r3.Vector{X: -0.1, Y: 0.2})
	test.That(t, err, test.ShouldBeNil)
	back, err := NewPoseFromMatrix(a.Matrix())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, PoseAlmostEqual(a, back, 1e-9, 1e-12), test.ShouldBeTrue)

	_, err = NewPoseFromMatrix(mat.NewDense(3, 3, nil))
	test.That(t, err, test.ShouldNotBeNil)

	bad := a.Matrix()
	bad.Set(3, 0, 0.5)
	_, err = NewPoseFromMatrix(bad)
	test.That(t, err, test.ShouldNotBeNil)

	// scaling is not rigid
	scaled := NewZeroPose().Matrix()
	scaled.Set(0, 0, 2)
	_, err = NewPoseFromMatrix(scaled)
	test.That(t, err, test.ShouldNotBeNil)

	// a reflection has determinant -1
	_, err = NewRotationMatrix([]float64{-1, 0, 0, 0, 1, 0, 0, 0, 1})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestNewPoseRejectsNonFinite(t *testing.T) {
	_, err := NewPose(NewIdentityRotationMatrix(), r3.Vector{X: math.NaN()})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewPose(nil, r3.Vector{})
	test.That(t, err, test.ShouldNotBeNil)

	for _, aa := range []r3.Vector{{X: math.NaN()}, {Y: math.Inf(1)}, {X: 0.1, Z: math.Inf(-1)}} {
		p, err := NewPoseFromAxisAngle(aa, r3.Vector{X: 1})
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, p, test.ShouldBeNil)
	}
	p, err := NewPoseFromAxisAngle(r3.Vector{Z: 0.3}, r3.Vector{Y: math.NaN()})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, p, test.ShouldBeNil)
}
