// Package spatialmath defines rigid-body poses and the rotation representations used to build them.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Pose is a rigid transform: a rotation followed by a translation. A Pose is immutable and is
// always valid; every constructor either returns a full rigid transform or an error.
type Pose struct {
	rotation    *RotationMatrix
	translation r3.Vector
}

// NewZeroPose returns the identity pose.
func NewZeroPose() *Pose {
	return &Pose{rotation: NewIdentityRotationMatrix()}
}

// NewPose returns a pose from a rotation and a translation.
func NewPose(rotation *RotationMatrix, translation r3.Vector) (*Pose, error) {
	if rotation == nil {
		return nil, errors.New("pose rotation is nil")
	}
	if err := rotation.checkRigid(1e-6); err != nil {
		return nil, err
	}
	if !finite(translation) {
		return nil, errors.Errorf("pose translation %v is not finite", translation)
	}
	return &Pose{rotation: rotation, translation: translation}, nil
}

// NewPoseFromAxisAngle returns the pose rotating by the R3 axis angle aa and then translating by t.
func NewPoseFromAxisAngle(aa, translation r3.Vector) (*Pose, error) {
	if !finite(aa) {
		return nil, errors.Errorf("pose axis angle %v is not finite", aa)
	}
	return NewPose(R3ToR4(aa).RotationMatrix(), translation)
}

// NewPoseFromMatrix builds a pose from a 4x4 homogeneous matrix whose last row must be [0 0 0 1].
func NewPoseFromMatrix(m mat.Matrix) (*Pose, error) {
	rows, cols := m.Dims()
	if rows != 4 || cols != 4 {
		return nil, errors.Errorf("pose matrix must be 4x4, got %dx%d", rows, cols)
	}
	for c, want := range []float64{0, 0, 0, 1} {
		if math.Abs(m.At(3, c)-want) > 1e-9 {
			return nil, errors.Errorf("pose matrix last row must be [0 0 0 1], got %v at column %d", m.At(3, c), c)
		}
	}
	rot := make([]float64, 0, 9)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			rot = append(rot, m.At(r, c))
		}
	}
	rotation, err := NewRotationMatrix(rot)
	if err != nil {
		return nil, err
	}
	return NewPose(rotation, r3.Vector{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)})
}

// Point returns the translation of the pose.
func (p *Pose) Point() r3.Vector {
	return p.translation
}

// Orientation returns the rotation of the pose.
func (p *Pose) Orientation() *RotationMatrix {
	return p.rotation
}

// Transform applies the pose to a point: R*pt + t.
func (p *Pose) Transform(pt r3.Vector) r3.Vector {
	return p.rotation.Mul(pt).Add(p.translation)
}

// Compose returns the pose that applies other first and then p.
func (p *Pose) Compose(other *Pose) *Pose {
	return &Pose{
		rotation:    p.rotation.MatMul(other.rotation),
		translation: p.rotation.Mul(other.translation).Add(p.translation),
	}
}

// Invert returns the inverse transform.
func (p *Pose) Invert() *Pose {
	rt := p.rotation.Transpose()
	return &Pose{rotation: rt, translation: rt.Mul(p.translation).Mul(-1)}
}

// Matrix returns the 4x4 homogeneous matrix of the pose.
func (p *Pose) Matrix() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.Set(r, c, p.rotation.At(r, c))
		}
	}
	m.Set(0, 3, p.translation.X)
	m.Set(1, 3, p.translation.Y)
	m.Set(2, 3, p.translation.Z)
	m.Set(3, 3, 1)
	return m
}

// RotationAngle returns the magnitude in radians of the pose's rotation.
func (p *Pose) RotationAngle() float64 {
	return p.rotation.AxisAngles().Theta
}

// PoseAlmostEqual returns whether two poses differ by less than tolRot radians of rotation
// and tolTrans of translation.
func PoseAlmostEqual(a, b *Pose, tolRot, tolTrans float64) bool {
	delta := a.Invert().Compose(b)
	return delta.RotationAngle() <= tolRot && a.translation.Sub(b.translation).Norm() <= tolTrans
}

func finite(v r3.Vector) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
