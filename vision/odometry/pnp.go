package odometry

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"go.viam.com/fastvo/rimage/transform"
	"go.viam.com/fastvo/spatialmath"
	"go.viam.com/fastvo/utils"
)

const (
	// minDLTPoints is the number of points the linear initialization needs to be tried.
	minDLTPoints = 6
	// minOutlierResidual is the reprojection error in pixels that is never rejected as an outlier.
	minOutlierResidual = 1.0
	// minConditioning is the smallest ratio of eigenvalues of the scaled normal equations of a
	// well determined pose.
	minConditioning = 1e-10
	// costTolerance is the relative decrease of the squared error below which refinement stops.
	costTolerance = 1e-12
	// smallAngle is the rotation below which the left Jacobian uses its series expansion.
	smallAngle = 1e-6
)

// PoseSolution is the result of SolvePose.
type PoseSolution struct {
	Pose *spatialmath.Pose
	// Inliers flags the correspondences used by the final refinement.
	Inliers []bool
	// Residuals is the reprojection error in pixels of every correspondence under Pose.
	Residuals []float64
	// Iterations is the number of major optimizer iterations taken.
	Iterations int
}

// InlierResiduals returns the reprojection errors of the inliers.
func (s *PoseSolution) InlierResiduals() []float64 {
	return lo.Filter(s.Residuals, func(_ float64, i int) bool { return s.Inliers[i] })
}

// rigid is a rotation and translation.
type rigid struct {
	rot *spatialmath.RotationMatrix
	t   r3.Vector
}

func (r rigid) apply(pt r3.Vector) r3.Vector {
	return r.rot.Mul(pt).Add(r.t)
}

// poseParams packs a pose as its rotation vector followed by its translation.
func poseParams(pose rigid) []float64 {
	aa := pose.rot.AxisAngles().ToR3()
	return []float64{aa.X, aa.Y, aa.Z, pose.t.X, pose.t.Y, pose.t.Z}
}

func poseFromParams(x []float64) rigid {
	aa := r3.Vector{X: x[0], Y: x[1], Z: x[2]}
	return rigid{rot: spatialmath.R3ToR4(aa).RotationMatrix(), t: r3.Vector{X: x[3], Y: x[4], Z: x[5]}}
}

// skew returns the matrix [v]x with [v]x w = v x w.
func skew(v r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}

// leftJacobian returns J such that exp(aa + d) is exp(J d) exp(aa) to first order in d.
func leftJacobian(aa r3.Vector) *mat.Dense {
	theta := aa.Norm()
	var a, b float64
	if theta < smallAngle {
		a, b = 0.5-theta*theta/24, 1./6-theta*theta/120
	} else {
		a = (1 - math.Cos(theta)) / (theta * theta)
		b = (theta - math.Sin(theta)) / (theta * theta * theta)
	}
	k := skew(aa)
	var k2, term mat.Dense
	k2.Mul(k, k)
	j := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	term.Scale(a, k)
	j.Add(j, &term)
	term.Scale(b, &k2)
	j.Add(j, &term)
	return j
}

type poseProblem struct {
	params *transform.PinholeCameraIntrinsics
	scene  []r3.Vector
	image  []r2.Point
	active []bool
}

// residual returns the reprojection error vector of a point, and false if the point is not in
// front of the camera.
func (p *poseProblem) residual(pose rigid, i int) (r2.Point, bool) {
	moved := pose.apply(p.scene[i])
	if moved.Z <= 0 {
		return r2.Point{}, false
	}
	proj, ok := p.params.Project(moved)
	if !ok {
		return r2.Point{}, false
	}
	return proj.Sub(p.image[i]), true
}

// cost is the sum of squared reprojection errors of the active points.
func (p *poseProblem) cost(pose rigid) float64 {
	sum := 0.
	for i := range p.scene {
		if !p.active[i] {
			continue
		}
		r, ok := p.residual(pose, i)
		if !ok {
			return math.Inf(1)
		}
		sum += r.X*r.X + r.Y*r.Y
	}
	return sum
}

// jacobian returns the 2x6 derivative of the projection of point i with respect to the pose
// parameters, given the left Jacobian of the pose rotation.
func (p *poseProblem) jacobian(pose rigid, jl *mat.Dense, i int) *mat.Dense {
	rotated := pose.rot.Mul(p.scene[i])
	moved := rotated.Add(pose.t)
	x, y, z := moved.X, moved.Y, moved.Z
	fx, fy := p.params.Fx, p.params.Fy
	dproj := mat.NewDense(2, 3, []float64{
		fx / z, 0, -fx * x / (z * z),
		0, fy / z, -fy * y / (z * z),
	})

	var drot mat.Dense
	drot.Mul(skew(rotated), jl)
	dmoved := mat.NewDense(3, 6, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			dmoved.Set(r, c, -drot.At(r, c))
		}
		dmoved.Set(r, 3+r, 1)
	}
	var jac mat.Dense
	jac.Mul(dproj, dmoved)
	return &jac
}

// normalEquations returns J^T J and J^T r over the active points in front of the camera, with
// the parameters ordered as in poseParams.
func (p *poseProblem) normalEquations(pose rigid) (*mat.SymDense, *mat.VecDense) {
	jtj := mat.NewSymDense(6, nil)
	jtr := mat.NewVecDense(6, nil)
	jl := leftJacobian(pose.rot.AxisAngles().ToR3())
	for i := range p.scene {
		if !p.active[i] {
			continue
		}
		r, ok := p.residual(pose, i)
		if !ok {
			continue
		}
		jac := p.jacobian(pose, jl, i)
		for a := 0; a < 6; a++ {
			jtr.SetVec(a, jtr.AtVec(a)+jac.At(0, a)*r.X+jac.At(1, a)*r.Y)
			for b := a; b < 6; b++ {
				jtj.SetSym(a, b, jtj.At(a, b)+jac.At(0, a)*jac.At(0, b)+jac.At(1, a)*jac.At(1, b))
			}
		}
	}
	return jtj, jtr
}

// objective is the squared reprojection error with its exact gradient and the Gauss-Newton
// approximation of its Hessian.
func (p *poseProblem) objective() optimize.Problem {
	return optimize.Problem{
		Func: func(x []float64) float64 {
			return p.cost(poseFromParams(x))
		},
		Grad: func(grad, x []float64) {
			_, jtr := p.normalEquations(poseFromParams(x))
			for i := range grad {
				grad[i] = 2 * jtr.AtVec(i)
			}
		},
		Hess: func(hess *mat.SymDense, x []float64) {
			jtj, _ := p.normalEquations(poseFromParams(x))
			hess.ScaleSym(2, jtj)
		},
	}
}

// stalled reports whether the optimizer stopped because no step lowers the cost any further.
func stalled(err error) bool {
	return errors.Is(err, optimize.ErrLinesearcherFailure) ||
		errors.Is(err, optimize.ErrNoProgress) ||
		errors.Is(err, optimize.ErrNonDescentDirection)
}

// refine minimizes the cost from start with Newton steps on the Gauss-Newton Hessian. It returns
// false when the start is invalid or the iterations ran out before the cost settled.
func (p *poseProblem) refine(start rigid, maxIterations int) (rigid, float64, int, bool) {
	cost := p.cost(start)
	if math.IsInf(cost, 0) || math.IsNaN(cost) {
		return start, cost, 0, false
	}
	settings := &optimize.Settings{
		MajorIterations: maxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   costTolerance,
			Relative:   costTolerance,
			Iterations: 3,
		},
	}
	method := &optimize.Newton{Linesearcher: &optimize.Backtracking{}}
	result, err := optimize.Minimize(p.objective(), poseParams(start), settings, method)
	if result == nil {
		return start, cost, 0, false
	}
	if err != nil && !stalled(err) {
		return start, cost, result.Stats.MajorIterations, false
	}
	return poseFromParams(result.X), result.F, result.Stats.MajorIterations, result.Status != optimize.IterationLimit
}

// conditioned returns whether the normal equations at pose determine all six parameters.
func (p *poseProblem) conditioned(pose rigid) bool {
	jtj, _ := p.normalEquations(pose)
	scaled := mat.NewSymDense(6, nil)
	for a := 0; a < 6; a++ {
		if jtj.At(a, a) <= 0 {
			return false
		}
		for b := a; b < 6; b++ {
			scaled.SetSym(a, b, jtj.At(a, b)/math.Sqrt(jtj.At(a, a)*jtj.At(b, b)))
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(scaled, false) {
		return false
	}
	values := eig.Values(nil)
	return values[0] > minConditioning*values[len(values)-1]
}

// dltPose estimates the pose linearly from the normalized image coordinates. The result is only
// a starting point and is not valid for planar scenes.
func dltPose(params *transform.PinholeCameraIntrinsics, scene []r3.Vector, image []r2.Point) (rigid, bool) {
	a := mat.NewDense(2*len(scene), 12, nil)
	for i, X := range scene {
		n := params.Normalize(image[i])
		a.SetRow(2*i, []float64{X.X, X.Y, X.Z, 1, 0, 0, 0, 0, -n.X * X.X, -n.X * X.Y, -n.X * X.Z, -n.X})
		a.SetRow(2*i+1, []float64{0, 0, 0, 0, X.X, X.Y, X.Z, 1, -n.Y * X.X, -n.Y * X.Y, -n.Y * X.Z, -n.Y})
	}
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return rigid{}, false
	}
	var v mat.Dense
	svd.VTo(&v)
	proj := mat.NewDense(3, 4, nil)
	for i := 0; i < 12; i++ {
		proj.Set(i/4, i%4, v.At(i, 11))
	}
	m := mat.DenseCopyOf(proj.Slice(0, 3, 0, 3))
	if mat.Det(m) < 0 {
		m.Scale(-1, m)
		proj.Scale(-1, proj)
	}
	var msvd mat.SVD
	if !msvd.Factorize(m, mat.SVDFull) {
		return rigid{}, false
	}
	var u, vt mat.Dense
	msvd.UTo(&u)
	msvd.VTo(&vt)
	var r mat.Dense
	r.Mul(&u, vt.T())
	if mat.Det(&r) <= 0 {
		return rigid{}, false
	}
	values := msvd.Values(nil)
	scale := (values[0] + values[1] + values[2]) / 3
	if scale <= 0 {
		return rigid{}, false
	}
	rot, err := spatialmath.NewRotationMatrix(r.RawMatrix().Data)
	if err != nil {
		return rigid{}, false
	}
	t := r3.Vector{X: proj.At(0, 3) / scale, Y: proj.At(1, 3) / scale, Z: proj.At(2, 3) / scale}
	return rigid{rot: rot, t: t}, true
}

// SolvePose finds the pose that moves the scene points in front of the camera so that they
// project onto the image points, minimizing the reprojection error in pixels. Correspondences
// with an error above outlierFactor times the median are dropped after a first solve.
func SolvePose(
	params *transform.PinholeCameraIntrinsics,
	scene []r3.Vector,
	image []r2.Point,
	maxIterations int,
	outlierFactor float64,
) (*PoseSolution, error) {
	if len(scene) != len(image) {
		return nil, utils.NewInputMismatchError("%d scene points but %d image points", len(scene), len(image))
	}
	if len(scene) < minPosePoints {
		return nil, utils.NewInsufficientDataError("pose correspondences", len(scene), minPosePoints)
	}
	if err := params.CheckValid(); err != nil {
		return nil, err
	}

	problem := &poseProblem{params: params, scene: scene, image: image, active: make([]bool, len(scene))}
	for i := range problem.active {
		problem.active[i] = true
	}

	starts := []rigid{{rot: spatialmath.NewIdentityRotationMatrix()}}
	if len(scene) >= minDLTPoints {
		if start, ok := dltPose(params, scene, image); ok {
			starts = append(starts, start)
		}
	}
	var best rigid
	bestCost, iterations, found := math.Inf(1), 0, false
	for _, start := range starts {
		pose, cost, it, ok := problem.refine(start, maxIterations)
		iterations += it
		if ok && cost < bestCost {
			best, bestCost, found = pose, cost, true
		}
	}
	if !found {
		return nil, utils.NewDegenerateGeometryError("pose refinement did not converge from %d starts", len(starts))
	}

	residuals := problem.residuals(best)
	median, err := stats.Median(residuals)
	if err != nil {
		return nil, err
	}
	limit := math.Max(outlierFactor*median, minOutlierResidual)
	inliers := lo.Map(residuals, func(r float64, _ int) bool { return r <= limit })
	if n := lo.Count(inliers, true); n >= minPosePoints && n < len(inliers) {
		trimmed := &poseProblem{params: params, scene: scene, image: image, active: inliers}
		pose, _, it, ok := trimmed.refine(best, maxIterations)
		iterations += it
		if ok {
			best, problem = pose, trimmed
			residuals = problem.residuals(best)
		}
	}

	if !problem.conditioned(best) {
		return nil, utils.NewDegenerateGeometryError("correspondences do not determine the pose")
	}
	pose, err := spatialmath.NewPose(best.rot, best.t)
	if err != nil {
		return nil, utils.NewDegenerateGeometryError("pose is not rigid: %v", err)
	}
	return &PoseSolution{Pose: pose, Inliers: problem.active, Residuals: residuals, Iterations: iterations}, nil
}

// residuals returns the reprojection error norm of every point, active or not. Points behind the
// camera get an infinite error.
func (p *poseProblem) residuals(pose rigid) []float64 {
	out := make([]float64, len(p.scene))
	for i := range p.scene {
		r, ok := p.residual(pose, i)
		if !ok {
			out[i] = math.Inf(1)
			continue
		}
		out[i] = r.Norm()
	}
	return out
}
