package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/fastvo/utils"
)

// MinFundamentalMatches is the number of correspondences the eight point algorithm needs.
const MinFundamentalMatches = 8

// degenerateSingularRatio is the ratio between the second smallest and the largest singular value
// of the epipolar constraint system below which the solution is not unique.
const degenerateSingularRatio = 1e-9

// FeatureMatch is a pair of corresponding pixel locations in two images.
type FeatureMatch struct {
	P1 r2.Point
	P2 r2.Point
}

// FundamentalMatrix is the 3x3 matrix F with p2^T F p1 = 0 for corresponding homogeneous pixels.
// F has unit Frobenius norm and its largest magnitude element is positive.
type FundamentalMatrix struct {
	F *mat.Dense
	// Degenerate is set when the correspondences do not determine F uniquely (collinear, coplanar
	// or repeated points). F is still a valid solution of the constraints but has low confidence.
	Degenerate bool
	// Condition is the ratio of the second smallest to the largest singular value of the
	// constraint system; values near zero mean a poorly determined F.
	Condition float64
}

// Convert2DPointsToHomogeneousPoints converts float64 image coordinates to homogeneous float64 coordinates.
func Convert2DPointsToHomogeneousPoints(pts []r2.Point) []r3.Vector {
	ptsHomogeneous := make([]r3.Vector, len(pts))
	for i, pt := range pts {
		ptsHomogeneous[i] = r3.Vector{
			X: pt.X,
			Y: pt.Y,
			Z: 1,
		}
	}
	return ptsHomogeneous
}

// EstimateFundamentalMatrix estimates F from all the matches with the normalized eight point algorithm.
func EstimateFundamentalMatrix(matches []FeatureMatch) (*FundamentalMatrix, error) {
	pts1 := make([]r2.Point, len(matches))
	pts2 := make([]r2.Point, len(matches))
	for i, m := range matches {
		pts1[i] = m.P1
		pts2[i] = m.P2
	}
	return ComputeFundamentalMatrixAllPoints(pts1, pts2, true)
}

// ComputeFundamentalMatrixAllPoints compute the fundamental matrix from all points.
func ComputeFundamentalMatrixAllPoints(pts1, pts2 []r2.Point, normalize bool) (*FundamentalMatrix, error) {
	if len(pts1) != len(pts2) {
		return nil, utils.NewInputMismatchError("sets of points pts1 (%d) and pts2 (%d) must have the same number of elements",
			len(pts1), len(pts2))
	}
	if len(pts1) < MinFundamentalMatches {
		return nil, utils.NewInsufficientDataError("fundamental matrix", len(pts1), MinFundamentalMatches)
	}
	nPoints := len(pts1)

	var points1, points2 []r2.Point
	var T1, T2 *mat.Dense
	spread := true

	// if normalize, normalize points and get transform
	if normalize {
		var ok1, ok2 bool
		points1, T1, ok1 = normalizePoints(pts1)
		points2, T2, ok2 = normalizePoints(pts2)
		spread = ok1 && ok2
	} else {
		points1 = make([]r2.Point, nPoints)
		copy(points1, pts1)
		points2 = make([]r2.Point, nPoints)
		copy(points2, pts2)
		T1 = eye(3)
		T2 = eye(3)
	}

	m := mat.NewDense(nPoints, 9, nil)
	for i := range points1 {
		v1 := points1[i]
		v2 := points2[i]
		row := []float64{
			v2.X * v1.X, v2.X * v1.Y, v2.X,
			v2.Y * v1.X, v2.Y * v1.Y, v2.Y,
			v1.X, v1.Y, 1,
		}
		m.SetRow(i, row)
	}

	// perform SVD on m
	mats1 := performSVD(m)
	if mats1 == nil {
		return &FundamentalMatrix{F: mat.NewDense(3, 3, nil), Degenerate: true}, nil
	}
	// the 8th singular value is the second smallest; when it vanishes the null space is not a line
	values := mats1.values
	condition := 0.
	if values[0] > 0 {
		condition = values[MinFundamentalMatches-1] / values[0]
	}
	lastColV := mats1.V.ColView(8)

	// reshape into F
	lastColVdata := make([]float64, 9)
	for i := range lastColVdata {
		lastColVdata[i] = lastColV.AtVec(i)
	}
	F := mat.NewDense(3, 3, lastColVdata)

	// enforce rank 2 of F
	mats2 := performSVD(F)
	if mats2 == nil {
		return &FundamentalMatrix{F: mat.NewDense(3, 3, nil), Degenerate: true, Condition: condition}, nil
	}
	S := mats2.S
	S.Set(2, 2, 0)

	// get refined F: U@S@V2^T
	Fhat := mat.NewDense(3, 3, nil)
	Fhat.Mul(mats2.U, S)
	F.Mul(Fhat, mats2.VT)
	// rescale F: T2^T @ F @ T1
	F.Mul(T2.T(), F)
	F.Mul(F, T1)
	canonicalizeFundamental(F)

	return &FundamentalMatrix{
		F:          F,
		Degenerate: !spread || condition < degenerateSingularRatio,
		Condition:  condition,
	}, nil
}

// canonicalizeFundamental scales F to unit Frobenius norm with a positive largest element, so that
// two estimates of the same epipolar geometry compare equal.
func canonicalizeFundamental(F *mat.Dense) {
	norm := mat.Norm(F, 2)
	if norm == 0 {
		return
	}
	maxAbs, sign := 0., 1.
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if v := F.At(r, c); math.Abs(v) > maxAbs+1e-12 {
				maxAbs = math.Abs(v)
				sign = math.Copysign(1, v)
			}
		}
	}
	F.Scale(sign/norm, F)
}

// SampsonError returns the first order geometric error of a match against F:
// (p2^T F p1)^2 / ((F p1)_0^2 + (F p1)_1^2 + (F^T p2)_0^2 + (F^T p2)_1^2).
// A zero denominator (degenerate epipolar lines) gives an error of 0.
func SampsonError(F mat.Matrix, match FeatureMatch) float64 {
	p1 := mat.NewVecDense(3, []float64{match.P1.X, match.P1.Y, 1})
	p2 := mat.NewVecDense(3, []float64{match.P2.X, match.P2.Y, 1})

	var fp1, ftp2 mat.VecDense
	fp1.MulVec(F, p1)
	ftp2.MulVec(F.T(), p2)

	top := mat.Dot(p2, &fp1)
	weight := utils.Square(fp1.AtVec(0)) + utils.Square(fp1.AtVec(1)) +
		utils.Square(ftp2.AtVec(0)) + utils.Square(ftp2.AtVec(1))
	if weight == 0 {
		return 0
	}
	return top * top / weight
}

// SampsonErrors returns the Sampson error of every match.
func SampsonErrors(F mat.Matrix, matches []FeatureMatch) []float64 {
	errs := make([]float64, len(matches))
	for i, m := range matches {
		errs[i] = SampsonError(F, m)
	}
	return errs
}

// AggregateError returns the mean and standard deviation of the Sampson errors of the matches
// whose mask entry is set. The mask must have one entry per match.
func AggregateError(F mat.Matrix, matches []FeatureMatch, mask []bool) (float64, float64, error) {
	if len(mask) != len(matches) {
		return 0, 0, utils.NewInputMismatchError("mask has %d entries but there are %d matches", len(mask), len(matches))
	}
	errs := make([]float64, 0, len(matches))
	for i, valid := range mask {
		if !valid {
			continue
		}
		errs = append(errs, SampsonError(F, matches[i]))
	}
	mean, stddev := utils.MeanStdDev(errs)
	return mean, stddev, nil
}

// helpers
// normalizePoints normalizes points as described in Multiple View Geometry, Alg 11.1.
// It returns false when all the points coincide and no scale can be computed.
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense, bool) {
	nPoints := len(pts)
	// computer centroid of points
	mu := r2.Point{}
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1. / float64(nPoints))
	// compute scale factor
	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm() / float64(nPoints)
	}
	if d == 0 {
		out := make([]r2.Point, nPoints)
		copy(out, pts)
		return out, eye(3), false
	}
	scale := math.Sqrt(2) / d
	transformData := []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	}
	T := mat.NewDense(3, 3, transformData)
	// apply transform to points
	pointsTransformed := make([]r2.Point, nPoints)
	for i := range pointsTransformed {
		pointsTransformed[i] = pts[i].Sub(mu).Mul(scale)
	}
	return pointsTransformed, T, true
}

// eye create an identity matrix of size nxn.
func eye(n int) *mat.Dense {
	if n <= 0 {
		return nil
	}
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// matsSVD stores the matrices from SVD decomposition.
type matsSVD struct {
	U      *mat.Dense
	V      *mat.Dense
	VT     *mat.Dense
	S      *mat.Dense
	values []float64
}

// performSVD performs SVD on inputMatrix and returns matrices U, Sigma and V from the decomposition.
func performSVD(inputMatrix *mat.Dense) *matsSVD {
	var svd mat.SVD
	ok := svd.Factorize(inputMatrix, mat.SVDFull)
	if !ok {
		return nil
	}

	u, v, sigma, vt := &mat.Dense{}, &mat.Dense{}, &mat.Dense{}, &mat.Dense{}

	svd.UTo(u)
	svd.VTo(v)
	vt.CloneFrom(v.T())

	singularValues := svd.Values(nil)
	// firstly create diag matrix. Next fill new sigma matrix with zeros
	sigma.CloneFrom(mat.NewDiagDense(len(singularValues), singularValues))

	return &matsSVD{u, v, vt, sigma, singularValues}
}
