package pose

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// RefineOptions tunes the Levenberg-Marquardt refinement.
type RefineOptions struct {
	// MaxIterations caps the number of damped steps, accepted or not.
	MaxIterations int

	// Epsilon stops the iteration once the summed squared residual is at
	// or below it.
	Epsilon float64

	// InitialLambdaLog is the starting damping exponent.
	InitialLambdaLog float64

	// LambdaLogBound clamps the damping exponent to [-bound, bound].
	LambdaLogBound float64
}

// DefaultRefineOptions returns the stock LM settings.
func DefaultRefineOptions() RefineOptions {
	return RefineOptions{
		MaxIterations:    30,
		Epsilon:          0.001,
		InitialLambdaLog: -4,
		LambdaLogBound:   16,
	}
}

// Refinement is the outcome of Refine.
type Refinement struct {
	Pose         Pose    `json:"pose"`
	InitialError float64 `json:"initial_error"`
	FinalError   float64 `json:"final_error"`

	// InitialPixelError and FinalPixelError are PerspectiveError of the
	// starting and returned poses.
	InitialPixelError float64 `json:"initial_pixel_error"`
	FinalPixelError   float64 `json:"final_pixel_error"`

	Iterations int     `json:"iterations"`
	Accepted   int     `json:"accepted_steps"`
	Converged  bool    `json:"converged"`
	LambdaLog  float64 `json:"lambda_log"`
}

// AlgebraicError returns the objective minimized by Refine. With
// (x_i, y_i, w_i) = K*M*(q_i, 0, 1) it is
//
//	sum (u_i*w_i - x_i)^2 + (v_i*w_i - y_i)^2  +  (1 - w_0)^2
//
// Each point term is the pixel error scaled by that corner's projective
// depth w_i. The last term pins the scale of M to the one AnchorScale
// sets on the first correspondence.
func AlgebraicError(p Pose, k mgl64.Mat3, src, dst []r2.Point) float64 {
	if len(src) == 0 {
		return 0
	}
	e := 0.0
	for i := range src {
		v := p.Camera(k, src[i])
		dx := dst[i].X*v.Z() - v.X()
		dy := dst[i].Y*v.Z() - v.Y()
		e += dx*dx + dy*dy
	}
	a := 1 - p.Camera(k, src[0]).Z()
	return e + a*a
}

// Refine minimizes AlgebraicError over the twelve entries of the pose
// matrix with Levenberg-Marquardt.
//
// Every residual is linear in M, so the Jacobian is constant. For
// correspondence i and entry M_rj the point rows are
//
//	d(x_i - u_i*w_i)/dM_rj = (K_0r - u_i*K_2r) * q_j
//	d(y_i - v_i*w_i)/dM_rj = (K_1r - v_i*K_2r) * q_j
//
// and the anchor row is K_2r * q0_j. Entries whose Jacobian column is zero
// (the third rotation column, since marker points have z = 0) cannot be
// observed and are held fixed.
//
// Each iteration solves
//
//	(JtJ + lambda*diag(JtJ)) * delta = Jt * (target - J*m)
//
// with lambda = 1 + 10^lambdaLog. A step that raises the error is
// discarded and lambdaLog is increased; an accepted step lowers it. The
// iteration stops at MaxIterations or once the error reaches Epsilon.
//
// The returned pose is the last accepted iterate, unless an earlier one
// (or the start) reprojects with a lower PerspectiveError, so refinement
// never makes the published pixel error worse. Converged reports whether
// the returned pose is within Epsilon.
func Refine(initial Pose, k mgl64.Mat3, src, dst []r2.Point, opts RefineOptions) (*Refinement, error) {
	if len(src) != len(dst) || len(src) == 0 {
		return nil, errors.Errorf("refine needs matching non-empty point sets, got %d and %d", len(src), len(dst))
	}

	jac, target := linearSystem(k, src, dst)
	var jtj mat.Dense
	jtj.Mul(jac.T(), jac)

	var active []int
	for j := 0; j < 12; j++ {
		if jtj.At(j, j) > 0 {
			active = append(active, j)
		}
	}
	n := len(active)

	m := initial
	err := AlgebraicError(m, k, src, dst)
	res := &Refinement{
		InitialError:      err,
		InitialPixelError: PerspectiveError(m, k, src, dst),
		LambdaLog:         opts.InitialLambdaLog,
	}
	best, bestPix := m, res.InitialPixelError

	lhs := mat.NewDense(n, n, nil)
	rhs := mat.NewVecDense(n, nil)
	var delta mat.VecDense

	for res.Iterations < opts.MaxIterations && err > opts.Epsilon {
		res.Iterations++

		residual := residuals(m, jac, target)
		var jte mat.VecDense
		jte.MulVec(jac.T(), residual)

		lambda := 1 + math.Pow(10, res.LambdaLog)
		for a, ja := range active {
			for b, jb := range active {
				lhs.Set(a, b, jtj.At(ja, jb))
			}
			lhs.Set(a, a, jtj.At(ja, ja)*(1+lambda))
			rhs.SetVec(a, jte.AtVec(ja))
		}
		if solveErr := delta.SolveVec(lhs, rhs); solveErr != nil {
			res.LambdaLog = math.Min(res.LambdaLog+1, opts.LambdaLogBound)
			continue
		}

		candidate := m
		for a, j := range active {
			candidate.M[j] += delta.AtVec(a)
		}
		candErr := AlgebraicError(candidate, k, src, dst)

		if candErr > err || math.IsNaN(candErr) {
			res.LambdaLog = math.Min(res.LambdaLog+1, opts.LambdaLogBound)
			continue
		}
		m, err = candidate, candErr
		res.Accepted++
		res.LambdaLog = math.Max(res.LambdaLog-1, -opts.LambdaLogBound)

		if pix := PerspectiveError(m, k, src, dst); pix <= bestPix {
			best, bestPix = m, pix
		}
	}

	res.Pose = best
	res.FinalError = AlgebraicError(best, k, src, dst)
	res.FinalPixelError = bestPix
	res.Converged = res.FinalError <= opts.Epsilon
	return res, nil
}

// linearSystem returns the (2n+1) x 12 Jacobian over the column-major
// entries of M and the matching target vector: zero for the point rows,
// one for the anchor row.
func linearSystem(k mgl64.Mat3, src, dst []r2.Point) (*mat.Dense, *mat.VecDense) {
	rows := 2*len(src) + 1
	jac := mat.NewDense(rows, 12, nil)
	target := mat.NewVecDense(rows, nil)
	for i, q := range src {
		qh := [4]float64{q.X, q.Y, 0, 1}
		for j := 0; j < 4; j++ {
			for r := 0; r < 3; r++ {
				jac.Set(2*i, j*3+r, (k.At(0, r)-dst[i].X*k.At(2, r))*qh[j])
				jac.Set(2*i+1, j*3+r, (k.At(1, r)-dst[i].Y*k.At(2, r))*qh[j])
			}
		}
	}

	q0 := [4]float64{src[0].X, src[0].Y, 0, 1}
	for j := 0; j < 4; j++ {
		for r := 0; r < 3; r++ {
			jac.Set(rows-1, j*3+r, k.At(2, r)*q0[j])
		}
	}
	target.SetVec(rows-1, 1)
	return jac, target
}

// residuals returns target - J*m for the column-major entries of p.
func residuals(p Pose, jac *mat.Dense, target *mat.VecDense) *mat.VecDense {
	var pred mat.VecDense
	pred.MulVec(jac, mat.NewVecDense(12, p.M[:]))
	out := mat.NewVecDense(target.Len(), nil)
	out.SubVec(target, &pred)
	return out
}
