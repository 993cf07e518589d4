package control

import (
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/balance/utils"
)

// ErrNotConverged is returned when the Riccati iteration hits its iteration cap.
var ErrNotConverged = errors.New("riccati iteration did not converge")

const (
	defaultRiccatiTolerance     = 1e-10
	defaultRiccatiMaxIterations = 100000
	symmetryTolerance           = 1e-9
)

// Gain is a discrete time state feedback gain and the Riccati solution it came from.
type Gain struct {
	K          *mat.Dense
	P          *mat.Dense
	Iterations int
}

// Control returns u = -K (x - setpoint). A nil setpoint is the origin. x and a non-nil
// setpoint must have one component per column of K.
func (g Gain) Control(x, setpoint []float64) ([]float64, error) {
	if g.K == nil {
		return nil, errors.New("gain has no K")
	}
	r, c := g.K.Dims()
	if len(x) != c {
		return nil, utils.NewDimensionError("state", c, 1, len(x), 1)
	}
	if setpoint != nil && len(setpoint) != c {
		return nil, utils.NewDimensionError("setpoint", c, 1, len(setpoint), 1)
	}
	e := mat.NewVecDense(c, append([]float64(nil), x...))
	if setpoint != nil {
		e.SubVec(e, mat.NewVecDense(c, setpoint))
	}
	u := mat.NewVecDense(r, nil)
	u.MulVec(g.K, e)
	u.ScaleVec(-1, u)
	return u.RawVector().Data, nil
}

// Rows returns K as nested slices, the layout stateFeedback blocks are configured with.
func (g Gain) Rows() [][]float64 {
	r, _ := g.K.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, g.K)
	}
	return out
}

// DiagonalCost builds a diagonal cost matrix from its weights.
func DiagonalCost(weights ...float64) *mat.DiagDense {
	return mat.NewDiagDense(len(weights), append([]float64(nil), weights...))
}

// LQR computes the infinite horizon discrete LQR gain for x' = Ax + Bu with stage
// cost x'Qx + u'Ru.
func LQR(a, b, q, r mat.Matrix) (Gain, error) {
	return SolveDARE(a, b, q, r, defaultRiccatiTolerance, defaultRiccatiMaxIterations)
}

// SolveDARE iterates P = Q + A'PA - A'PB (R + B'PB)^-1 B'PA from P = Q until the largest
// change is below tol relative to P, and returns K = (R + B'PB)^-1 B'PA.
func SolveDARE(a, b, q, r mat.Matrix, tol float64, maxIterations int) (Gain, error) {
	if err := validateLQR(a, b, q, r); err != nil {
		return Gain{}, err
	}
	p := mat.DenseCopyOf(q)
	for i := 1; i <= maxIterations; i++ {
		next, _, err := riccatiStep(a, b, q, r, p)
		if err != nil {
			return Gain{}, err
		}
		delta := maxAbsDiff(next, p)
		if math.IsNaN(delta) || math.IsInf(delta, 0) {
			return Gain{}, errors.Wrap(ErrNotConverged, "riccati iterate diverged")
		}
		p = next
		if delta <= tol*math.Max(1, mat.Norm(p, math.Inf(1))) {
			_, k, err := riccatiStep(a, b, q, r, p)
			if err != nil {
				return Gain{}, err
			}
			return Gain{K: k, P: p, Iterations: i}, nil
		}
	}
	return Gain{}, errors.Wrapf(ErrNotConverged, "after %d iterations", maxIterations)
}

// riccatiStep returns the next Riccati iterate and the gain of the current one.
func riccatiStep(a, b, q, r mat.Matrix, p *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	var btp, s, btpa, k mat.Dense
	btp.Mul(b.T(), p)
	s.Mul(&btp, b)
	s.Add(&s, r)
	btpa.Mul(&btp, a)
	if err := k.Solve(&s, &btpa); err != nil {
		return nil, nil, errors.Wrap(err, "R + B'PB is singular")
	}

	var atp, next, corr mat.Dense
	atp.Mul(a.T(), p)
	next.Mul(&atp, a)
	corr.Mul(btpa.T(), &k)
	next.Sub(&next, &corr)
	next.Add(&next, q)
	symmetrize(&next)
	return &next, &k, nil
}

// ClosedLoopSpectralRadius returns the largest eigenvalue modulus of A - BK. The
// closed loop is stable when it is below one.
func ClosedLoopSpectralRadius(a, b, k mat.Matrix) (float64, error) {
	ar, ac := a.Dims()
	if ar != ac {
		return 0, errors.Errorf("A must be square, got %dx%d", ar, ac)
	}
	br, bc := b.Dims()
	if br != ar {
		return 0, utils.NewDimensionError("B", ar, bc, br, bc)
	}
	if kr, kc := k.Dims(); kr != bc || kc != ar {
		return 0, utils.NewDimensionError("K", bc, ar, kr, kc)
	}
	var bk, acl mat.Dense
	bk.Mul(b, k)
	acl.Sub(a, &bk)
	var eig mat.Eigen
	if ok := eig.Factorize(&acl, mat.EigenNone); !ok {
		return 0, errors.New("eigen decomposition of A - BK failed")
	}
	radius := 0.0
	for _, v := range eig.Values(nil) {
		radius = math.Max(radius, cmplx.Abs(v))
	}
	return radius, nil
}

func validateLQR(a, b, q, r mat.Matrix) error {
	ar, ac := a.Dims()
	if ar != ac {
		return errors.Errorf("A must be square, got %dx%d", ar, ac)
	}
	br, bc := b.Dims()
	if br != ar {
		return errors.Errorf("B must have %d rows, got %d", ar, br)
	}
	if qr, qc := q.Dims(); qr != ar || qc != ar {
		return utils.NewDimensionError("Q", ar, ar, qr, qc)
	}
	if rr, rc := r.Dims(); rr != bc || rc != bc {
		return utils.NewDimensionError("R", bc, bc, rr, rc)
	}
	qs, err := toSym(q)
	if err != nil {
		return errors.Wrap(err, "Q")
	}
	var es mat.EigenSym
	if ok := es.Factorize(qs, false); !ok {
		return errors.New("eigen decomposition of Q failed")
	}
	for _, v := range es.Values(nil) {
		if v < -symmetryTolerance {
			return errors.Errorf("Q must be positive semi-definite, has eigenvalue %g", v)
		}
	}
	rs, err := toSym(r)
	if err != nil {
		return errors.Wrap(err, "R")
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(rs); !ok {
		return errors.New("R must be positive definite")
	}
	return nil
}

func toSym(m mat.Matrix) (*mat.SymDense, error) {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if math.Abs(m.At(i, j)-m.At(j, i)) > symmetryTolerance*math.Max(1, math.Abs(m.At(i, j))) {
				return nil, errors.Errorf("matrix is not symmetric at (%d, %d)", i, j)
			}
			s.SetSym(i, j, m.At(i, j))
		}
	}
	return s, nil
}

func symmetrize(m *mat.Dense) {
	n, _ := m.Dims()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := (m.At(i, j) + m.At(j, i)) / 2
			m.Set(i, j, v)
			m.Set(j, i, v)
		}
	}
}

func maxAbsDiff(x, y mat.Matrix) float64 {
	r, c := x.Dims()
	d := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d = math.Max(d, math.Abs(x.At(i, j)-y.At(i, j)))
		}
	}
	return d
}
