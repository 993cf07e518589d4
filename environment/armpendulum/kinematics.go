package armpendulum

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when the arm Jacobian cannot be inverted.
var ErrSingular = errors.New("arm is at a singular configuration")

// ForwardKinematics returns the end effector position of a planar two link arm in the XZ
// plane. q[0] is the shoulder angle from the X axis, q[1] the elbow angle relative to the
// upper link.
func ForwardKinematics(l1, l2 float64, q [2]float64) r3.Vector {
	elbow := r3.Vector{X: math.Cos(q[0]), Z: math.Sin(q[0])}.Mul(l1)
	wrist := r3.Vector{X: math.Cos(q[0] + q[1]), Z: math.Sin(q[0] + q[1])}.Mul(l2)
	return elbow.Add(wrist)
}

// Jacobian returns the 2x2 map from joint rates to end effector (X, Z) velocity.
func Jacobian(l1, l2 float64, q [2]float64) *mat.Dense {
	s1, c1 := math.Sincos(q[0])
	s12, c12 := math.Sincos(q[0] + q[1])
	return mat.NewDense(2, 2, []float64{
		-l1*s1 - l2*s12, -l2 * s12,
		l1*c1 + l2*c12, l2 * c12,
	})
}

// EndEffectorVelocity returns J(q) qd.
func EndEffectorVelocity(l1, l2 float64, q, qd [2]float64) r3.Vector {
	var v mat.VecDense
	v.MulVec(Jacobian(l1, l2, q), mat.NewVecDense(2, []float64{qd[0], qd[1]}))
	return r3.Vector{X: v.AtVec(0), Z: v.AtVec(1)}
}

// Singular reports whether |det J| = l1 l2 |sin q2| falls below tol * l1 l2.
func Singular(q [2]float64, tol float64) bool {
	return math.Abs(math.Sin(q[1])) < tol
}

// ResolveRates solves J(q) qd = v for the joint rates that produce the end effector
// velocity v. The Y component of v is ignored.
func ResolveRates(l1, l2 float64, q [2]float64, v r3.Vector, tol float64) ([2]float64, error) {
	if Singular(q, tol) {
		return [2]float64{}, ErrSingular
	}
	var qd mat.VecDense
	if err := qd.SolveVec(Jacobian(l1, l2, q), mat.NewVecDense(2, []float64{v.X, v.Z})); err != nil {
		return [2]float64{}, errors.Wrap(ErrSingular, err.Error())
	}
	return [2]float64{qd.AtVec(0), qd.AtVec(1)}, nil
}
