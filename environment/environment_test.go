package environment

import (
	"math"
	"math/rand/v2"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestState(t *testing.T) {
	s := State{1, 2, 3, 4}
	c := s.Clone()
	c[0] = 10
	test.That(t, s[0], test.ShouldEqual, 1.0)
	test.That(t, s.IsValid(), test.ShouldBeTrue)
	test.That(t, State{1, math.NaN()}.IsValid(), test.ShouldBeFalse)
	test.That(t, State{math.Inf(1)}.IsValid(), test.ShouldBeFalse)
	test.That(t, s.Vec().AtVec(3), test.ShouldEqual, 4.0)
}

func TestActionSpace(t *testing.T) {
	src := rand.NewPCG(7, 7)
	discrete := ActionSpace{Discrete: 2}
	seen := map[int]bool{}
	for i := 0; i < 100; i++ {
		a := discrete.Sample(src)
		test.That(t, discrete.Contains(a), test.ShouldBeTrue)
		seen[a.Index] = true
	}
	test.That(t, seen, test.ShouldHaveLength, 2)
	test.That(t, discrete.Contains(Action{Index: 2}), test.ShouldBeFalse)

	continuous := ActionSpace{Low: -3, High: 3}
	test.That(t, continuous.IsDiscrete(), test.ShouldBeFalse)
	for i := 0; i < 100; i++ {
		test.That(t, continuous.Contains(continuous.Sample(src)), test.ShouldBeTrue)
	}
	test.That(t, continuous.Contains(Action{Value: 3.5}), test.ShouldBeFalse)
}

func TestLinearSystem(t *testing.T) {
	ls := LinearSystem{
		A: mat.NewDense(2, 2, []float64{1, 0.1, 0, 1}),
		B: mat.NewDense(2, 1, []float64{0, 0.1}),
	}
	test.That(t, ls.Validate(), test.ShouldBeNil)
	n, m := ls.Dims()
	test.That(t, n, test.ShouldEqual, 2)
	test.That(t, m, test.ShouldEqual, 1)

	next, err := ls.Propagate(State{1, 2}, []float64{10})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, next[0], test.ShouldAlmostEqual, 1.2)
	test.That(t, next[1], test.ShouldAlmostEqual, 3.0)

	_, err = ls.Propagate(State{1}, []float64{10})
	test.That(t, err, test.ShouldNotBeNil)

	bad := LinearSystem{A: mat.NewDense(2, 3, nil), B: mat.NewDense(2, 1, nil)}
	test.That(t, bad.Validate(), test.ShouldNotBeNil)
	test.That(t, LinearSystem{}.Validate(), test.ShouldNotBeNil)
}

func TestTransitionDone(t *testing.T) {
	test.That(t, Transition{}.Done(), test.ShouldBeFalse)
	test.That(t, Transition{Terminated: true}.Done(), test.ShouldBeTrue)
	test.That(t, Transition{Truncated: true}.Done(), test.ShouldBeTrue)
}
