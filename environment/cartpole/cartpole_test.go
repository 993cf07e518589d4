package cartpole

import (
	"context"
	"math"
	"testing"

	"go.viam.com/test"

	"go.viam.com/balance/environment"
	"go.viam.com/balance/logging"
)

func newTestCartPole(t *testing.T, mutate func(*Params)) *CartPole {
	t.Helper()
	params := DefaultParams()
	params.Seed = 11
	if mutate != nil {
		mutate(&params)
	}
	cp, err := New(params, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return cp
}

func TestParamsValidate(t *testing.T) {
	test.That(t, DefaultParams().Validate(), test.ShouldBeNil)

	p := DefaultParams()
	p.MassPole = 0
	test.That(t, p.Validate(), test.ShouldBeError, "cartpole masses must be positive")

	p = DefaultParams()
	p.Tau = -1
	test.That(t, p.Validate(), test.ShouldBeError, "cartpole tau must be positive")

	_, err := New(p, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	cp := newTestCartPole(t, nil)

	_, err := cp.Step(ctx, environment.Action{Index: PushLeft})
	test.That(t, err, test.ShouldBeError, environment.ErrNotReset)

	s, err := cp.Reset(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s, test.ShouldHaveLength, StateDim)
	for _, v := range s {
		test.That(t, v, test.ShouldBeBetweenOrEqual, -0.05, 0.05)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = cp.Reset(cancelled)
	test.That(t, err, test.ShouldBeError, context.Canceled)
}

func TestStepPushes(t *testing.T) {
	ctx := context.Background()
	cp := newTestCartPole(t, nil)
	test.That(t, cp.ResetTo(environment.State{0, 0, 0, 0}), test.ShouldBeNil)

	tr, err := cp.Step(ctx, environment.Action{Index: PushRight})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tr.Reward, test.ShouldEqual, 1.0)
	test.That(t, tr.State, test.ShouldResemble, environment.State{0, 0, 0, 0})
	// Euler integration: the position only moves on the following step.
	test.That(t, tr.Next[X], test.ShouldEqual, 0.0)
	test.That(t, tr.Next[XDot], test.ShouldBeGreaterThan, 0)
	// pushing the cart right tips the pole left
	test.That(t, tr.Next[ThetaDot], test.ShouldBeLessThan, 0)

	_, err = cp.Step(ctx, environment.Action{Index: 2})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestTermination(t *testing.T) {
	ctx := context.Background()
	cp := newTestCartPole(t, nil)
	_, err := cp.Reset(ctx)
	test.That(t, err, test.ShouldBeNil)

	var tr environment.Transition
	steps := 0
	for !tr.Done() {
		tr, err = cp.Step(ctx, environment.Action{Index: PushRight})
		test.That(t, err, test.ShouldBeNil)
		steps++
		test.That(t, steps, test.ShouldBeLessThan, 200)
	}
	test.That(t, tr.Terminated, test.ShouldBeTrue)
	test.That(t, tr.Truncated, test.ShouldBeFalse)
	test.That(t, math.Abs(tr.Next[Theta]) > cp.Params().ThetaThreshold ||
		math.Abs(tr.Next[X]) > cp.Params().XThreshold, test.ShouldBeTrue)

	_, err = cp.Step(ctx, environment.Action{Index: PushRight})
	test.That(t, err, test.ShouldBeError, environment.ErrEpisodeDone)
}

func TestTruncation(t *testing.T) {
	ctx := context.Background()
	cp := newTestCartPole(t, func(p *Params) {
		p.Continuous = true
		p.MaxSteps = 25
	})
	test.That(t, cp.ActionSpace().IsDiscrete(), test.ShouldBeFalse)
	test.That(t, cp.ResetTo(environment.State{0, 0, 0, 0}), test.ShouldBeNil)

	var tr environment.Transition
	var err error
	for i := 0; i < 25; i++ {
		tr, err = cp.Step(ctx, environment.Action{Value: 0})
		test.That(t, err, test.ShouldBeNil)
	}
	test.That(t, tr.Truncated, test.ShouldBeTrue)
	test.That(t, tr.Terminated, test.ShouldBeFalse)
	test.That(t, tr.Next, test.ShouldResemble, environment.State{0, 0, 0, 0})
}

func TestInputOf(t *testing.T) {
	cp := newTestCartPole(t, nil)
	test.That(t, cp.InputOf(environment.Action{Index: PushRight}), test.ShouldEqual, 10.0)
	test.That(t, cp.InputOf(environment.Action{Index: PushLeft}), test.ShouldEqual, -10.0)

	continuous := newTestCartPole(t, func(p *Params) { p.Continuous = true })
	test.That(t, continuous.InputOf(environment.Action{Value: 3}), test.ShouldEqual, 3.0)
	test.That(t, continuous.InputOf(environment.Action{Value: 30}), test.ShouldEqual, 10.0)
}

func TestLinearizeMatchesDynamics(t *testing.T) {
	p := DefaultParams()
	ls := Linearize(p)
	test.That(t, ls.Validate(), test.ShouldBeNil)
	test.That(t, ls.Dt, test.ShouldEqual, p.Tau)

	// central differences of the nonlinear step about the upright equilibrium
	const eps = 1e-6
	zero := environment.State{0, 0, 0, 0}
	for j := 0; j < StateDim; j++ {
		plus, minus := zero.Clone(), zero.Clone()
		plus[j] += eps
		minus[j] -= eps
		fp, fm := Dynamics(p, plus, 0), Dynamics(p, minus, 0)
		for i := 0; i < StateDim; i++ {
			test.That(t, ls.A.At(i, j), test.ShouldAlmostEqual, (fp[i]-fm[i])/(2*eps), 1e-6)
		}
	}
	fp, fm := Dynamics(p, zero, eps), Dynamics(p, zero, -eps)
	for i := 0; i < StateDim; i++ {
		test.That(t, ls.B.At(i, 0), test.ShouldAlmostEqual, (fp[i]-fm[i])/(2*eps), 1e-6)
	}
}
