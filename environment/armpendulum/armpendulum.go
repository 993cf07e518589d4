// Package armpendulum simulates a planar two link arm balancing a pendulum pinned at its end
// effector. The arm follows a horizontal end effector acceleration command: the command is
// integrated into a Cartesian velocity reference, mapped to joint references by resolved rate
// and tracked by one PD block per joint.
package armpendulum

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/balance/control"
	"go.viam.com/balance/environment"
	"go.viam.com/balance/logging"
	"go.viam.com/balance/utils"
	"go.viam.com/balance/utils/matrix"
)

// Name is the environment name recorded in datasets.
const Name = "armpendulum"

// Observation component indices.
const (
	X = iota
	XDot
	Theta
	ThetaDot
	StateDim
)

// StateLabels names the observation components in index order.
var StateLabels = []string{"ee_x", "ee_x_dot", "theta", "theta_dot"}

// Params are the arm, pendulum and episode parameters. Link gravity is assumed to be
// compensated, so each joint is a damped inertia driven by its PD torque.
type Params struct {
	Gravity      float64    `json:"gravity"`
	Link1        float64    `json:"link1_length"`
	Link2        float64    `json:"link2_length"`
	JointInertia [2]float64 `json:"joint_inertia"`
	JointDamping [2]float64 `json:"joint_damping"`
	EffortLimit  [2]float64 `json:"effort_limit"`
	Kp           float64    `json:"kp"`
	Kd           float64    `json:"kd"`
	// PendulumLength is the distance from the pivot to the bob.
	PendulumLength  float64    `json:"pendulum_length"`
	PendulumDamping float64    `json:"pendulum_damping"`
	HomeJoints      [2]float64 `json:"home_joints"`
	ControlDt       float64    `json:"control_dt"`
	Substeps        int        `json:"substeps"`
	MaxAccel        float64    `json:"max_accel"`
	AngleLimit      float64    `json:"angle_limit"`
	// Workspace bounds the end effector X offset from home.
	Workspace            float64 `json:"workspace"`
	SingularityTolerance float64 `json:"singularity_tolerance"`
	MaxSteps             int     `json:"max_steps"`
	ResetNoise           float64 `json:"reset_noise"`
	Seed                 uint64  `json:"seed"`
}

// DefaultParams returns a half meter two link arm holding a half meter pendulum, with the
// end effector at shoulder height.
func DefaultParams() Params {
	return Params{
		Gravity:              9.81,
		Link1:                0.5,
		Link2:                0.5,
		JointInertia:         [2]float64{0.05, 0.05},
		JointDamping:         [2]float64{0.1, 0.1},
		EffortLimit:          [2]float64{50, 50},
		Kp:                   500,
		Kd:                   10,
		PendulumLength:       0.5,
		HomeJoints:           [2]float64{math.Pi / 3, -2 * math.Pi / 3},
		ControlDt:            0.01,
		Substeps:             10,
		MaxAccel:             20,
		AngleLimit:           0.4,
		Workspace:            0.3,
		SingularityTolerance: 0.05,
		MaxSteps:             1000,
		ResetNoise:           0.05,
	}
}

// Validate ensures all parameters are physically meaningful.
func (p Params) Validate() error {
	switch {
	case p.Link1 <= 0 || p.Link2 <= 0:
		return errors.New("arm link lengths must be positive")
	case p.JointInertia[0] <= 0 || p.JointInertia[1] <= 0:
		return errors.New("arm joint inertias must be positive")
	case p.JointDamping[0] < 0 || p.JointDamping[1] < 0:
		return errors.New("arm joint damping cannot be negative")
	case p.EffortLimit[0] <= 0 || p.EffortLimit[1] <= 0:
		return errors.New("arm effort limits must be positive")
	case p.Kp <= 0 || p.Kd < 0:
		return errors.New("arm kp must be positive and kd non negative")
	case p.PendulumLength <= 0:
		return errors.New("pendulum_length must be positive")
	case p.ControlDt <= 0 || p.Substeps <= 0:
		return errors.New("control_dt and substeps must be positive")
	case p.MaxAccel <= 0 || p.AngleLimit <= 0 || p.Workspace <= 0:
		return errors.New("max_accel, angle_limit and workspace must be positive")
	case p.SingularityTolerance <= 0 || p.SingularityTolerance >= 1:
		return errors.New("singularity_tolerance must be in (0, 1)")
	case p.MaxSteps < 0 || p.ResetNoise < 0:
		return errors.New("max_steps and reset_noise cannot be negative")
	case Singular(p.HomeJoints, p.SingularityTolerance):
		return errors.Wrap(ErrSingular, "home_joints")
	}
	return nil
}

// Linearize returns the Euler discretization, with step ControlDt, of the ideal
// acceleration input model x'' = u, L theta'' = g theta - u - b theta'.
func Linearize(p Params) environment.LinearSystem {
	l, dt := p.PendulumLength, p.ControlDt
	a := mat.NewDense(StateDim, StateDim, []float64{
		1, dt, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, dt,
		0, 0, dt * p.Gravity / l, 1 - dt*p.PendulumDamping/l,
	})
	b := mat.NewDense(StateDim, 1, []float64{0, dt, 0, -dt / l})
	return environment.LinearSystem{A: a, B: b, Dt: dt}
}

// Arm is the arm balancing environment. It implements environment.Env for episodic use and
// control.Controllable for use as the plant of a control.Loop.
type Arm struct {
	params Params
	logger logging.Logger
	src    rand.Source
	home   r3.Vector

	mu       sync.Mutex
	pd       [2]control.Block
	jointErr [2]*control.Signal
	q        [2]float64
	qd       [2]float64
	qRef     [2]float64
	vRef     float64
	eeVel    r3.Vector
	theta    float64
	thetaDot float64
	u        float64
	steps    int
	done     bool
	reset    bool
	history  []environment.State
	last     *environment.Transition
}

// New returns an arm balancing environment.
func New(params Params, logger logging.Logger) (*Arm, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	a := &Arm{
		params: params,
		logger: logger,
		src:    rand.NewPCG(params.Seed, params.Seed^0x9e3779b97f4a7c15),
		home:   ForwardKinematics(params.Link1, params.Link2, params.HomeJoints),
	}
	for i := range a.pd {
		name := fmt.Sprintf("joint%d", i)
		blk, err := control.NewBlock(control.BlockConfig{
			Name: name + "_pd",
			Type: control.BlockPID,
			Attribute: utils.AttributeMap{
				"kP":       params.Kp,
				"kD":       params.Kd,
				"limit_lo": -params.EffortLimit[i],
				"limit_up": params.EffortLimit[i],
			},
			DependsOn: []string{name + "_error"},
		}, logger.Sublogger(name))
		if err != nil {
			return nil, err
		}
		a.pd[i] = blk
		a.jointErr[i] = control.NewSignal(name+"_error", 1)
	}
	return a, nil
}

// Name implements environment.Env.
func (a *Arm) Name() string {
	return Name
}

// Params returns the parameters the environment was built with.
func (a *Arm) Params() Params {
	return a.params
}

// StateDim implements environment.Env.
func (a *Arm) StateDim() int {
	return StateDim
}

// ActionSpace implements environment.Env. Actions are horizontal end effector accelerations.
func (a *Arm) ActionSpace() environment.ActionSpace {
	return environment.ActionSpace{Low: -a.params.MaxAccel, High: a.params.MaxAccel}
}

// InputOf returns the clipped acceleration command of an action.
func (a *Arm) InputOf(action environment.Action) float64 {
	return utils.Clamp(action.Value, -a.params.MaxAccel, a.params.MaxAccel)
}

// Linearize implements environment.Linearizable.
func (a *Arm) Linearize() (environment.LinearSystem, error) {
	return Linearize(a.params), nil
}

// Reset puts the arm at rest at its home pose and draws the pendulum angle and rate
// uniformly from [-ResetNoise, ResetNoise].
func (a *Arm) Reset(ctx context.Context) (environment.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	noise := matrix.SampleUniform(2, -a.params.ResetNoise, a.params.ResetNoise, a.src)
	return a.ResetTo(ctx, noise[0], noise[1])
}

// ResetTo puts the arm at rest at its home pose with the given pendulum angle and rate.
func (a *Arm) ResetTo(ctx context.Context, theta, thetaDot float64) (environment.State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, blk := range a.pd {
		if err := blk.Reset(ctx); err != nil {
			return nil, err
		}
	}
	a.q = a.params.HomeJoints
	a.qRef = a.params.HomeJoints
	a.qd = [2]float64{}
	a.vRef = 0
	a.eeVel = r3.Vector{}
	a.theta = theta
	a.thetaDot = thetaDot
	a.u = 0
	a.steps = 0
	a.done = false
	a.reset = true
	obs := a.observation()
	a.history = []environment.State{obs}
	a.last = nil
	return obs.Clone(), nil
}

// Step applies the acceleration command for one control period.
func (a *Arm) Step(ctx context.Context, action environment.Action) (environment.Transition, error) {
	if err := ctx.Err(); err != nil {
		return environment.Transition{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkRunning(); err != nil {
		return environment.Transition{}, err
	}
	a.u = a.InputOf(action)
	tr, err := a.advance(ctx, a.params.ControlDt)
	if err != nil {
		return environment.Transition{}, err
	}
	tr.Action = action
	a.last.Action = action
	return tr, nil
}

// State implements control.Controllable.
func (a *Arm) State(ctx context.Context) ([]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.reset {
		return nil, environment.ErrNotReset
	}
	return a.observation(), nil
}

// SetActuation implements control.Controllable. u holds the acceleration command.
func (a *Arm) SetActuation(ctx context.Context, u []float64) error {
	if len(u) != 1 {
		return errors.Errorf("arm expects a single acceleration command, got %d values", len(u))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.u = utils.Clamp(u[0], -a.params.MaxAccel, a.params.MaxAccel)
	return nil
}

// Advance implements control.Advancer. It returns environment.ErrEpisodeDone once the
// episode terminates or is truncated.
func (a *Arm) Advance(ctx context.Context, dt time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkRunning(); err != nil {
		return err
	}
	tr, err := a.advance(ctx, dt.Seconds())
	if err != nil {
		return err
	}
	if tr.Done() {
		return environment.ErrEpisodeDone
	}
	return nil
}

// History returns every observation of the current episode, starting with the reset state.
func (a *Arm) History() []environment.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]environment.State, len(a.history))
	copy(out, a.history)
	return out
}

// LastTransition returns the most recent transition of the episode, whether it came from
// Step or Advance. It reports false until the first step after a reset.
func (a *Arm) LastTransition() (environment.Transition, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return environment.Transition{}, false
	}
	tr := *a.last
	tr.State, tr.Next = tr.State.Clone(), tr.Next.Clone()
	return tr, true
}

// Joints returns the current joint angles.
func (a *Arm) Joints() [2]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.q
}

func (a *Arm) checkRunning() error {
	if !a.reset {
		return environment.ErrNotReset
	}
	if a.done {
		return environment.ErrEpisodeDone
	}
	return nil
}

func (a *Arm) observation() environment.State {
	ee := ForwardKinematics(a.params.Link1, a.params.Link2, a.q)
	return environment.State{ee.X - a.home.X, a.eeVel.X, a.theta, a.thetaDot}
}

// advance integrates dt seconds with the current command. It must be called with mu held.
func (a *Arm) advance(ctx context.Context, dt float64) (environment.Transition, error) {
	prev := a.observation()
	singular := false
	h := dt / float64(a.params.Substeps)
	hDur := time.Duration(h * float64(time.Second))
	for i := 0; i < a.params.Substeps; i++ {
		if err := a.substep(ctx, h, hDur); err != nil {
			if !errors.Is(err, ErrSingular) {
				return environment.Transition{}, err
			}
			a.logger.Warnw("arm reached a singular configuration", "joints", a.q)
			singular = true
			break
		}
	}
	next := a.observation()
	a.history = append(a.history, next)
	a.steps++

	terminated := singular ||
		!next.IsValid() ||
		math.Abs(next[Theta]) > a.params.AngleLimit ||
		math.Abs(next[X]) > a.params.Workspace
	truncated := !terminated && a.params.MaxSteps > 0 && a.steps >= a.params.MaxSteps
	a.done = terminated || truncated
	if a.done {
		a.logger.Debugw("arm episode ended",
			"steps", a.steps, "terminated", terminated, "singular", singular, "state", next)
	}
	tr := environment.Transition{
		State:      prev,
		Action:     environment.Action{Value: a.u},
		Next:       next,
		Reward:     1,
		Terminated: terminated,
		Truncated:  truncated,
	}
	a.last = &tr
	return tr, nil
}

// substep runs one semi-implicit Euler step of the reference, the joints and the pendulum.
func (a *Arm) substep(ctx context.Context, h float64, hDur time.Duration) error {
	p := a.params

	a.vRef += a.u * h
	qdRef, err := ResolveRates(p.Link1, p.Link2, a.qRef, r3.Vector{X: a.vRef}, p.SingularityTolerance)
	if err != nil {
		return err
	}
	for i := range a.q {
		a.qRef[i] += qdRef[i] * h
		a.jointErr[i].SetSignalValueAt(0, a.qRef[i]-a.q[i])
		out, ok := a.pd[i].Next(ctx, []*control.Signal{a.jointErr[i]}, hDur)
		if !ok {
			return errors.Errorf("joint %d PD block produced no torque", i)
		}
		torque := out[0].GetSignalValueAt(0)
		qdd := (torque - p.JointDamping[i]*a.qd[i]) / p.JointInertia[i]
		a.qd[i] += qdd * h
		a.q[i] += a.qd[i] * h
	}
	if Singular(a.q, p.SingularityTolerance) {
		return ErrSingular
	}

	vel := EndEffectorVelocity(p.Link1, p.Link2, a.q, a.qd)
	acc := vel.Sub(a.eeVel).Mul(1 / h)
	a.eeVel = vel

	thetaAcc := ((p.Gravity+acc.Z)*math.Sin(a.theta) -
		acc.X*math.Cos(a.theta) -
		p.PendulumDamping*a.thetaDot) / p.PendulumLength
	a.thetaDot += thetaAcc * h
	a.theta += a.thetaDot * h
	return nil
}
