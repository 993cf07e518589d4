package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/balance/config"
	"go.viam.com/balance/control"
	"go.viam.com/balance/environment"
	"go.viam.com/balance/environment/armpendulum"
	"go.viam.com/balance/environment/cartpole"
	"go.viam.com/balance/logging"
	"go.viam.com/balance/rollout"
	"go.viam.com/balance/store"
	"go.viam.com/balance/sysid"
	"go.viam.com/balance/urdf"
)

// plant is an environment that can also describe itself as a linear model.
type plant interface {
	environment.Env
	environment.Linearizable
}

// runner holds what every command needs: the parsed configuration and a logger.
type runner struct {
	c      *cli.Context
	cfg    *config.Config
	logger logging.Logger
}

func newRunner(c *cli.Context) (*runner, error) {
	level, err := logging.LevelFromString(c.String(flagLogLevel))
	if err != nil {
		return nil, err
	}
	if c.Bool(flagDebug) {
		logging.GlobalLogLevel.Set(logging.DEBUG)
	} else {
		logging.GlobalLogLevel.Set(logging.INFO)
	}
	logger := logging.NewLogger("balance", c.App.ErrWriter)
	logger.SetLevel(level)
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		if cfg, err = config.Read(path); err != nil {
			return nil, err
		}
		logger.Debugw("read config", "path", path)
	}
	return &runner{c: c, cfg: cfg, logger: logger}, nil
}

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

func (r *runner) ctx() context.Context {
	return r.c.Context
}

func (r *runner) out() io.Writer {
	return r.c.App.Writer
}

func (r *runner) openStore() (*store.Store, error) {
	return store.Open(r.ctx(), r.c.String(flagDB), r.logger.Sublogger("store"))
}

// envName returns the --env flag, falling back to the environment the config identifies.
func (r *runner) envName() (string, error) {
	name := r.cfg.SysID.Env
	if r.c.IsSet(flagEnv) {
		name = r.c.String(flagEnv)
	}
	switch name {
	case cartpole.Name, armpendulum.Name:
		return name, nil
	default:
		return "", errors.Errorf("unknown env %q, expected %q or %q", name, cartpole.Name, armpendulum.Name)
	}
}

func (r *runner) armParams() (armpendulum.Params, error) {
	if r.cfg.Arm.URDF == "" {
		return r.cfg.Arm.Params, nil
	}
	model, err := urdf.Read(r.cfg.Arm.URDF)
	if err != nil {
		return armpendulum.Params{}, err
	}
	return urdf.ArmParams(model, urdf.DefaultArmJoints, r.cfg.Arm.Params)
}

// newPlant builds environment name, offsetting its seed so every episode differs.
func (r *runner) newPlant(name string, seedOffset uint64) (plant, error) {
	switch name {
	case cartpole.Name:
		p := r.cfg.CartPole
		p.Seed += seedOffset
		return cartpole.New(p, r.logger.Sublogger(name))
	case armpendulum.Name:
		p, err := r.armParams()
		if err != nil {
			return nil, err
		}
		p.Seed += seedOffset
		return armpendulum.New(p, r.logger.Sublogger(name))
	default:
		return nil, errors.Errorf("unknown env %q", name)
	}
}

func labelsOf(name string) []string {
	if name == armpendulum.Name {
		return armpendulum.StateLabels
	}
	return cartpole.StateLabels
}

func (r *runner) cost(name string) (mat.Matrix, mat.Matrix) {
	if name == armpendulum.Name {
		return control.DiagonalCost(r.cfg.LQR.ArmQ...), mat.NewDense(1, 1, []float64{r.cfg.LQR.ArmR})
	}
	return control.DiagonalCost(r.cfg.LQR.CartPoleQ...), mat.NewDense(1, 1, []float64{r.cfg.LQR.CartPoleR})
}

func (r *runner) sample(env plant, n int) (*sysid.Dataset, error) {
	policy := rollout.NewRandomPolicy(env.ActionSpace(), r.cfg.SysID.PolicySeed)
	return sysid.Sample(r.ctx(), env, policy, n, r.logger)
}

// fit identifies a linear model of env from the --dataset dataset, or from a freshly
// sampled one, restricted to the configured neighborhood.
func (r *runner) fit(name string, env plant) (*sysid.LinearModel, *sysid.Dataset, error) {
	var ds *sysid.Dataset
	if id := r.c.String(flagDataset); id != "" {
		st, err := r.openStore()
		if err != nil {
			return nil, nil, err
		}
		ds, err = st.LoadDataset(r.ctx(), id)
		if closeErr := st.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return nil, nil, err
		}
		if ds.Env != name {
			return nil, nil, errors.Errorf("dataset %s was collected on %s, not %s", id, ds.Env, name)
		}
	} else {
		var err error
		if ds, err = r.sample(env, r.cfg.SysID.Samples); err != nil {
			return nil, nil, err
		}
	}
	if nb := r.cfg.SysID.Neighborhood(); nb != nil {
		filtered, err := nb.Filter(ds)
		if err != nil {
			return nil, nil, err
		}
		r.logger.Infow("filtered dataset", "kept", filtered.Len(), "of", ds.Len())
		filtered.ID = ds.ID
		ds = filtered
	}
	outputs := make([]int, env.StateDim())
	for i := range outputs {
		outputs[i] = i
	}
	model, err := sysid.FitLinear(ds, outputs, env.InputOf)
	if err != nil {
		return nil, nil, err
	}
	return model, ds, nil
}

// regulator holds an LQR gain and the model it was computed from.
type regulator struct {
	source    string
	datasetID string
	system    environment.LinearSystem
	model     *sysid.LinearModel
	gain      control.Gain
}

// design computes the LQR gain of environment name. The model is fit from data when the
// config asks for it or a dataset is given, and hand assembled otherwise.
func (r *runner) design(name string) (*regulator, error) {
	env, err := r.newPlant(name, 0)
	if err != nil {
		return nil, err
	}
	linear, err := env.Linearize()
	if err != nil {
		return nil, err
	}
	d := &regulator{source: config.ModelLinearized, system: linear}
	if r.cfg.LQR.Model == config.ModelFit || r.c.String(flagDataset) != "" {
		model, ds, err := r.fit(name, env)
		if err != nil {
			return nil, err
		}
		if d.system, err = model.System(linear.Dt); err != nil {
			return nil, err
		}
		d.source = config.ModelFit
		d.datasetID = ds.ID
		d.model = model
	}
	q, rc := r.cost(name)
	if d.gain, err = control.LQR(d.system.A, d.system.B, q, rc); err != nil {
		return nil, errors.Wrapf(err, "failed to design a regulator for %s", name)
	}
	r.logger.Debugw("designed regulator", "env", name, "model", d.source, "iterations", d.gain.Iterations)
	return d, nil
}
