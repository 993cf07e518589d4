// Package config reads the experiment configuration shared by the balance commands.
package config

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"

	"go.viam.com/balance/environment/armpendulum"
	"go.viam.com/balance/environment/cartpole"
	"go.viam.com/balance/sysid"
)

// Model sources for the LQR design.
const (
	ModelLinearized = "linearized"
	ModelFit        = "fit"
)

// Config is a complete experiment description.
type Config struct {
	ConfigFilePath string `json:"-"`

	CartPole cartpole.Params `json:"cartpole"`
	Arm      Arm             `json:"arm"`
	SysID    SysID           `json:"sysid"`
	LQR      LQR             `json:"lqr"`
	Rollout  Rollout         `json:"rollout"`
}

// Arm configures the arm balancer. When URDF is set, link lengths, inertias, effort limits
// and the pendulum length are read from it and override the inline values.
type Arm struct {
	armpendulum.Params
	URDF string `json:"urdf,omitempty"`
}

// SysID configures dataset collection and the local linear fit.
type SysID struct {
	Env        string    `json:"env"`
	Samples    int       `json:"samples"`
	PolicySeed uint64    `json:"policy_seed"`
	Center     []float64 `json:"center,omitempty"`
	// Radius selects the neighborhood of Center used for the fit. Empty uses every sample.
	Radius []float64 `json:"radius,omitempty"`
}

// Neighborhood returns the fit neighborhood, or nil when none is configured.
func (s SysID) Neighborhood() *sysid.Neighborhood {
	if len(s.Radius) == 0 {
		return nil
	}
	center := s.Center
	if len(center) == 0 {
		center = make([]float64, len(s.Radius))
	}
	return &sysid.Neighborhood{Center: center, Radius: s.Radius}
}

// LQR configures the regulator design.
type LQR struct {
	Model     string    `json:"model"`
	CartPoleQ []float64 `json:"cartpole_q"`
	CartPoleR float64   `json:"cartpole_r"`
	ArmQ      []float64 `json:"arm_q"`
	ArmR      float64   `json:"arm_r"`
}

// Rollout configures closed loop evaluation.
type Rollout struct {
	Episodes    int `json:"episodes"`
	MaxSteps    int `json:"max_steps"`
	Parallelism int `json:"parallelism"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		CartPole: cartpole.DefaultParams(),
		Arm:      Arm{Params: armpendulum.DefaultParams()},
		SysID: SysID{
			Env:        cartpole.Name,
			Samples:    2000,
			PolicySeed: 5,
			Radius:     []float64{0.5, 1, 0.15, 1.5},
		},
		LQR: LQR{
			Model:     ModelLinearized,
			CartPoleQ: []float64{1, 1, 10, 1},
			CartPoleR: 0.1,
			ArmQ:      []float64{10, 1, 10, 1},
			ArmR:      0.1,
		},
		Rollout: Rollout{
			Episodes:    20,
			MaxSteps:    500,
			Parallelism: 4,
		},
	}
}

// Read reads a configuration file. Files ending in .yaml or .yml are YAML, .json5 files may
// carry comments and trailing commas, anything else is JSON. Environment variables like ${EPISODES} are expanded before decoding. Fields missing
// from the file keep their defaults.
func Read(path string) (*Config, error) {
	buf, err := envsubst.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := FromReader(path, bytes.NewReader(buf))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	return cfg, nil
}

// FromReader decodes a configuration, choosing the format from originalPath's extension.
func FromReader(originalPath string, r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(originalPath)) {
	case ".yaml", ".yml":
		if data, err = yamlToJSON(data); err != nil {
			return nil, err
		}
	case ".json5":
		if data, err = json5ToJSON(data); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	cfg.ConfigFilePath = originalPath
	if cfg.Arm.URDF != "" && !filepath.IsAbs(cfg.Arm.URDF) && originalPath != "" {
		cfg.Arm.URDF = filepath.Join(filepath.Dir(originalPath), cfg.Arm.URDF)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// yamlToJSON re-encodes a YAML document as JSON so both formats share the json field tags.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to decode yaml")
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	if _, ok := doc.(map[string]interface{}); !ok {
		return nil, errors.New("yaml config must be a mapping")
	}
	return json.Marshal(doc)
}

// json5ToJSON strips comments, trailing commas and unquoted keys by round tripping through
// a generic document.
func json5ToJSON(data []byte) ([]byte, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []byte("{}"), nil
	}
	var doc interface{}
	if err := json5.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to decode json5")
	}
	if _, ok := doc.(map[string]interface{}); !ok {
		return nil, errors.New("json5 config must be an object")
	}
	return json.Marshal(doc)
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.CartPole.Validate(); err != nil {
		return errors.Wrap(err, "cartpole")
	}
	if c.Arm.URDF == "" {
		if err := c.Arm.Params.Validate(); err != nil {
			return errors.Wrap(err, "arm")
		}
	}
	if err := c.SysID.validate(); err != nil {
		return errors.Wrap(err, "sysid")
	}
	if err := c.LQR.validate(); err != nil {
		return errors.Wrap(err, "lqr")
	}
	if err := c.Rollout.validate(); err != nil {
		return errors.Wrap(err, "rollout")
	}
	return nil
}

func (s SysID) validate() error {
	switch s.Env {
	case cartpole.Name, armpendulum.Name:
	default:
		return errors.Errorf("unknown env %q, expected %q or %q", s.Env, cartpole.Name, armpendulum.Name)
	}
	if s.Samples <= 0 {
		return errors.Errorf("samples must be positive, got %d", s.Samples)
	}
	if nb := s.Neighborhood(); nb != nil {
		if err := nb.Validate(); err != nil {
			return err
		}
	} else if len(s.Center) != 0 {
		return errors.New("center requires a radius")
	}
	return nil
}

func (l LQR) validate() error {
	switch l.Model {
	case ModelLinearized, ModelFit:
	default:
		return errors.Errorf("unknown model %q, expected %q or %q", l.Model, ModelLinearized, ModelFit)
	}
	if err := validateCost("cartpole", l.CartPoleQ, l.CartPoleR, cartpole.StateDim); err != nil {
		return err
	}
	return validateCost("arm", l.ArmQ, l.ArmR, armpendulum.StateDim)
}

func validateCost(name string, q []float64, r float64, dim int) error {
	if len(q) != dim {
		return errors.Errorf("%s_q must have %d weights, got %d", name, dim, len(q))
	}
	for i, w := range q {
		if w < 0 {
			return errors.Errorf("%s_q weight %d is negative", name, i)
		}
	}
	if r <= 0 {
		return errors.Errorf("%s_r must be positive, got %f", name, r)
	}
	return nil
}

func (r Rollout) validate() error {
	switch {
	case r.Episodes <= 0:
		return errors.Errorf("episodes must be positive, got %d", r.Episodes)
	case r.MaxSteps < 0:
		return errors.Errorf("max_steps cannot be negative, got %d", r.MaxSteps)
	case r.Parallelism <= 0:
		return errors.Errorf("parallelism must be positive, got %d", r.Parallelism)
	}
	return nil
}
