package control

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/balance/logging"
)

type pidAttrs struct {
	Kp      float64  `json:"kP"`
	Ki      float64  `json:"kI"`
	Kd      float64  `json:"kD"`
	LimitLo *float64 `json:"limit_lo"`
	LimitUp *float64 `json:"limit_up"`
}

// basicPID is the standard implementation of a PID controller. With kI set to 0 it
// is a PD controller.
type basicPID struct {
	mu      sync.Mutex
	cfg     BlockConfig
	error   float64
	kI      float64
	kD      float64
	kP      float64
	int     float64
	limitLo float64
	limitUp float64
	primed  bool
	y       []*Signal
	logger  logging.Logger
}

func newPID(config BlockConfig, logger logging.Logger) (Block, error) {
	p := &basicPID{cfg: config, logger: logger}
	if err := p.reset(); err != nil {
		return nil, err
	}
	return p, nil
}

// Next computes one PID step on the error carried by its single input. The integral
// stops accumulating while the output is saturated in the direction of the error.
func (p *basicPID) Next(ctx context.Context, x []*Signal, dt time.Duration) ([]*Signal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dtS := dt.Seconds()
	if len(x) != 1 || dtS <= 0 {
		return p.y, false
	}
	e := x[0].GetSignalValueAt(0)
	deriv := 0.0
	if p.primed {
		deriv = (e - p.error) / dtS
	}
	integral := p.int + p.kI*e*dtS
	output := p.kP*e + integral + p.kD*deriv
	switch {
	case output > p.limitUp:
		output = p.limitUp
		if e < 0 {
			p.int = integral
		}
	case output < p.limitLo:
		output = p.limitLo
		if e > 0 {
			p.int = integral
		}
	default:
		p.int = integral
	}
	p.error = e
	p.primed = true
	p.y[0].SetSignalValueAt(0, output)
	return p.y, true
}

func (p *basicPID) reset() error {
	p.int = 0
	p.error = 0
	p.primed = false

	if !p.cfg.Attribute.Has("kI") &&
		!p.cfg.Attribute.Has("kD") &&
		!p.cfg.Attribute.Has("kP") {
		return errors.Errorf("pid block %s should have at least one kI, kP or kD field", p.cfg.Name)
	}
	if len(p.cfg.DependsOn) != 1 {
		return errors.Errorf("pid block %s should have 1 input got %d", p.cfg.Name, len(p.cfg.DependsOn))
	}
	attrs, err := decodeAttributes[pidAttrs](p.cfg)
	if err != nil {
		return err
	}
	p.kI = attrs.Ki
	p.kD = attrs.Kd
	p.kP = attrs.Kp
	p.limitLo = math.Inf(-1)
	p.limitUp = math.Inf(1)
	if attrs.LimitLo != nil {
		p.limitLo = *attrs.LimitLo
	}
	if attrs.LimitUp != nil {
		p.limitUp = *attrs.LimitUp
	}
	if p.limitLo >= p.limitUp {
		return errors.Errorf("pid block %s limit_lo %f must be below limit_up %f", p.cfg.Name, p.limitLo, p.limitUp)
	}
	p.y = make([]*Signal, 1)
	p.y[0] = makeSignal(p.cfg.Name, p.cfg.Type, 1)
	return nil
}

func (p *basicPID) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reset()
}

func (p *basicPID) UpdateConfig(ctx context.Context, config BlockConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = config
	return p.reset()
}

func (p *basicPID) Output(ctx context.Context) []*Signal {
	return p.y
}

func (p *basicPID) Config(ctx context.Context) BlockConfig {
	return p.cfg
}
