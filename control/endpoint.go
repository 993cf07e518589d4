package control

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/balance/logging"
)

// Controllable is the plant a Loop drives through its endpoint block.
type Controllable interface {
	// State returns the current measured state of the plant.
	State(ctx context.Context) ([]float64, error)
	// SetActuation applies the control input until the next call.
	SetActuation(ctx context.Context, u []float64) error
}

// Advancer is implemented by simulated plants that need the loop to move time forward.
type Advancer interface {
	Advance(ctx context.Context, dt time.Duration) error
}

// endpoint is both the source and the sink of a loop: called without inputs it samples
// the plant state, called with inputs it applies them as actuation.
type endpoint struct {
	mu     sync.Mutex
	cfg    BlockConfig
	ctr    Controllable
	y      []*Signal
	err    error
	logger logging.Logger
}

func newEndpoint(config BlockConfig, logger logging.Logger, ctr Controllable) (Block, error) {
	e := &endpoint{cfg: config, logger: logger, ctr: ctr}
	if err := e.reset(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *endpoint) Next(ctx context.Context, x []*Signal, dt time.Duration) ([]*Signal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctr == nil {
		e.err = errors.Errorf("endpoint %s has no controllable attached", e.cfg.Name)
		return e.y, false
	}
	if len(x) == 0 {
		state, err := e.ctr.State(ctx)
		if err != nil {
			e.err = errors.Wrapf(err, "endpoint %s failed to read state", e.cfg.Name)
			return e.y, false
		}
		e.y[0].SetValues(state)
		return e.y, true
	}
	var u []float64
	for _, s := range x {
		u = append(u, s.Values()...)
	}
	if err := e.ctr.SetActuation(ctx, u); err != nil {
		e.err = errors.Wrapf(err, "endpoint %s failed to actuate", e.cfg.Name)
		return e.y, false
	}
	return e.y, true
}

// lastError returns and clears the most recent plant error.
func (e *endpoint) lastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.err
	e.err = nil
	return err
}

func (e *endpoint) reset() error {
	e.err = nil
	e.y = make([]*Signal, 1)
	e.y[0] = makeSignal(e.cfg.Name, e.cfg.Type, 0)
	return nil
}

func (e *endpoint) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reset()
}

func (e *endpoint) UpdateConfig(ctx context.Context, config BlockConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = config
	return e.reset()
}

func (e *endpoint) Output(ctx context.Context) []*Signal {
	return e.y
}

func (e *endpoint) Config(ctx context.Context) BlockConfig {
	return e.cfg
}
