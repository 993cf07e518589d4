package control

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/balance/logging"
)

// Config describes a control loop: its blocks and the frequency they are evaluated at.
type Config struct {
	Blocks    []BlockConfig `json:"blocks"`
	Frequency float64       `json:"frequency"`
}

// Loop holds the loop config.
type Loop struct {
	stepMu   sync.Mutex
	mu       sync.Mutex
	cfg      Config
	blocks   map[string]Block
	order    []string
	endpoint *endpoint
	ctr      Controllable
	logger   logging.Logger
	clk      clock.Clock
	dt       time.Duration
	ticks    int
	err      error

	activeBackgroundWorkers sync.WaitGroup
	cancel                  context.CancelFunc
	running                 bool
}

// NewLoop construct a new control loop for a specific endpoint.
func NewLoop(logger logging.Logger, cfg Config, m Controllable) (*Loop, error) {
	return NewLoopWithClock(logger, cfg, m, clock.New())
}

// NewLoopWithClock is NewLoop with an explicit clock driving Start.
func NewLoopWithClock(logger logging.Logger, cfg Config, m Controllable, clk clock.Clock) (*Loop, error) {
	if m == nil {
		return nil, errors.New("a control loop needs a controllable")
	}
	l := &Loop{
		logger: logger,
		cfg:    cfg,
		blocks: make(map[string]Block),
		ctr:    m,
		clk:    clk,
	}
	if l.cfg.Frequency <= 0.0 || l.cfg.Frequency > 200 {
		return nil, errors.New("loop frequency shouldn't be 0 or above 200Hz")
	}
	l.dt = time.Duration(float64(time.Second) * (1.0 / (l.cfg.Frequency)))
	for _, bcfg := range cfg.Blocks {
		if _, ok := l.blocks[bcfg.Name]; ok {
			return nil, errors.Errorf("duplicate block name %s", bcfg.Name)
		}
		var blk Block
		var err error
		if bcfg.Type == BlockEndpoint {
			if l.endpoint != nil {
				return nil, errors.Errorf("loop has more than one endpoint (%s)", bcfg.Name)
			}
			blk, err = newEndpoint(bcfg, logger, m)
			if err == nil {
				l.endpoint = blk.(*endpoint)
			}
		} else {
			blk, err = createBlock(bcfg, logger)
		}
		if err != nil {
			return nil, err
		}
		l.blocks[bcfg.Name] = blk
	}
	if l.endpoint == nil {
		return nil, errors.New("loop needs exactly one endpoint block")
	}
	if err := l.sortBlocks(context.Background()); err != nil {
		return nil, err
	}
	return l, nil
}

// sortBlocks orders the non endpoint blocks so that every block runs after its
// dependencies. The endpoint is the source of every tick so edges leaving it are ignored.
func (l *Loop) sortBlocks(ctx context.Context) error {
	indegree := make(map[string]int)
	children := make(map[string][]string)
	var names []string
	for _, bcfg := range l.cfg.Blocks {
		name := bcfg.Name
		cfg := l.blocks[name].Config(ctx)
		for _, dep := range cfg.DependsOn {
			if _, ok := l.blocks[dep]; !ok {
				return errors.Errorf("block %s depends on %s but it does not exist", name, dep)
			}
		}
		if cfg.Type == BlockEndpoint {
			continue
		}
		names = append(names, name)
		for _, dep := range cfg.DependsOn {
			if l.blocks[dep].Config(ctx).Type == BlockEndpoint {
				continue
			}
			indegree[name]++
			children[dep] = append(children[dep], name)
		}
	}
	var queue, order []string
	for _, name := range names {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)
		for _, child := range children[name] {
			indegree[child]--
			if indegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}
	if len(order) != len(names) {
		return errors.New("control loop has a dependency cycle")
	}
	l.order = order
	return nil
}

func (l *Loop) inputsOf(ctx context.Context, blk Block) []*Signal {
	var in []*Signal
	for _, dep := range blk.Config(ctx).DependsOn {
		in = append(in, l.blocks[dep].Output(ctx)...)
	}
	return in
}

// Step runs a single tick: sample the plant, evaluate every block in dependency order,
// actuate and, for simulated plants, advance time by one period.
func (l *Loop) Step(ctx context.Context) error {
	l.stepMu.Lock()
	defer l.stepMu.Unlock()
	if _, ok := l.endpoint.Next(ctx, nil, l.dt); !ok {
		return l.endpoint.lastError()
	}
	for _, name := range l.order {
		blk := l.blocks[name]
		if _, ok := blk.Next(ctx, l.inputsOf(ctx, blk), l.dt); !ok {
			l.logger.CDebugw(ctx, "block did not produce an output", "block", name)
		}
	}
	if len(l.endpoint.Config(ctx).DependsOn) > 0 {
		if _, ok := l.endpoint.Next(ctx, l.inputsOf(ctx, l.endpoint), l.dt); !ok {
			return l.endpoint.lastError()
		}
	}
	if adv, ok := l.ctr.(Advancer); ok {
		if err := adv.Advance(ctx, l.dt); err != nil {
			return err
		}
	}
	l.mu.Lock()
	l.ticks++
	l.mu.Unlock()
	return nil
}

// OutputAt returns the Signal at the block name, error when the block doesn't exist.
func (l *Loop) OutputAt(ctx context.Context, name string) ([]*Signal, error) {
	blk, ok := l.blocks[name]
	if !ok {
		return []*Signal{}, errors.Errorf("cannot return Signals for non existing block %s", name)
	}
	return blk.Output(ctx), nil
}

// ConfigAt returns the Config at the block name, error when the block doesn't exist.
func (l *Loop) ConfigAt(ctx context.Context, name string) (BlockConfig, error) {
	blk, ok := l.blocks[name]
	if !ok {
		return BlockConfig{}, errors.Errorf("cannot return Config for non existing block %s", name)
	}
	return blk.Config(ctx), nil
}

// SetConfigAt updates the config of the named block, error when the block doesn't exist.
func (l *Loop) SetConfigAt(ctx context.Context, name string, config BlockConfig) error {
	l.stepMu.Lock()
	defer l.stepMu.Unlock()
	blk, ok := l.blocks[name]
	if !ok {
		return errors.Errorf("cannot update Config for non existing block %s", name)
	}
	if config.Name != name {
		return errors.Errorf("cannot rename block %s to %s", name, config.Name)
	}
	if (config.Type == BlockEndpoint) != (blk.Config(ctx).Type == BlockEndpoint) {
		return errors.Errorf("cannot change the endpoint status of block %s", name)
	}
	old := blk.Config(ctx)
	if err := blk.UpdateConfig(ctx, config); err != nil {
		return err
	}
	if err := l.sortBlocks(ctx); err != nil {
		if rerr := blk.UpdateConfig(ctx, old); rerr != nil {
			l.logger.Errorw("failed to restore block config", "block", name, "error", rerr)
		}
		return err
	}
	return nil
}

// BlockList returns the list of blocks in a control loop error when the list is empty.
func (l *Loop) BlockList(ctx context.Context) ([]string, error) {
	var out []string
	for _, bcfg := range l.cfg.Blocks {
		out = append(out, bcfg.Name)
	}
	if len(out) == 0 {
		return nil, errors.New("control loop has no blocks")
	}
	return out, nil
}

// Frequency returns the loop's frequency.
func (l *Loop) Frequency(ctx context.Context) (float64, error) {
	return l.cfg.Frequency, nil
}

// Ticks returns the number of completed steps.
func (l *Loop) Ticks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticks
}

// Err returns the error that stopped a background loop, if any.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Running reports whether Start was called without a matching Stop.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Start steps the loop in the background once per period of the loop clock. The
// background worker exits on the first Step error, which Err and Stop report.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return errors.New("control loop is already running")
	}
	l.logger.Infof("Running loop on %1.4f %+v", l.cfg.Frequency, l.dt)
	cancelCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.err = nil
	ticker := l.clk.Ticker(l.dt)
	l.running = true
	l.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(func() {
		defer ticker.Stop()
		for {
			select {
			case <-cancelCtx.Done():
				return
			case <-ticker.C:
			}
			if err := l.Step(cancelCtx); err != nil {
				if cancelCtx.Err() != nil {
					return
				}
				l.logger.Debugw("control loop stopped", "error", err)
				l.mu.Lock()
				l.err = err
				l.mu.Unlock()
				return
			}
		}
	}, l.activeBackgroundWorkers.Done)
	return nil
}

// Stop stops the loop and returns the error that ended it early, if any.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if !l.running {
		err := l.err
		l.mu.Unlock()
		return err
	}
	l.logger.Debug("closing loop")
	l.cancel()
	l.running = false
	l.mu.Unlock()
	l.activeBackgroundWorkers.Wait()
	return l.Err()
}

// GetConfig return the control loop config.
func (l *Loop) GetConfig(ctx context.Context) Config {
	return l.cfg
}
