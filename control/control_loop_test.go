package control

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/balance/logging"
	"go.viam.com/balance/utils"
)

// integrator is x' = u.
type integrator struct {
	mu      sync.Mutex
	x       float64
	u       float64
	failAt  int
	samples int
}

func (p *integrator) State(ctx context.Context) ([]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples++
	if p.failAt > 0 && p.samples >= p.failAt {
		return nil, errors.New("sensor unplugged")
	}
	return []float64{p.x}, nil
}

func (p *integrator) SetActuation(ctx context.Context, u []float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.u = u[0]
	return nil
}

func (p *integrator) Advance(ctx context.Context, dt time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.x += p.u * dt.Seconds()
	return nil
}

func (p *integrator) position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.x
}

func feedbackLoopConfig(k float64) Config {
	return Config{
		Blocks: []BlockConfig{
			{
				Name:      "plant",
				Type:      BlockEndpoint,
				DependsOn: []string{"sat"},
			},
			{
				Name:      "sat",
				Type:      BlockSaturation,
				Attribute: utils.AttributeMap{"lower": -100.0, "upper": 100.0},
				DependsOn: []string{"K"},
			},
			{
				Name:      "K",
				Type:      BlockStateFeedback,
				Attribute: utils.AttributeMap{"gain": [][]float64{{k}}},
				DependsOn: []string{"plant"},
			},
		},
		Frequency: 100,
	}
}

func TestLoopConfig(t *testing.T) {
	logger := logging.NewTestLogger(t)
	plant := &integrator{}

	_, err := NewLoop(logger, Config{Blocks: feedbackLoopConfig(1).Blocks, Frequency: 0}, plant)
	test.That(t, err, test.ShouldBeError, errors.New("loop frequency shouldn't be 0 or above 200Hz"))

	_, err = NewLoop(logger, Config{Blocks: feedbackLoopConfig(1).Blocks[:1], Frequency: 100}, plant)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "depends on sat but it does not exist")

	cyclic := Config{
		Blocks: []BlockConfig{
			{Name: "plant", Type: BlockEndpoint, DependsOn: []string{"a"}},
			{Name: "a", Type: BlockGain, Attribute: utils.AttributeMap{"gain": 1.0}, DependsOn: []string{"b"}},
			{Name: "b", Type: BlockGain, Attribute: utils.AttributeMap{"gain": 1.0}, DependsOn: []string{"a"}},
		},
		Frequency: 50,
	}
	_, err = NewLoop(logger, cyclic, plant)
	test.That(t, err, test.ShouldBeError, errors.New("control loop has a dependency cycle"))

	noEndpoint := Config{
		Blocks:    []BlockConfig{{Name: "c", Type: BlockConstant, Attribute: utils.AttributeMap{"constant_val": 1.0}}},
		Frequency: 50,
	}
	_, err = NewLoop(logger, noEndpoint, plant)
	test.That(t, err, test.ShouldBeError, errors.New("loop needs exactly one endpoint block"))

	_, err = NewBlock(BlockConfig{Name: "plant", Type: BlockEndpoint}, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLoopStep(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	plant := &integrator{x: 1}
	loop, err := NewLoop(logger, feedbackLoopConfig(2), plant)
	test.That(t, err, test.ShouldBeNil)

	names, err := loop.BlockList(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, names, test.ShouldResemble, []string{"plant", "sat", "K"})
	freq, err := loop.Frequency(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, freq, test.ShouldEqual, 100.0)

	expected := 1.0
	for i := 0; i < 50; i++ {
		test.That(t, loop.Step(ctx), test.ShouldBeNil)
		expected *= 1 - 2*0.01
	}
	test.That(t, plant.position(), test.ShouldAlmostEqual, expected, 1e-12)
	test.That(t, loop.Ticks(), test.ShouldEqual, 50)

	out, err := loop.OutputAt(ctx, "K")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out[0].GetSignalValueAt(0), test.ShouldBeLessThan, 0)
	_, err = loop.OutputAt(ctx, "nope")
	test.That(t, err, test.ShouldNotBeNil)

	cfg, err := loop.ConfigAt(ctx, "K")
	test.That(t, err, test.ShouldBeNil)
	cfg.Attribute = utils.AttributeMap{"gain": [][]float64{{0}}}
	test.That(t, loop.SetConfigAt(ctx, "K", cfg), test.ShouldBeNil)
	before := plant.position()
	test.That(t, loop.Step(ctx), test.ShouldBeNil)
	test.That(t, plant.position(), test.ShouldEqual, before)

	cfg.DependsOn = []string{"sat"}
	err = loop.SetConfigAt(ctx, "K", cfg)
	test.That(t, err, test.ShouldBeError, errors.New("control loop has a dependency cycle"))
	cfg, err = loop.ConfigAt(ctx, "K")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.DependsOn, test.ShouldResemble, []string{"plant"})
}

func TestLoopStartStop(t *testing.T) {
	logger := logging.NewTestLogger(t)
	plant := &integrator{x: 1}
	clk := clock.NewMock()
	loop, err := NewLoopWithClock(logger, feedbackLoopConfig(2), plant, clk)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, loop.Start(), test.ShouldBeNil)
	test.That(t, loop.Start(), test.ShouldNotBeNil)
	test.That(t, loop.Running(), test.ShouldBeTrue)
	for i := 1; i <= 5; i++ {
		clk.Add(10 * time.Millisecond)
		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			test.That(tb, loop.Ticks(), test.ShouldEqual, i)
		})
	}
	test.That(t, loop.Stop(), test.ShouldBeNil)
	test.That(t, loop.Running(), test.ShouldBeFalse)
	test.That(t, plant.position(), test.ShouldAlmostEqual, 0.98*0.98*0.98*0.98*0.98, 1e-12)
}

func TestLoopStopsOnPlantError(t *testing.T) {
	logger := logging.NewTestLogger(t)
	plant := &integrator{x: 1, failAt: 3}
	clk := clock.NewMock()
	loop, err := NewLoopWithClock(logger, feedbackLoopConfig(2), plant, clk)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, loop.Start(), test.ShouldBeNil)
	for i := 1; i <= 2; i++ {
		clk.Add(10 * time.Millisecond)
		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			test.That(tb, loop.Ticks(), test.ShouldEqual, i)
		})
	}
	clk.Add(10 * time.Millisecond)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, loop.Err(), test.ShouldNotBeNil)
	})
	err = loop.Stop()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "sensor unplugged")
	test.That(t, loop.Ticks(), test.ShouldEqual, 2)
}
