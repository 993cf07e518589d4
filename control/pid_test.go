package control

import (
	"context"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/balance/logging"
	"go.viam.com/balance/utils"
)

func TestPIDConfig(t *testing.T) {
	logger := logging.NewTestLogger(t)
	for _, c := range []struct {
		conf BlockConfig
		err  string
	}{
		{
			BlockConfig{
				Name:      "PID1",
				Type:      BlockPID,
				Attribute: utils.AttributeMap{"kP": 500.0, "kD": 10.0},
				DependsOn: []string{"A"},
			},
			"",
		},
		{
			BlockConfig{
				Name:      "PID1",
				Type:      BlockPID,
				Attribute: utils.AttributeMap{"Kp": 500.0},
				DependsOn: []string{"A"},
			},
			"pid block PID1 should have at least one kI, kP or kD field",
		},
		{
			BlockConfig{
				Name:      "PID1",
				Type:      BlockPID,
				Attribute: utils.AttributeMap{"kP": 500.0},
				DependsOn: []string{"A", "B"},
			},
			"pid block PID1 should have 1 input got 2",
		},
		{
			BlockConfig{
				Name:      "PID1",
				Type:      BlockPID,
				Attribute: utils.AttributeMap{"kP": 500.0, "limit_lo": 1.0, "limit_up": -1.0},
				DependsOn: []string{"A"},
			},
			"pid block PID1 limit_lo 1.000000 must be below limit_up -1.000000",
		},
	} {
		b, err := newPID(c.conf, logger)
		if c.err == "" {
			test.That(t, err, test.ShouldBeNil)
			test.That(t, len(b.(*basicPID).y), test.ShouldEqual, 1)
		} else {
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldResemble, c.err)
		}
	}
}

func TestPDNext(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	cfg := BlockConfig{
		Name:      "PD",
		Type:      BlockPID,
		Attribute: utils.AttributeMap{"kP": 2.0, "kD": 0.5},
		DependsOn: []string{"err"},
	}
	b, err := newPID(cfg, logger)
	test.That(t, err, test.ShouldBeNil)

	out, ok := b.Next(ctx, []*Signal{signalOf("err", 1.0)}, 10*time.Millisecond)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, out[0].GetSignalValueAt(0), test.ShouldAlmostEqual, 2.0)

	out, ok = b.Next(ctx, []*Signal{signalOf("err", 0.5)}, 10*time.Millisecond)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, out[0].GetSignalValueAt(0), test.ShouldAlmostEqual, -24.0)

	cfg.Attribute["limit_lo"] = -10.0
	test.That(t, b.UpdateConfig(ctx, cfg), test.ShouldBeNil)
	b.Next(ctx, []*Signal{signalOf("err", 1.0)}, 10*time.Millisecond)
	out, _ = b.Next(ctx, []*Signal{signalOf("err", 0.5)}, 10*time.Millisecond)
	test.That(t, out[0].GetSignalValueAt(0), test.ShouldAlmostEqual, -10.0)

	_, ok = b.Next(ctx, []*Signal{signalOf("err", 0.5)}, 0)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestPIDAntiWindup(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	b, err := newPID(BlockConfig{
		Name:      "PI",
		Type:      BlockPID,
		Attribute: utils.AttributeMap{"kI": 1.0, "limit_up": 0.25},
		DependsOn: []string{"err"},
	}, logger)
	test.That(t, err, test.ShouldBeNil)

	var out []*Signal
	for i := 0; i < 3; i++ {
		out, _ = b.Next(ctx, []*Signal{signalOf("err", 1.0)}, 100*time.Millisecond)
	}
	test.That(t, out[0].GetSignalValueAt(0), test.ShouldAlmostEqual, 0.25)
	test.That(t, b.(*basicPID).int, test.ShouldAlmostEqual, 0.2)

	out, _ = b.Next(ctx, []*Signal{signalOf("err", -1.0)}, 100*time.Millisecond)
	test.That(t, out[0].GetSignalValueAt(0), test.ShouldAlmostEqual, 0.1)

	test.That(t, b.Reset(ctx), test.ShouldBeNil)
	test.That(t, b.(*basicPID).int, test.ShouldEqual, 0.0)
}
