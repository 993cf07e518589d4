package plot

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/balance/environment"
	"go.viam.com/balance/rollout"
)

var labels = []string{"cart_position", "pole_angle"}

func testTrace() *rollout.Trace {
	trace := &rollout.Trace{}
	for k := 0; k <= 50; k++ {
		trace.States = append(trace.States, environment.State{0.01 * float64(k), 0.1 / float64(k+1)})
	}
	trace.Steps = 50
	return trace
}

func TestTrajectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trajectory.png")
	test.That(t, Trajectory(testTrace(), labels, 0.02, path), test.ShouldBeNil)

	f, err := os.Open(path)
	test.That(t, err, test.ShouldBeNil)
	defer f.Close()
	img, err := png.Decode(f)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Dx(), test.ShouldBeGreaterThan, 0)
	test.That(t, img.Bounds().Dy(), test.ShouldBeGreaterThan, img.Bounds().Dx()/4)
}

func TestTrajectoryHTML(t *testing.T) {
	var buf bytes.Buffer
	test.That(t, TrajectoryHTML(testTrace(), labels, 0.02, &buf), test.ShouldBeNil)
	out := buf.String()
	test.That(t, out, test.ShouldContainSubstring, "echarts")
	test.That(t, out, test.ShouldContainSubstring, "cart_position")
	test.That(t, out, test.ShouldContainSubstring, "pole_angle")
	test.That(t, out, test.ShouldContainSubstring, "50 steps")
}

func TestTrajectoryErrors(t *testing.T) {
	var buf bytes.Buffer
	err := TrajectoryHTML(&rollout.Trace{}, labels, 0.02, &buf)
	test.That(t, err, test.ShouldBeError, "trace has no states")

	err = TrajectoryHTML(testTrace(), labels[:1], 0.02, &buf)
	test.That(t, err, test.ShouldBeError, "got 1 labels for a state of dimension 2")

	err = Trajectory(testTrace(), labels, 0, filepath.Join(t.TempDir(), "x.png"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "time step must be positive")
}
