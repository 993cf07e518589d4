// Package plot renders rollout trajectories as PNG images and interactive HTML charts.
package plot

import (
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"go.viam.com/balance/rollout"
)

const (
	panelWidth  = 8 * vg.Inch
	panelHeight = 2 * vg.Inch
)

func checkTrace(trace *rollout.Trace, labels []string, dt float64) error {
	if trace == nil || len(trace.States) == 0 {
		return errors.New("trace has no states")
	}
	if dt <= 0 {
		return errors.Errorf("time step must be positive, got %f", dt)
	}
	if len(labels) != len(trace.States[0]) {
		return errors.Errorf("got %d labels for a state of dimension %d", len(labels), len(trace.States[0]))
	}
	return nil
}

func component(trace *rollout.Trace, i int, dt float64) plotter.XYs {
	pts := make(plotter.XYs, len(trace.States))
	for k, s := range trace.States {
		pts[k].X = float64(k) * dt
		pts[k].Y = s[i]
	}
	return pts
}

// Trajectory writes a PNG to path with one panel per state component plotted against time.
func Trajectory(trace *rollout.Trace, labels []string, dt float64, path string) (err error) {
	if err := checkTrace(trace, labels, dt); err != nil {
		return err
	}
	plots := make([][]*gplot.Plot, len(labels))
	for i, label := range labels {
		p := gplot.New()
		p.Y.Label.Text = label
		if i == len(labels)-1 {
			p.X.Label.Text = "time (s)"
		}
		p.Add(plotter.NewGrid())
		line, err := plotter.NewLine(component(trace, i, dt))
		if err != nil {
			return errors.Wrapf(err, "failed to plot %s", label)
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = plotutil.Color(i)
		p.Add(line)
		plots[i] = []*gplot.Plot{p}
	}
	plots[0][0].Title.Text = fmt.Sprintf("%d steps", trace.Steps)

	img := vgimg.New(panelWidth, panelHeight*vg.Length(len(labels)))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      len(labels),
		Cols:      1,
		PadTop:    vg.Points(4),
		PadBottom: vg.Points(4),
		PadLeft:   vg.Points(4),
		PadRight:  vg.Points(8),
		PadY:      vg.Points(6),
	}
	canvases := gplot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// TrajectoryHTML writes an interactive line chart of the trajectory, one series per state
// component, to w.
func TrajectoryHTML(trace *rollout.Trace, labels []string, dt float64, w io.Writer) error {
	if err := checkTrace(trace, labels, dt); err != nil {
		return err
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%d steps", trace.Steps)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time (s)"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)

	times := make([]string, len(trace.States))
	for k := range trace.States {
		times[k] = fmt.Sprintf("%.3f", float64(k)*dt)
	}
	line.SetXAxis(times)
	for i, label := range labels {
		items := make([]opts.LineData, 0, len(trace.States))
		for _, s := range trace.States {
			items = append(items, opts.LineData{Value: s[i]})
		}
		line.AddSeries(label, items, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}

	page := components.NewPage().SetPageTitle("trajectory")
	page.AddCharts(line)
	return page.Render(w)
}
