package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
	goutils "go.viam.com/utils"
)

// SampleAction collects a dataset with a uniformly random policy and stores it.
func SampleAction(c *cli.Context) error {
	r, err := newRunner(c)
	if err != nil {
		return err
	}
	name, err := r.envName()
	if err != nil {
		return err
	}
	env, err := r.newPlant(name, 0)
	if err != nil {
		return err
	}
	n := r.cfg.SysID.Samples
	if c.IsSet(flagSamples) {
		n = c.Int(flagSamples)
	}
	ds, err := r.sample(env, n)
	if err != nil {
		return err
	}

	st, err := r.openStore()
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(st.Close)
	id, err := st.SaveDataset(c.Context, ds)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "saved dataset %s: %d %s transitions in %d episodes", id, ds.Len(), name, len(ds.Episodes()))
	return nil
}

// FitAction fits a local linear model and prints its coefficients.
func FitAction(c *cli.Context) error {
	r, err := newRunner(c)
	if err != nil {
		return err
	}
	name, err := r.envName()
	if err != nil {
		return err
	}
	env, err := r.newPlant(name, 0)
	if err != nil {
		return err
	}
	model, ds, err := r.fit(name, env)
	if err != nil {
		return err
	}

	labels := labelsOf(name)
	t := newTable()
	t.SetTitle(fmt.Sprintf("%s model fit on %d samples", name, model.Samples))
	header := table.Row{"next"}
	for _, l := range labels {
		header = append(header, l)
	}
	t.AppendHeader(append(header, "u", "intercept", "r2"))
	for i, o := range model.Outputs {
		row := table.Row{labels[o]}
		for _, v := range model.Coefficients[i] {
			row = append(row, fmt.Sprintf("%.6g", v))
		}
		t.AppendRow(append(row, fmt.Sprintf("%.3g", model.Intercepts[i]), fmt.Sprintf("%.4f", model.RSquared[i])))
	}
	printf(c.App.Writer, "%s", t.Render())
	if ds.ID != "" {
		printf(c.App.Writer, "dataset: %s", ds.ID)
	}

	linear, err := env.Linearize()
	if err != nil {
		return err
	}
	fitted, err := model.System(linear.Dt)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "max deviation from the linearized model: A %.4g, B %.4g",
		maxAbsDeviation(fitted.A, linear.A), maxAbsDeviation(fitted.B, linear.B))
	return nil
}
