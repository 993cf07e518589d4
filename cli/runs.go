package cli

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
	goutils "go.viam.com/utils"

	"go.viam.com/balance/rollout"
)

// RunsAction lists recorded runs, newest first.
func RunsAction(c *cli.Context) error {
	r, err := newRunner(c)
	if err != nil {
		return err
	}
	st, err := r.openStore()
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(st.Close)
	runs, err := st.ListRuns(c.Context, c.String(flagEnv))
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		printf(c.App.Writer, "no runs recorded")
		return nil
	}
	t := newTable()
	t.AppendHeader(table.Row{"ID", "Created", "Env", "Policy", "Episodes", "Terminated", "Mean length", "Mean return"})
	for _, run := range runs {
		t.AppendRow(table.Row{
			run.ID,
			run.CreatedAt.Local().Format(time.DateTime),
			run.Env,
			run.Policy,
			run.Summary.Episodes,
			run.Summary.Terminated,
			fmt.Sprintf("%.1f", run.Summary.MeanLength),
			fmt.Sprintf("%.1f", run.Summary.MeanReturn),
		})
	}
	printf(c.App.Writer, "%s", t.Render())
	return nil
}

func summaryTable(title string, s rollout.Summary) string {
	t := newTable()
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Episodes", "Terminated", "Mean length", "Std dev", "Median", "Min", "Max", "Mean return"})
	t.AppendRow(table.Row{
		s.Episodes,
		s.Terminated,
		fmt.Sprintf("%.1f", s.MeanLength),
		fmt.Sprintf("%.1f", s.StdDevLength),
		fmt.Sprintf("%.1f", s.MedianLength),
		fmt.Sprintf("%.0f", s.MinLength),
		fmt.Sprintf("%.0f", s.MaxLength),
		fmt.Sprintf("%.1f", s.MeanReturn),
	})
	return t.Render()
}
