package cli

import (
	"fmt"
	"math"

	"github.com/jedib0t/go-pretty/v6/table"
	"gonum.org/v1/gonum/mat"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	return t
}

// matrixTable renders m with one row per state component.
func matrixTable(title string, m mat.Matrix, rowLabels, colLabels []string) string {
	t := newTable()
	t.SetTitle(title)
	header := table.Row{""}
	for _, l := range colLabels {
		header = append(header, l)
	}
	t.AppendHeader(header)
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		row := table.Row{rowLabels[i]}
		for j := 0; j < c; j++ {
			row = append(row, fmt.Sprintf("%.6g", m.At(i, j)))
		}
		t.AppendRow(row)
	}
	return t.Render()
}

// maxAbsDeviation returns the largest elementwise difference between x and y.
func maxAbsDeviation(x, y mat.Matrix) float64 {
	r, c := x.Dims()
	var out float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out = math.Max(out, math.Abs(x.At(i, j)-y.At(i, j)))
		}
	}
	return out
}
