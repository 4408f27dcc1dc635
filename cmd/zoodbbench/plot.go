package main

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// plotLatencies renders one bar per (structure, config) pair for a single
// operation into a PNG, following gonum/plot's standard bar-chart recipe
// (plotter.NewBarChart over a plotter.Values).
func plotLatencies(path, title string, results []benchResult, operation string) error {
	var labels []string
	var values plotter.Values
	for _, r := range results {
		if r.Operation != operation {
			continue
		}
		labels = append(labels, r.Name+"/"+r.Config)
		values = append(values, float64(r.LatencyNs))
	}
	if len(values) == 0 {
		return fmt.Errorf("zoodbbench: no results for operation %q", operation)
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "ns/op"

	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return fmt.Errorf("zoodbbench: bar chart: %w", err)
	}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(labels...)

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
