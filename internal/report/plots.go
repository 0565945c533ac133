// Package report renders the derived outputs of a many-model run: NSD and
// R-factor charts as PNG files and the NSD matrix as an interactive HTML
// heat map. Nothing here affects alignment results.
package report

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	validColor    = color.RGBA{R: 0x31, G: 0x68, B: 0x8e, A: 255}
	invalidColor  = color.RGBA{R: 0xb0, G: 0xb0, B: 0xb0, A: 255}
	referenceMark = color.RGBA{R: 0x35, G: 0xb7, B: 0x79, A: 255}
	cutoffColor   = color.RGBA{R: 0xd0, G: 0x30, B: 0x30, A: 255}
)

// SaveNSDChart writes a bar chart of each model's mean NSD to the other
// valid models. The reference model's bar is recoloured, invalid models
// get a zero-height grey bar, and radiusBound only scales the subtitle.
func SaveNSDChart(path string, means []float64, valid []bool, reference int, radiusBound float64) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("NSD per model (reference: model %d, Rmax %.1f)", reference+1, radiusBound)
	p.X.Label.Text = "Model"
	p.Y.Label.Text = "Mean NSD"

	labels := make([]string, len(means))
	for i := range means {
		labels[i] = fmt.Sprintf("%d", i+1)
		if err := addBar(p, i, sanitize(means[i]), barColor(i, valid, reference)); err != nil {
			return err
		}
	}
	p.NominalX(labels...)

	// Reference line at the winning mean NSD, the selection criterion.
	if reference >= 0 && reference < len(means) && !math.IsNaN(means[reference]) {
		if err := addHLine(p, means[reference], float64(len(means)), cutoffColor); err != nil {
			return err
		}
	}

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("report: save NSD chart: %w", err)
	}
	return nil
}

// SaveRFactorChart writes a bar chart of the per-model R factors with the
// selection cutoff drawn as a horizontal line. Models without an R factor
// get a zero bar.
func SaveRFactorChart(path string, rfactors []float64, valid []bool, cutoff float64) error {
	p := plot.New()
	p.Title.Text = "R factor per model"
	p.X.Label.Text = "Model"
	p.Y.Label.Text = "R factor"

	labels := make([]string, len(rfactors))
	for i, rf := range rfactors {
		labels[i] = fmt.Sprintf("%d", i+1)
		c := validColor
		if !valid[i] {
			c = invalidColor
		}
		if err := addBar(p, i, sanitize(rf), c); err != nil {
			return err
		}
	}
	p.NominalX(labels...)

	if !math.IsNaN(cutoff) && cutoff > 0 {
		if err := addHLine(p, cutoff, float64(len(rfactors)), cutoffColor); err != nil {
			return err
		}
	}

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("report: save R factor chart: %w", err)
	}
	return nil
}

// addBar places a single bar at nominal position idx. One chart per bar
// keeps per-bar colours without a stacked-group dance.
func addBar(p *plot.Plot, idx int, value float64, c color.Color) error {
	bar, err := plotter.NewBarChart(plotter.Values{value}, vg.Points(18))
	if err != nil {
		return fmt.Errorf("report: bar %d: %w", idx, err)
	}
	bar.Color = c
	bar.LineStyle.Width = 0
	bar.XMin = float64(idx)
	p.Add(bar)
	return nil
}

func addHLine(p *plot.Plot, y, width float64, c color.Color) error {
	line, err := plotter.NewLine(plotter.XYs{{X: -0.5, Y: y}, {X: width - 0.5, Y: y}})
	if err != nil {
		return fmt.Errorf("report: line: %w", err)
	}
	line.Color = c
	line.Width = vg.Points(1)
	line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	p.Add(line)
	return nil
}

func barColor(i int, valid []bool, reference int) color.Color {
	switch {
	case i == reference:
		return referenceMark
	case !valid[i]:
		return invalidColor
	default:
		return validColor
	}
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
