package report

import (
	"fmt"
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/mat"
)

// viridis is the palette shared by the HTML reports.
var viridis = []string{
	"#440154", "#482777", "#3e4989", "#31688e", "#26828e",
	"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
}

// SaveNSDHeatmap renders the symmetric NSD matrix as a standalone HTML
// heat map, one cell per model pair.
func SaveNSDHeatmap(path string, labels []string, nsdMatrix *mat.SymDense) error {
	n, _ := nsdMatrix.Dims()
	if n != len(labels) {
		return fmt.Errorf("report: %d labels for %dx%d matrix", len(labels), n, n)
	}

	maxNSD := 0.0
	data := make([]opts.HeatMapData, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := nsdMatrix.At(i, j)
			if v > maxNSD {
				maxNSD = v
			}
			data = append(data, opts.HeatMapData{Value: [3]interface{}{i, j, v}})
		}
	}
	if maxNSD == 0 {
		maxNSD = 1
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "NSD matrix", Width: "900px", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{Title: "NSD matrix", Subtitle: fmt.Sprintf("%d models", n)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: labels, SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: labels, SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Min:        0,
			// Rounded up so the float32 cap never lands below the true
			// matrix maximum.
			Max:     float32(math.Ceil(maxNSD*100) / 100),
			InRange: &opts.VisualMapInRange{Color: viridis},
		}),
	)
	hm.AddSeries("nsd", data)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	if err := hm.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("report: render heat map: %w", err)
	}
	return f.Close()
}
