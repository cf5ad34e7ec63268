package export

import (
	"fmt"
	"os"

	chart "github.com/wcharczuk/go-chart/v2"

	"book-features/internal/validation"
)

// WriteScoresPNG renders the in-sample and out-of-sample score of every fold
// of each evaluation as a line chart.
func WriteScoresPNG(path string, evals []validation.Evaluation) error {
	if len(evals) == 0 {
		return fmt.Errorf("no evaluations to chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	var series []chart.Series
	for _, e := range evals {
		if len(e.Result.Folds) == 0 {
			continue
		}
		x := make([]float64, len(e.Result.Folds))
		in := make([]float64, len(e.Result.Folds))
		out := make([]float64, len(e.Result.Folds))
		for i, f := range e.Result.Folds {
			x[i] = float64(i + 1)
			in[i] = f.InSample
			out[i] = f.OutSample
		}
		label := fmt.Sprintf("%s %s", e.Target, e.Kind)
		series = append(series,
			chart.ContinuousSeries{
				Name:    label + " in-sample",
				XValues: x,
				YValues: in,
				Style:   chart.Style{StrokeDashArray: []float64{5, 5}},
			},
			chart.ContinuousSeries{
				Name:    label + " out-of-sample",
				XValues: x,
				YValues: out,
			},
		)
	}
	if len(series) == 0 {
		return fmt.Errorf("evaluations have no folds")
	}

	scoreFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.3f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			Name:           "Fold",
			ValueFormatter: func(v interface{}) string { return chart.FloatValueFormatterWithFormat(v, "%.0f") },
		},
		YAxis: chart.YAxis{
			Name:           "Score",
			ValueFormatter: scoreFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}
