package result

import (
	"bytes"
	"encoding/base64"
	"log/slog"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ensemblelab/ensemble/dataset"
	pkglog "github.com/ensemblelab/ensemble/pkg/log"
)

// renderVisualizations produces the optional base64 PNG chart block for
// one method section. Chart failures are logged and the key skipped; the
// payload stays valid without them.
func renderVisualizations(in Input, combined *mat.VecDense, confusion [][]int, method string, ensemblePrimary float64) map[string]string {
	out := map[string]string{}

	if png, err := comparisonChart(in, method, ensemblePrimary); err != nil {
		slog.Warn("comparison chart skipped", slog.String("method", method), pkglog.ErrAttr(err))
	} else {
		out["comparison"] = png
	}

	if in.Bank.Task == dataset.Regression {
		if png, err := scatterChart(in.Split.YTest, combined); err != nil {
			slog.Warn("scatter chart skipped", slog.String("method", method), pkglog.ErrAttr(err))
		} else {
			out["scatter"] = png
		}
	} else if len(confusion) > 0 {
		if png, err := confusionChart(confusion, in.Dataset.ClassNames); err != nil {
			slog.Warn("confusion chart skipped", slog.String("method", method), pkglog.ErrAttr(err))
		} else {
			out["confusion_matrix"] = png
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// comparisonChart is a bar chart of every base model's primary metric
// next to the combined model's.
func comparisonChart(in Input, method string, ensemblePrimary float64) (string, error) {
	values := make(plotter.Values, 0, len(in.Bank.Experts)+1)
	labels := make([]string, 0, len(in.Bank.Experts)+1)
	for _, e := range in.Bank.Experts {
		values = append(values, e.Metrics.Primary())
		labels = append(labels, e.Name)
	}
	values = append(values, ensemblePrimary)
	labels = append(labels, method+" Ensemble")

	p := plot.New()
	p.Title.Text = "Model Comparison"
	if in.Bank.Task == dataset.Regression {
		p.Y.Label.Text = "R2"
	} else {
		p.Y.Label.Text = "Accuracy"
	}

	bars, err := plotter.NewBarChart(values, vg.Points(24))
	if err != nil {
		return "", err
	}
	p.Add(bars)
	p.NominalX(labels...)

	return encodePNG(p)
}

// scatterChart plots actual against predicted with the identity line.
func scatterChart(yTest, combined *mat.VecDense) (string, error) {
	n := yTest.Len()
	pts := make(plotter.XYs, n)
	lo, hi := yTest.AtVec(0), yTest.AtVec(0)
	for i := 0; i < n; i++ {
		actual, predicted := yTest.AtVec(i), combined.AtVec(i)
		pts[i] = plotter.XY{X: actual, Y: predicted}
		if actual < lo {
			lo = actual
		}
		if actual > hi {
			hi = actual
		}
	}

	p := plot.New()
	p.Title.Text = "Actual vs Predicted"
	p.X.Label.Text = "Actual"
	p.Y.Label.Text = "Predicted"

	s, err := plotter.NewScatter(pts)
	if err != nil {
		return "", err
	}
	p.Add(s)

	l, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return "", err
	}
	l.LineStyle.Width = vg.Points(1)
	p.Add(l)

	return encodePNG(p)
}

// confusionGrid adapts the confusion counts to the heat map interface.
// Rows are actual classes, columns predicted; Y is flipped so the first
// class renders at the top.
type confusionGrid struct {
	counts [][]int
}

func (g confusionGrid) Dims() (c, r int) { return len(g.counts), len(g.counts) }
func (g confusionGrid) X(c int) float64  { return float64(c) }
func (g confusionGrid) Y(r int) float64  { return float64(len(g.counts) - 1 - r) }
func (g confusionGrid) Z(c, r int) float64 {
	return float64(g.counts[len(g.counts)-1-r][c])
}

func confusionChart(confusion [][]int, classNames []string) (string, error) {
	pal := moreland.SmoothBlueRed().Palette(255)
	hm := plotter.NewHeatMap(confusionGrid{counts: confusion}, pal)

	p := plot.New()
	p.Title.Text = "Confusion Matrix"
	p.X.Label.Text = "Predicted"
	p.Y.Label.Text = "Actual"
	p.Add(hm)

	if len(classNames) == len(confusion) {
		p.NominalX(classNames...)
	}

	return encodePNG(p)
}

func encodePNG(p *plot.Plot) (string, error) {
	wt, err := p.WriterTo(5*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
