package artifacts

import (
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/pthm-cable/seisinv/inversion"
)

// PlotTrajectory writes a PNG of the relative error per iteration, with well
// accuracy overlaid when recorded.
func PlotTrajectory(path string, rec *inversion.RunRecord) error {
	p := plot.New()
	p.Title.Text = "Run " + rec.RunID
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "relative error / accuracy"

	errs := make(plotter.XYs, len(rec.RelativeErrors))
	for i, e := range rec.RelativeErrors {
		errs[i] = plotter.XY{X: float64(i), Y: e}
	}
	line, err := plotter.NewLine(errs)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 20, G: 80, B: 200, A: 255}
	line.Width = vg.Points(1.2)
	p.Add(line)
	p.Legend.Add("relative error", line)

	if len(rec.Accuracies) > 0 {
		accs := make(plotter.XYs, len(rec.Accuracies))
		for i, a := range rec.Accuracies {
			accs[i] = plotter.XY{X: float64(i), Y: a}
		}
		al, err := plotter.NewLine(accs)
		if err != nil {
			return err
		}
		al.Color = color.RGBA{R: 200, G: 30, B: 30, A: 220}
		al.Width = vg.Points(1.2)
		p.Add(al)
		p.Legend.Add("well accuracy", al)
	}

	p.Add(plotter.NewGrid())
	p.Y.Min = 0
	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
