// Package chart renders the sentiment distribution bar chart.
package chart

import (
	"fmt"
	"image/color"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Bar is one labelled column of the chart.
type Bar struct {
	Label string
	Value float64
	Color color.Color
}

var (
	Green = color.RGBA{R: 0x2e, G: 0x8b, B: 0x57, A: 0xff}
	Red   = color.RGBA{R: 0xdc, G: 0x14, B: 0x3c, A: 0xff}
	Blue  = color.RGBA{R: 0x1e, G: 0x90, B: 0xff, A: 0xff}
	Gray  = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
)

const (
	width  = 10 * vg.Inch
	height = 6 * vg.Inch
)

var barWidth = vg.Points(60)

// Bars draws a bar chart with a count label above each bar and horizontal grid lines,
// and saves it to path. The image format follows the file extension.
func Bars(path, title, xLabel, yLabel string, bars []Bar) error {
	if len(bars) == 0 {
		return fmt.Errorf("chart %s: no bars", path)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	grid := plotter.NewGrid()
	grid.Vertical.Color = nil
	p.Add(grid)

	names := make([]string, len(bars))
	points := make([]plotter.XY, len(bars))
	texts := make([]string, len(bars))
	top := 0.0
	for i, b := range bars {
		bc, err := plotter.NewBarChart(plotter.Values{b.Value}, barWidth)
		if err != nil {
			return fmt.Errorf("bar %s: %w", b.Label, err)
		}
		bc.XMin = float64(i)
		if b.Color != nil {
			bc.Color = b.Color
		} else {
			bc.Color = Gray
		}
		bc.LineStyle.Width = 0
		p.Add(bc)

		names[i] = b.Label
		points[i] = plotter.XY{X: float64(i), Y: b.Value}
		texts[i] = strconv.FormatFloat(b.Value, 'f', -1, 64)
		top = max(top, b.Value)
	}

	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: points, Labels: texts})
	if err != nil {
		return fmt.Errorf("bar labels: %w", err)
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].XAlign = -0.5
	}
	labels.Offset = vg.Point{Y: vg.Points(4)}
	p.Add(labels)

	p.NominalX(names...)
	p.Y.Min = 0
	p.Y.Max = top * 1.1
	if p.Y.Max == 0 {
		p.Y.Max = 1
	}

	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("save chart %s: %w", path, err)
	}
	return nil
}
