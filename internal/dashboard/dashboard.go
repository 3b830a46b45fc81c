// Package dashboard renders the static charts shown on the dashboard page.
// The datasets are fixed; nothing here reads analysis history.
package dashboard

import (
	"errors"
	"fmt"
	"io"
	"sort"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrUnknownChart is returned by Render for a name not in Names().
var ErrUnknownChart = errors.New("unknown chart")

const (
	width  = 640
	height = 360
)

var (
	realColor = drawing.ColorFromHex("2e9e5b")
	fakeColor = drawing.ColorFromHex("d64545")
	lineColor = drawing.ColorFromHex("3b6fd6")
)

// Months labels the x axis of the monthly charts.
var Months = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun"}

// Static datasets behind the charts.
var (
	MonthlyReal = []float64{420, 465, 510, 498, 560, 612}
	MonthlyFake = []float64{85, 97, 120, 134, 128, 151}
	Accuracy    = []float64{91.2, 92.0, 92.8, 93.5, 94.1, 94.6}
)

// Chart describes one renderable chart.
type Chart struct {
	Name  string
	Title string
	build func() renderer
}

type renderer interface {
	Render(rp chart.RendererProvider, w io.Writer) error
}

var charts = map[string]Chart{
	"scans":    {Name: "scans", Title: "Monthly scans", build: scansChart},
	"verdicts": {Name: "verdicts", Title: "Verdict distribution", build: verdictChart},
	"accuracy": {Name: "accuracy", Title: "Detection accuracy", build: accuracyChart},
}

// Names lists the available charts in a stable order.
func Names() []string {
	names := make([]string, 0, len(charts))
	for name := range charts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the chart registered under name.
func Lookup(name string) (Chart, bool) {
	c, ok := charts[name]
	return c, ok
}

// Render writes the named chart to w as PNG.
func Render(name string, w io.Writer) error {
	c, ok := charts[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChart, name)
	}
	if err := c.build().Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return nil
}

func scansChart() renderer {
	bars := make([]chart.StackedBar, len(Months))
	for i, month := range Months {
		bars[i] = chart.StackedBar{
			Name: month,
			Values: []chart.Value{
				{Label: "Real", Value: MonthlyReal[i], Style: chart.Style{FillColor: realColor, StrokeColor: realColor}},
				{Label: "Fake", Value: MonthlyFake[i], Style: chart.Style{FillColor: fakeColor, StrokeColor: fakeColor}},
			},
		}
	}
	return &chart.StackedBarChart{
		Title:      "Monthly scans",
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		Bars:       bars,
	}
}

func verdictChart() renderer {
	var realTotal, fakeTotal float64
	for i := range Months {
		realTotal += MonthlyReal[i]
		fakeTotal += MonthlyFake[i]
	}
	return &chart.PieChart{
		Title:  "Verdict distribution",
		Width:  height,
		Height: height,
		Values: []chart.Value{
			{Label: "Real", Value: realTotal, Style: chart.Style{FillColor: realColor}},
			{Label: "Fake", Value: fakeTotal, Style: chart.Style{FillColor: fakeColor}},
		},
	}
}

func accuracyChart() renderer {
	xs := make([]float64, len(Months))
	ticks := make([]chart.Tick, len(Months))
	for i, month := range Months {
		xs[i] = float64(i)
		ticks[i] = chart.Tick{Value: float64(i), Label: month}
	}
	ch := &chart.Chart{
		Title:      "Detection accuracy",
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      chart.XAxis{Ticks: ticks, Range: &chart.ContinuousRange{Min: 0, Max: float64(len(Months) - 1)}},
		YAxis: chart.YAxis{
			Name:  "%",
			Range: &chart.ContinuousRange{Min: 85, Max: 100},
			Ticks: []chart.Tick{{Value: 85, Label: "85"}, {Value: 90, Label: "90"}, {Value: 95, Label: "95"}, {Value: 100, Label: "100"}},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Accuracy",
				XValues: xs,
				YValues: Accuracy,
				Style:   chart.Style{StrokeColor: lineColor, StrokeWidth: 2, DotWidth: 4, DotColor: lineColor},
			},
		},
	}
	ch.Elements = []chart.Renderable{chart.Legend(ch)}
	return ch
}
