// Package charts renders optimization results as PNG images.
package charts

import (
	"errors"
	"fmt"
	"math"

	"github.com/aristath/frontier/internal/modules/optimization"
	gocharts "github.com/vicanso/go-charts/v2"
)

// ErrEmptyChart is returned when there is nothing to draw.
var ErrEmptyChart = errors.New("nothing to chart")

// minSliceWeight hides allocations that would render as invisible slices.
const minSliceWeight = 0.0005

// Renderer draws charts with fixed dimensions.
type Renderer struct {
	Width  int
	Height int
}

// NewRenderer creates a renderer with the default 800x600 canvas.
func NewRenderer() *Renderer {
	return &Renderer{Width: 800, Height: 600}
}

// RenderAllocation draws a pie chart of a portfolio's weights. The legend
// carries each ticker's percentage.
func (r *Renderer) RenderAllocation(title string, tickers []string, weights []float64) ([]byte, error) {
	if len(tickers) != len(weights) {
		return nil, fmt.Errorf("%d tickers for %d weights", len(tickers), len(weights))
	}

	var (
		values []float64
		labels []string
	)
	for i, w := range weights {
		if w < minSliceWeight || math.IsNaN(w) {
			continue
		}
		values = append(values, w)
		labels = append(labels, fmt.Sprintf("%s (%.1f%%)", tickers[i], w*100))
	}
	if len(values) == 0 {
		return nil, ErrEmptyChart
	}

	p, err := gocharts.PieRender(
		values,
		gocharts.TitleTextOptionFunc(title),
		gocharts.LegendOptionFunc(gocharts.LegendOption{
			Data: labels,
			Top:  gocharts.PositionBottom,
		}),
		gocharts.ThemeOptionFunc(gocharts.ThemeLight),
		gocharts.WidthOptionFunc(r.Width),
		gocharts.HeightOptionFunc(r.Height),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render allocation chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}
	return buf, nil
}

// RenderFrontier draws annualized return (percent) against volatility for an
// efficient curve ordered by increasing return.
func (r *Renderer) RenderFrontier(title string, curve *optimization.FrontierSample) ([]byte, error) {
	if curve == nil || curve.Len() == 0 {
		return nil, ErrEmptyChart
	}

	returns := make([]float64, curve.Len())
	labels := make([]string, curve.Len())
	yMin, yMax := math.Inf(1), math.Inf(-1)
	for i := range curve.Returns {
		returns[i] = curve.Returns[i] * 100
		labels[i] = fmt.Sprintf("%.1f%%", curve.Volatilities[i]*100)
		yMin = math.Min(yMin, returns[i])
		yMax = math.Max(yMax, returns[i])
	}
	pad := (yMax - yMin) * 0.1
	if pad == 0 {
		pad = 1
	}
	yMin -= pad
	yMax += pad

	splitNum := curve.Len() - 1
	if splitNum > 10 {
		splitNum = 10
	}
	if splitNum < 1 {
		splitNum = 1
	}

	p, err := gocharts.LineRender(
		[][]float64{returns},
		gocharts.TitleTextOptionFunc(title, "return % vs volatility"),
		gocharts.XAxisOptionFunc(gocharts.XAxisOption{
			Data:        labels,
			SplitNumber: splitNum,
			BoundaryGap: gocharts.FalseFlag(),
		}),
		gocharts.YAxisOptionFunc(gocharts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		gocharts.ThemeOptionFunc(gocharts.ThemeLight),
		gocharts.WidthOptionFunc(r.Width),
		gocharts.HeightOptionFunc(r.Height),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render frontier chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}
	return buf, nil
}
