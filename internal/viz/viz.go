// Package viz renders query results as PNG charts.
package viz

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/wcharczuk/go-chart/v2"
)

// Chart types understood by Render.
const (
	TypeBar     = "bar"
	TypePie     = "pie"
	TypeLine    = "line"
	TypeScatter = "scatter"
)

// SelectSeries picks a label key and a numeric value key from aggregation
// result documents. "_id" wins as the label when present (the usual shape
// of a $group result); otherwise the first string field in key order. The
// value is the first numeric field in key order that is not the label.
// Candidates are scanned in sorted key order so the same documents always
// chart the same series.
func SelectSeries(docs []map[string]any) (labelKey, valueKey string, ok bool) {
	if len(docs) == 0 {
		return "", "", false
	}
	first := docs[0]
	keys := make([]string, 0, len(first))
	for k := range first {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if _, has := first["_id"]; has {
		labelKey = "_id"
	} else {
		for _, k := range keys {
			if _, isStr := first[k].(string); isStr {
				labelKey = k
				break
			}
		}
		if labelKey == "" {
			labelKey = keys[0]
		}
	}
	for _, k := range keys {
		if k == labelKey {
			continue
		}
		if _, isNum := asFloat(first[k]); isNum {
			valueKey = k
			break
		}
	}
	if valueKey == "" {
		return "", "", false
	}
	return labelKey, valueKey, true
}

// ExtractSeries pulls parallel label/value slices out of documents using
// the keys from SelectSeries. Nested label values (compound _id documents)
// are stringified.
func ExtractSeries(docs []map[string]any, labelKey, valueKey string) ([]string, []float64) {
	labels := make([]string, 0, len(docs))
	values := make([]float64, 0, len(docs))
	for _, doc := range docs {
		label := doc[labelKey]
		labels = append(labels, fmt.Sprint(label))
		v, _ := asFloat(doc[valueKey])
		values = append(values, v)
	}
	return labels, values
}

// Render draws a chart of the given type and writes it as PNG to path. For
// scatter charts the labels must parse as numbers; callers get an error
// otherwise rather than a nonsense plot.
func Render(chartType, title string, labels []string, values []float64, path string) error {
	if len(values) == 0 {
		return fmt.Errorf("no values to chart")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating chart dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chart file: %w", err)
	}
	defer f.Close()

	switch chartType {
	case TypeBar:
		return renderBar(title, labels, values, f)
	case TypePie:
		return renderPie(title, labels, values, f)
	case TypeLine:
		return renderLine(title, labels, values, f, false)
	case TypeScatter:
		return renderLine(title, labels, values, f, true)
	default:
		return fmt.Errorf("unknown chart type %q", chartType)
	}
}

func renderBar(title string, labels []string, values []float64, f *os.File) error {
	bars := make([]chart.Value, len(values))
	for i := range values {
		bars[i] = chart.Value{Label: truncateLabel(labels[i]), Value: values[i]}
	}
	c := chart.BarChart{
		Title:    title,
		Width:    900,
		Height:   540,
		BarWidth: 48,
		Bars:     bars,
	}
	return c.Render(chart.PNG, f)
}

func renderPie(title string, labels []string, values []float64, f *os.File) error {
	slices := make([]chart.Value, len(values))
	for i := range values {
		slices[i] = chart.Value{Label: truncateLabel(labels[i]), Value: values[i]}
	}
	c := chart.PieChart{
		Title:  title,
		Width:  640,
		Height: 640,
		Values: slices,
	}
	return c.Render(chart.PNG, f)
}

func renderLine(title string, labels []string, values []float64, f *os.File, scatter bool) error {
	xs := make([]float64, len(values))
	ticks := make([]chart.Tick, 0, len(values))
	numericX := true
	for i, label := range labels {
		if v, ok := parseFloat(label); ok {
			xs[i] = v
		} else {
			numericX = false
			break
		}
	}
	if scatter && !numericX {
		return fmt.Errorf("scatter chart requires a numeric x axis")
	}
	if !numericX {
		for i := range values {
			xs[i] = float64(i)
			ticks = append(ticks, chart.Tick{Value: float64(i), Label: truncateLabel(labels[i])})
		}
	}

	series := chart.ContinuousSeries{XValues: xs, YValues: values}
	if scatter {
		series.Style = chart.Style{
			StrokeWidth: chart.Disabled,
			DotWidth:    4,
		}
	}
	c := chart.Chart{
		Title:  title,
		Width:  900,
		Height: 540,
		Series: []chart.Series{series},
	}
	if len(ticks) > 0 {
		c.XAxis = chart.XAxis{Ticks: ticks}
	}
	return c.Render(chart.PNG, f)
}

func truncateLabel(s string) string {
	if len(s) > 24 {
		return s[:21] + "..."
	}
	return s
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

func parseFloat(s string) (float64, bool) {
	var v float64
	if _, err := fmt.Sscanf(s, "%f", &v); err != nil {
		return 0, false
	}
	return v, true
}
