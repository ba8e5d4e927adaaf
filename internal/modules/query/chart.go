package query

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/yungbote/fluent-backend/internal/modules/prompts"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/platform/sqlengine"
)

type ChartKind string

const (
	ChartBar  ChartKind = "bar"
	ChartLine ChartKind = "line"
	ChartPie  ChartKind = "pie"
	ChartArea ChartKind = "area"
)

// ParseChartKind restricts kind to the supported set, defaulting to bar.
func ParseChartKind(kind string) ChartKind {
	switch ChartKind(strings.ToLower(strings.TrimSpace(kind))) {
	case ChartLine:
		return ChartLine
	case ChartPie:
		return ChartPie
	case ChartArea:
		return ChartArea
	default:
		return ChartBar
	}
}

type SeriesPoint struct {
	Name        string        `json:"name"`
	Value       float64       `json:"value"`
	OriginalRow sqlengine.Row `json:"original_data,omitempty"`
}

type Chart struct {
	Type       ChartKind     `json:"type"`
	Title      string        `json:"title"`
	SeriesName string        `json:"series_name"`
	Series     []SeriesPoint `json:"series"`
}

// maxChartPromptRows bounds the rows shown to the model.
const maxChartPromptRows = 200

type ChartBuilder struct {
	llm Completer
	log *logger.Logger
}

func NewChartBuilder(llm Completer, baseLog *logger.Logger) *ChartBuilder {
	return &ChartBuilder{llm: llm, log: baseLog.With("component", "ChartBuilder")}
}

// Build turns rows into a chart. Empty input or an empty series yields ErrNoData.
func (b *ChartBuilder) Build(ctx context.Context, question string, rows []sqlengine.Row) (*Chart, error) {
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	shown := rows
	if len(shown) > maxChartPromptRows {
		shown = shown[:maxChartPromptRows]
	}
	data, err := json.Marshal(shown)
	if err != nil {
		return nil, stageErr(StageChart, fmt.Errorf("encode rows: %w", err))
	}
	p, err := prompts.Build(prompts.PromptChartConfig, prompts.Input{Question: question, Rows: string(data)})
	if err != nil {
		return nil, stageErr(StageChart, err)
	}
	obj, err := b.llm.CompleteStructured(ctx, p)
	if err != nil {
		return nil, stageErr(StageChart, err)
	}

	labels, _ := obj["labels"].([]any)
	values, _ := obj["values"].([]any)
	series := ZipSeries(labels, values, rows)
	if len(series) == 0 {
		return nil, ErrNoData
	}
	return &Chart{
		Type:       ParseChartKind(stringField(obj, "type")),
		Title:      stringField(obj, "title"),
		SeriesName: stringField(obj, "series_name"),
		Series:     series,
	}, nil
}

// ZipSeries pairs labels with values up to the shorter length. Values that
// cannot be read as numbers are skipped.
func ZipSeries(labels, values []any, rows []sqlengine.Row) []SeriesPoint {
	n := len(labels)
	if len(values) < n {
		n = len(values)
	}
	out := make([]SeriesPoint, 0, n)
	for i := 0; i < n; i++ {
		v, ok := toFloat(values[i])
		if !ok {
			continue
		}
		pt := SeriesPoint{Name: labelString(labels[i]), Value: v}
		if i < len(rows) {
			pt.OriginalRow = rows[i]
		}
		out = append(out, pt)
	}
	return out
}

func labelString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return fmt.Sprintf("%.0f", t)
		}
		return fmt.Sprint(t)
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		return sqlengine.ParseNumber(t)
	default:
		return 0, false
	}
}
