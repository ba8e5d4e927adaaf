package query

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/yungbote/fluent-backend/internal/modules/prompts"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
)

type Intent string

const (
	IntentSQL   Intent = "SQL"
	IntentChart Intent = "CHART"
	IntentRAG   Intent = "RAG"
	IntentChat  Intent = "CHAT"
)

// Structured reports whether the intent needs a data source.
func (i Intent) Structured() bool { return i == IntentSQL || i == IntentChart }

// visualizationStems match anywhere in the accent-folded, lowercased question.
var visualizationStems = []string{
	"graf", "graph", "visualiz", "plot", "chart",
	"barras", "torta", "pastel",
	"linea", "trend", "tendencia", "histogra", "diagram",
}

// visualizationWords only match as whole words so "barato" or "pipeline"
// stay plain questions.
var visualizationWords = map[string]bool{
	"bar": true, "bars": true, "pie": true, "pies": true,
	"line": true, "lines": true, "donut": true, "scatter": true, "heatmap": true,
}

type Classifier struct {
	llm Completer
	log *logger.Logger
}

func NewClassifier(llm Completer, baseLog *logger.Logger) *Classifier {
	return &Classifier{llm: llm, log: baseLog.With("component", "IntentClassifier")}
}

// Classify never fails: model trouble resolves to SQL, and CHART needs an
// explicit visualization keyword in the question.
func (c *Classifier) Classify(ctx context.Context, question string) Intent {
	p, err := prompts.Build(prompts.PromptIntentClassify, prompts.Input{Question: question})
	if err != nil {
		c.log.Warn("intent prompt build failed; defaulting to SQL", "error", err)
		return IntentSQL
	}
	reply, err := c.llm.Complete(ctx, p)
	if err != nil {
		c.log.WithContext(ctx).Warn("intent classification failed; defaulting to SQL", "error", err)
		return IntentSQL
	}
	intent := ParseIntent(reply)
	if intent == IntentChart && !HasVisualizationKeyword(question) {
		c.log.WithContext(ctx).Debug("chart intent without visualization keyword; downgraded to SQL")
		return IntentSQL
	}
	return intent
}

var replyCleaner = strings.NewReplacer(".", "", "*", "", "`", "", `"`, "", "'", "", ":", "")

// ParseIntent maps a free-form model reply onto an intent.
func ParseIntent(reply string) Intent {
	s := replyCleaner.Replace(strings.ToUpper(strings.TrimSpace(reply)))
	switch {
	case s == "":
		return IntentSQL
	case strings.Contains(s, "CHART"):
		return IntentChart
	case strings.Contains(s, "SQL"), strings.Contains(s, "DATABASE"):
		return IntentSQL
	case strings.Contains(s, "RAG"), strings.Contains(s, "TEXT"), strings.Contains(s, "DOCUMENT"):
		return IntentRAG
	case strings.Contains(s, "CHAT"):
		return IntentChat
	default:
		return IntentSQL
	}
}

// HasVisualizationKeyword reports whether the question explicitly asks for a
// visual. Matching ignores case and accents.
func HasVisualizationKeyword(question string) bool {
	folded := foldText(question)
	for _, kw := range visualizationStems {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if visualizationWords[w] {
			return true
		}
	}
	return false
}

func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}
