package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/fluent-backend/internal/modules/prompts"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/types"
)

// MaxDescribeChars caps the sample sent to the describer.
const MaxDescribeChars = 3000

// DocumentDescribeChars is how much document text feeds the description.
const DocumentDescribeChars = 1000

// TextCompleter is the slice of the hosted model the describer needs.
type TextCompleter interface {
	Complete(ctx context.Context, p prompts.Prompt) (string, error)
}

type DescribeInput struct {
	Name   string
	Kind   types.SourceKind
	Sample string
	// Fallback is used verbatim when the model cannot describe the source.
	Fallback string
}

type Describer struct {
	llm TextCompleter
	log *logger.Logger
}

func NewDescriber(llm TextCompleter, baseLog *logger.Logger) *Describer {
	return &Describer{llm: llm, log: baseLog.With("component", "Describer")}
}

// Describe always returns a non-empty description.
func (d *Describer) Describe(ctx context.Context, in DescribeInput) string {
	fallback := strings.TrimSpace(in.Fallback)
	if fallback == "" {
		fallback = fmt.Sprintf("%s source %q.", in.Kind, in.Name)
	}
	sample := truncateRunes(strings.TrimSpace(in.Sample), MaxDescribeChars)
	if sample == "" || d.llm == nil {
		return fallback
	}
	p, err := prompts.Build(prompts.PromptSourceDescribe, prompts.Input{
		SourceName: in.Name,
		SourceKind: string(in.Kind),
		Sample:     sample,
	})
	if err != nil {
		d.log.Warn("describe prompt build failed", "error", err)
		return fallback
	}
	text, err := d.llm.Complete(ctx, p)
	if err != nil {
		d.log.WithContext(ctx).Warn("description generation failed; using profile summary", "source", in.Name, "error", err)
		return fallback
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}
	return text
}

// TableFallback describes a table from its profile alone.
func TableFallback(name string, p types.TableProfile) string {
	cols := p.Columns
	more := ""
	if len(cols) > 20 {
		cols = cols[:20]
		more = ", ..."
	}
	return fmt.Sprintf("Table %q with %d rows and %d columns: %s%s.",
		name, p.TotalRows, p.TotalColumns, strings.Join(cols, ", "), more)
}

// DocumentFallback describes a document from its opening text.
func DocumentFallback(name string, p types.DocumentProfile) string {
	return fmt.Sprintf("Document %q (%s, %d characters) beginning: %s",
		name, p.Format, p.Characters, oneLine(p.Sample))
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
