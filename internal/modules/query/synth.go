package query

import (
	"context"
	"strings"

	"github.com/yungbote/fluent-backend/internal/modules/prompts"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/platform/sqlengine"
)

type Synthesizer struct {
	llm Completer
	log *logger.Logger
}

func NewSynthesizer(llm Completer, baseLog *logger.Logger) *Synthesizer {
	return &Synthesizer{llm: llm, log: baseLog.With("component", "QuerySynthesizer")}
}

// SynthesizeSQL asks the model for one statement over schemaText. There is no
// retry; any failure is a synthesize StageError.
func (s *Synthesizer) SynthesizeSQL(ctx context.Context, question, schemaText string, dialect sqlengine.Dialect) (string, error) {
	p, err := prompts.Build(prompts.PromptSQLSynthesize, prompts.Input{
		Question:    question,
		Schema:      schemaText,
		Dialect:     string(dialect),
		NumericCast: dialect.NumericCast("column"),
	})
	if err != nil {
		return "", stageErr(StageSynthesize, err)
	}
	raw, err := s.llm.Complete(ctx, p)
	if err != nil {
		return "", stageErr(StageSynthesize, err)
	}
	stmt := CleanStatement(raw)
	if stmt == "" {
		return "", stageErr(StageSynthesize, ErrEmptyCompletion)
	}
	s.log.WithContext(ctx).Debug("statement synthesized", "dialect", string(dialect), "statement", stmt)
	return stmt, nil
}

// CleanStatement strips fences, a leading "sql" language tag and trailing
// semicolons from a model reply.
func CleanStatement(raw string) string {
	s := StripFences(raw)
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)
	if len(s) >= 3 && strings.EqualFold(s[:3], "sql") {
		rest := s[3:]
		if rest == "" || rest[0] == '\n' || rest[0] == '\r' || rest[0] == ' ' || rest[0] == '\t' || rest[0] == ':' {
			s = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
		}
	}
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	}
	return s
}
