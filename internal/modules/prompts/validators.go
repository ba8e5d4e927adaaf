package prompts

import (
	"fmt"
	"strings"
)

type Validator func(Input) error

func RequireNonEmpty(field string, get func(Input) string) Validator {
	return func(in Input) error {
		if strings.TrimSpace(get(in)) == "" {
			return fmt.Errorf("missing required input %s", field)
		}
		return nil
	}
}

var (
	requireQuestion = RequireNonEmpty("Question", func(in Input) string { return in.Question })
	requireSchema   = RequireNonEmpty("Schema", func(in Input) string { return in.Schema })
	requireRows     = RequireNonEmpty("Rows", func(in Input) string { return in.Rows })
	requireSample   = RequireNonEmpty("Sample", func(in Input) string { return in.Sample })
)

var validators = map[PromptName][]Validator{
	PromptIntentClassify: {requireQuestion},
	PromptSourceSelect: {
		requireQuestion,
		RequireNonEmpty("Candidates", func(in Input) string { return in.Candidates }),
	},
	PromptSQLSynthesize: {
		requireQuestion,
		requireSchema,
		RequireNonEmpty("Dialect", func(in Input) string { return in.Dialect }),
	},
	PromptChartConfig: {requireQuestion, requireRows},
	PromptSQLAnswer:   {requireQuestion, requireRows},
	PromptRAGAnswer: {
		requireQuestion,
		RequireNonEmpty("Context", func(in Input) string { return in.Context }),
	},
	PromptChatReply:      {requireQuestion},
	PromptSourceDescribe: {requireSample},
}

func validate(name PromptName, in Input) error {
	for _, v := range validators[name] {
		if err := v(in); err != nil {
			return err
		}
	}
	return nil
}
