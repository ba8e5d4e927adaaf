package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/fluent-backend/internal/modules/prompts"
	"github.com/yungbote/fluent-backend/internal/observability"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/platform/sqlengine"
)

// SourceCatalog exposes an owner's routable sources.
type SourceCatalog interface {
	Candidates(ctx context.Context, owner uuid.UUID) (Candidates, error)
	// Open returns a session scoped to c. Callers close it.
	Open(ctx context.Context, owner uuid.UUID, c Candidate) (*sqlengine.Session, error)
}

// SQLAnswerFallback is the reply used when the rows cannot be phrased.
const SQLAnswerFallback = "I could not process the data."

// maxAnswerPromptRows bounds the rows shown when phrasing an answer.
const maxAnswerPromptRows = 100

type Answer struct {
	Intent    Intent
	Text      string
	Source    *Candidate
	Statement string
	Result    *sqlengine.Result
	Chart     *Chart
	Passages  []Passage
}

type PipelineDeps struct {
	Log       *logger.Logger
	LLM       Completer
	Catalog   SourceCatalog
	Retriever Retriever
}

type Pipeline struct {
	log        *logger.Logger
	llm        Completer
	catalog    SourceCatalog
	retriever  Retriever
	classifier *Classifier
	selector   *Selector
	synth      *Synthesizer
	charts     *ChartBuilder
}

func NewPipeline(deps PipelineDeps) *Pipeline {
	log := deps.Log.With("module", "query")
	return &Pipeline{
		log:        log,
		llm:        deps.LLM,
		catalog:    deps.Catalog,
		retriever:  deps.Retriever,
		classifier: NewClassifier(deps.LLM, log),
		selector:   NewSelector(deps.LLM, log),
		synth:      NewSynthesizer(deps.LLM, log),
		charts:     NewChartBuilder(deps.LLM, log),
	}
}

// Answer routes question and runs the chosen strategy for owner.
func (p *Pipeline) Answer(ctx context.Context, owner uuid.UUID, question string) (*Answer, error) {
	question = strings.TrimSpace(question)

	cctx, span := observability.StartSpan(ctx, "query.classify")
	intent := p.classifier.Classify(cctx, question)
	span.SetAttributes(attribute.String("query.intent", string(intent)))
	observability.EndSpan(span, nil)

	p.log.WithContext(ctx).Info("question routed", "owner_id", owner, "intent", string(intent))

	switch intent {
	case IntentChat:
		return p.chat(ctx, question)
	case IntentRAG:
		return p.rag(ctx, owner, question)
	default:
		return p.structured(ctx, owner, question, intent)
	}
}

// RunStatement re-executes a stored statement against a source.
func (p *Pipeline) RunStatement(ctx context.Context, owner uuid.UUID, sourceID string, statement string) (*sqlengine.Result, error) {
	cands, err := p.catalog.Candidates(ctx, owner)
	if err != nil {
		return nil, stageErr(StageSelect, err)
	}
	if sourceID == "" {
		sourceID = LocalCandidateID
	}
	c, ok := cands.Lookup(sourceID)
	if !ok {
		return nil, stageErr(StageSelect, fmt.Errorf("source %s: %w", sourceID, ErrNoSource))
	}
	session, err := p.catalog.Open(ctx, owner, c)
	if err != nil {
		return nil, stageErr(StageExecute, err)
	}
	defer session.Close()
	return Execute(ctx, session, statement)
}

func (p *Pipeline) structured(ctx context.Context, owner uuid.UUID, question string, intent Intent) (*Answer, error) {
	out := &Answer{Intent: intent}

	sctx, span := observability.StartSpan(ctx, "query.select")
	cands, err := p.catalog.Candidates(sctx, owner)
	if err != nil {
		observability.EndSpan(span, err)
		return out, stageErr(StageSelect, err)
	}
	picked, ok := p.selector.Select(sctx, question, cands)
	if !ok {
		observability.EndSpan(span, ErrNoSource)
		return out, stageErr(StageSelect, ErrNoSource)
	}
	span.SetAttributes(attribute.String("query.source", picked.ID), attribute.Int("query.candidates", cands.Len()))
	observability.EndSpan(span, nil)
	out.Source = &picked

	session, err := p.catalog.Open(ctx, owner, picked)
	if err != nil {
		return out, stageErr(StageExecute, fmt.Errorf("open %s: %w", picked.ID, err))
	}
	defer session.Close()

	// Schema is read at call time; stored descriptions are never used here.
	schema, err := session.SchemaText(ctx)
	if err != nil {
		return out, stageErr(StageExecute, fmt.Errorf("introspect %s: %w", picked.ID, err))
	}

	yctx, span := observability.StartSpan(ctx, "query.synthesize", attribute.String("query.dialect", string(session.Dialect())))
	stmt, err := p.synth.SynthesizeSQL(yctx, question, schema, session.Dialect())
	observability.EndSpan(span, err)
	if err != nil {
		return out, err
	}
	out.Statement = stmt

	ectx, span := observability.StartSpan(ctx, "query.execute")
	res, err := Execute(ectx, session, stmt)
	observability.EndSpan(span, err)
	if err != nil {
		return out, err
	}
	out.Result = res

	if intent == IntentChart {
		hctx, span := observability.StartSpan(ctx, "query.chart", attribute.Int("query.rows", len(res.Rows)))
		chart, err := p.charts.Build(hctx, question, res.Rows)
		observability.EndSpan(span, err)
		if err != nil {
			return out, err
		}
		out.Chart = chart
		out.Text = chart.Title
		return out, nil
	}

	out.Text = p.phraseRows(ctx, question, stmt, res.Rows)
	return out, nil
}

func (p *Pipeline) phraseRows(ctx context.Context, question, stmt string, rows []sqlengine.Row) string {
	shown := rows
	if len(shown) > maxAnswerPromptRows {
		shown = shown[:maxAnswerPromptRows]
	}
	data, err := json.Marshal(shown)
	if err != nil {
		return SQLAnswerFallback
	}
	pr, err := prompts.Build(prompts.PromptSQLAnswer, prompts.Input{Question: question, Statement: stmt, Rows: string(data)})
	if err != nil {
		return SQLAnswerFallback
	}
	text, err := p.llm.Complete(ctx, pr)
	if err != nil || strings.TrimSpace(text) == "" {
		p.log.WithContext(ctx).Warn("answer phrasing failed", "error", err)
		return SQLAnswerFallback
	}
	return strings.TrimSpace(text)
}

func (p *Pipeline) chat(ctx context.Context, question string) (*Answer, error) {
	pr, err := prompts.Build(prompts.PromptChatReply, prompts.Input{Question: question})
	if err != nil {
		return &Answer{Intent: IntentChat}, err
	}
	text, err := p.llm.Complete(ctx, pr)
	if err != nil {
		return &Answer{Intent: IntentChat}, fmt.Errorf("chat reply: %w", err)
	}
	return &Answer{Intent: IntentChat, Text: strings.TrimSpace(text)}, nil
}

func (p *Pipeline) rag(ctx context.Context, owner uuid.UUID, question string) (*Answer, error) {
	out := &Answer{Intent: IntentRAG}
	if p.retriever == nil {
		out.Text = NoDocumentsMessage
		return out, nil
	}
	rctx, span := observability.StartSpan(ctx, "query.retrieve")
	passages, err := p.retriever.Search(rctx, owner, question, ragTopK)
	observability.EndSpan(span, err)
	if err != nil {
		return out, fmt.Errorf("retrieve: %w", err)
	}
	if len(passages) == 0 {
		out.Text = NoDocumentsMessage
		return out, nil
	}
	out.Passages = passages

	pr, err := prompts.Build(prompts.PromptRAGAnswer, prompts.Input{Question: question, Context: renderPassages(passages)})
	if err != nil {
		return out, err
	}
	text, err := p.llm.Complete(ctx, pr)
	if err != nil {
		return out, fmt.Errorf("rag answer: %w", err)
	}
	out.Text = strings.TrimSpace(text)
	return out, nil
}
