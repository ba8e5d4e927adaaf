package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/fluent-backend/internal/modules/prompts"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
)

// LocalCandidateID identifies the local engine holding uploaded tables.
const LocalCandidateID = "local"

const maxDescriptionRunes = 500

// Candidate is one routable data source. SourceID is uuid.Nil for the local engine.
type Candidate struct {
	ID          string
	Name        string
	Description string
	SourceID    uuid.UUID
	Local       bool
}

// LocalCandidate builds the local engine sentinel.
func LocalCandidate(description string) Candidate {
	return Candidate{
		ID:          LocalCandidateID,
		Name:        "Uploaded files",
		Description: description,
		Local:       true,
	}
}

// Candidates is an ordered candidate set. When built with WithDefault the
// first entry is the fallback.
type Candidates struct {
	items      []Candidate
	hasDefault bool
}

// WithDefault places local first and marks it as the fallback. Entries in
// rest that reuse an earlier id are dropped.
func WithDefault(local Candidate, rest ...Candidate) Candidates {
	items := make([]Candidate, 0, len(rest)+1)
	seen := map[string]bool{local.ID: true}
	items = append(items, local)
	for _, c := range rest {
		if c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		items = append(items, c)
	}
	return Candidates{items: items, hasDefault: true}
}

// NewCandidates builds a set without an explicit default; the first entry is
// used as the fallback when there is one.
func NewCandidates(items ...Candidate) Candidates {
	out := make([]Candidate, 0, len(items))
	seen := map[string]bool{}
	for _, c := range items {
		if c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return Candidates{items: out}
}

func (c Candidates) Len() int { return len(c.items) }

func (c Candidates) Items() []Candidate {
	out := make([]Candidate, len(c.items))
	copy(out, c.items)
	return out
}

func (c Candidates) Default() (Candidate, bool) {
	if len(c.items) == 0 {
		return Candidate{}, false
	}
	return c.items[0], true
}

func (c Candidates) Lookup(id string) (Candidate, bool) {
	id = strings.TrimSpace(id)
	for _, it := range c.items {
		if it.ID == id {
			return it, true
		}
	}
	return Candidate{}, false
}

type Selector struct {
	llm Completer
	log *logger.Logger
}

func NewSelector(llm Completer, baseLog *logger.Logger) *Selector {
	return &Selector{llm: llm, log: baseLog.With("component", "SourceSelector")}
}

// Select picks the candidate whose description best matches question. The
// result is always a member of cands; ok is false only for an empty set.
func (s *Selector) Select(ctx context.Context, question string, cands Candidates) (Candidate, bool) {
	def, ok := cands.Default()
	if !ok {
		return Candidate{}, false
	}
	if cands.Len() == 1 {
		return def, true
	}
	log := s.log.WithContext(ctx)

	p, err := prompts.Build(prompts.PromptSourceSelect, prompts.Input{
		Question:   question,
		Candidates: RenderCandidates(cands),
	})
	if err != nil {
		log.Warn("selector prompt build failed; using default", "error", err)
		return def, true
	}
	obj, err := s.llm.CompleteStructured(ctx, p)
	if err != nil {
		log.Warn("source selection failed; using default", "error", err)
		return def, true
	}
	id := stringField(obj, "id")
	if id == "" {
		log.Warn("source selection returned no id; using default")
		return def, true
	}
	picked, found := cands.Lookup(id)
	if !found {
		log.Warn("source selection returned unknown id; using default", "picked", id)
		return def, true
	}
	return picked, true
}

// RenderCandidates lists candidates for the selection prompt.
func RenderCandidates(cands Candidates) string {
	var b strings.Builder
	for _, c := range cands.items {
		fmt.Fprintf(&b, "- id: %s\n  name: %s\n  description: %s\n", c.ID, c.Name, truncateRunes(oneLine(c.Description), maxDescriptionRunes))
	}
	return strings.TrimRight(b.String(), "\n")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
