package query

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Passage is one retrieved document fragment.
type Passage struct {
	UnitID string
	Title  string
	Text   string
	Score  float64
}

// Retriever searches the caller's indexed documents.
type Retriever interface {
	Search(ctx context.Context, owner uuid.UUID, question string, topK int) ([]Passage, error)
}

const ragTopK = 5

// NoDocumentsMessage is returned when retrieval finds nothing.
const NoDocumentsMessage = "I could not find any indexed documents related to that question."

func renderPassages(ps []Passage) string {
	var b strings.Builder
	for _, p := range ps {
		b.WriteString("\n\n---\n")
		if p.Title != "" {
			b.WriteString("[" + p.Title + "]\n")
		}
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}
