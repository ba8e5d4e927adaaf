package ingest

import (
	"strings"

	"github.com/yungbote/fluent-backend/internal/types"
)

const (
	previewRows = 3
	sampleRows  = 5
	// SampleChars is the document sample kept in structured metadata.
	SampleChars = 200
)

// ProfileTable computes the profiling summary shown for a tabular source.
func ProfileTable(t *Table) types.TableProfile {
	p := types.TableProfile{
		TotalRows:     len(t.Rows),
		TotalColumns:  len(t.Columns),
		Columns:       append([]string(nil), t.Columns...),
		MissingValues: make(map[string]int, len(t.Columns)),
		Preview:       make([]map[string]string, 0, previewRows),
		Encoding:      t.Encoding,
		Delimiter:     t.Delimiter,
	}
	for _, c := range t.Columns {
		p.MissingValues[c] = 0
	}
	for i, row := range t.Rows {
		for j, c := range t.Columns {
			if j >= len(row) || strings.TrimSpace(row[j]) == "" {
				p.MissingValues[c]++
			}
		}
		if i < previewRows {
			rec := make(map[string]string, len(t.Columns))
			for j, c := range t.Columns {
				if j < len(row) {
					rec[c] = row[j]
				}
			}
			p.Preview = append(p.Preview, rec)
		}
	}
	return p
}

// TotalMissing sums missing cells across columns.
func TotalMissing(p types.TableProfile) int {
	n := 0
	for _, v := range p.MissingValues {
		n += v
	}
	return n
}

// MarkdownSample renders the first rows as a markdown table for the describer.
func MarkdownSample(t *Table) string {
	var b strings.Builder
	b.WriteString("| " + strings.Join(escapeCells(t.Columns), " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(t.Columns)) + "\n")
	for i, row := range t.Rows {
		if i >= sampleRows {
			break
		}
		b.WriteString("| " + strings.Join(escapeCells(row), " | ") + " |\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ReplaceAll(strings.ReplaceAll(c, "|", `\|`), "\n", " ")
	}
	return out
}

// ProfileDocument summarizes extracted document text.
func ProfileDocument(text, format string, chunks int) types.DocumentProfile {
	return types.DocumentProfile{
		Sample:     truncateRunes(text, SampleChars),
		Characters: len([]rune(text)),
		Chunks:     chunks,
		Format:     format,
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
