package ingest

import "strings"

const (
	ChunkSize    = 1500
	ChunkOverlap = 200
	MaxChunks    = 64
)

// Chunk splits text into overlapping rune windows, preferring to end a chunk
// on whitespace in its last fifth. At most max chunks are returned.
func Chunk(text string, size, overlap, max int) []string {
	text = strings.TrimSpace(text)
	if text == "" || size <= 0 || max <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	r := []rune(text)
	var out []string
	for start := 0; start < len(r) && len(out) < max; {
		end := start + size
		if end >= len(r) {
			end = len(r)
		} else {
			for i := end; i > end-size/5; i-- {
				if r[i-1] == ' ' || r[i-1] == '\n' {
					end = i
					break
				}
			}
		}
		if piece := strings.TrimSpace(string(r[start:end])); piece != "" {
			out = append(out, piece)
		}
		if end == len(r) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}
