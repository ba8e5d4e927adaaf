package ingest

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var columnReplacer = strings.NewReplacer(`"`, "", "'", "", " ", "_", ".", "", "/", "_", "$", "")

// NormalizeColumns lowercases and cleans header names. Empty names become
// col_<index>; repeats get a numeric suffix.
func NormalizeColumns(raw []string) []string {
	out := make([]string, len(raw))
	seen := map[string]int{}
	for i, c := range raw {
		name := columnReplacer.Replace(strings.ToLower(strings.TrimSpace(c)))
		if name == "" || name == "nan" {
			name = fmt.Sprintf("col_%d", i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		}
		seen[name]++
		out[i] = name
	}
	return out
}

// TablePrefix is the local-engine prefix of every table owned by owner.
func TablePrefix(owner uuid.UUID) string {
	return "u_" + owner.String()[:8] + "_"
}

// TableName derives u_<owner8>_<stem> from an uploaded filename.
func TableName(owner uuid.UUID, filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	var b strings.Builder
	for _, r := range fold(stem) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '-':
			b.WriteRune('_')
		}
	}
	clean := strings.Trim(b.String(), "_")
	if clean == "" {
		clean = "table"
	}
	return TablePrefix(owner) + clean
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}
