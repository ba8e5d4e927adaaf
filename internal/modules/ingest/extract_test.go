package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yungbote/fluent-backend/internal/modules/prompts"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/types"
)

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestExtractText(t *testing.T) {
	docx := buildDOCX(t, `<w:p><w:r><w:t>Contrato de servicio</w:t></w:r></w:p><w:p><w:r><w:t>Plazo:</w:t><w:tab/><w:t>12 meses</w:t></w:r></w:p>`)
	cases := []struct {
		name   string
		format Format
		data   []byte
		want   string
	}{
		{"docx", FormatDOCX, docx, "Contrato de servicio\nPlazo:\t12 meses"},
		{"html", FormatHTML, []byte("<html><head><style>p{}</style></head><body><h1>Política</h1><script>x()</script>\n<p>Datos   privados</p></body></html>"), "Política\nDatos privados"},
		{"txt", FormatTXT, []byte("  hola mundo \n"), "hola mundo"},
		{"md latin1", FormatMD, []byte("# T\xedtulo"), "# Título"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractText(tc.format, tc.data)
			if err != nil {
				t.Fatalf("ExtractText: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestExtractTextRejectsBadInput(t *testing.T) {
	if _, err := ExtractText(FormatPDF, []byte("not a pdf")); err == nil {
		t.Fatalf("expected pdf error")
	}
	if _, err := ExtractText(FormatDOCX, []byte("not a zip")); err == nil {
		t.Fatalf("expected docx error")
	}
	if _, err := ExtractText(FormatCSV, []byte("a,b")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestDetectFormat(t *testing.T) {
	for name, want := range map[string]Format{
		"a.CSV": FormatCSV, "b.xlsx": FormatXLSX, "c.pdf": FormatPDF, "d.docx": FormatDOCX,
		"e.txt": FormatTXT, "f.md": FormatMD, "g.htm": FormatHTML,
	} {
		got, err := DetectFormat(name)
		if err != nil || got != want {
			t.Fatalf("DetectFormat(%q) = %q, %v", name, got, err)
		}
	}
	if _, err := DetectFormat("h.exe"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestChunk(t *testing.T) {
	text := strings.Repeat("palabra ", 1000) // 8000 runes
	chunks := Chunk(text, ChunkSize, ChunkOverlap, MaxChunks)
	if len(chunks) < 5 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := len([]rune(c)); n > ChunkSize {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
	}
	// Consecutive chunks overlap.
	tail := chunks[0][len(chunks[0])-50:]
	if !strings.Contains(chunks[1], strings.TrimSpace(tail)) {
		t.Fatalf("expected overlap between chunk 0 and 1")
	}

	capped := Chunk(strings.Repeat("x", 100000), 100, 10, MaxChunks)
	if len(capped) != MaxChunks {
		t.Fatalf("expected %d chunks, got %d", MaxChunks, len(capped))
	}
	if Chunk("   ", 10, 2, 5) != nil {
		t.Fatalf("blank text yields no chunks")
	}
}

type stubCompleter struct {
	reply string
	err   error
	got   prompts.Prompt
}

func (s *stubCompleter) Complete(_ context.Context, p prompts.Prompt) (string, error) {
	s.got = p
	return s.reply, s.err
}

func TestDescribeFallsBackDeterministically(t *testing.T) {
	profile := types.TableProfile{TotalRows: 2, TotalColumns: 2, Columns: []string{"mes", "monto"}}
	in := DescribeInput{Name: "ventas", Kind: types.SourceKindUploadedTable, Sample: "| mes |", Fallback: TableFallback("ventas", profile)}

	failing := &stubCompleter{err: errors.New("down")}
	got := NewDescriber(failing, logger.Nop()).Describe(context.Background(), in)
	if got != `Table "ventas" with 2 rows and 2 columns: mes, monto.` {
		t.Fatalf("unexpected fallback %q", got)
	}

	blank := &stubCompleter{reply: "  "}
	if got := NewDescriber(blank, logger.Nop()).Describe(context.Background(), in); got == "" {
		t.Fatalf("description must never be empty")
	}

	ok := &stubCompleter{reply: " Monthly sales. "}
	if got := NewDescriber(ok, logger.Nop()).Describe(context.Background(), in); got != "Monthly sales." {
		t.Fatalf("unexpected description %q", got)
	}
}

func TestDescribeCapsSample(t *testing.T) {
	s := &stubCompleter{reply: "ok"}
	NewDescriber(s, logger.Nop()).Describe(context.Background(), DescribeInput{
		Name: "doc", Kind: types.SourceKindDocument, Sample: strings.Repeat("é", 5000),
	})
	if n := strings.Count(s.got.User, "é"); n != MaxDescribeChars {
		t.Fatalf("expected %d sample runes, got %d", MaxDescribeChars, n)
	}
}

func TestSheetExportURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://docs.google.com/spreadsheets/d/abc123/edit#gid=0", "https://docs.google.com/spreadsheets/d/abc123/export?format=csv&gid=0", true},
		{"https://docs.google.com/spreadsheets/d/abc123/edit?usp=sharing", "https://docs.google.com/spreadsheets/d/abc123/export?format=csv", true},
		{"https://docs.google.com/spreadsheets/d/abc123", "https://docs.google.com/spreadsheets/d/abc123/export?format=csv", true},
		{"https://example.com/spreadsheets/d/abc", "", false},
		{"not a url", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := SheetExportURL(tc.in)
			if tc.ok && (err != nil || got != tc.want) {
				t.Fatalf("got %q, %v want %q", got, err, tc.want)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected error, got %q", got)
			}
		})
	}
}

func TestFetchSheet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "csv" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("a,b\n1,2\n"))
	}))
	defer srv.Close()

	data, err := FetchSheet(context.Background(), srv.Client(), srv.URL+"/export?format=csv")
	if err != nil || string(data) != "a,b\n1,2\n" {
		t.Fatalf("FetchSheet: %q %v", data, err)
	}
	if _, err := FetchSheet(context.Background(), srv.Client(), srv.URL+"/export"); err == nil {
		t.Fatalf("expected error on non-2xx")
	}
}
