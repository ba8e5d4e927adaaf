package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// MaxTableRows bounds a single uploaded table.
const MaxTableRows = 200000

var ErrEmptyTable = errors.New("the file has no header row")

// Table is a parsed tabular upload. Every cell is text.
type Table struct {
	Columns   []string
	Rows      [][]string
	Encoding  string
	Delimiter string
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText returns data as UTF-8 and the encoding it was read as: a UTF-8
// BOM first, then plain UTF-8, then Latin-1.
func DecodeText(data []byte) (string, string) {
	if bytes.HasPrefix(data, utf8BOM) {
		return string(data[len(utf8BOM):]), "utf-8-sig"
	}
	if utf8.Valid(data) {
		return string(data), "utf-8"
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�"), "latin-1"
	}
	return string(out), "latin-1"
}

var candidateDelimiters = []rune{',', ';', '\t', '|'}

// DetectDelimiter picks the most frequent candidate in the header line.
// Ties keep the earlier candidate, so a header without any is comma separated.
func DetectDelimiter(header string) rune {
	best, bestCount := ',', 0
	for _, d := range candidateDelimiters {
		if n := strings.Count(header, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// ParseCSV reads a delimited text upload.
func ParseCSV(data []byte) (*Table, error) {
	text, enc := DecodeText(data)
	text = strings.ReplaceAll(text, "\r\n", "\n")

	header := ""
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			header = line
			break
		}
	}
	if header == "" {
		return nil, ErrEmptyTable
	}
	delim := DetectDelimiter(header)

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		if blankRecord(rec) {
			continue
		}
		for i := range rec {
			rec[i] = cleanCell(rec[i])
		}
		records = append(records, rec)
		if len(records) > MaxTableRows+1 {
			return nil, fmt.Errorf("csv exceeds %d rows", MaxTableRows)
		}
	}
	if len(records) == 0 {
		return nil, ErrEmptyTable
	}
	t := &Table{
		Columns:   records[0],
		Rows:      alignRows(records[1:], len(records[0])),
		Encoding:  enc,
		Delimiter: string(delim),
	}
	return t, nil
}

// ParseXLSX reads the first sheet of a workbook.
func ParseXLSX(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyTable
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	var records [][]string
	for _, rec := range rows {
		if blankRecord(rec) {
			continue
		}
		for i := range rec {
			rec[i] = cleanCell(rec[i])
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, ErrEmptyTable
	}
	if len(records) > MaxTableRows+1 {
		return nil, fmt.Errorf("xlsx exceeds %d rows", MaxTableRows)
	}
	return &Table{
		Columns: records[0],
		Rows:    alignRows(records[1:], len(records[0])),
	}, nil
}

func cleanCell(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

func blankRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// alignRows pads short rows and cuts long ones to width.
func alignRows(rows [][]string, width int) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		switch {
		case len(r) == width:
			out[i] = r
		case len(r) > width:
			out[i] = r[:width]
		default:
			padded := make([]string, width)
			copy(padded, r)
			out[i] = padded
		}
	}
	return out
}
