package sqlengine

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrStatementRejected marks a statement a confined session refuses to run.
var ErrStatementRejected = errors.New("statement rejected")

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuoted
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

func (t token) word(w string) bool  { return t.kind == tokWord && t.text == w }
func (t token) punct(p string) bool { return t.kind == tokPunct && t.text == p }
func (t token) name() bool          { return t.kind == tokWord || t.kind == tokQuoted }

// qualifiers that may prefix a relation on the local engine
var defaultSchemas = map[string]bool{"public": true, "main": true}

var systemSchemas = map[string]bool{
	"information_schema": true, "pg_catalog": true, "pg_toast": true, "temp": true,
	"sys": true, "mysql": true, "performance_schema": true,
}

var writeWords = map[string]bool{
	"insert": true, "update": true, "delete": true, "merge": true, "into": true,
}

// functions that read files, settings or run SQL passed as text
var blockedFuncs = map[string]bool{
	"query_to_xml": true, "query_to_xmlschema": true, "query_to_xml_and_xmlschema": true,
	"table_to_xml": true, "table_to_xmlschema": true, "table_to_xml_and_xmlschema": true,
	"cursor_to_xml": true, "cursor_to_xmlschema": true,
	"schema_to_xml": true, "schema_to_xmlschema": true, "schema_to_xml_and_xmlschema": true,
	"database_to_xml": true, "database_to_xmlschema": true, "database_to_xml_and_xmlschema": true,
	"ts_stat": true, "ts_rewrite": true, "current_setting": true, "set_config": true,
	"load_extension": true, "readfile": true, "writefile": true, "fts3_tokenizer": true,
	"load_file": true, "openrowset": true, "openquery": true, "opendatasource": true,
}

var blockedFuncPrefixes = []string{"pg_", "lo_", "dblink", "pragma_", "sqlite_", "xp_"}

// words that close a FROM list at their nesting level
var fromEnders = map[string]bool{
	"where": true, "group": true, "having": true, "order": true, "limit": true, "offset": true,
	"fetch": true, "window": true, "union": true, "intersect": true, "except": true,
	"returning": true, "for": true, "qualify": true,
}

// CheckStatement accepts exactly one SELECT (optionally led by WITH) whose
// relations are all visible through scope. Anything it cannot read with
// certainty is rejected.
func CheckStatement(statement string, d Dialect, scope Scope) error {
	toks, err := tokenize(statement, d)
	if err != nil {
		return reject("%v", err)
	}
	for len(toks) > 0 && toks[len(toks)-1].punct(";") {
		toks = toks[:len(toks)-1]
	}
	if len(toks) == 0 {
		return reject("empty statement")
	}

	lead := 0
	for lead < len(toks) && toks[lead].punct("(") {
		lead++
	}
	if lead == len(toks) || !(toks[lead].word("select") || toks[lead].word("with")) {
		return reject("only SELECT statements are allowed")
	}

	for i, t := range toks {
		if t.punct(";") {
			return reject("multiple statements")
		}
		if t.kind == tokWord && writeWords[t.text] {
			return reject("%q is not allowed in a read statement", t.text)
		}
		next := token{}
		if i+1 < len(toks) {
			next = toks[i+1]
		}
		if t.name() && next.punct(".") && systemSchemas[t.text] {
			return reject("system schema %q is not queryable", t.text)
		}
		if t.name() && next.punct("(") && blockedFunc(t.text) {
			return reject("function %q is not allowed", t.text)
		}
	}
	return checkRelations(toks, scope)
}

func reject(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStatementRejected, fmt.Sprintf(format, args...))
}

func blockedFunc(name string) bool {
	if blockedFuncs[name] {
		return true
	}
	for _, p := range blockedFuncPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

type frame struct {
	sawSelect bool
	fromList  bool
	inWith    bool
	ctes      map[string]bool
}

// checkRelations walks every FROM/JOIN/TABLE position, tracking parenthesis
// depth so CTE names only shadow tables where they are actually in scope.
func checkRelations(toks []token, scope Scope) error {
	stack := []*frame{{}}
	top := func() *frame { return stack[len(stack)-1] }
	visibleCTE := func(name string) bool {
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].ctes[name] {
				return true
			}
		}
		return false
	}
	cteAt := cteDefinitions(toks)

	expect := false
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if cteAt[i] && top().inWith {
			f := top()
			if f.ctes == nil {
				f.ctes = map[string]bool{}
			}
			f.ctes[t.text] = true
		}

		if expect {
			switch {
			case t.punct("("):
				// A subquery, VALUES list, or a parenthesized join whose
				// first item is itself a relation.
				f := &frame{}
				var nt token
				if i+1 < len(toks) {
					nt = toks[i+1]
				}
				if nt.word("select") || nt.word("with") || nt.word("values") {
					expect = false
				} else {
					f.sawSelect, f.fromList = true, true
				}
				stack = append(stack, f)
				continue
			case t.word("lateral") || t.word("only"):
				continue
			case t.name():
				expect = false
				parts, end := dottedName(toks, i)
				if end < len(toks) && toks[end].punct("(") {
					i = end - 1
					continue
				}
				if err := checkRelation(parts, scope, visibleCTE); err != nil {
					return err
				}
				i = end - 1
				continue
			default:
				return reject("unexpected %q after FROM", t.text)
			}
		}

		switch {
		case t.punct("("):
			stack = append(stack, &frame{})
		case t.punct(")"):
			if len(stack) == 1 {
				return reject("unbalanced parentheses")
			}
			stack = stack[:len(stack)-1]
		case t.punct(","):
			if top().fromList {
				expect = true
			}
		case t.word("with"):
			top().inWith = true
		case t.word("select"):
			f := top()
			f.sawSelect, f.fromList, f.inWith = true, false, false
		case t.word("from"):
			if !top().sawSelect || distinctFrom(toks, i) {
				continue
			}
			top().fromList = true
			expect = true
		case t.word("join"):
			top().fromList = true
			expect = true
		case t.word("table"):
			expect = true
		case t.word("in"):
			// SQLite accepts `x IN tablename`.
			if i+1 < len(toks) && toks[i+1].name() {
				expect = true
			}
		case t.kind == tokWord && fromEnders[t.text]:
			top().fromList = false
		}
	}
	if expect {
		return reject("statement ends inside a FROM clause")
	}
	if len(stack) != 1 {
		return reject("unbalanced parentheses")
	}
	return nil
}

func checkRelation(parts []string, scope Scope, visibleCTE func(string) bool) error {
	name := parts[len(parts)-1]
	for _, q := range parts[:len(parts)-1] {
		if !defaultSchemas[q] {
			return reject("relation %q is outside the default schema", strings.Join(parts, "."))
		}
	}
	if len(parts) == 1 && visibleCTE(name) {
		return nil
	}
	if !scope.allows(name) {
		return reject("relation %q is not available to this session", name)
	}
	return nil
}

// IS [NOT] DISTINCT FROM is a comparison, not a FROM clause.
func distinctFrom(toks []token, i int) bool {
	return i >= 2 && toks[i-1].word("distinct") && (toks[i-2].word("is") || toks[i-2].word("not"))
}

// dottedName reads name(.name)* starting at i and returns the parts and the
// index just past them.
func dottedName(toks []token, i int) ([]string, int) {
	parts := []string{toks[i].text}
	j := i + 1
	for j+1 < len(toks) && toks[j].punct(".") && toks[j+1].name() {
		parts = append(parts, toks[j+1].text)
		j += 2
	}
	return parts, j
}

// cteDefinitions marks token indexes that name a CTE: `name [(cols)] AS
// [NOT] [MATERIALIZED] (`.
func cteDefinitions(toks []token) map[int]bool {
	out := map[int]bool{}
	for i, t := range toks {
		if !t.word("as") {
			continue
		}
		j := i + 1
		for j < len(toks) && (toks[j].word("not") || toks[j].word("materialized")) {
			j++
		}
		if j >= len(toks) || !toks[j].punct("(") || i == 0 {
			continue
		}
		k := i - 1
		if toks[k].punct(")") {
			k = matchingOpen(toks, k) - 1
		}
		if k >= 0 && toks[k].name() {
			out[k] = true
		}
	}
	return out
}

func matchingOpen(toks []token, close int) int {
	depth := 0
	for i := close; i >= 0; i-- {
		switch {
		case toks[i].punct(")"):
			depth++
		case toks[i].punct("("):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// tokenize splits a statement into words, quoted identifiers and punctuation.
// Literals and comments are dropped. Quoting follows the dialect so the
// tokens line up with what the engine itself will parse.
func tokenize(stmt string, d Dialect) ([]token, error) {
	src := []rune(stmt)
	n := len(src)
	var out []token
	peek := func(i int) rune {
		if i < n {
			return src[i]
		}
		return 0
	}

	for i := 0; i < n; {
		r := src[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '-' && peek(i+1) == '-' && (d != MySQL || peek(i+2) == 0 || unicode.IsSpace(peek(i+2))):
			for i < n && src[i] != '\n' {
				i++
			}

		case r == '#' && d == MySQL:
			for i < n && src[i] != '\n' {
				i++
			}

		case r == '/' && peek(i+1) == '*':
			if d == MySQL && peek(i+2) == '!' {
				return nil, errors.New("executable comments are not allowed")
			}
			end, err := skipBlockComment(src, i, d == Postgres)
			if err != nil {
				return nil, err
			}
			i = end

		case r == '\'':
			end, err := skipQuoted(src, i, '\'', d == MySQL)
			if err != nil {
				return nil, err
			}
			i = end

		case r == '"' && d == MySQL:
			end, err := skipQuoted(src, i, '"', true)
			if err != nil {
				return nil, err
			}
			i = end

		case r == '"' || (r == '`' && (d == MySQL || d == SQLite)):
			text, end, err := readQuotedIdent(src, i, r, r)
			if err != nil {
				return nil, err
			}
			out = append(out, token{kind: tokQuoted, text: text})
			i = end

		case r == '[' && (d == SQLite || d == SQLServer):
			text, end, err := readQuotedIdent(src, i, '[', ']')
			if err != nil {
				return nil, err
			}
			out = append(out, token{kind: tokQuoted, text: text})
			i = end

		case r == '$' && d == Postgres:
			end, err := skipDollar(src, i)
			if err != nil {
				return nil, err
			}
			if end == i+1 {
				out = append(out, token{kind: tokPunct, text: "$"})
			}
			i = end

		case unicode.IsDigit(r) || (r == '.' && unicode.IsDigit(peek(i+1))):
			i = skipNumber(src, i)

		case unicode.IsLetter(r) || r == '_':
			j := i + 1
			for j < n && (unicode.IsLetter(src[j]) || unicode.IsDigit(src[j]) || src[j] == '_' || src[j] == '$') {
				j++
			}
			w := strings.ToLower(string(src[i:j]))
			if d == Postgres && w == "e" && peek(j) == '\'' {
				end, err := skipQuoted(src, j, '\'', true)
				if err != nil {
					return nil, err
				}
				i = end
				continue
			}
			out = append(out, token{kind: tokWord, text: w})
			i = j

		default:
			out = append(out, token{kind: tokPunct, text: string(r)})
			i++
		}
	}
	return out, nil
}

// skipBlockComment returns the index after the comment opened at src[i].
// Postgres nests block comments; the other engines end at the first */.
func skipBlockComment(src []rune, i int, nested bool) (int, error) {
	depth := 0
	for j := i; j+1 < len(src); j++ {
		switch {
		case src[j] == '/' && src[j+1] == '*':
			if depth == 0 || nested {
				depth++
			}
			j++
		case src[j] == '*' && src[j+1] == '/':
			depth--
			j++
			if depth == 0 {
				return j + 1, nil
			}
		}
	}
	return 0, errors.New("unterminated comment")
}

// skipQuoted returns the index after a literal opened at src[i]. A doubled
// quote is an escaped quote; backslash escapes only when asked.
func skipQuoted(src []rune, i int, q rune, backslash bool) (int, error) {
	for j := i + 1; j < len(src); j++ {
		switch {
		case backslash && src[j] == '\\':
			j++
		case src[j] == q:
			if j+1 < len(src) && src[j+1] == q {
				j++
				continue
			}
			return j + 1, nil
		}
	}
	return 0, errors.New("unterminated string literal")
}

func readQuotedIdent(src []rune, i int, open, close rune) (string, int, error) {
	var b strings.Builder
	for j := i + 1; j < len(src); j++ {
		if src[j] == close {
			if j+1 < len(src) && src[j+1] == close {
				b.WriteRune(close)
				j++
				continue
			}
			return strings.ToLower(b.String()), j + 1, nil
		}
		b.WriteRune(src[j])
	}
	return "", 0, fmt.Errorf("unterminated %c identifier", open)
}

// skipDollar handles $n parameters and $tag$...$tag$ literals. A bare '$'
// returns i+1.
func skipDollar(src []rune, i int) (int, error) {
	n := len(src)
	j := i + 1
	if j < n && unicode.IsDigit(src[j]) {
		for j < n && unicode.IsDigit(src[j]) {
			j++
		}
		return j, nil
	}
	for j < n && (unicode.IsLetter(src[j]) || unicode.IsDigit(src[j]) || src[j] == '_') {
		j++
	}
	if j >= n || src[j] != '$' {
		return i + 1, nil
	}
	tag := string(src[i : j+1])
	rest := string(src[j+1:])
	end := strings.Index(rest, tag)
	if end < 0 {
		return 0, errors.New("unterminated dollar-quoted literal")
	}
	return j + 1 + len([]rune(rest[:end])) + len([]rune(tag)), nil
}

// skipNumber consumes digits, a decimal point and an exponent, never letters
// that could start the next word.
func skipNumber(src []rune, i int) int {
	n := len(src)
	j := i
	for j < n && (unicode.IsDigit(src[j]) || src[j] == '.') {
		j++
	}
	if j < n && (src[j] == 'e' || src[j] == 'E') {
		k := j + 1
		if k < n && (src[k] == '+' || src[k] == '-') {
			k++
		}
		if k < n && unicode.IsDigit(src[k]) {
			for k < n && unicode.IsDigit(src[k]) {
				k++
			}
			j = k
		}
	}
	return j
}
