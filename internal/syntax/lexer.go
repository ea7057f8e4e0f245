package syntax

import (
	"bytes"
	"strings"
)

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokName TokenKind = iota
	TokKeyword
	TokNumber
	TokString
	TokSymbol
)

var keywords = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true,
	"end": true, "false": true, "for": true, "function": true, "goto": true,
	"if": true, "in": true, "local": true, "nil": true, "not": true,
	"or": true, "repeat": true, "return": true, "then": true, "true": true,
	"until": true, "while": true,
}

// Token is one significant token. Comments and whitespace produce none.
type Token struct {
	Kind    TokenKind
	Text    string
	Line    int
	EndLine int // differs from Line only for multi-line strings
	Offset  int
	End     int
}

// Is reports whether t is the keyword or symbol text.
func (t Token) Is(text string) bool {
	return (t.Kind == TokKeyword || t.Kind == TokSymbol) && t.Text == text
}

// LineInfo summarizes what a source line holds.
type LineInfo struct {
	Code    bool // a token starts on the line
	Comment bool // the line holds comment text
	// StartsOpen is set when the line begins inside a long string, a block
	// comment or a continued quoted string.
	StartsOpen bool
	// EndsOpen is set when the line ends inside one of those.
	EndsOpen bool
	// OpenIsComment tells whether the construct open at the end of the line is a comment.
	OpenIsComment bool
}

// Warning is a non-fatal lexical problem.
type Warning struct {
	Line    int
	Message string
}

// Scan is the lexical view of one file.
type Scan struct {
	Tokens   []Token
	Lines    []LineInfo // index 0 is line 1
	Warnings []Warning
}

// Line returns the info of a 1-based line, or the zero value when out of range.
func (s *Scan) Line(n int) LineInfo {
	if n < 1 || n > len(s.Lines) {
		return LineInfo{}
	}

	return s.Lines[n-1]
}

// LineTokens returns the indexes [from, to) of the tokens starting on line n.
func (s *Scan) LineTokens(n int) (int, int) {
	from := searchTokens(s.Tokens, n)
	to := searchTokens(s.Tokens, n+1)

	return from, to
}

func searchTokens(tokens []Token, line int) int {
	lo, hi := 0, len(tokens)
	for lo < hi {
		mid := (lo + hi) / 2
		if tokens[mid].Line < line {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	return lo
}

// Lex scans Lua source. It never fails: unterminated comments and strings
// produce a warning and extend to the end of the content.
func Lex(content []byte) *Scan {
	lx := &lexer{src: content, line: 1, out: &Scan{}}
	lx.out.Lines = make([]LineInfo, countLines(content))
	lx.run()

	return lx.out
}

func countLines(content []byte) int {
	n := 1
	for i, b := range content {
		if b == '\n' && i+1 < len(content) {
			n++
		}
	}

	return n
}

type lexer struct {
	src  []byte
	pos  int
	line int
	out  *Scan
}

func (lx *lexer) info(line int) *LineInfo {
	if line < 1 || line > len(lx.out.Lines) {
		return &LineInfo{}
	}

	return &lx.out.Lines[line-1]
}

func (lx *lexer) warn(line int, msg string) {
	lx.out.Warnings = append(lx.out.Warnings, Warning{Line: line, Message: msg})
}

func (lx *lexer) peek(offset int) byte {
	if lx.pos+offset < len(lx.src) {
		return lx.src[lx.pos+offset]
	}

	return 0
}

func (lx *lexer) run() {
	// A first line starting with '#' is skipped by the Lua loader.
	if len(lx.src) > 0 && lx.src[0] == '#' {
		lx.info(1).Comment = true
		lx.skipLine()
	}

	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]

		switch {
		case c == '\n':
			lx.line++
			lx.pos++
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			lx.pos++
		case c == '-' && lx.peek(1) == '-':
			lx.comment()
		case c == '[' && lx.longLevel() >= 0:
			lx.longString()
		case c == '"' || c == '\'':
			lx.quoted(c)
		case isLetter(c):
			lx.word()
		case isDigit(c) || (c == '.' && isDigit(lx.peek(1))):
			lx.number()
		default:
			lx.symbol()
		}
	}
}

func (lx *lexer) skipLine() {
	for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
		lx.pos++
	}
}

// longLevel returns the level of a long bracket opening at pos, or -1.
func (lx *lexer) longLevel() int {
	i := lx.pos + 1
	level := 0
	for i < len(lx.src) && lx.src[i] == '=' {
		level++
		i++
	}

	if i < len(lx.src) && lx.src[i] == '[' {
		return level
	}

	return -1
}

// closeLong finds the end of a long bracket of the given level starting
// the search at from. It returns the offset past the closing bracket and
// false when the bracket is never closed.
func (lx *lexer) closeLong(from, level int) (int, bool) {
	closer := "]" + strings.Repeat("=", level) + "]"

	idx := bytes.Index(lx.src[from:], []byte(closer))
	if idx < 0 {
		return len(lx.src), false
	}

	return from + idx + len(closer), true
}

// spanLines advances the line counter over src[from:to] and flags the lines
// that begin or end inside the construct.
func (lx *lexer) spanLines(from, to int, comment bool) {
	start := lx.line
	lx.line += bytes.Count(lx.src[from:to], []byte{'\n'})

	for l := start; l <= lx.line; l++ {
		info := lx.info(l)
		if comment {
			info.Comment = true
		}

		if l > start {
			info.StartsOpen = true
		}

		if l < lx.line {
			info.EndsOpen = true
			info.OpenIsComment = comment
		}
	}
}

func (lx *lexer) comment() {
	start := lx.pos
	lx.pos += 2

	if lx.peek(0) == '[' {
		if level := lx.longLevel(); level >= 0 {
			end, ok := lx.closeLong(lx.pos+level+2, level)
			line := lx.line
			lx.spanLines(start, end, true)
			lx.pos = end

			if !ok {
				lx.warn(line, "unterminated block comment")
			}

			return
		}
	}

	lx.info(lx.line).Comment = true
	lx.skipLine()
}

func (lx *lexer) longString() {
	start := lx.pos
	level := lx.longLevel()
	end, ok := lx.closeLong(lx.pos+level+2, level)
	line := lx.line

	lx.spanLines(start, end, false)
	lx.pos = end

	if !ok {
		lx.warn(line, "unterminated long string")
	}

	lx.emit(TokString, start, end, line)
}

func (lx *lexer) quoted(quote byte) {
	start := lx.pos
	line := lx.line
	lx.pos++

	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		if c == quote {
			lx.pos++
			break
		}

		if c == '\n' {
			lx.warn(lx.line, "unfinished string")
			break
		}

		if c == '\\' && lx.pos+1 < len(lx.src) {
			if lx.src[lx.pos+1] == '\n' {
				lx.info(lx.line).EndsOpen = true
				lx.line++
				lx.info(lx.line).StartsOpen = true
			}

			lx.pos += 2

			continue
		}

		lx.pos++
	}

	lx.emit(TokString, start, lx.pos, line)
}

func (lx *lexer) word() {
	start := lx.pos
	for lx.pos < len(lx.src) && (isLetter(lx.src[lx.pos]) || isDigit(lx.src[lx.pos])) {
		lx.pos++
	}

	kind := TokName
	if keywords[string(lx.src[start:lx.pos])] {
		kind = TokKeyword
	}

	lx.emit(kind, start, lx.pos, lx.line)
}

func (lx *lexer) number() {
	start := lx.pos
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		if (c == 'e' || c == 'E' || c == 'p' || c == 'P') && (lx.peek(1) == '+' || lx.peek(1) == '-') {
			hex := lx.pos-start > 1 && (lx.src[start+1] == 'x' || lx.src[start+1] == 'X')
			if !hex || c == 'p' || c == 'P' {
				lx.pos += 2
				continue
			}
		}

		if !isLetter(c) && !isDigit(c) && c != '.' {
			break
		}

		lx.pos++
	}

	lx.emit(TokNumber, start, lx.pos, lx.line)
}

var symbols = []string{"...", "..", "==", "~=", "<=", ">=", "::", "//", "<<", ">>"}

func (lx *lexer) symbol() {
	start := lx.pos
	for _, sym := range symbols {
		if bytes.HasPrefix(lx.src[lx.pos:], []byte(sym)) {
			lx.pos += len(sym)
			lx.emit(TokSymbol, start, lx.pos, lx.line)

			return
		}
	}

	lx.pos++
	lx.emit(TokSymbol, start, lx.pos, lx.line)
}

func (lx *lexer) emit(kind TokenKind, start, end, line int) {
	lx.info(line).Code = true
	lx.out.Tokens = append(lx.out.Tokens, Token{
		Kind:    kind,
		Text:    string(lx.src[start:end]),
		Line:    line,
		EndLine: lx.line,
		Offset:  start,
		End:     end,
	})
}

func isLetter(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
