package domain

import (
	m "gooze.dev/pkg/luacover/internal/model"
	"gooze.dev/pkg/luacover/internal/syntax"
)

// lineShape is what a line starts with, as far as insertion goes.
type lineShape int

const (
	shapeOther lineShape = iota
	shapeStatement
	shapeElse
	shapeElseif
	shapeCloseOnly
)

// lineFacts is everything the rule tables look at for one line.
type lineFacts struct {
	Line  int
	Class m.Classification
	Shape lineShape

	// From and To delimit the tokens starting on the line.
	From, To   int
	StartsOpen bool
	EndsOpen   bool

	// Depth counts open brackets at the start of the line, EndDepth at its
	// end, both within the enclosing function body. InLiteral is set while
	// a table constructor is open.
	Depth     int
	EndDepth  int
	InLiteral bool

	// Continued is set when the previous token needs an operand.
	Continued bool
	// NextJoins is set when the next token would extend an expression
	// ending on this line.
	NextJoins bool
	Statement bool
	InReturn  bool
	// Braces is set when the line holds `{` or `}`.
	Braces bool

	// Guard is the guard expression that can be wrapped in place.
	Guard *exprSite
	// ArmThen is the `then` of an elseif arm on this line, or -1.
	ArmThen int
	// Enters holds the function headers whose parameter list closes on the
	// line. Enter is the one the enter rules are looking at.
	Enters []enterSite
	Enter  *enterSite

	// Trailing is set when the last token of the line needs an operand.
	Trailing bool
}

// exprSite is the token range of an expression.
type exprSite struct {
	first, last int
}

// enterSite locates a function header.
type enterSite struct {
	function   int  // function record id
	params     int  // closing parenthesis of the parameter list
	lastOnLine bool // nothing follows the parameters on the line
	spans      bool // the body continues below the header
}

// strategy is how a tracking call is placed for a line.
type strategy int

const (
	stratSkip strategy = iota
	// stratPrefix inserts before the first token of the line.
	stratPrefix
	// stratBefore inserts a new line above, leaving the line untouched.
	stratBefore
	// stratAfterKeyword inserts right after `else` or an arm's `then`.
	stratAfterKeyword
	// stratGuard wraps the guard expression so its outcome is reported.
	stratGuard
	// stratNextLine inserts a new line below.
	stratNextLine
	// stratInline inserts right after a function's parameter list.
	stratInline
)

func (s strategy) String() string {
	return [...]string{"skip", "prefix", "before", "after-keyword", "guard", "next-line", "inline"}[s]
}

type rule struct {
	name string
	when func(f *lineFacts) bool
	then strategy
}

// lineRules places the call reporting that a line ran. The first matching
// rule wins. Lines inside a table constructor or holding braces never
// change.
var lineRules = []rule{
	{
		name: "no code starts here",
		when: func(f *lineFacts) bool { return f.Class != m.Executable || f.StartsOpen || f.From == f.To },
		then: stratSkip,
	},
	{
		name: "inside an expression",
		when: func(f *lineFacts) bool { return f.Depth > 0 || f.Continued },
		then: stratSkip,
	},
	{
		name: "statement holding a literal",
		when: func(f *lineFacts) bool { return f.Braces && f.Shape == shapeStatement && f.Statement },
		then: stratBefore,
	},
	{
		name: "literal line",
		when: func(f *lineFacts) bool { return f.Braces },
		then: stratSkip,
	},
	{
		name: "guard",
		when: func(f *lineFacts) bool { return f.Guard != nil },
		then: stratGuard,
	},
	{
		name: "statement",
		when: func(f *lineFacts) bool { return f.Shape == shapeStatement && f.Statement },
		then: stratPrefix,
	},
	{
		name: "else",
		when: func(f *lineFacts) bool { return f.Shape == shapeElse },
		then: stratAfterKeyword,
	},
	{
		name: "elseif arm",
		when: func(f *lineFacts) bool { return f.Shape == shapeElseif && f.ArmThen >= 0 },
		then: stratAfterKeyword,
	},
	{
		name: "closing line",
		when: func(f *lineFacts) bool {
			return f.Shape == shapeCloseOnly && f.EndDepth == 0 && !f.InReturn && !f.EndsOpen && !f.NextJoins && !f.Trailing
		},
		then: stratNextLine,
	},
}

// enterRules place the call reporting a function entry.
var enterRules = []rule{
	{
		name: "no header",
		when: func(f *lineFacts) bool { return f.Enter == nil || f.StartsOpen },
		then: stratSkip,
	},
	{
		name: "header in a literal",
		when: func(f *lineFacts) bool { return f.Braces || f.InLiteral },
		then: stratNextLine,
	},
	{
		name: "header",
		when: func(*lineFacts) bool { return true },
		then: stratInline,
	},
}

func decide(rules []rule, f *lineFacts) (strategy, string) {
	for _, r := range rules {
		if r.when(f) {
			return r.then, r.name
		}
	}

	return stratSkip, ""
}

// eachEnter decides the entry call of every function header on the line.
func (f *lineFacts) eachEnter(fn func(site *enterSite, how strategy)) {
	for i := range f.Enters {
		f.Enter = &f.Enters[i]
		how, _ := decide(enterRules, f)
		fn(f.Enter, how)
	}

	f.Enter = nil
}

// continuers are tokens after which a line break cannot end an expression.
var continuers = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "//": true, "%": true, "^": true,
	"#": true, "..": true, "==": true, "~=": true, "<": true, "<=": true, ">": true,
	">=": true, "=": true, ",": true, "(": true, "{": true, "[": true, ".": true,
	":": true, "&": true, "|": true, "~": true, "<<": true, ">>": true,
	"and": true, "or": true, "not": true, "local": true, "return": true,
	"in": true, "function": true, "goto": true,
}

// joiners are keywords that continue the expression before them. The
// header keywords only join after a function literal.
var joiners = map[string]bool{
	"and": true, "or": true, "then": false, "do": false, "in": false,
}

var statementKeywords = map[string]bool{
	"local": true, "function": true, "return": true, "break": true, "goto": true,
	"if": true, "while": true, "for": true, "repeat": true, "do": true,
}

type depthFrame struct {
	open  int // open brackets of any kind
	brace int // open table constructors
}

// collectFacts derives the line facts of a file from its tokens and code map.
//
//nolint:cyclop,gocognit // one pass over the token stream
func collectFacts(file *m.SourceFile, scan *syntax.Scan) []lineFacts {
	tokens := scan.Tokens
	facts := make([]lineFacts, len(scan.Lines))

	constructs := syntax.Constructs(tokens)
	bodyStart := make(map[int]bool)
	bodyEnd := make(map[int]bool)
	closeLine := make(map[int]int) // params token -> line of the function's end
	function := make(map[int]int)  // params token -> function record id

	for _, c := range constructs {
		if c.Kind != syntax.ConstructFunction || c.ParamsClose < 0 || c.Close < 0 {
			continue
		}

		bodyStart[c.ParamsClose] = true
		bodyEnd[c.Close] = true
		closeLine[c.ParamsClose] = tokens[c.Close].Line

		if id, ok := file.FunctionOffsets[tokens[c.Open].Offset]; ok {
			function[c.ParamsClose] = id
		}
	}

	frames := []depthFrame{{}}

	for i := range facts {
		line := i + 1
		info := scan.Line(line)
		from, to := scan.LineTokens(line)

		f := &facts[i]
		f.Line = line
		f.From, f.To = from, to
		f.ArmThen = -1
		f.StartsOpen = info.StartsOpen
		f.EndsOpen = info.EndsOpen
		f.Statement = file.StatementLines[line]
		f.InReturn = file.InReturn(line)

		if line <= len(file.Lines) {
			f.Class = file.Lines[line-1].Class
		}

		if from > 0 {
			f.Continued = continues(tokens[from-1])
		}

		if to < len(tokens) {
			f.NextJoins = joins(tokens[to], to > from && bodyEnd[to-1])
		}

		for j := from; j < to; j++ {
			tok := tokens[j]

			if bodyEnd[j] && len(frames) > 1 {
				frames = frames[:len(frames)-1]
			}

			if j == from {
				top := frames[len(frames)-1]
				f.Depth = top.open
				f.InLiteral = top.brace > 0
			}

			top := &frames[len(frames)-1]

			switch {
			case tok.Is("(") || tok.Is("["):
				top.open++
			case tok.Is("{"):
				top.open++
				top.brace++
				f.Braces = true
			case tok.Is(")") || tok.Is("]"):
				top.open--
			case tok.Is("}"):
				top.open--
				top.brace--
				f.Braces = true
			}

			if bodyStart[j] {
				if id, ok := function[j]; ok {
					f.Enters = append(f.Enters, enterSite{
						function:   id,
						params:     j,
						lastOnLine: j == to-1,
						spans:      closeLine[j] > line,
					})
				}

				frames = append(frames, depthFrame{})
			}
		}

		if from == to {
			top := frames[len(frames)-1]
			f.Depth = top.open
			f.InLiteral = top.brace > 0
		}

		f.EndDepth = frames[len(frames)-1].open

		if from < to {
			f.Trailing = continues(tokens[to-1])
			f.Shape = shapeOf(tokens[from:to])
			f.Guard = guardSite(file, tokens, f)

			if f.Shape == shapeElseif {
				f.ArmThen = findAtDepth(tokens, from+1, to, "then")
			}
		}
	}

	return facts
}

// enterBelow reports whether a new line can follow the parameters.
func (f *lineFacts) enterBelow() bool {
	return f.Enter != nil && f.Enter.lastOnLine && f.Enter.spans && !f.EndsOpen
}

func continues(tok syntax.Token) bool {
	return (tok.Kind == syntax.TokSymbol || tok.Kind == syntax.TokKeyword) && continuers[tok.Text]
}

func joins(tok syntax.Token, afterFunction bool) bool {
	switch tok.Kind {
	case syntax.TokSymbol, syntax.TokString:
		return true
	case syntax.TokKeyword:
		always, ok := joiners[tok.Text]
		return ok && (always || afterFunction)
	case syntax.TokName, syntax.TokNumber:
	}

	return false
}

func shapeOf(line []syntax.Token) lineShape {
	first := line[0]

	switch {
	case first.Is("else"):
		return shapeElse
	case first.Is("elseif"):
		return shapeElseif
	case first.Is("until"):
		return shapeCloseOnly
	case first.Is("end"):
		for _, tok := range line[1:] {
			if !tok.Is("end") && !tok.Is(";") {
				return shapeOther
			}
		}

		return shapeCloseOnly
	case first.Kind == syntax.TokName, first.Is("::"), first.Is("("):
		return shapeStatement
	case first.Kind == syntax.TokKeyword && statementKeywords[first.Text]:
		return shapeStatement
	}

	return shapeOther
}

// findAtDepth returns the index of the first keyword text in [from, to)
// outside brackets, or -1.
func findAtDepth(tokens []syntax.Token, from, to int, text string) int {
	depth := 0

	for i := from; i < to; i++ {
		tok := tokens[i]

		switch {
		case tok.Is("(") || tok.Is("[") || tok.Is("{"):
			depth++
		case tok.Is(")") || tok.Is("]") || tok.Is("}"):
			depth--
		case depth == 0 && tok.Kind == syntax.TokKeyword && tok.Text == text:
			return i
		}
	}

	return -1
}

// guardSite finds a guard expression that starts and ends on the line so
// it can be wrapped without touching other lines.
func guardSite(file *m.SourceFile, tokens []syntax.Token, f *lineFacts) *exprSite {
	g, ok := file.Guards[f.Line]
	if !ok || g.HeaderStart != f.Line || g.HeaderEnd != f.Line {
		return nil
	}

	kw := tokens[f.From]
	first := f.From + 1

	var last int

	switch {
	case kw.Is("if") || kw.Is("elseif"):
		last = findAtDepth(tokens, first, f.To, "then") - 1
	case kw.Is("while"):
		last = findAtDepth(tokens, first, f.To, "do") - 1
	case kw.Is("until"):
		if f.NextJoins || f.Trailing || f.EndsOpen || f.Statement || f.EndDepth != f.Depth {
			return nil
		}

		last = f.To - 1
		if tokens[last].Is(";") {
			last--
		}
	default:
		return nil
	}

	if last < first || f.Continued {
		return nil
	}

	return &exprSite{first: first, last: last}
}
