package syntax

// ConstructKind names a keyword-delimited construct.
type ConstructKind int

const (
	ConstructFunction ConstructKind = iota
	ConstructIf
	ConstructWhile
	ConstructFor
	ConstructDo
	ConstructRepeat
)

// Construct locates a keyword-delimited construct in the token stream. All
// fields are token indexes; -1 marks a part that is absent or unmatched.
type Construct struct {
	Kind  ConstructKind
	Open  int
	Close int // `end`, or `until` for repeat
	// Do is the `do` of a while or for header.
	Do int
	// ParamsOpen and ParamsClose delimit a function's parameter list.
	ParamsOpen  int
	ParamsClose int
	// Thens holds one `then` per if/elseif arm; Arms holds the `elseif`
	// and `else` keywords in order.
	Thens []int
	Arms  []int
}

// HasElse reports whether an if construct ends with an else arm.
func (c *Construct) HasElse(tokens []Token) bool {
	return len(c.Arms) > 0 && tokens[c.Arms[len(c.Arms)-1]].Text == "else"
}

// Constructs pairs openers with their closers. The result is ordered by
// opening token, which is the order a pre-order walk of the tree visits
// the corresponding nodes.
func Constructs(tokens []Token) []Construct {
	var (
		out   []Construct
		stack []int
	)

	push := func(kind ConstructKind, open int) {
		c := Construct{Kind: kind, Open: open, Close: -1, Do: -1, ParamsOpen: -1, ParamsClose: -1}
		if kind == ConstructFunction {
			c.ParamsOpen, c.ParamsClose = paramList(tokens, open)
		}

		out = append(out, c)
		stack = append(stack, len(out)-1)
	}

	top := func() *Construct {
		if len(stack) == 0 {
			return nil
		}

		return &out[stack[len(stack)-1]]
	}

	pop := func(close int) {
		if len(stack) == 0 {
			return
		}

		out[stack[len(stack)-1]].Close = close
		stack = stack[:len(stack)-1]
	}

	for i, tok := range tokens {
		if tok.Kind != TokKeyword {
			continue
		}

		switch tok.Text {
		case "function":
			push(ConstructFunction, i)
		case "if":
			push(ConstructIf, i)
		case "while":
			push(ConstructWhile, i)
		case "for":
			push(ConstructFor, i)
		case "repeat":
			push(ConstructRepeat, i)
		case "do":
			if t := top(); t != nil && (t.Kind == ConstructWhile || t.Kind == ConstructFor) && t.Do < 0 {
				t.Do = i
			} else {
				push(ConstructDo, i)
			}
		case "then":
			if t := top(); t != nil && t.Kind == ConstructIf {
				t.Thens = append(t.Thens, i)
			}
		case "elseif", "else":
			if t := top(); t != nil && t.Kind == ConstructIf {
				t.Arms = append(t.Arms, i)
			}
		case "end":
			if t := top(); t != nil && t.Kind != ConstructRepeat {
				pop(i)
			}
		case "until":
			if t := top(); t != nil && t.Kind == ConstructRepeat {
				pop(i)
			}
		}
	}

	return out
}

func paramList(tokens []Token, fn int) (int, int) {
	open := -1

	for i := fn + 1; i < len(tokens); i++ {
		if tokens[i].Is("(") {
			open = i
			continue
		}

		if open >= 0 && tokens[i].Is(")") {
			return open, i
		}

		if open < 0 && tokens[i].Kind == TokKeyword {
			break
		}
	}

	return open, -1
}

// Balance returns the number of block openers minus block closers.
// `while` and `for` open through their `do`.
func Balance(tokens []Token) int {
	n := 0

	for _, tok := range tokens {
		if tok.Kind != TokKeyword {
			continue
		}

		switch tok.Text {
		case "function", "if", "do", "repeat":
			n++
		case "end", "until":
			n--
		}
	}

	return n
}
