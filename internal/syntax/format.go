package syntax

import (
	"strconv"
	"strings"
)

// Format renders an expression as compact Lua text. Function bodies and
// table contents are elided.
func Format(n Node) string {
	var b strings.Builder
	format(&b, n)

	return b.String()
}

func format(b *strings.Builder, n Node) {
	switch n := n.(type) {
	case nil:
	case *Ident:
		b.WriteString(n.Name)
	case *Literal:
		if n.Kind == LitString {
			b.WriteString(strconv.Quote(n.Value))
		} else {
			b.WriteString(n.Value)
		}
	case *Vararg:
		b.WriteString("...")
	case *Index:
		format(b, n.Object)

		if key, ok := n.Key.(*Literal); ok && key.Kind == LitString && isName(key.Value) {
			b.WriteString(".")
			b.WriteString(key.Value)

			return
		}

		b.WriteString("[")
		format(b, n.Key)
		b.WriteString("]")
	case *Call:
		if n.Receiver != nil {
			format(b, n.Receiver)
			b.WriteString(":")
			b.WriteString(n.Method)
		} else {
			format(b, n.Fn)
		}

		b.WriteString("(")

		for i, arg := range n.Args {
			if i > 0 {
				b.WriteString(", ")
			}

			format(b, arg)
		}

		b.WriteString(")")
	case *FunctionLit:
		b.WriteString("function(...) end")
	case *Table:
		b.WriteString("{...}")
	case *Logical:
		formatOperand(b, n.Left)
		b.WriteString(" " + n.Op.String() + " ")
		formatOperand(b, n.Right)
	case *Not:
		b.WriteString("not ")
		formatOperand(b, n.X)
	case *Binary:
		formatOperand(b, n.Left)
		b.WriteString(" " + n.Op + " ")
		formatOperand(b, n.Right)
	case *Unary:
		b.WriteString(n.Op)
		formatOperand(b, n.X)
	default:
		b.WriteString("?")
	}
}

func formatOperand(b *strings.Builder, n Node) {
	switch n.(type) {
	case *Logical, *Binary:
		b.WriteString("(")
		format(b, n)
		b.WriteString(")")
	default:
		format(b, n)
	}
}

func isName(s string) bool {
	if s == "" || keywords[s] || isDigit(s[0]) {
		return false
	}

	for i := 0; i < len(s); i++ {
		if !isLetter(s[i]) && !isDigit(s[i]) {
			return false
		}
	}

	return true
}
