package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenTexts(s *Scan) []string {
	out := make([]string, len(s.Tokens))
	for i, tok := range s.Tokens {
		out[i] = tok.Text
	}

	return out
}

func TestLex_Tokens(t *testing.T) {
	s := Lex([]byte(`local x = a.b:c("s\"q", 'x', 0x1F, 1e-3, ...) -- tail`))

	assert.Equal(t, []string{
		"local", "x", "=", "a", ".", "b", ":", "c", "(", `"s\"q"`, ",", `'x'`, ",",
		"0x1F", ",", "1e-3", ",", "...", ")",
	}, tokenTexts(s))
	assert.Equal(t, TokKeyword, s.Tokens[0].Kind)
	assert.Equal(t, TokName, s.Tokens[1].Kind)
	assert.Equal(t, TokString, s.Tokens[9].Kind)
	assert.Equal(t, TokNumber, s.Tokens[13].Kind)
	assert.True(t, s.Line(1).Code)
	assert.True(t, s.Line(1).Comment)
}

func TestLex_MarkersInsideStringsAreCode(t *testing.T) {
	s := Lex([]byte("print(\"--[[ not a comment\")\nx = 1\n"))

	require.Len(t, s.Lines, 2)
	assert.False(t, s.Line(1).Comment)
	assert.True(t, s.Line(2).Code)
	assert.Empty(t, s.Warnings)
}

func TestLex_BlockComment(t *testing.T) {
	src := "a = 1\n--[[ one\n\n  two ]] b = 2\n--[==[ x ]] still\n]==]\nc = 3\n"
	s := Lex([]byte(src))

	require.Len(t, s.Lines, 7)
	assert.True(t, s.Line(2).Comment)
	assert.False(t, s.Line(2).Code)
	assert.True(t, s.Line(3).Comment, "blank line inside comment")
	assert.True(t, s.Line(3).StartsOpen)
	assert.True(t, s.Line(4).Comment)
	assert.True(t, s.Line(4).Code, "code after the close marker")
	assert.True(t, s.Line(5).EndsOpen)
	assert.True(t, s.Line(5).OpenIsComment)
	assert.False(t, s.Line(5).Code, "level 2 comment is not closed by ]]")
	assert.False(t, s.Line(6).Code)
	assert.True(t, s.Line(7).Code)
	assert.Equal(t, []string{"a", "=", "1", "b", "=", "2", "c", "=", "3"}, tokenTexts(s))
}

func TestLex_CloseThenReopenOnOneLine(t *testing.T) {
	src := "--[[ a\n]] --[[ b\n]]\nx()\n"
	s := Lex([]byte(src))

	assert.False(t, s.Line(2).Code)
	assert.True(t, s.Line(2).EndsOpen)
	assert.True(t, s.Line(3).Comment)
	assert.True(t, s.Line(4).Code)
}

func TestLex_UnterminatedComment(t *testing.T) {
	s := Lex([]byte("x = 1\n--[[ open\ny = 2\n\nz = 3"))

	require.Len(t, s.Warnings, 1)
	assert.Equal(t, 2, s.Warnings[0].Line)

	for line := 2; line <= 5; line++ {
		assert.True(t, s.Line(line).Comment, "line %d", line)
		assert.False(t, s.Line(line).Code, "line %d", line)
	}
}

func TestLex_LongString(t *testing.T) {
	s := Lex([]byte("local s = [[\nfirst\n-- not comment\n]]\nprint(s)\n"))

	require.Len(t, s.Lines, 5)
	assert.True(t, s.Line(1).Code)
	assert.True(t, s.Line(1).EndsOpen)
	assert.False(t, s.Line(1).OpenIsComment)
	assert.False(t, s.Line(2).Code)
	assert.False(t, s.Line(3).Comment)
	assert.True(t, s.Line(4).StartsOpen)
	assert.False(t, s.Line(4).Code)
	assert.True(t, s.Line(5).Code)

	str := s.Tokens[3]
	assert.Equal(t, TokString, str.Kind)
	assert.Equal(t, 1, str.Line)
	assert.Equal(t, 4, str.EndLine)
}

func TestLex_Shebang(t *testing.T) {
	s := Lex([]byte("#!/usr/bin/env lua\nprint(1)\n"))

	assert.True(t, s.Line(1).Comment)
	assert.False(t, s.Line(1).Code)
	assert.Equal(t, "print", s.Tokens[0].Text)
	assert.Equal(t, 2, s.Tokens[0].Line)
}

func TestScan_LineTokens(t *testing.T) {
	s := Lex([]byte("a = 1\n\nb = 2 c = 3\n"))

	from, to := s.LineTokens(3)
	assert.Equal(t, 3, from)
	assert.Equal(t, 9, to)

	from, to = s.LineTokens(2)
	assert.Equal(t, from, to)
}

func TestConstructs(t *testing.T) {
	src := `
local function f(a, b)
  if a then
    return 1
  elseif b then
    while a do a = a - 1 end
  else
    repeat b = b - 1 until b < 0
  end
  for i = 1, 3 do end
  do local x = function() end end
end
`
	s := Lex([]byte(src))
	cs := Constructs(s.Tokens)

	kinds := make([]ConstructKind, len(cs))
	for i, c := range cs {
		kinds[i] = c.Kind
		assert.GreaterOrEqual(t, c.Close, 0, "construct %d unmatched", i)
	}

	assert.Equal(t, []ConstructKind{
		ConstructFunction, ConstructIf, ConstructWhile, ConstructRepeat,
		ConstructFor, ConstructDo, ConstructFunction,
	}, kinds)

	fn := cs[0]
	assert.Equal(t, "(", s.Tokens[fn.ParamsOpen].Text)
	assert.Equal(t, ")", s.Tokens[fn.ParamsClose].Text)
	assert.Equal(t, 12, s.Tokens[fn.Close].Line)

	ifc := cs[1]
	assert.Len(t, ifc.Thens, 2)
	require.Len(t, ifc.Arms, 2)
	assert.Equal(t, 5, s.Tokens[ifc.Arms[0]].Line)
	assert.Equal(t, 7, s.Tokens[ifc.Arms[1]].Line)
	assert.True(t, ifc.HasElse(s.Tokens))
	assert.Equal(t, 9, s.Tokens[ifc.Close].Line)

	assert.Equal(t, "do", s.Tokens[cs[2].Do].Text)
	assert.Equal(t, "until", s.Tokens[cs[3].Close].Text)
	assert.Equal(t, 0, Balance(s.Tokens))
}

func TestBalance_Unbalanced(t *testing.T) {
	s := Lex([]byte("if x then\n  y()\n"))
	assert.Equal(t, 1, Balance(s.Tokens))

	s = Lex([]byte("x = '(end)' -- end\n"))
	assert.Equal(t, 0, Balance(s.Tokens))
}

func TestFormat(t *testing.T) {
	expr := &Logical{
		Op:   And,
		Left: &Not{X: &Index{Object: &Ident{Name: "t"}, Key: &Literal{Kind: LitString, Value: "ok"}}},
		Right: &Logical{
			Op:    Or,
			Left:  &Binary{Op: ">", Left: &Ident{Name: "n"}, Right: &Literal{Kind: LitNumber, Value: "0"}},
			Right: &Call{Receiver: &Ident{Name: "s"}, Method: "empty"},
		},
	}

	assert.Equal(t, "not t.ok and ((n > 0) or s:empty())", Format(expr))
	assert.Equal(t, `t["a b"]`, Format(&Index{Object: &Ident{Name: "t"}, Key: &Literal{Kind: LitString, Value: "a b"}}))
}
