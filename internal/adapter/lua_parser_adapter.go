package adapter

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"

	m "gooze.dev/pkg/luacover/internal/model"
	"gooze.dev/pkg/luacover/internal/syntax"
)

// LuaParserAdapter turns Lua source into the syntax tree the analyzer walks.
type LuaParserAdapter interface {
	// Parse builds the tree for one file. Syntax errors are returned as
	// model.ErrParse with the offending line when the parser reports one.
	Parse(path m.Path, content []byte) (*syntax.Chunk, error)
}

// LocalLuaParserAdapter implements LuaParserAdapter with gopher-lua's parser.
type LocalLuaParserAdapter struct{}

// NewLocalLuaParserAdapter constructs a LocalLuaParserAdapter.
func NewLocalLuaParserAdapter() *LocalLuaParserAdapter {
	return &LocalLuaParserAdapter{}
}

// Parse runs gopher-lua's parser and converts its statements. Node lines
// come from gopher-lua; keyword positions (then, else, end, ...) come from
// the token stream so block boundaries are exact.
func (a *LocalLuaParserAdapter) Parse(path m.Path, content []byte) (*syntax.Chunk, error) {
	index, err := syntax.NewLineIndex(content)
	if err != nil {
		return nil, m.NewError(m.KindParse, path, 0, err)
	}

	stmts, err := parse.Parse(bytes.NewReader(blankShebang(content)), string(path))
	if err != nil {
		line := 0

		var perr *parse.Error
		if errors.As(err, &perr) && perr.Pos.Line > 0 {
			line = perr.Pos.Line
		}

		return nil, m.NewError(m.KindParse, path, line, errors.New(strings.TrimSpace(err.Error())))
	}

	conv := newConverter(index, syntax.Lex(content))
	chunk := syntax.At(&syntax.Chunk{Body: conv.block(stmts)}, syntax.Span{Start: 0, End: len(content)})

	if conv.err != nil {
		return nil, m.NewError(m.KindParse, path, 0, conv.err)
	}

	return chunk, nil
}

// blankShebang replaces a leading `#` line with spaces; the Lua loader skips
// it but the parser does not.
func blankShebang(content []byte) []byte {
	if len(content) == 0 || content[0] != '#' {
		return content
	}

	out := bytes.Clone(content)
	for i := 0; i < len(out) && out[i] != '\n'; i++ {
		out[i] = ' '
	}

	return out
}

type converter struct {
	index  *syntax.LineIndex
	tokens []syntax.Token
	queue  map[syntax.ConstructKind][]syntax.Construct
	err    error
}

func newConverter(index *syntax.LineIndex, scan *syntax.Scan) *converter {
	queue := make(map[syntax.ConstructKind][]syntax.Construct)
	for _, c := range syntax.Constructs(scan.Tokens) {
		queue[c.Kind] = append(queue[c.Kind], c)
	}

	return &converter{index: index, tokens: scan.Tokens, queue: queue}
}

// take returns the next construct of kind in source order. Statements are
// converted in the same order their keywords appear, so the queues line up.
func (c *converter) take(kind syntax.ConstructKind) *syntax.Construct {
	q := c.queue[kind]
	if len(q) == 0 {
		if c.err == nil {
			c.err = fmt.Errorf("no matching keyword for construct kind %d", kind)
		}

		return nil
	}

	c.queue[kind] = q[1:]

	return &q[0]
}

func (c *converter) tokenSpan(open, close int) syntax.Span {
	if open < 0 || open >= len(c.tokens) {
		return syntax.Span{}
	}

	span := syntax.Span{Start: c.tokens[open].Offset, End: c.tokens[open].End}
	if close >= 0 && close < len(c.tokens) {
		span.End = c.tokens[close].End
	}

	return span
}

func (c *converter) constructSpan(con *syntax.Construct, fallback int, children ...syntax.Node) syntax.Span {
	if con == nil {
		return c.around(fallback, children...)
	}

	span := c.tokenSpan(con.Open, con.Close)
	for _, child := range children {
		if child != nil {
			span = span.Cover(child.Span())
		}
	}

	return span
}

// around spans whole lines from line to the last line of any child.
func (c *converter) around(line int, children ...syntax.Node) syntax.Span {
	first, last := line, line

	for _, child := range children {
		if child == nil || child.Span().Empty() {
			continue
		}

		s, e := c.index.Lines(child.Span())
		if first < 1 || s < first {
			first = s
		}

		if e > last {
			last = e
		}
	}

	if first < 1 {
		first = 1
	}

	return c.index.LineSpan(first, last)
}

func (c *converter) block(stmts []ast.Stmt) []syntax.Node {
	out := make([]syntax.Node, 0, len(stmts))
	for _, s := range stmts {
		if n := c.stmt(s); n != nil {
			out = append(out, n)
		}
	}

	return out
}

//nolint:cyclop,funlen // one case per statement kind
func (c *converter) stmt(s ast.Stmt) syntax.Node {
	switch s := s.(type) {
	case *ast.AssignStmt:
		targets := c.exprs(s.Lhs)
		values := c.exprs(s.Rhs)
		n := &syntax.Assign{Targets: targets, Values: values}

		return syntax.At(n, c.around(s.Line(), n.Children()...))

	case *ast.LocalAssignStmt:
		if fe, ok := localFunction(s); ok {
			fn := c.function(fe)
			span := fn.Span()

			if local := c.tokenBefore(span.Start); local >= 0 && c.tokens[local].Is("local") {
				span.Start = c.tokens[local].Offset
			}

			return syntax.At(&syntax.LocalFunction{Name: s.Names[0], Func: fn}, span)
		}

		n := &syntax.Local{Names: s.Names, Values: c.exprs(s.Exprs)}

		return syntax.At(n, c.around(s.Line(), n.Values...))

	case *ast.FuncCallStmt:
		call, ok := c.expr(s.Expr).(*syntax.Call)
		if !ok {
			return nil
		}

		return syntax.At(&syntax.CallStmt{Call: call}, c.around(s.Line(), call))

	case *ast.DoBlockStmt:
		con := c.take(syntax.ConstructDo)
		n := &syntax.Do{Body: c.block(s.Stmts)}

		return syntax.At(n, c.constructSpan(con, s.Line(), n.Body...))

	case *ast.WhileStmt:
		con := c.take(syntax.ConstructWhile)
		n := &syntax.While{Cond: c.expr(s.Condition)}
		n.Body = c.block(s.Stmts)
		n.Keyword = c.doSpan(con)

		return syntax.At(n, c.constructSpan(con, s.Line(), n.Children()...))

	case *ast.RepeatStmt:
		con := c.take(syntax.ConstructRepeat)
		n := &syntax.Repeat{Body: c.block(s.Stmts)}
		n.Cond = c.expr(s.Condition)

		return syntax.At(n, c.constructSpan(con, s.Line(), n.Children()...))

	case *ast.IfStmt:
		return c.ifStmt(s)

	case *ast.NumberForStmt:
		con := c.take(syntax.ConstructFor)
		n := &syntax.NumericFor{Var: s.Name, Start: c.expr(s.Init), Limit: c.expr(s.Limit)}

		if s.Step != nil {
			n.Step = c.expr(s.Step)
		}

		n.Body = c.block(s.Stmts)
		n.Keyword = c.doSpan(con)

		return syntax.At(n, c.constructSpan(con, s.Line(), n.Children()...))

	case *ast.GenericForStmt:
		con := c.take(syntax.ConstructFor)
		n := &syntax.GenericFor{Names: s.Names, Exprs: c.exprs(s.Exprs)}
		n.Body = c.block(s.Stmts)
		n.Keyword = c.doSpan(con)

		return syntax.At(n, c.constructSpan(con, s.Line(), n.Children()...))

	case *ast.FuncDefStmt:
		n := &syntax.FunctionDecl{}
		if s.Name.Func != nil {
			n.Name = c.expr(s.Name.Func)
		} else {
			n.Receiver = c.expr(s.Name.Receiver)
			n.Method = s.Name.Method
		}

		n.Func = c.function(s.Func)

		return syntax.At(n, n.Func.Span())

	case *ast.ReturnStmt:
		n := &syntax.Return{Values: c.exprs(s.Exprs)}

		return syntax.At(n, c.around(s.Line(), n.Values...))

	case *ast.BreakStmt:
		return syntax.At(&syntax.Break{}, c.around(s.Line()))

	case *ast.GotoStmt:
		return syntax.At(&syntax.Goto{Label: s.Label}, c.around(s.Line()))

	case *ast.LabelStmt:
		return syntax.At(&syntax.Label{Name: s.Name}, c.around(s.Line()))
	}

	return nil
}

// localFunction recognizes `local function f` sugar: gopher-lua emits a
// LocalAssignStmt for it and only that form records a last line.
func localFunction(s *ast.LocalAssignStmt) (*ast.FunctionExpr, bool) {
	if s.LastLine() == 0 || len(s.Names) != 1 || len(s.Exprs) != 1 {
		return nil, false
	}

	fe, ok := s.Exprs[0].(*ast.FunctionExpr)

	return fe, ok
}

func (c *converter) tokenBefore(offset int) int {
	return sort.Search(len(c.tokens), func(i int) bool { return c.tokens[i].Offset >= offset }) - 1
}

// ifStmt flattens gopher-lua's elseif chain (nested IfStmts without a last
// line) into clauses. A real `else if` keeps its own IfStmt.
func (c *converter) ifStmt(s *ast.IfStmt) syntax.Node {
	con := c.take(syntax.ConstructIf)
	n := &syntax.If{}

	cur := s
	for {
		clause := &syntax.Clause{Cond: c.expr(cur.Condition)}
		clause.Body = c.block(cur.Then)
		n.Clauses = append(n.Clauses, clause)

		if len(cur.Else) == 1 {
			if next, ok := cur.Else[0].(*ast.IfStmt); ok && next.LastLine() == 0 {
				cur = next
				continue
			}
		}

		n.Else = c.block(cur.Else)

		break
	}

	if con == nil {
		for _, clause := range n.Clauses {
			syntax.At(clause, c.around(s.Line(), clause.Children()...))
		}

		n.HasElse = len(n.Else) > 0

		return syntax.At(n, c.around(s.Line(), n.Children()...))
	}

	for i, clause := range n.Clauses {
		open := con.Open
		if i > 0 && i-1 < len(con.Arms) {
			open = con.Arms[i-1]
		}

		next := con.Close
		if i < len(con.Arms) {
			next = con.Arms[i]
		}

		syntax.At(clause, c.between(open, next))

		if i < len(con.Thens) {
			clause.Keyword = c.tokenSpan(con.Thens[i], -1)
		}
	}

	n.HasElse = con.HasElse(c.tokens)
	if n.HasElse {
		n.ElseSpan = c.between(con.Arms[len(con.Arms)-1], con.Close)
	}

	return syntax.At(n, c.constructSpan(con, s.Line(), n.Children()...))
}

// doSpan locates the `do` of a loop header.
func (c *converter) doSpan(con *syntax.Construct) syntax.Span {
	if con == nil || con.Do < 0 {
		return syntax.Span{}
	}

	return c.tokenSpan(con.Do, -1)
}

// between spans from the start of token open to the start of token next.
func (c *converter) between(open, next int) syntax.Span {
	span := c.tokenSpan(open, -1)
	if next >= 0 && next < len(c.tokens) && c.tokens[next].Offset > span.Start {
		span.End = c.tokens[next].Offset
	}

	return span
}

func (c *converter) function(fe *ast.FunctionExpr) *syntax.FunctionLit {
	con := c.take(syntax.ConstructFunction)
	n := &syntax.FunctionLit{}

	if fe.ParList != nil {
		n.Params = append([]string(nil), fe.ParList.Names...)
		n.Variadic = fe.ParList.HasVargs
	}

	n.Body = c.block(fe.Stmts)

	span := c.constructSpan(con, fe.Line(), n.Body...)
	if con == nil && fe.LastLine() > 0 {
		span = span.Cover(c.index.LineSpan(fe.LastLine(), fe.LastLine()))
	}

	return syntax.At(n, span)
}

func (c *converter) exprs(list []ast.Expr) []syntax.Node {
	out := make([]syntax.Node, 0, len(list))
	for _, e := range list {
		out = append(out, c.expr(e))
	}

	return out
}

//nolint:cyclop,funlen // one case per expression kind
func (c *converter) expr(e ast.Expr) syntax.Node {
	switch e := e.(type) {
	case *ast.NilExpr:
		return syntax.At(&syntax.Literal{Kind: syntax.LitNil, Value: "nil"}, c.around(e.Line()))
	case *ast.TrueExpr:
		return syntax.At(&syntax.Literal{Kind: syntax.LitTrue, Value: "true"}, c.around(e.Line()))
	case *ast.FalseExpr:
		return syntax.At(&syntax.Literal{Kind: syntax.LitFalse, Value: "false"}, c.around(e.Line()))
	case *ast.NumberExpr:
		return syntax.At(&syntax.Literal{Kind: syntax.LitNumber, Value: e.Value}, c.around(e.Line()))
	case *ast.StringExpr:
		return syntax.At(&syntax.Literal{Kind: syntax.LitString, Value: e.Value}, c.around(e.Line()))
	case *ast.Comma3Expr:
		return syntax.At(&syntax.Vararg{}, c.around(e.Line()))
	case *ast.IdentExpr:
		return syntax.At(&syntax.Ident{Name: e.Value}, c.around(e.Line()))
	case *ast.AttrGetExpr:
		n := &syntax.Index{Object: c.expr(e.Object), Key: c.expr(e.Key)}
		return syntax.At(n, c.around(e.Line(), n.Object, n.Key))
	case *ast.TableExpr:
		n := &syntax.Table{}
		for _, f := range e.Fields {
			field := &syntax.Field{}
			if f.Key != nil {
				field.Key = c.expr(f.Key)
			}

			field.Value = c.expr(f.Value)
			n.Fields = append(n.Fields, syntax.At(field, c.around(0, field.Children()...)))
		}

		return syntax.At(n, c.around(e.Line(), n.Children()...))
	case *ast.FuncCallExpr:
		n := &syntax.Call{Method: e.Method}
		if e.Receiver != nil {
			n.Receiver = c.expr(e.Receiver)
		} else {
			n.Fn = c.expr(e.Func)
		}

		n.Args = c.exprs(e.Args)

		return syntax.At(n, c.around(e.Line(), n.Children()...))
	case *ast.LogicalOpExpr:
		op := syntax.And
		if e.Operator == "or" {
			op = syntax.Or
		}

		n := &syntax.Logical{Op: op, Left: c.expr(e.Lhs)}
		n.Right = c.expr(e.Rhs)

		return syntax.At(n, c.around(e.Line(), n.Left, n.Right))
	case *ast.RelationalOpExpr:
		return c.binary(e.Line(), e.Operator, e.Lhs, e.Rhs)
	case *ast.ArithmeticOpExpr:
		return c.binary(e.Line(), e.Operator, e.Lhs, e.Rhs)
	case *ast.StringConcatOpExpr:
		return c.binary(e.Line(), "..", e.Lhs, e.Rhs)
	case *ast.UnaryMinusOpExpr:
		n := &syntax.Unary{Op: "-", X: c.expr(e.Expr)}
		return syntax.At(n, c.around(e.Line(), n.X))
	case *ast.UnaryLenOpExpr:
		n := &syntax.Unary{Op: "#", X: c.expr(e.Expr)}
		return syntax.At(n, c.around(e.Line(), n.X))
	case *ast.UnaryNotOpExpr:
		n := &syntax.Not{X: c.expr(e.Expr)}
		return syntax.At(n, c.around(e.Line(), n.X))
	case *ast.FunctionExpr:
		return c.function(e)
	}

	return syntax.At(&syntax.Literal{Kind: syntax.LitNil, Value: "nil"}, syntax.Span{})
}

func (c *converter) binary(line int, op string, lhs, rhs ast.Expr) syntax.Node {
	n := &syntax.Binary{Op: op, Left: c.expr(lhs)}
	n.Right = c.expr(rhs)

	return syntax.At(n, c.around(line, n.Left, n.Right))
}
