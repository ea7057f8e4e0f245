package domain

import (
	"errors"
	"fmt"

	m "gooze.dev/pkg/luacover/internal/model"
	"gooze.dev/pkg/luacover/internal/syntax"
)

// Analyzer derives the code map of a file from its syntax tree.
type Analyzer interface {
	BuildCodeMap(tree *syntax.Chunk, content []byte) (*m.CodeMap, error)
}

type analyzer struct{}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer() Analyzer {
	return &analyzer{}
}

func (a *analyzer) BuildCodeMap(tree *syntax.Chunk, content []byte) (*m.CodeMap, error) {
	if tree == nil {
		return nil, m.NewError(m.KindValidation, "", 0, errors.New("missing syntax tree"))
	}

	index, err := syntax.NewLineIndex(content)
	if err != nil {
		return nil, fmt.Errorf("index lines: %w", err)
	}

	b := &mapBuilder{
		index: index,
		cm: &m.CodeMap{
			StatementLines:  make(map[int]bool),
			Guards:          make(map[int]m.Guard),
			Entries:         make(map[int][]int),
			Continuations:   make(map[int][]int),
			FunctionOffsets: make(map[int]int),
		},
	}
	b.run(tree)

	return b.cm, nil
}

// naming is the declaration context handed down to a function literal.
type naming struct {
	name string
	kind m.FunctionKind
}

type task struct {
	node  syntax.Node
	block int  // innermost enclosing block, RootID at top level
	stmt  bool // node is a statement of a body
	name  naming
}

type mapBuilder struct {
	index *syntax.LineIndex
	cm    *m.CodeMap
	stack []task
}

func (b *mapBuilder) lines(n syntax.Node) (int, int) {
	return b.index.Lines(n.Span())
}

func (b *mapBuilder) push(t task) {
	if t.node != nil {
		b.stack = append(b.stack, t)
	}
}

// pushBody schedules statements so they pop in source order.
func (b *mapBuilder) pushBody(body []syntax.Node, block int) {
	for i := len(body) - 1; i >= 0; i-- {
		b.push(task{node: body[i], block: block, stmt: true})
	}
}

func (b *mapBuilder) pushExprs(block int, nodes ...syntax.Node) {
	for i := len(nodes) - 1; i >= 0; i-- {
		b.push(task{node: nodes[i], block: block})
	}
}

func (b *mapBuilder) run(root *syntax.Chunk) {
	b.pushBody(root.Body, m.RootID)

	for len(b.stack) > 0 {
		t := b.stack[len(b.stack)-1]
		b.stack = b.stack[:len(b.stack)-1]

		if t.stmt {
			b.statement(t.node)
		}

		b.visit(t)
	}
}

//nolint:cyclop // one case per node kind
func (b *mapBuilder) visit(t task) {
	switch n := t.node.(type) {
	case *syntax.If:
		b.ifStmt(n, t.block)
	case *syntax.While:
		b.whileStmt(n, t.block)
	case *syntax.Repeat:
		b.repeatStmt(n, t.block)
	case *syntax.NumericFor:
		b.forStmt(n, n.Body, n.Keyword, t.block, n.Start, n.Limit, n.Step)
	case *syntax.GenericFor:
		b.forStmt(n, n.Body, n.Keyword, t.block, n.Exprs...)
	case *syntax.Do:
		first, last := b.lines(n)
		id := b.addBlock(m.BlockDo, first, last, t.block)
		b.bodyEntry(n.Body, first, id)
		b.pushBody(n.Body, id)
	case *syntax.FunctionLit:
		b.function(n, t.block, t.name)
	case *syntax.FunctionDecl:
		b.push(task{node: n.Func, block: t.block, name: declNaming(n)})
	case *syntax.LocalFunction:
		b.push(task{node: n.Func, block: t.block, name: naming{name: n.Name, kind: m.FunctionLocal}})
	case *syntax.Local:
		for i := len(n.Values) - 1; i >= 0; i-- {
			nm := naming{kind: m.FunctionAnonymous}
			if i < len(n.Names) {
				nm = naming{name: n.Names[i], kind: m.FunctionLocal}
			}

			b.push(task{node: n.Values[i], block: t.block, name: nm})
		}
	case *syntax.Assign:
		for i := len(n.Values) - 1; i >= 0; i-- {
			nm := naming{kind: m.FunctionAnonymous}
			if i < len(n.Targets) {
				nm = targetNaming(n.Targets[i])
			}

			b.push(task{node: n.Values[i], block: t.block, name: nm})
		}

		b.pushExprs(t.block, n.Targets...)
	case *syntax.Field:
		nm := naming{kind: m.FunctionAnonymous}
		if key, ok := n.Key.(*syntax.Literal); ok && key.Kind == syntax.LitString {
			nm.name = key.Value
		}

		b.push(task{node: n.Value, block: t.block, name: nm})
		b.pushExprs(t.block, n.Key)
	default:
		b.pushExprs(t.block, t.node.Children()...)
	}
}

func declNaming(n *syntax.FunctionDecl) naming {
	if n.Receiver != nil {
		return naming{name: syntax.Format(n.Receiver) + ":" + n.Method, kind: m.FunctionMethod}
	}

	return targetNaming(n.Name)
}

func targetNaming(target syntax.Node) naming {
	switch target.(type) {
	case *syntax.Ident:
		return naming{name: syntax.Format(target), kind: m.FunctionGlobal}
	case *syntax.Index:
		return naming{name: syntax.Format(target), kind: m.FunctionModule}
	}

	return naming{kind: m.FunctionAnonymous}
}

// statement records the layout facts of one statement.
func (b *mapBuilder) statement(n syntax.Node) {
	first, last := b.lines(n)
	b.cm.StatementLines[first] = true

	switch n := n.(type) {
	case *syntax.Return:
		b.cm.ReturnSpans = append(b.cm.ReturnSpans, [2]int{first, last})
		b.continuation(first, last, n)
	case *syntax.Assign, *syntax.Local, *syntax.CallStmt, *syntax.Break, *syntax.Goto, *syntax.Label:
		b.continuation(first, last, n)
	}
}

// continuation maps anchor to the lines up to last that belong to nodes,
// leaving out the inside of nested function bodies.
func (b *mapBuilder) continuation(anchor, last int, nodes ...syntax.Node) {
	if last <= anchor {
		return
	}

	var bodies [][2]int

	for _, node := range nodes {
		syntax.Walk(node, func(n syntax.Node) bool {
			if fn, ok := n.(*syntax.FunctionLit); ok {
				s, e := b.lines(fn)
				bodies = append(bodies, [2]int{s, e})

				return false
			}

			return true
		})
	}

	for line := anchor + 1; line <= last; line++ {
		inside := false

		for _, body := range bodies {
			if line > body[0] && line < body[1] {
				inside = true
				break
			}
		}

		if !inside {
			b.cm.Continuations[anchor] = append(b.cm.Continuations[anchor], line)
		}
	}
}

func (b *mapBuilder) addBlock(kind m.BlockKind, first, last, parent int) int {
	id := len(b.cm.Blocks) + 1
	b.cm.Blocks = append(b.cm.Blocks, m.BlockRecord{
		ID:        id,
		Kind:      kind,
		StartLine: first,
		EndLine:   last,
		ParentID:  parent,
	})

	if parent != m.RootID {
		p := &b.cm.Blocks[parent-1]
		p.Children = append(p.Children, id)
	}

	return id
}

func (b *mapBuilder) block(id int) *m.BlockRecord {
	return &b.cm.Blocks[id-1]
}

func (b *mapBuilder) entry(line, block int) {
	b.cm.Entries[line] = append(b.cm.Entries[line], block)
}

// bodyEntry registers the first statement of body as the block's entry
// line. A body starting on the header line cannot be told apart from the
// header and gets none.
func (b *mapBuilder) bodyEntry(body []syntax.Node, headerEnd, block int) (int, int, bool) {
	if len(body) == 0 {
		return 0, 0, false
	}

	start, _ := b.lines(body[0])
	_, end := b.lines(body[len(body)-1])

	if start <= headerEnd {
		return start, end, false
	}

	b.entry(start, block)

	return start, end, true
}

func (b *mapBuilder) guard(g m.Guard) {
	if _, taken := b.cm.Guards[g.HeaderStart]; !taken {
		b.cm.Guards[g.HeaderStart] = g
	}
}

func (b *mapBuilder) lastLine(line int, nodes ...syntax.Node) int {
	for _, n := range nodes {
		if n == nil {
			continue
		}

		if _, e := b.lines(n); e > line {
			line = e
		}
	}

	return line
}

// keywordLine extends a header ending on line to the line of its closing
// keyword, so a `then` or `do` on a line of its own runs with the header.
func (b *mapBuilder) keywordLine(line int, keyword syntax.Span) int {
	if keyword.Empty() {
		return line
	}

	if _, end := b.index.Lines(keyword); end > line {
		return end
	}

	return line
}

func (b *mapBuilder) ifStmt(n *syntax.If, parent int) {
	first, last := b.lines(n)
	cond := b.addBlock(m.BlockConditional, first, last, parent)
	b.entry(first, cond)

	thens := make([]int, len(n.Clauses))

	for i, clause := range n.Clauses {
		start, end := b.lines(clause)
		headerEnd := b.lastLine(start, clause.Cond)
		keywordEnd := b.keywordLine(headerEnd, clause.Keyword)
		b.continuation(start, keywordEnd, clause.Cond)

		condID := b.extract(clause.Cond)
		b.block(cond).Conditions = append(b.block(cond).Conditions, condID)

		then := b.addBlock(m.BlockThen, start, end, cond)
		b.block(cond).Branches = append(b.block(cond).Branches, then)
		thens[i] = then

		if bodyStart, bodyEnd, ok := b.bodyEntry(clause.Body, keywordEnd, then); ok {
			b.guard(m.Guard{
				ConditionID: condID,
				BlockID:     then,
				HeaderStart: start,
				HeaderEnd:   headerEnd,
				BodyStart:   bodyStart,
				BodyEnd:     bodyEnd,
			})
		}
	}

	if n.HasElse {
		start, end := b.elseLines(n)
		els := b.addBlock(m.BlockElse, start, end, cond)
		b.block(cond).Branches = append(b.block(cond).Branches, els)
		b.bodyEntry(n.Else, start, els)
		b.pushBody(n.Else, els)
	}

	for i := len(n.Clauses) - 1; i >= 0; i-- {
		b.pushBody(n.Clauses[i].Body, thens[i])
		b.pushExprs(cond, n.Clauses[i].Cond)
	}
}

func (b *mapBuilder) elseLines(n *syntax.If) (int, int) {
	if !n.ElseSpan.Empty() {
		return b.index.Lines(n.ElseSpan)
	}

	_, last := b.lines(n)
	if len(n.Else) == 0 {
		return last, last
	}

	first, _ := b.lines(n.Else[0])

	return first, b.lastLine(first, n.Else...)
}

func (b *mapBuilder) whileStmt(n *syntax.While, parent int) {
	first, last := b.lines(n)
	id := b.addBlock(m.BlockWhile, first, last, parent)

	headerEnd := b.lastLine(first, n.Cond)
	keywordEnd := b.keywordLine(headerEnd, n.Keyword)
	b.continuation(first, keywordEnd, n.Cond)

	condID := b.extract(n.Cond)
	b.block(id).Conditions = append(b.block(id).Conditions, condID)

	if bodyStart, bodyEnd, ok := b.bodyEntry(n.Body, keywordEnd, id); ok {
		b.guard(m.Guard{
			ConditionID: condID,
			BlockID:     id,
			HeaderStart: first,
			HeaderEnd:   headerEnd,
			BodyStart:   bodyStart,
			BodyEnd:     bodyEnd,
		})
	}

	b.pushBody(n.Body, id)
	b.pushExprs(id, n.Cond)
}

func (b *mapBuilder) repeatStmt(n *syntax.Repeat, parent int) {
	first, last := b.lines(n)
	id := b.addBlock(m.BlockRepeat, first, last, parent)

	condStart, condEnd := b.lines(n.Cond)
	b.continuation(condStart, condEnd, n.Cond)

	condID := b.extract(n.Cond)
	b.block(id).Conditions = append(b.block(id).Conditions, condID)

	bodyStart, bodyEnd, ok := b.bodyEntry(n.Body, first, id)
	if ok && bodyEnd < condStart {
		b.guard(m.Guard{
			ConditionID: condID,
			BlockID:     id,
			HeaderStart: condStart,
			HeaderEnd:   condEnd,
			BodyStart:   bodyStart,
			BodyEnd:     bodyEnd,
			Repeat:      true,
		})
	}

	b.pushExprs(id, n.Cond)
	b.pushBody(n.Body, id)
}

func (b *mapBuilder) forStmt(n syntax.Node, body []syntax.Node, keyword syntax.Span, parent int, header ...syntax.Node) {
	first, last := b.lines(n)
	id := b.addBlock(m.BlockFor, first, last, parent)

	headerEnd := b.keywordLine(b.lastLine(first, header...), keyword)
	b.continuation(first, headerEnd, header...)
	b.bodyEntry(body, headerEnd, id)

	b.pushBody(body, id)
	b.pushExprs(id, header...)
}

func (b *mapBuilder) function(n *syntax.FunctionLit, parent int, nm naming) {
	first, last := b.lines(n)
	id := b.addBlock(m.BlockFunction, first, last, parent)

	kind := nm.kind
	if kind == "" {
		kind = m.FunctionAnonymous
	}

	if len(n.Params) > 0 && n.Params[0] == "self" {
		kind = m.FunctionMethod
	}

	fnID := len(b.cm.Functions) + 1
	b.cm.FunctionOffsets[n.Span().Start] = fnID

	b.cm.Functions = append(b.cm.Functions, m.FunctionRecord{
		ID:        fnID,
		Kind:      kind,
		Name:      nm.name,
		StartLine: first,
		EndLine:   last,
		Params:    append([]string(nil), n.Params...),
		Variadic:  n.Variadic,
		BlockID:   id,
	})

	b.pushBody(n.Body, id)
}
