package syntax

// Node is a parse tree node. The set of implementations is closed: every
// kind is declared in this file and consumers dispatch with a type switch.
type Node interface {
	Span() Span
	Children() []Node
	node()
}

type base struct {
	span Span
}

func (b base) Span() Span { return b.span }
func (base) node()        {}

// At sets the span of a node under construction.
func At[T interface{ setSpan(Span) }](n T, span Span) T {
	n.setSpan(span)
	return n
}

func (b *base) setSpan(span Span) { b.span = span }

// Chunk is the root of a file.
type Chunk struct {
	base
	Body []Node
}

func (n *Chunk) Children() []Node { return n.Body }

// Do is a `do ... end` block.
type Do struct {
	base
	Body []Node
}

func (n *Do) Children() []Node { return n.Body }

// Clause is one `if`/`elseif` arm: its guard and body.
type Clause struct {
	base
	Cond Node
	Body []Node
	// BodySpan covers the statements of the arm, from the line after the
	// header keyword to the line before the next arm.
	BodySpan Span
	// Keyword is the arm's `then`; empty when it was not located.
	Keyword Span
}

func (n *Clause) Children() []Node { return prepend(n.Cond, n.Body) }

// If is an if statement with one or more clauses and an optional else arm.
type If struct {
	base
	Clauses  []*Clause
	Else     []Node
	HasElse  bool
	ElseSpan Span
}

func (n *If) Children() []Node {
	out := make([]Node, 0, len(n.Clauses)+len(n.Else))
	for _, c := range n.Clauses {
		out = append(out, c)
	}

	return append(out, n.Else...)
}

// While is a `while cond do ... end` loop.
type While struct {
	base
	Cond    Node
	Body    []Node
	Keyword Span // `do`
}

func (n *While) Children() []Node { return prepend(n.Cond, n.Body) }

// Repeat is a `repeat ... until cond` loop.
type Repeat struct {
	base
	Body []Node
	Cond Node
}

func (n *Repeat) Children() []Node { return append(append([]Node{}, n.Body...), n.Cond) }

// NumericFor is `for v = start, limit[, step] do ... end`.
type NumericFor struct {
	base
	Var   string
	Start Node
	Limit Node
	Step  Node // may be nil
	Body  []Node
	// Keyword is the header's `do`.
	Keyword Span
}

func (n *NumericFor) Children() []Node {
	out := []Node{n.Start, n.Limit}
	if n.Step != nil {
		out = append(out, n.Step)
	}

	return append(out, n.Body...)
}

// GenericFor is `for k, v in exprs do ... end`.
type GenericFor struct {
	base
	Names []string
	Exprs []Node
	Body  []Node
	// Keyword is the header's `do`.
	Keyword Span
}

func (n *GenericFor) Children() []Node { return append(append([]Node{}, n.Exprs...), n.Body...) }

// FunctionDecl is `function name() ... end`. Name is an Ident or Index for
// plain and dotted names; method declarations (`function recv:m()`) set
// Receiver and Method instead.
type FunctionDecl struct {
	base
	Name     Node
	Receiver Node
	Method   string
	Func     *FunctionLit
}

func (n *FunctionDecl) Children() []Node {
	head := n.Name
	if head == nil {
		head = n.Receiver
	}

	return prepend(head, []Node{n.Func})
}

// LocalFunction is `local function name(...) ... end`.
type LocalFunction struct {
	base
	Name string
	Func *FunctionLit
}

func (n *LocalFunction) Children() []Node { return []Node{n.Func} }

// Assign is `targets = values`, including `function a.b() end` sugar.
type Assign struct {
	base
	Targets []Node
	Values  []Node
}

func (n *Assign) Children() []Node { return append(append([]Node{}, n.Targets...), n.Values...) }

// Local is `local names = values`.
type Local struct {
	base
	Names  []string
	Values []Node
}

func (n *Local) Children() []Node { return n.Values }

// CallStmt is a function call used as a statement.
type CallStmt struct {
	base
	Call *Call
}

func (n *CallStmt) Children() []Node { return []Node{n.Call} }

// Return is `return values`.
type Return struct {
	base
	Values []Node
}

func (n *Return) Children() []Node { return n.Values }

// Break is `break`.
type Break struct{ base }

func (n *Break) Children() []Node { return nil }

// Goto is `goto label`.
type Goto struct {
	base
	Label string
}

func (n *Goto) Children() []Node { return nil }

// Label is `::name::`.
type Label struct {
	base
	Name string
}

func (n *Label) Children() []Node { return nil }

// Ident is a name reference.
type Ident struct {
	base
	Name string
}

func (n *Ident) Children() []Node { return nil }

// Index is `object[key]` or `object.key`.
type Index struct {
	base
	Object Node
	Key    Node
}

func (n *Index) Children() []Node { return []Node{n.Object, n.Key} }

// LiteralKind classifies constant expressions.
type LiteralKind int

const (
	LitNil LiteralKind = iota
	LitTrue
	LitFalse
	LitNumber
	LitString
)

// Literal is a constant.
type Literal struct {
	base
	Kind  LiteralKind
	Value string
}

func (n *Literal) Children() []Node { return nil }

// Vararg is `...`.
type Vararg struct{ base }

func (n *Vararg) Children() []Node { return nil }

// Call is `fn(args)` or `receiver:method(args)`.
type Call struct {
	base
	Fn       Node // nil for method calls
	Receiver Node // nil for plain calls
	Method   string
	Args     []Node
}

func (n *Call) Children() []Node {
	head := n.Fn
	if head == nil {
		head = n.Receiver
	}

	return prepend(head, n.Args)
}

// FunctionLit is a function body with its parameter list.
type FunctionLit struct {
	base
	Params   []string
	Variadic bool
	Body     []Node
}

func (n *FunctionLit) Children() []Node { return n.Body }

// Field is one entry of a table constructor. Key is nil for positional fields.
type Field struct {
	base
	Key   Node
	Value Node
}

func (n *Field) Children() []Node {
	if n.Key == nil {
		return []Node{n.Value}
	}

	return []Node{n.Key, n.Value}
}

// Table is a `{ ... }` constructor.
type Table struct {
	base
	Fields []*Field
}

func (n *Table) Children() []Node {
	out := make([]Node, len(n.Fields))
	for i, f := range n.Fields {
		out[i] = f
	}

	return out
}

// LogicalOp is the operator of a Logical node.
type LogicalOp int

const (
	And LogicalOp = iota
	Or
)

func (op LogicalOp) String() string {
	if op == And {
		return "and"
	}

	return "or"
}

// Logical is `left and right` / `left or right`.
type Logical struct {
	base
	Op    LogicalOp
	Left  Node
	Right Node
}

func (n *Logical) Children() []Node { return []Node{n.Left, n.Right} }

// Not is `not x`.
type Not struct {
	base
	X Node
}

func (n *Not) Children() []Node { return []Node{n.X} }

// Binary is a relational, arithmetic or concatenation expression.
type Binary struct {
	base
	Op    string
	Left  Node
	Right Node
}

func (n *Binary) Children() []Node { return []Node{n.Left, n.Right} }

// Unary is `-x` or `#x`.
type Unary struct {
	base
	Op string
	X  Node
}

func (n *Unary) Children() []Node { return []Node{n.X} }

func prepend(head Node, rest []Node) []Node {
	out := make([]Node, 0, len(rest)+1)
	if head != nil {
		out = append(out, head)
	}

	return append(out, rest...)
}

// Walk visits root and its descendants depth-first in source order using an
// explicit stack. Returning false from visit skips the node's children.
func Walk(root Node, visit func(Node) bool) {
	if root == nil {
		return
	}

	stack := []Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n == nil || !visit(n) {
			continue
		}

		children := n.Children()
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}
