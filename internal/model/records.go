package model

// RootID is the parent id of top-level blocks and conditions.
const RootID = 0

// Classification is the static category of a source line.
type Classification int

const (
	// NonExecutable lines are blank or hold no code (e.g. inside a long string).
	NonExecutable Classification = iota
	// Executable lines contain code that can run.
	Executable
	// Comment lines contain only comment text.
	Comment
)

func (c Classification) String() string {
	switch c {
	case Executable:
		return "executable"
	case Comment:
		return "comment"
	case NonExecutable:
		return "non_executable"
	}

	return "unknown"
}

// LineRecord tracks one source line.
// Invariant: Covered implies Executed implies Class == Executable.
type LineRecord struct {
	Number   int
	Class    Classification
	Executed bool
	Covered  bool
	Count    int64
}

// FunctionKind classifies a function by its declaration shape.
type FunctionKind string

const (
	// FunctionGlobal is assigned to a global name: `function f()` / `f = function()`.
	FunctionGlobal FunctionKind = "global"
	// FunctionLocal is declared with `local`.
	FunctionLocal FunctionKind = "local"
	// FunctionMethod uses `:` sugar or takes `self` first.
	FunctionMethod FunctionKind = "method"
	// FunctionModule is assigned into a table: `function M.f()` / `M.f = function()`.
	FunctionModule FunctionKind = "module"
	// FunctionAnonymous is an inline function literal.
	FunctionAnonymous FunctionKind = "anonymous"
)

// FunctionRecord tracks one function literal.
type FunctionRecord struct {
	ID        int
	Kind      FunctionKind
	Name      string
	StartLine int
	EndLine   int
	Params    []string
	Variadic  bool
	BlockID   int // body block

	Executed bool
	Covered  bool
	Count    int64
}

// BlockKind classifies a structural block.
type BlockKind string

const (
	BlockConditional BlockKind = "conditional"
	BlockWhile       BlockKind = "loop_while"
	BlockRepeat      BlockKind = "loop_repeat"
	BlockFor         BlockKind = "loop_for"
	BlockFunction    BlockKind = "function"
	BlockDo          BlockKind = "do"
	BlockThen        BlockKind = "branch_then"
	BlockElse        BlockKind = "branch_else"
)

// BlockRecord tracks one block. Children holds nested blocks in source
// order; Branches holds the then/else bodies of a conditional.
type BlockRecord struct {
	ID         int
	Kind       BlockKind
	StartLine  int
	EndLine    int
	ParentID   int
	Children   []int
	Branches   []int
	Conditions []int

	Executed bool
	Count    int64
}

// Contains reports whether line lies within the block.
func (b *BlockRecord) Contains(line int) bool {
	return line >= b.StartLine && line <= b.EndLine
}

// ConditionKind distinguishes leaf conditions from and/or/not combinations.
type ConditionKind string

const (
	ConditionSimple   ConditionKind = "simple"
	ConditionCompound ConditionKind = "compound"
)

// Operator is the boolean operator of a compound condition.
type Operator string

const (
	OpNone Operator = "none"
	OpAnd  Operator = "and"
	OpOr   Operator = "or"
	OpNot  Operator = "not"
)

// ConditionRecord tracks one boolean (sub-)expression.
// TrueInferred/FalseInferred are set while the matching outcome has only been
// derived from a parent's outcome and never observed directly.
type ConditionRecord struct {
	ID         int
	Kind       ConditionKind
	Op         Operator
	ParentID   int
	Components []int
	Line       int
	Text       string

	Executed      bool
	TrueCount     int64
	FalseCount    int64
	TrueInferred  bool
	FalseInferred bool
}

// FullyCovered reports whether both outcomes were seen.
func (c *ConditionRecord) FullyCovered() bool {
	return c.TrueCount > 0 && c.FalseCount > 0
}
