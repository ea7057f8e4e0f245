package model

// Rewrite is the outcome of instrumenting one file. When Strategy is
// StrategyHook the file fell back to runtime hooks, Source is the original
// content and Reason says why.
type Rewrite struct {
	Path     Path
	Hash     string
	Source   []byte
	Strategy Strategy
	Reason   string
	// Inserted counts the tracking calls added to the source.
	Inserted int
}

// Instrumented reports whether Source differs from the original content.
func (r *Rewrite) Instrumented() bool {
	return r != nil && r.Strategy == StrategyInstrument
}
