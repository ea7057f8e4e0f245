package domain

import (
	m "gooze.dev/pkg/luacover/internal/model"
	"gooze.dev/pkg/luacover/internal/syntax"
)

// extract decomposes a guard expression into condition records: and/or
// become compound records with two components, not a compound record with
// one, anything else a simple leaf. Records are numbered in pre-order and
// the id of the root is returned.
func (b *mapBuilder) extract(expr syntax.Node) int {
	if expr == nil {
		return m.RootID
	}

	type item struct {
		node   syntax.Node
		parent int
	}

	root := m.RootID
	stack := []item{{node: expr, parent: m.RootID}}

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		line, _ := b.lines(it.node)
		rec := m.ConditionRecord{
			ID:       len(b.cm.Conditions) + 1,
			Kind:     m.ConditionSimple,
			Op:       m.OpNone,
			ParentID: it.parent,
			Line:     line,
			Text:     syntax.Format(it.node),
		}

		switch n := it.node.(type) {
		case *syntax.Logical:
			rec.Kind = m.ConditionCompound
			rec.Op = m.OpAnd

			if n.Op == syntax.Or {
				rec.Op = m.OpOr
			}

			stack = append(stack, item{node: n.Right, parent: rec.ID}, item{node: n.Left, parent: rec.ID})
		case *syntax.Not:
			rec.Kind = m.ConditionCompound
			rec.Op = m.OpNot
			stack = append(stack, item{node: n.X, parent: rec.ID})
		}

		b.cm.Conditions = append(b.cm.Conditions, rec)

		if it.parent == m.RootID {
			root = rec.ID
			continue
		}

		parent := &b.cm.Conditions[it.parent-1]
		parent.Components = append(parent.Components, rec.ID)
	}

	return root
}

// implied returns the outcome the components of c must have had when c
// evaluated to outcome, and whether anything is implied at all. And-true
// makes both components true, or-false makes both false and not flips its
// component. Every other observation implies nothing.
func implied(c *m.ConditionRecord, outcome bool) (value, ok bool) {
	switch c.Op {
	case m.OpAnd:
		return true, outcome
	case m.OpOr:
		return false, !outcome
	case m.OpNot:
		return !outcome, true
	case m.OpNone:
	}

	return false, false
}
