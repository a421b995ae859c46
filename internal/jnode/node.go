// Package jnode implements the tagged-variant JSON tree the Astro-DB
// document is built from. It exists because the document's invariants
// (ordered key/value assignments, no implicit nulls, a distinction
// between "not yet set" and "explicitly null") are not expressible
// with encoding/json's map[string]any decoding, which neither
// preserves key order nor distinguishes those two states.
package jnode

import "fmt"

// Kind tags the variant a Node holds.
type Kind int

const (
	// KindEmpty is the zero value: a placeholder that has not been
	// assigned a real value yet. It is never legal inside a List or as
	// an Assignment's value once the tree is considered complete.
	KindEmpty Kind = iota
	KindNone       // explicit JSON null
	KindBool
	KindInt
	KindFloat
	KindString
	KindList       // ordered, arbitrary-kind children (never Assignment/Empty)
	KindSeq        // ordered, Assignment-only children (a JSON object)
	KindAssignment // a (name, value) pair; only valid as a Seq child
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "EMPTY"
	case KindNone:
		return "NONE"
	case KindBool:
		return "BOOL"
	case KindInt:
		return "INT"
	case KindFloat:
		return "FLOAT"
	case KindString:
		return "STRING"
	case KindList:
		return "LIST"
	case KindSeq:
		return "SEQ"
	case KindAssignment:
		return "ASSIGNMENT"
	default:
		return "UNKNOWN"
	}
}

// Node is a single element of the Astro-DB tree.
type Node struct {
	Kind Kind

	boolVal  bool
	intVal   int64
	floatVal float64
	strVal   string

	items    []Node // KindList, KindSeq
	assignee string // KindAssignment
	value    *Node  // KindAssignment
}

// Empty returns the uninitialized sentinel node.
func Empty() Node { return Node{Kind: KindEmpty} }

// None returns an explicit-null node.
func None() Node { return Node{Kind: KindNone} }

// Bool returns a boolean leaf.
func Bool(b bool) Node { return Node{Kind: KindBool, boolVal: b} }

// Int returns an integer leaf.
func Int(i int64) Node { return Node{Kind: KindInt, intVal: i} }

// Float returns a float leaf.
func Float(f float64) Node { return Node{Kind: KindFloat, floatVal: f} }

// String returns a string leaf.
func String(s string) Node { return Node{Kind: KindString, strVal: s} }

// List returns a list node over the given items, cloned to avoid
// aliasing the caller's backing array.
func List(items ...Node) Node {
	cp := make([]Node, len(items))
	copy(cp, items)
	return Node{Kind: KindList, items: cp}
}

// Seq returns an object node over the given assignments. Panics if any
// child is not a KindAssignment, since that violates the tree
// invariant at construction time rather than letting it surface later
// during Validate.
func Seq(assignments ...Node) Node {
	for _, a := range assignments {
		if a.Kind != KindAssignment {
			panic(fmt.Sprintf("jnode.Seq: child must be an Assignment, got %s", a.Kind))
		}
	}
	cp := make([]Node, len(assignments))
	copy(cp, assignments)
	return Node{Kind: KindSeq, items: cp}
}

// Assign builds a (name, value) pair for use inside a Seq.
func Assign(name string, value Node) Node {
	v := value
	return Node{Kind: KindAssignment, assignee: name, value: &v}
}

// BoolVal, IntVal, FloatVal, StrVal return the leaf payload; callers
// must check Kind first.
func (n Node) BoolVal() bool     { return n.boolVal }
func (n Node) IntVal() int64     { return n.intVal }
func (n Node) FloatVal() float64 { return n.floatVal }
func (n Node) StrVal() string    { return n.strVal }

// Items returns the children of a List or Seq node (nil otherwise).
func (n Node) Items() []Node { return n.items }

// Name returns the key of an Assignment node.
func (n Node) Name() string { return n.assignee }

// Value returns the value of an Assignment node, or nil if n is not an
// Assignment.
func (n Node) Value() *Node { return n.value }

// Get returns the value assigned to key within a Seq node, and whether
// it was found.
func (n Node) Get(key string) (Node, bool) {
	if n.Kind != KindSeq {
		return Node{}, false
	}
	for _, child := range n.items {
		if child.Kind == KindAssignment && child.assignee == key {
			return *child.value, true
		}
	}
	return Node{}, false
}

// With returns a copy of the Seq n with key set to value, replacing an
// existing assignment of the same name if present or appending
// otherwise. n is not mutated.
func (n Node) With(key string, value Node) Node {
	if n.Kind != KindSeq {
		panic("jnode.Node.With: receiver is not a Seq")
	}
	out := make([]Node, 0, len(n.items)+1)
	replaced := false
	for _, child := range n.items {
		if child.Kind == KindAssignment && child.assignee == key {
			out = append(out, Assign(key, value))
			replaced = true
			continue
		}
		out = append(out, child)
	}
	if !replaced {
		out = append(out, Assign(key, value))
	}
	return Node{Kind: KindSeq, items: out}
}

// Equal reports deep structural equality, used by the write-read
// round-trip test property.
func Equal(a, b Node) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindEmpty, KindNone:
		return true
	case KindBool:
		return a.boolVal == b.boolVal
	case KindInt:
		return a.intVal == b.intVal
	case KindFloat:
		return a.floatVal == b.floatVal
	case KindString:
		return a.strVal == b.strVal
	case KindList, KindSeq:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindAssignment:
		if a.assignee != b.assignee {
			return false
		}
		return Equal(*a.value, *b.value)
	default:
		return false
	}
}
