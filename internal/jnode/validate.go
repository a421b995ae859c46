package jnode

import "fmt"

// ValidationError reports a structural invariant violation in a tree.
// Astro-DB treats every ValidationError as fatal: the process aborts
// rather than persist a tree that cannot be safely reparsed.
type ValidationError struct {
	Path string
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("jnode: invalid tree at %s: %s", e.Path, e.Msg)
}

// Validate walks n and returns the first structural violation found,
// or nil if n is well-formed:
//
//   - every Seq child is an Assignment
//   - no List child is an Assignment or Empty
//   - every Assignment has a non-empty name and a value that is
//     neither Empty nor itself an Assignment
func Validate(n Node) error {
	return validate(n, "$")
}

func validate(n Node, path string) error {
	switch n.Kind {
	case KindEmpty, KindNone, KindBool, KindInt, KindFloat, KindString:
		return nil
	case KindList:
		for i, child := range n.items {
			childPath := fmt.Sprintf("%s[%d]", path, i)
			if child.Kind == KindAssignment {
				return &ValidationError{Path: childPath, Msg: "list child must not be an assignment"}
			}
			if child.Kind == KindEmpty {
				return &ValidationError{Path: childPath, Msg: "list child must not be empty"}
			}
			if err := validate(child, childPath); err != nil {
				return err
			}
		}
		return nil
	case KindSeq:
		for i, child := range n.items {
			childPath := fmt.Sprintf("%s{%d}", path, i)
			if child.Kind != KindAssignment {
				return &ValidationError{Path: childPath, Msg: "seq child must be an assignment"}
			}
			if err := validate(child, childPath); err != nil {
				return err
			}
		}
		return nil
	case KindAssignment:
		if n.assignee == "" {
			return &ValidationError{Path: path, Msg: "assignment has no variable name"}
		}
		if n.value == nil {
			return &ValidationError{Path: path, Msg: "assignment has a nil value pointer"}
		}
		if n.value.Kind == KindEmpty {
			return &ValidationError{Path: path + "." + n.assignee, Msg: "assignment value must not be empty"}
		}
		if n.value.Kind == KindAssignment {
			return &ValidationError{Path: path + "." + n.assignee, Msg: "assignment value must not itself be an assignment"}
		}
		return validate(*n.value, path+"."+n.assignee)
	default:
		return &ValidationError{Path: path, Msg: fmt.Sprintf("unknown node kind %d", n.Kind)}
	}
}
