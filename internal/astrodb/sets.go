package astrodb

import (
	"fmt"

	"github.com/antigravity-dev/astrosession/internal/jnode"
)

// Set "stype" tags, all living in the single "sets" list.
const (
	stypeSubexp = "SUBEXP"
	stypeMerge  = "MERGE"
	stypeBVRI   = "BVRI"
	stypeTarget = "TARGET"
)

// AddSubexpSet records a sub-exposure combination request: the list
// of raw exposure JUIDs that should be summed into one effective
// exposure before calibration.
func (s *Store) AddSubexpSet(filter string, directive int64, input []int64) (int64, error) {
	var juid int64
	err := s.withLock(func() error {
		id, err := s.nextJUID(ListSets)
		if err != nil {
			return err
		}
		juid = id

		items, err := s.listFor(ListSets)
		if err != nil {
			return err
		}
		items = append(items, jnode.Seq(
			jnode.Assign("juid", jnode.Int(juid)),
			jnode.Assign("tstamp", jnode.Int(now())),
			jnode.Assign("stype", jnode.String(stypeSubexp)),
			jnode.Assign("filter", jnode.String(filter)),
			jnode.Assign("directive", jnode.Int(directive)),
			jnode.Assign("input", jnode.List(intNodes(input)...)),
		))
		s.setList(ListSets, items)
		return nil
	})
	return juid, err
}

// AddMergeSet records the merge of a stack and a subexp set produced
// from the same directive into one filter's worth of combined data.
// The filter is copied from the referenced subexp set, not passed in,
// since a merge is only ever valid within a single filter.
func (s *Store) AddMergeSet(stack, directive, subexp int64) (int64, error) {
	var juid int64
	err := s.withLock(func() error {
		subexpRec, ok, err := s.findInListLocked(ListSets, subexp)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("astrodb: AddMergeSet: subexp set %d not found", subexp)
		}
		filterVal, _ := subexpRec.Get("filter")

		id, err := s.nextJUID(ListSets)
		if err != nil {
			return err
		}
		juid = id

		items, err := s.listFor(ListSets)
		if err != nil {
			return err
		}
		items = append(items, jnode.Seq(
			jnode.Assign("juid", jnode.Int(juid)),
			jnode.Assign("tstamp", jnode.Int(now())),
			jnode.Assign("stype", jnode.String(stypeMerge)),
			jnode.Assign("filter", filterVal),
			jnode.Assign("directive", jnode.Int(directive)),
			jnode.Assign("stack", jnode.Int(stack)),
			jnode.Assign("subexp", jnode.Int(subexp)),
		))
		s.setList(ListSets, items)
		return nil
	})
	return juid, err
}

// AddBVRISet records a multi-filter photometric ensemble: the set of
// per-filter merge (or subexp) JUIDs that together form one BVRI (or
// subset) observation of a target.
func (s *Store) AddBVRISet(input []int64, directive int64) (int64, error) {
	var juid int64
	err := s.withLock(func() error {
		id, err := s.nextJUID(ListSets)
		if err != nil {
			return err
		}
		juid = id

		items, err := s.listFor(ListSets)
		if err != nil {
			return err
		}
		items = append(items, jnode.Seq(
			jnode.Assign("juid", jnode.Int(juid)),
			jnode.Assign("tstamp", jnode.Int(now())),
			jnode.Assign("stype", jnode.String(stypeBVRI)),
			jnode.Assign("directive", jnode.Int(directive)),
			jnode.Assign("input", jnode.List(intNodes(input)...)),
		))
		s.setList(ListSets, items)
		return nil
	})
	return juid, err
}

// CreateNewTarget idempotently creates (or finds) the TARGET set
// record collecting every JUID produced in service of observing name.
func (s *Store) CreateNewTarget(name string) (int64, error) {
	var juid int64
	err := s.withLock(func() error {
		items, err := s.listFor(ListSets)
		if err != nil {
			return err
		}
		for _, item := range items {
			stype, _ := item.Get("stype")
			nameVal, _ := item.Get("name")
			if stype.StrVal() == stypeTarget && nameVal.StrVal() == name {
				juidVal, _ := item.Get("juid")
				juid = juidVal.IntVal()
				return nil
			}
		}

		id, err := s.nextJUID(ListSets)
		if err != nil {
			return err
		}
		juid = id
		items = append(items, jnode.Seq(
			jnode.Assign("juid", jnode.Int(juid)),
			jnode.Assign("tstamp", jnode.Int(now())),
			jnode.Assign("stype", jnode.String(stypeTarget)),
			jnode.Assign("name", jnode.String(name)),
			jnode.Assign("input", jnode.List()),
		))
		s.setList(ListSets, items)
		return nil
	})
	return juid, err
}

// AddJUIDToTarget appends member to the TARGET set's input list.
func (s *Store) AddJUIDToTarget(targetSet, member int64) error {
	return s.withLock(func() error {
		items, err := s.listFor(ListSets)
		if err != nil {
			return err
		}
		for i, item := range items {
			juidVal, _ := item.Get("juid")
			if juidVal.IntVal() != targetSet {
				continue
			}
			inputVal, _ := item.Get("input")
			members := append(inputVal.Items(), jnode.Int(member))
			items[i] = item.With("input", jnode.List(members...))
			s.setList(ListSets, items)
			return nil
		}
		return fmt.Errorf("astrodb: AddJUIDToTarget: target set %d not found", targetSet)
	})
}

// findInListLocked scans list for juid. Must be called inside a lock
// region (s.mu already held by the caller's withLock).
func (s *Store) findInListLocked(list string, juid int64) (jnode.Node, bool, error) {
	items, err := s.listFor(list)
	if err != nil {
		return jnode.Node{}, false, err
	}
	for _, item := range items {
		if v, ok := item.Get("juid"); ok && v.IntVal() == juid {
			return item, true, nil
		}
	}
	return jnode.Node{}, false, nil
}

func intNodes(vals []int64) []jnode.Node {
	out := make([]jnode.Node, len(vals))
	for i, v := range vals {
		out[i] = jnode.Int(v)
	}
	return out
}
