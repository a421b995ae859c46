// Package action implements the Observing Action (OA) model: the
// atomic schedulable unit, tagged over five behavioral kinds, plus the
// factory that expands a strategy's `OBSERVE=` lines into concrete
// actions (spec.md §3, §4.5).
//
// Grounded on internal/jnode's Kind-tagged variant (a small closed enum
// plus kind-specific fields held alongside, never a separate type per
// kind) and internal/workflow's Registry lookup-by-name pattern,
// generalized to a process-global OA table keyed by monotonically
// issued id (spec.md §3's "indexed by id in a process-global map").
package action

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/antigravity-dev/astrosession/internal/strategy"
	"github.com/antigravity-dev/astrosession/internal/visibility"
)

// Kind tags the OA variant.
type Kind int

const (
	KindTimeSeq Kind = iota
	KindQuick
	KindScript
	KindDark
	KindFlat
)

func (k Kind) String() string {
	switch k {
	case KindTimeSeq:
		return "TimeSeq"
	case KindQuick:
		return "Quick"
	case KindScript:
		return "Script"
	case KindDark:
		return "Dark"
	case KindFlat:
		return "Flat"
	default:
		return "UNKNOWN"
	}
}

// firstOAID is the monotonic id sequence's starting value, spec.md §3.
const firstOAID = 0x1000

// QuickState is the Quick kind's per-action state: the set-number
// counter, which executor.DefaultRunner.executeQuick increments after
// each successful execution (scheduler placement does not touch it).
// DryRun is not read anywhere in this module.
type QuickState struct {
	SetNumber int
	DryRun    bool
}

// Action is one Observing Action. Kind-specific fields are carried
// directly on the struct (mirroring jnode.Node's tagged-union shape)
// rather than split into five wrapper types, since every field here is
// read by the scheduler and executor regardless of kind.
type Action struct {
	ID    int
	Kind  Kind
	Group []string

	StaticPriority  float64
	SessionPriority float64

	Strategy *strategy.Strategy // nil for Dark/Flat

	// Location is the strategy's resolved sky position, filled in by
	// the session when it binds a strategy's object name against the
	// object catalog (spec.md §4.4's "a reference to the session's
	// object catalog resolves object_location"); nil for Dark/Flat.
	Location *visibility.DecRA

	PlanningDuration float64 // seconds

	// TimeSeq
	StartJD, EndJD float64
	// Quick
	CadenceSeconds float64
	Quick          QuickState

	// per-kind interval last assigned by the scheduler, used by
	// strategy scoring (original's ObsInterval / SetInterval).
	ScheduledStartJD, ScheduledEndJD float64
}

// Table is the process-global id-indexed OA registry, spec.md §3's
// "indexed by id in a process-global map ... never freed during a
// session."
type Table struct {
	byID  map[int]*Action
	order []int
	next  int
}

// NewTable creates an empty OA table whose ids start at 0x1000.
func NewTable() *Table {
	return &Table{byID: map[int]*Action{}, next: firstOAID}
}

func (t *Table) add(a *Action) *Action {
	a.ID = t.next
	t.next++
	t.byID[a.ID] = a
	t.order = append(t.order, a.ID)
	return a
}

// Get looks up an action by id.
func (t *Table) Get(id int) (*Action, bool) {
	a, ok := t.byID[id]
	return a, ok
}

// All returns every action in creation order.
func (t *Table) All() []*Action {
	out := make([]*Action, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}

// Clone returns a scheduled copy of a, per spec.md §3: "cloned into a
// scheduled copy when placed into a plan." The clone keeps the
// original's id; it is not re-registered in any table.
func (a *Action) Clone() *Action {
	cp := *a
	cp.Group = append([]string(nil), a.Group...)
	return &cp
}

// observeLine is one parsed `OBSERVE=` value.
type observeLine struct {
	groups     []string
	descriptors []actionDescriptor
	priority   float64 // 0 means "unset"
}

type actionDescriptor struct {
	name  string
	param string
}

// ExpandStrategy parses every OBSERVE= line on s (defaulting to a bare
// Script() in the "lpv" group when none are present, spec.md §4.5) and
// appends the resulting actions to t, tagged with s and group
// membership. Session-level group subscription/priority is applied
// later by the session package when it reads SCHED_INCLUDE.
func ExpandStrategy(t *Table, s *strategy.Strategy, sessionStartJD, sessionEndJD float64) ([]*Action, error) {
	lines := s.ObserveLines
	if len(lines) == 0 {
		lines = []string{"lpv,Script()"}
	}

	var out []*Action
	for _, raw := range lines {
		ol, err := parseObserveLine(raw)
		if err != nil {
			return nil, fmt.Errorf("action: %s: OBSERVE %q: %w", s.ObjectID, raw, err)
		}
		for _, d := range ol.descriptors {
			expanded, err := expandDescriptor(t, s, ol, d, sessionStartJD, sessionEndJD)
			if err != nil {
				return nil, fmt.Errorf("action: %s: OBSERVE %q: %w", s.ObjectID, raw, err)
			}
			out = append(out, expanded...)
		}
	}
	return out, nil
}

// parseObserveLine splits `group_or_group_list,action(param)[,action(param)]*[,priority]`.
func parseObserveLine(raw string) (observeLine, error) {
	fields := splitTopLevel(raw)
	if len(fields) == 0 {
		return observeLine{}, fmt.Errorf("empty OBSERVE value")
	}

	ol := observeLine{}
	groupField := strings.TrimSpace(fields[0])
	if strings.HasPrefix(groupField, "(") {
		inner := strings.TrimSuffix(strings.TrimPrefix(groupField, "("), ")")
		for _, g := range strings.Split(inner, " ") {
			g = strings.TrimSpace(g)
			if g != "" {
				ol.groups = append(ol.groups, g)
			}
		}
	} else {
		ol.groups = []string{groupField}
	}

	for _, f := range fields[1:] {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if !strings.Contains(f, "(") {
			// trailing bare number: per-action priority
			p, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return observeLine{}, fmt.Errorf("unexpected token %q", f)
			}
			ol.priority = p
			continue
		}
		open := strings.Index(f, "(")
		close := strings.LastIndex(f, ")")
		if close < open {
			return observeLine{}, fmt.Errorf("malformed action descriptor %q", f)
		}
		ol.descriptors = append(ol.descriptors, actionDescriptor{
			name:  strings.TrimSpace(f[:open]),
			param: strings.TrimSpace(f[open+1 : close]),
		})
	}
	if len(ol.descriptors) == 0 {
		return observeLine{}, fmt.Errorf("no action descriptors")
	}
	return ol, nil
}

// splitTopLevel splits raw on commas, except inside ( ).
func splitTopLevel(raw string) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range raw {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, raw[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, raw[start:])
	return out
}

func expandDescriptor(t *Table, s *strategy.Strategy, ol observeLine, d actionDescriptor, sessionStartJD, sessionEndJD float64) ([]*Action, error) {
	base := func(k Kind) *Action {
		a := &Action{
			Kind:            k,
			Group:           append([]string(nil), ol.groups...),
			StaticPriority:  s.Priority,
			SessionPriority: 1.0,
			Strategy:        s,
		}
		if ol.priority != 0 {
			a.StaticPriority = ol.priority
		}
		return a
	}

	name := strings.ToUpper(d.name)
	switch name {
	case "SCRIPT":
		a := base(KindScript)
		a.PlanningDuration = s.PlanningTime
		return []*Action{t.add(a)}, nil

	case "DARK":
		a := base(KindDark)
		a.Strategy = nil
		return []*Action{t.add(a)}, nil

	case "FLAT":
		a := base(KindFlat)
		a.Strategy = nil
		return []*Action{t.add(a)}, nil

	case "QUICK", "QUICK_OBSERVE":
		cadence := 3600.0
		if d.param != "" {
			v, err := strconv.ParseFloat(d.param, 64)
			if err != nil {
				return nil, fmt.Errorf("Quick: bad cadence %q: %w", d.param, err)
			}
			cadence = v
		}
		a := base(KindQuick)
		a.CadenceSeconds = cadence
		a.PlanningDuration = 360.0
		return []*Action{t.add(a)}, nil

	case "TIMESEQ":
		return expandTimeSeq(t, s, ol, d, sessionStartJD, sessionEndJD, base)

	default:
		return nil, fmt.Errorf("unrecognized action %q", d.name)
	}
}

// expandTimeSeq implements spec.md §4.5's ephemeris/holes expansion.
func expandTimeSeq(t *Table, s *strategy.Strategy, ol observeLine, d actionDescriptor, sessionStartJD, sessionEndJD float64, base func(Kind) *Action) ([]*Action, error) {
	if s.Ephemeris == nil {
		return nil, fmt.Errorf("TimeSeq requires an EPHEMERIS")
	}
	eph := s.Ephemeris
	jdRef := eph.JDRef
	if strings.EqualFold(d.param, "Sec") {
		jdRef += eph.SecondaryOffsetDays
	}

	var out []*Action
	windows := phaseWindows(d.param, eph, s.Holes)

	kFirst := int((sessionStartJD-jdRef)/eph.PeriodDays) - 1
	kLast := int((sessionEndJD-jdRef)/eph.PeriodDays) + 1

	for k := kFirst; k <= kLast; k++ {
		cycleStart := jdRef + float64(k)*eph.PeriodDays
		for _, w := range windows {
			winStart := cycleStart + w.p0*eph.PeriodDays
			winEnd := cycleStart + w.p1*eph.PeriodDays

			clippedStart := maxFloat(winStart, sessionStartJD)
			clippedEnd := minFloat(winEnd, sessionEndJD)
			if clippedEnd <= clippedStart {
				continue
			}
			fullLen := winEnd - winStart
			if fullLen <= 0 {
				continue
			}
			overlap := (clippedEnd - clippedStart) / fullLen
			if overlap < w.minOverlap {
				continue
			}

			a := base(KindTimeSeq)
			a.StartJD = clippedStart
			a.EndJD = clippedEnd
			out = append(out, t.add(a))
		}
	}
	return out, nil
}

type phaseWindow struct {
	p0, p1     float64
	minOverlap float64
}

// phaseWindows returns the candidate phase windows for a TimeSeq
// descriptor: by default the event window, phase [0, event_length/period)
// (overlap >= 0.8, per spec.md §4.5), or every observing hole (overlap >= 0.33) when the
// descriptor names Hole/Holes.
func phaseWindows(param string, eph *strategy.Ephemeris, holes []strategy.Hole) []phaseWindow {
	p := strings.ToUpper(strings.TrimSpace(param))
	if p == "HOLE" || p == "HOLES" {
		out := make([]phaseWindow, 0, len(holes))
		for _, h := range holes {
			out = append(out, phaseWindow{p0: h.P0, p1: h.P1, minOverlap: 0.33})
		}
		return out
	}
	eventFrac := eph.EventLengthDays / eph.PeriodDays
	return []phaseWindow{{p0: 0, p1: eventFrac, minOverlap: 0.8}}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
