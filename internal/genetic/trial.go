package genetic

import (
	"math"

	"github.com/antigravity-dev/astrosession/internal/action"
)

// ResultCode classifies a placed action after scoring, per scoring.cc.
type ResultCode int

const (
	ResultOK ResultCode = iota
	ResultNotUp
	ResultTooLate
	ResultUseless
)

// PlacedAction is one entry of a materialized trial schedule: an
// input plus the concrete interval the trial assigned it.
type PlacedAction struct {
	Input            *Input
	ScheduledStart   float64
	ScheduledEnd     float64
	NeedsExecution   bool
	PriorObservation float64
	Result           ResultCode
	Score            float64
}

type quickPoolItem struct {
	Input         *Input
	LastScheduled float64
}

// Trial is one candidate schedule materialized from a chromosome:
// an ordered, non-overlapping placement of inputs within
// [sessionStart, sessionEnd], grounded on scheduler.h's TRIAL class.
type Trial struct {
	sessionStart, sessionEnd float64
	placed                   []*PlacedAction
	quickPool                []*quickPoolItem
}

// NewTrial creates an empty trial over the scheduling window.
func NewTrial(sessionStart, sessionEnd float64) *Trial {
	return &Trial{sessionStart: sessionStart, sessionEnd: sessionEnd}
}

// GetTrial returns the placed actions in scheduled-start order.
func (t *Trial) GetTrial() []*PlacedAction { return t.placed }

func (t *Trial) insertSorted(p *PlacedAction) {
	i := 0
	for i < len(t.placed) && t.placed[i].ScheduledStart <= p.ScheduledStart {
		i++
	}
	t.placed = append(t.placed, nil)
	copy(t.placed[i+1:], t.placed[i:])
	t.placed[i] = p
}

// InsertFixedTime places in at its pre-committed [start, end] window
// if that window does not overlap any already-placed action; returns
// nil on conflict (scheduler.h's TRIAL::InsertFixedTime).
func (t *Trial) InsertFixedTime(in *Input, start, end float64) *PlacedAction {
	for _, p := range t.placed {
		if start < p.ScheduledEnd && p.ScheduledStart < end {
			return nil
		}
	}
	p := &PlacedAction{Input: in, ScheduledStart: start, ScheduledEnd: end, NeedsExecution: true}
	t.insertSorted(p)
	return p
}

// InsertInFirstGap finds the first interval of durationSeconds (after
// floorJD, respecting precedence with whatever is already placed) and
// inserts in there, or returns nil if no such gap exists before the
// session ends (scheduler.h's TRIAL::InsertInFirstGap).
func (t *Trial) InsertInFirstGap(in *Input, durationSeconds, floorJD float64) *PlacedAction {
	durationDays := durationSeconds / 86400.0
	cursor := math.Max(floorJD, t.sessionStart)

	gapStart := -1.0
	for _, p := range t.placed {
		if p.ScheduledStart-cursor >= durationDays {
			gapStart = cursor
			break
		}
		if p.ScheduledEnd > cursor {
			cursor = p.ScheduledEnd
		}
	}
	if gapStart < 0 {
		if t.sessionEnd-cursor >= durationDays {
			gapStart = cursor
		} else {
			return nil
		}
	}

	p := &PlacedAction{Input: in, ScheduledStart: gapStart, ScheduledEnd: gapStart + durationDays, NeedsExecution: true}
	t.insertSorted(p)
	return p
}

// materialize builds the trial schedule for a chromosome, following
// scoring.cc's calculate_score two-pass placement.
func materialize(ind *Individual, inputs []*Input, sessionStart, sessionEnd float64) {
	trial := NewTrial(sessionStart, sessionEnd)
	mid := (len(ind.Chromosome) + 1) / 2

	for i, g := range ind.Chromosome {
		in := inputs[g.StarID]
		oa := in.Action
		if oa.Kind == action.KindTimeSeq && i < mid {
			trial.InsertFixedTime(in, oa.StartJD, oa.EndJD)
		} else if oa.Kind == action.KindQuick && i < mid {
			trial.quickPool = append(trial.quickPool, &quickPoolItem{Input: in, LastScheduled: sessionStart})
		}
	}

	schedulingTime := sessionStart
	var priorEnd float64
	hasPrior := false
	lastUseful := -1

	for i, g := range ind.Chromosome {
		in := inputs[g.StarID]
		oa := in.Action
		if oa.Kind == action.KindTimeSeq || oa.Kind == action.KindQuick {
			continue
		}

		sweepQuickPool(trial, &schedulingTime)

		var placed *PlacedAction
		if oa.Kind == action.KindScript {
			floor := 0.0
			if hasPrior {
				floor = priorEnd
			}
			floor += timeDelayTable[g.TimeIndex] / 86400.0
			placed = trial.InsertInFirstGap(in, oa.PlanningDuration, floor)
			if placed != nil {
				priorEnd = placed.ScheduledEnd
				hasPrior = true
			}
		} else {
			placed = trial.InsertInFirstGap(in, darkFlatDuration(oa), 0)
		}

		if placed != nil {
			schedulingTime = placed.ScheduledEnd
			lastUseful = i
		}
	}

	ind.Trial = trial
	ind.UsefulLength = lastUseful
}

// sweepQuickPool inserts any Quick-pool item whose cadence has
// elapsed at the current scheduling time, per scoring.cc's quick-pool
// sweep. It does not check whether the target is visible.
func sweepQuickPool(trial *Trial, schedulingTime *float64) {
	for _, qpi := range trial.quickPool {
		cadenceDays := qpi.Input.Action.CadenceSeconds / 86400.0
		if *schedulingTime-qpi.LastScheduled < cadenceDays {
			continue
		}
		floor := qpi.LastScheduled + cadenceDays
		placed := trial.InsertInFirstGap(qpi.Input, qpi.Input.Action.PlanningDuration, floor)
		if placed == nil {
			continue
		}
		placed.PriorObservation = qpi.LastScheduled
		qpi.LastScheduled = placed.ScheduledStart
		*schedulingTime = placed.ScheduledEnd
	}
}

// darkFlatDuration returns a Dark/Flat action's planning duration,
// defaulting to 60s when unset (the original always carries a fixed
// dark/flat sequence length from the session's dark/flat config).
func darkFlatDuration(oa *action.Action) float64 {
	if oa.PlanningDuration > 0 {
		return oa.PlanningDuration
	}
	return 60.0
}
