package executor

import (
	"context"
	"log/slog"
	"sort"

	"github.com/antigravity-dev/astrosession/internal/action"
	"github.com/antigravity-dev/astrosession/internal/genetic"
	"github.com/antigravity-dev/astrosession/internal/history"
	"github.com/antigravity-dev/astrosession/internal/visibility"
)

// GeneticRescheduler adapts genetic.Run into a Rescheduler: every
// reschedule re-optimizes over whatever still needs_execution, exactly
// matching schedule.cc's create_schedule ("for item : all_strategies if
// (item->needs_execution) ... scheduler").
type GeneticRescheduler struct {
	// All is the superset of every OA this session subscribes to
	// (schedule.cc's all_strategies); Reschedule mutates the entries in
	// place with their new placement.
	All []*Entry

	SessionStartJD float64
	SessionEndJD   float64

	Site    visibility.Site
	History *history.History
	Config  genetic.Config
	Log     *slog.Logger
}

// rescheduleLeadDays is the 5-minute margin create_schedule adds to
// "now" to allow time for the scheduler subprocess to run.
const rescheduleLeadDays = 5.0 / (24.0 * 60.0)

// Reschedule re-optimizes the plan over every entry still needing
// execution and returns the new ordered, scheduled-time-sorted plan.
func (g *GeneticRescheduler) Reschedule(ctx context.Context, now float64) ([]*Entry, error) {
	start := now + rescheduleLeadDays
	if start < g.SessionStartJD {
		start = g.SessionStartJD
	}

	var inputs []*genetic.Input
	byInput := make(map[*genetic.Input]*Entry)
	for _, e := range g.All {
		if !e.NeedsExecution {
			continue
		}
		in := &genetic.Input{Action: e.Action}
		inputs = append(inputs, in)
		byInput[in] = e
	}
	if len(inputs) == 0 {
		return nil, nil
	}

	result := genetic.Run(inputs, start, g.SessionEndJD, g.Site, g.History, g.Config, g.Log)

	entries := make([]*Entry, 0, len(result.Placed))
	for _, p := range result.Placed {
		e, ok := byInput[p.Input]
		if !ok {
			continue
		}
		e.ScheduledTime = p.ScheduledStart
		e.ScheduledEndTime = p.ScheduledEnd
		e.HasEndTime = p.Input.Action.Kind == action.KindTimeSeq
		e.NeedsExecution = true
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ScheduledTime < entries[j].ScheduledTime })
	return entries, nil
}
