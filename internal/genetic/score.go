package genetic

import (
	"math"

	"github.com/antigravity-dev/astrosession/internal/action"
	"github.com/antigravity-dev/astrosession/internal/history"
	"github.com/antigravity-dev/astrosession/internal/strategy"
	"github.com/antigravity-dev/astrosession/internal/visibility"
)

// Scorer holds everything the fitness function needs besides the
// chromosome itself: the site (for visibility/altitude), the
// observation history (for last-observed times), and the session's
// hard end time (for the "too late" check).
type Scorer struct {
	Site            visibility.Site
	History         *history.History
	SessionEndJD    float64
	SessionStartJD  float64
}

// score materializes ind's trial schedule and fills in each placed
// action's Result/Score, returning the cumulative score — the Go
// equivalent of scoring.cc's calculate_score.
func (sc *Scorer) score(ind *Individual, inputs []*Input) float64 {
	materialize(ind, inputs, sc.SessionStartJD, sc.SessionEndJD)

	var cum float64
	for _, p := range ind.Trial.GetTrial() {
		in := p.Input
		oa := in.Action

		var this float64
		switch {
		case !p.NeedsExecution:
			p.Result = ResultUseless

		case oa.Kind == action.KindDark || oa.Kind == action.KindFlat:
			this = oa.StaticPriority * oa.SessionPriority
			p.Result = ResultOK

		case oa.Location == nil || !visibility.IsVisibleWindow(*oa.Location, sc.Site, p.ScheduledStart, p.ScheduledEnd):
			p.Result = ResultNotUp

		case sc.SessionEndJD < p.ScheduledEnd:
			p.Result = ResultTooLate

		default:
			p.Result = ResultOK
			minAlt := visibility.MinAltitude(*oa.Location, sc.Site, p.ScheduledStart, p.ScheduledEnd)
			this = sc.scoreByKind(oa, in, p, minAlt)
			if this == 0.0 {
				p.Result = ResultUseless
			}
		}

		p.Score = this
		cum += this
	}

	ind.Score = cum
	return cum
}

// scoreByKind implements spec.md §4.6's per-kind scoring formulas for
// the three placed kinds that reach this branch (TimeSeq, Quick,
// Script — Dark/Flat are scored earlier, unconditionally).
func (sc *Scorer) scoreByKind(oa *action.Action, in *Input, p *PlacedAction, minAlt float64) float64 {
	switch oa.Kind {
	case action.KindTimeSeq:
		durationHours := (p.ScheduledEnd - p.ScheduledStart) * 24.0
		return oa.StaticPriority * oa.SessionPriority * math.Sin(minAlt) * durationHours / 0.3

	case action.KindQuick:
		lastObs := p.PriorObservation
		if oa.Strategy != nil {
			if obs, ok, _ := sc.History.LastObservation(oa.Strategy.ObjectID); ok && obs.JD > lastObs {
				lastObs = obs.JD
			}
		}
		deltaT := p.ScheduledStart - lastObs
		ratio := deltaT / (oa.CadenceSeconds / 86400.0)
		return oa.StaticPriority * oa.SessionPriority * math.Sin(minAlt) * math.Min(ratio, 1.1)

	case action.KindScript:
		lastObs := sc.SessionStartJD - 1e9 // "never observed" sentinel
		if oa.Strategy != nil {
			if obs, ok, _ := sc.History.LastObservation(oa.Strategy.ObjectID); ok {
				lastObs = obs.JD
			}
		}
		factor := 1.0
		if oa.Strategy != nil {
			factor = periodicityFactor(p.ScheduledStart-lastObs, periodicityDays(oa.Strategy.Periodicity))
		}
		return oa.StaticPriority * oa.SessionPriority * math.Sin(minAlt) * factor

	default:
		return 0
	}
}

// periodicityDays converts a strategy's periodicity classification
// into the "N" of spec.md §4.6's periodicity factor. ALWAYS is
// represented as an arbitrarily small period so the factor saturates
// almost immediately; NEVER as +Inf so it never does.
func periodicityDays(p strategy.Periodicity) float64 {
	switch p.Kind {
	case "ALWAYS":
		return 1.0 / 24.0 // "ready again within the hour"
	case "DAILY":
		return 1.0
	case "WEEKLY":
		return 7.0
	case "NEVER":
		return math.Inf(1)
	case "DAYS":
		if p.Days > 0 {
			return float64(p.Days)
		}
		return 1.0
	default:
		return 1.0
	}
}

// periodicityFactor is the piecewise-linear periodicity term of
// spec.md §4.6: 0 at 0, ramps to 1 over [5N/7, N], grows to 2 by 4N,
// then saturates.
func periodicityFactor(daysSinceLastObs, n float64) float64 {
	if math.IsInf(n, 1) {
		return 0
	}
	if n <= 0 || daysSinceLastObs <= 0 {
		return 0
	}

	rampStart := 5.0 * n / 7.0
	switch {
	case daysSinceLastObs <= rampStart:
		return 0
	case daysSinceLastObs <= n:
		return (daysSinceLastObs - rampStart) / (n - rampStart)
	case daysSinceLastObs <= 4*n:
		return 1.0 + (daysSinceLastObs-n)/(3*n)
	default:
		return 2.0
	}
}
