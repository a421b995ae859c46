// Package executor implements the schedule executor (spec.md §4.7,
// §4.8): it walks the genetic scheduler's ordered plan, executes each
// Observing Action against its live collaborators, reacts to the
// outcome, and decides whether to continue, reschedule, or abort the
// night.
//
// Grounded on original_source/SESSION_LIB/schedule.cc's
// SelectNextStrategyAndWait/Execute_Schedule pair: the 15-minute
// "close enough" window (times_are_close), the sidereal-tracking
// disable/sleep/enable bracket around a distant scheduled start, and
// the outcome table deciding needs_execution/status/reschedule-counter
// updates.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/antigravity-dev/astrosession/internal/action"
	"github.com/antigravity-dev/astrosession/internal/visibility"
)

// Outcome is an OA execution result, spec.md §4.7's result column.
type Outcome int

const (
	OutcomeOkay Outcome = iota
	OutcomeNotVisible
	OutcomeLostInSpace
	OutcomeNoStars
	OutcomePoorImage
	OutcomePerformSessionShutdown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOkay:
		return "OKAY"
	case OutcomeNotVisible:
		return "NOT_VISIBLE"
	case OutcomeLostInSpace:
		return "LOST_IN_SPACE"
	case OutcomeNoStars:
		return "NO_STARS"
	case OutcomePoorImage:
		return "POOR_IMAGE"
	case OutcomePerformSessionShutdown:
		return "PERFORM_SESSION_SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// Status is an entry's bookkeeping state, spec.md §4.7.
type Status int

const (
	StatusCompleted Status = iota
	StatusRecoverableSkip
	StatusImpossible
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "COMPLETED"
	case StatusRecoverableSkip:
		return "RECOVERABLE_SKIP"
	case StatusImpossible:
		return "IMPOSSIBLE"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

const (
	// closeEnoughWindowDays is schedule.cc's times_are_close tolerance,
	// 15 minutes expressed as a Julian-date fraction.
	closeEnoughWindowDays = 15.0 / (24.0 * 60.0)
	// maxSleepWithoutRescheduleDays is the 6h cap past which
	// SelectNextStrategyAndWait gives up sleeping and just designates
	// the candidate (schedule.cc's quirk: a scheduled start more than
	// 6h out is executed immediately rather than waited for, since
	// only a reschedule — not a plain sleep — is expected to produce
	// entries that far apart).
	maxSleepWithoutRescheduleDays = 6.0 / 24.0
	// maxRescheduleCounter forces a full regeneration once this many
	// recoverable outcomes have accumulated without a reschedule.
	maxRescheduleCounter = 3
	// maxConsecutiveNoStars aborts the night after this many
	// consecutive NO_STARS outcomes anywhere in the session.
	maxConsecutiveNoStars = 3
)

// Entry is one scheduled placement: the immutable (OA, scheduled
// time[, end time]) plus the mutable bookkeeping the main loop updates
// after each execution attempt (spec.md §4.7).
type Entry struct {
	Action           *action.Action
	ScheduledTime    float64 // Julian date
	ScheduledEndTime float64 // Julian date; meaningful only if HasEndTime
	HasEndTime       bool

	NeedsExecution   bool
	FailuresSoFar    int
	Status           Status
	PriorObservation float64
}

// Runner executes one OA and reports its outcome: the collaborator
// behind spec.md §4.8's "OA execution contract."
type Runner interface {
	Execute(ctx context.Context, oa *action.Action) (Outcome, error)
}

// TrackingMotor controls the mount's sidereal tracking motor, so the
// main loop can stop it during a long unattended sleep
// (schedule.cc's ControlTrackingMotor bracket) to keep the mount from
// drifting into a mechanical limit.
type TrackingMotor interface {
	Disable(ctx context.Context) error
	Enable(ctx context.Context) error
}

// Rescheduler regenerates the ordered plan from scratch: the
// collaborator behind schedule.cc's create_schedule, wrapping a fresh
// genetic.Run over whatever OAs still need_execution.
type Rescheduler interface {
	Reschedule(ctx context.Context, now float64) ([]*Entry, error)
}

// Clock abstracts wall-clock time and sleeping, for deterministic
// tests of the sleep/tracking bracket.
type Clock interface {
	NowJD() float64
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the real Clock, backed by time.Now/a cancellable timer.
type SystemClock struct{}

// NowJD returns the current instant as a Julian date.
func (SystemClock) NowJD() float64 { return visibility.JDFromTime(time.Now()) }

// Sleep blocks for d or until ctx is cancelled, whichever comes first.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Executor owns the ordered plan and runs the main loop.
type Executor struct {
	entries        []*Entry
	cursor         int
	needReschedule int
	noStarsCount   int

	runner     Runner
	reschedule Rescheduler
	tracking   TrackingMotor
	clock      Clock
	log        *slog.Logger
}

// New constructs an Executor over an initial plan. tracking may be nil
// if the deployment has no mount tracking motor to control.
func New(entries []*Entry, runner Runner, reschedule Rescheduler, tracking TrackingMotor, clock Clock, log *slog.Logger) *Executor {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Executor{entries: entries, runner: runner, reschedule: reschedule, tracking: tracking, clock: clock, log: log, cursor: -1}
}

// RunResult is Run's terminal disposition, spec.md §4.7's
// SCHED_NORMAL/SCHED_ABORT.
type RunResult int

const (
	SchedNormal RunResult = iota
	SchedAbort
)

// Run executes the plan until it is exhausted or aborted, mirroring
// schedule.cc's Execute_Schedule.
func (e *Executor) Run(ctx context.Context) (RunResult, error) {
	for {
		entry, err := e.selectNextAndWait(ctx)
		if err != nil {
			return SchedAbort, err
		}
		if entry == nil {
			return SchedNormal, nil
		}

		e.log.Info("executor: starting OA",
			"oa_id", entry.Action.ID,
			"kind", entry.Action.Kind.String())

		outcome, err := e.runner.Execute(ctx, entry.Action)
		if err != nil {
			e.log.Error("executor: OA execution returned an error",
				"oa_id", entry.Action.ID, "error", err)
		}

		if outcome == OutcomeNoStars {
			e.noStarsCount++
			if e.noStarsCount >= maxConsecutiveNoStars {
				e.log.Error("executor: consistently finding no stars, aborting night")
				return SchedAbort, nil
			}
		} else {
			e.noStarsCount = 0
		}

		if e.applyOutcome(entry, outcome) {
			return SchedAbort, nil
		}
	}
}

// applyOutcome updates entry's bookkeeping per spec.md §4.7's outcome
// table and reports whether the loop must abort.
func (e *Executor) applyOutcome(entry *Entry, outcome Outcome) (abort bool) {
	switch outcome {
	case OutcomeOkay:
		e.log.Info("executor: OA completed okay", "oa_id", entry.Action.ID)
		entry.NeedsExecution = false
		entry.Status = StatusCompleted
	case OutcomePerformSessionShutdown:
		e.log.Info("executor: commencing shutdown per OA result")
		entry.Status = StatusFailed
		return true
	case OutcomeNotVisible, OutcomeLostInSpace, OutcomeNoStars, OutcomePoorImage:
		e.log.Warn("executor: recoverable outcome, will retry later",
			"oa_id", entry.Action.ID, "outcome", outcome.String())
		entry.FailuresSoFar++
		entry.NeedsExecution = true
		entry.Status = StatusRecoverableSkip
		e.needReschedule++
	default:
		entry.Status = StatusImpossible
	}
	return false
}

// selectNextAndWait advances the cursor and returns the next entry
// ready to execute, or nil if the plan is exhausted. Mirrors
// schedule.cc's SelectNextStrategyAndWait.
func (e *Executor) selectNextAndWait(ctx context.Context) (*Entry, error) {
	e.cursor++
	if e.needReschedule >= maxRescheduleCounter || e.cursor >= len(e.entries) {
		e.log.Info("executor: reschedule threshold reached", "need_reschedule", e.needReschedule)
		if err := e.doReschedule(ctx); err != nil {
			return nil, err
		}
		e.cursor = 0
		if len(e.entries) == 0 {
			return nil, nil
		}
	}

	candidate := e.entries[e.cursor]
	now := e.clock.NowJD()

	if candidate.NeedsExecution && closeEnough(now, candidate.ScheduledTime) {
		return candidate, nil
	}

	if e.needReschedule > 0 {
		e.log.Info("executor: schedule seems busted, rescheduling")
		if err := e.doReschedule(ctx); err != nil {
			return nil, err
		}
		e.cursor = 0
		if len(e.entries) == 0 {
			return nil, nil
		}
		candidate = e.entries[e.cursor]
		now = e.clock.NowJD()
	}

	if !candidate.NeedsExecution {
		e.log.Warn("executor: assertion failed: candidate needs execution")
		e.needReschedule++
		return e.selectNextAndWait(ctx)
	}

	if closeEnough(now, candidate.ScheduledTime) {
		return candidate, nil
	}

	if candidate.ScheduledTime < now {
		e.log.Info("executor: missed next scheduled strategy, rescheduling")
		if err := e.doReschedule(ctx); err != nil {
			return nil, err
		}
		e.cursor = -1
		if len(e.entries) == 0 {
			return nil, nil
		}
		return e.selectNextAndWait(ctx)
	}

	if err := e.sleepUntilWindow(ctx, candidate, now); err != nil {
		return nil, err
	}
	return candidate, nil
}

// sleepUntilWindow blocks until candidate's scheduled start, disabling
// the tracking motor for the duration, per schedule.cc's do/while
// bracket. A start more than 6h out is designated immediately without
// sleeping, preserving the original's behavior rather than inventing a
// longer wait loop it never implemented.
func (e *Executor) sleepUntilWindow(ctx context.Context, candidate *Entry, now float64) error {
	delay := candidate.ScheduledTime - now
	if delay <= 0 || delay > maxSleepWithoutRescheduleDays {
		return nil
	}

	if e.tracking != nil {
		if err := e.tracking.Disable(ctx); err != nil {
			e.log.Warn("executor: failed to disable tracking motor", "error", err)
		}
	}
	e.log.Info("executor: sleeping until scheduled start", "oa_id", candidate.Action.ID, "delay_days", delay)
	if err := e.clock.Sleep(ctx, jdDuration(delay)); err != nil {
		return err
	}
	e.log.Info("executor: woke up")
	if e.tracking != nil {
		if err := e.tracking.Enable(ctx); err != nil {
			e.log.Warn("executor: failed to enable tracking motor", "error", err)
		}
	}
	return nil
}

func (e *Executor) doReschedule(ctx context.Context) error {
	now := e.clock.NowJD()
	entries, err := e.reschedule.Reschedule(ctx, now)
	if err != nil {
		return fmt.Errorf("executor: reschedule: %w", err)
	}
	e.entries = entries
	e.needReschedule = 0
	return nil
}

func closeEnough(now, scheduled float64) bool {
	delta := scheduled - now
	if delta < 0 {
		delta = -delta
	}
	return delta < closeEnoughWindowDays
}

func jdDuration(days float64) time.Duration {
	return time.Duration(days * 86400.0 * float64(time.Second))
}
