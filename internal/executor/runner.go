package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/antigravity-dev/astrosession/internal/action"
	"github.com/antigravity-dev/astrosession/internal/astrodb"
	"github.com/antigravity-dev/astrosession/internal/history"
	"github.com/antigravity-dev/astrosession/internal/planner"
	"github.com/antigravity-dev/astrosession/internal/strategy"
)

// ExposureResult is one frame a QuickCamera produced.
type ExposureResult struct {
	Path    string
	JD      float64
	Airmass float64
}

// QuickCamera performs the finder-correlation-plus-exposure sequence
// spec.md §4.8 describes for the Quick kind.
type QuickCamera interface {
	FindAndCorrelate(ctx context.Context, oa *action.Action) error
	Expose(ctx context.Context, oa *action.Action, filter string, expTime float64, count int) ([]ExposureResult, error)
}

// ShellTool invokes the external dark/flat acquisition shell commands,
// spec.md §4.8's "invoke the corresponding shell tool."
type ShellTool interface {
	RunDark(ctx context.Context, oa *action.Action) error
	RunFlat(ctx context.Context, oa *action.Action, filter string) error
}

// ScriptRunner delegates Script-kind execution to the full strategy
// executor, explicitly out of this core's scope (spec.md §4.8: "delegate
// to the strategy executor (out of scope)"). A nil ScriptRunner makes
// DefaultRunner treat every Script OA as NO_STARS, matching how an
// unconfigured collaborator would behave rather than silently
// succeeding.
type ScriptRunner interface {
	RunScript(ctx context.Context, oa *action.Action) (Outcome, error)
}

// MailboxMessage is a cross-process control message id, spec.md
// §4.1/§9's Pause/Resume/Abort.
type MailboxMessage int

const (
	MessageNone MailboxMessage = iota
	MessagePause
	MessageResume
	MessageAbort
)

// Mailbox receives control messages targeted at this process, spec.md
// §4.8's "all kinds check the cross-process mailbox at entry."
// Implemented by *internal/mailbox.Target; kept as a local interface so
// this package does not depend on the mailbox transport.
type Mailbox interface {
	Receive() (MailboxMessage, error)
}

// DefaultRunner implements the OA execution contract of spec.md §4.8.
type DefaultRunner struct {
	Mailbox Mailbox
	Clock   Clock
	Camera  QuickCamera
	Tools   ShellTool
	Scripts ScriptRunner
	DB      *astrodb.Store
	History *history.History

	// Reference is the exposure planner's sky/star flux calibration.
	// Nil leaves every strategy's fixed QuickExposureTime/
	// QuickNumExposures in force, matching an unconfigured planner.
	Reference *planner.ReferenceData

	Log *slog.Logger
}

func (r *DefaultRunner) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

func (r *DefaultRunner) clock() Clock {
	if r.Clock != nil {
		return r.Clock
	}
	return SystemClock{}
}

// Execute dispatches on oa.Kind per spec.md §4.8, after first checking
// the mailbox for a pending Pause/Abort.
func (r *DefaultRunner) Execute(ctx context.Context, oa *action.Action) (Outcome, error) {
	log := r.logger()

	abort, err := r.awaitMailbox(ctx)
	if err != nil {
		return OutcomeNoStars, fmt.Errorf("executor: mailbox: %w", err)
	}
	if abort {
		return OutcomePerformSessionShutdown, nil
	}

	switch oa.Kind {
	case action.KindTimeSeq:
		log.Info("executor: TimeSeq is unsupported in this core", "oa_id", oa.ID)
		return OutcomeNoStars, nil

	case action.KindQuick:
		return r.executeQuick(ctx, oa)

	case action.KindScript:
		if r.Scripts == nil {
			log.Warn("executor: no script runner wired, skipping", "oa_id", oa.ID)
			return OutcomeNoStars, nil
		}
		return r.Scripts.RunScript(ctx, oa)

	case action.KindDark:
		if err := r.Tools.RunDark(ctx, oa); err != nil {
			log.Error("executor: dark tool failed", "oa_id", oa.ID, "error", err)
			return OutcomeNotVisible, nil
		}
		return OutcomeOkay, nil

	case action.KindFlat:
		filter := ""
		if oa.Strategy != nil {
			filter = oa.Strategy.QuickFilterName
		}
		if err := r.Tools.RunFlat(ctx, oa, filter); err != nil {
			log.Error("executor: flat tool failed", "oa_id", oa.ID, "error", err)
			return OutcomeNotVisible, nil
		}
		return OutcomeOkay, nil

	default:
		return OutcomeNoStars, fmt.Errorf("executor: unknown OA kind %v", oa.Kind)
	}
}

// executeQuick runs the finder correlation, takes the strategy's
// configured exposure set, registers each frame with Astro-DB, closes
// them into a stack, and records an observation, spec.md §4.8.
func (r *DefaultRunner) executeQuick(ctx context.Context, oa *action.Action) (Outcome, error) {
	log := r.logger()
	s := oa.Strategy
	if s == nil || oa.Location == nil {
		return OutcomeLostInSpace, fmt.Errorf("executor: quick OA %d missing strategy or resolved location", oa.ID)
	}

	if err := r.Camera.FindAndCorrelate(ctx, oa); err != nil {
		log.Warn("executor: finder correlation failed", "oa_id", oa.ID, "error", err)
		return OutcomeLostInSpace, nil
	}

	expTime, numExp := s.QuickExposureTime, s.QuickNumExposures
	if rec, ok := r.recommendExposure(s); ok {
		log.Debug("executor: auto-exposure planner override", "oa_id", oa.ID,
			"exptime", rec.ExposureSeconds, "count", rec.NumExposures)
		expTime, numExp = rec.ExposureSeconds, rec.NumExposures
	}

	results, err := r.Camera.Expose(ctx, oa, s.QuickFilterName, expTime, numExp)
	if err != nil {
		log.Warn("executor: quick exposure sequence failed", "oa_id", oa.ID, "error", err)
		return OutcomeNoStars, nil
	}
	if len(results) == 0 {
		log.Warn("executor: no stars seen in quick images", "oa_id", oa.ID)
		return OutcomeNoStars, nil
	}

	constituents := make([]int64, 0, len(results))
	var lastJD, sumAirmass float64
	for _, res := range results {
		juid, err := r.DB.AddExposure(res.Path, s.ObjectID, s.QuickFilterName, 0,
			res.JD, expTime, res.Airmass, s.Chart, false, false)
		if err != nil {
			return OutcomeNoStars, fmt.Errorf("executor: register quick exposure: %w", err)
		}
		constituents = append(constituents, juid)
		sumAirmass += res.Airmass
		lastJD = res.JD
	}

	stackPath := fmt.Sprintf("%s_%s_quick_stack", s.ObjectID, s.QuickFilterName)
	if _, err := r.DB.AddRefreshStack(s.QuickFilterName, 0, s.ObjectID, stackPath, constituents, false); err != nil {
		return OutcomeNoStars, fmt.Errorf("executor: stack quick exposures: %w", err)
	}

	if r.History != nil {
		obs := history.Observation{
			JD:          lastJD,
			Object:      strings.ToLower(s.ObjectID),
			ExecSeconds: expTime * float64(len(results)),
			B:           math.NaN(),
			V:           math.NaN(),
			R:           math.NaN(),
			I:           math.NaN(),
			Comment:     strategyComment(s),
		}
		if err := r.History.Remember(obs); err != nil {
			log.Warn("executor: history remember failed", "oa_id", oa.ID, "error", err)
		}
	}

	oa.Quick.SetNumber++
	return OutcomeOkay, nil
}

// strategyComment joins a strategy's REMARKS and REPORT_NOTES, the
// free-form text a recipe author leaves for whoever reads the
// observation history, into the comment recorded alongside it. Either
// field may be empty.
func strategyComment(s *strategy.Strategy) string {
	switch {
	case s.Remarks != "" && s.ReportNotes != "":
		return s.Remarks + "; " + s.ReportNotes
	case s.Remarks != "":
		return s.Remarks
	default:
		return s.ReportNotes
	}
}

// filterByte maps a strategy's filter name to the single-letter code
// history.Observation stores magnitudes under.
func filterByte(name string) byte {
	if name == "" {
		return 0
	}
	return name[0]
}

// recommendExposure consults the exposure planner for s's quick
// filter, gated on AUTOPHOTUPDATE or AUTOSEQUENCE (strategy.cc's "use
// historical mag data to set num_exp and exposure_time" applies under
// either key): strategies that leave both false always use their fixed
// QuickExposureTime/QuickNumExposures. The planner needs a brightness
// estimate; this borrows the object's most recent full photometric
// result (normally from a Script OA, which measures B/V/R/I) via
// History.PredictBrightness, predicting the quick filter's magnitude
// from the last known V magnitude. No prior observation, no
// calibration, or no non-saturating candidate all report !ok, leaving
// the strategy's fixed values in force.
func (r *DefaultRunner) recommendExposure(s *strategy.Strategy) (planner.Recommendation, bool) {
	if s == nil || (!s.AutoPhotUpdate && !s.AutoSequence) || r.Reference == nil || r.History == nil {
		return planner.Recommendation{}, false
	}

	last, found, err := r.History.LastObservation(s.ObjectID)
	if err != nil || !found || math.IsNaN(last.V) {
		return planner.Recommendation{}, false
	}

	starMag, err := r.History.PredictBrightness(s.ObjectID, filterByte(s.QuickFilterName), last.V)
	if err != nil || math.IsNaN(starMag) {
		return planner.Recommendation{}, false
	}

	return planner.Recommend(*r.Reference, starMag, planner.DefaultPalette())
}

// awaitMailbox polls once for a pending message. Abort returns true
// immediately; Pause blocks in a 1Hz poll loop until Resume or Abort,
// spec.md §4.8.
func (r *DefaultRunner) awaitMailbox(ctx context.Context) (abort bool, err error) {
	if r.Mailbox == nil {
		return false, nil
	}
	log := r.logger()

	msg, err := r.Mailbox.Receive()
	if err != nil {
		return false, err
	}
	switch msg {
	case MessageAbort:
		return true, nil
	case MessagePause:
		log.Info("executor: received pause message")
		for {
			if err := r.clock().Sleep(ctx, time.Second); err != nil {
				return false, err
			}
			msg, err := r.Mailbox.Receive()
			if err != nil {
				return false, err
			}
			switch msg {
			case MessageAbort:
				return true, nil
			case MessageResume:
				log.Info("executor: received resume message")
				return false, nil
			}
		}
	default:
		return false, nil
	}
}
