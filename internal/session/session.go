// Package session implements the session lifecycle, spec.md §4.9:
// parse session-config, load strategies, build Observing Actions,
// start the cooler if needed, stand up Astro-DB and the initial
// schedule, transfer control to the executor, and on return shut the
// cooler down, park, and run SHUTDOWNTASK.
//
// Grounded on original_source/SESSION_LIB/session.h/.cc's Session
// class (SessionDefaultSetup, the session-file constructor, execute)
// and cmd/cortex/main.go's component-wiring idiom (construct each
// collaborator, then launch); the cron-driven housekeeping loop in
// housekeeping.go is new, filling the DOMAIN STACK's robfig/cron row.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/antigravity-dev/astrosession/internal/action"
	"github.com/antigravity-dev/astrosession/internal/astrodb"
	"github.com/antigravity-dev/astrosession/internal/config"
	"github.com/antigravity-dev/astrosession/internal/executor"
	"github.com/antigravity-dev/astrosession/internal/genetic"
	"github.com/antigravity-dev/astrosession/internal/history"
	"github.com/antigravity-dev/astrosession/internal/mailbox"
	"github.com/antigravity-dev/astrosession/internal/planner"
	"github.com/antigravity-dev/astrosession/internal/strategy"
	"github.com/antigravity-dev/astrosession/internal/visibility"
	"github.com/antigravity-dev/astrosession/internal/workqueue"
)

// Params collects every collaborator and path a Session needs. Fields
// left zero/nil are treated as "not configured" and the corresponding
// behavior is skipped (matching SessionOptions's opt-in switches).
type Params struct {
	Config     config.SessionConfigManager
	Options    Options
	Site       visibility.Site
	Strategies *strategy.Catalog
	Catalog    *Catalog // object-name to sky-position lookup

	DB      *astrodb.Store
	History *history.History
	Queue   *workqueue.Queue  // nil unless Options.UseWorkQueue
	Mailbox *mailbox.Target   // nil if this deployment has no cross-process control channel

	// Camera is the hardware-specific Quick-kind collaborator, out of
	// scope for this module (spec.md §1); nil is only safe if no
	// strategy in Strategies schedules a Quick action.
	Camera executor.QuickCamera
	Tools  executor.ShellTool
	Script executor.ScriptRunner

	// Reference is the exposure planner's sky/star flux calibration,
	// consulted only for strategies with AutoPhotUpdate or AutoSequence
	// set. Nil leaves every strategy's fixed Quick exposure settings in
	// force.
	Reference *planner.ReferenceData

	GeneticConfig genetic.Config

	// CoolerStartupCmd, CoolerShutdownCmd, and ParkCmd are argv slices
	// for the external cooler/mount-park programs session.cc invokes
	// via system(3) (COMMAND_DIR "/cooler startup" and friends). A nil
	// slice skips that step.
	CoolerStartupCmd  []string
	CoolerShutdownCmd []string
	ParkCmd           []string

	Log *slog.Logger
}

// Session owns one night's worth of observing-session state: the
// parsed config, the OA table built from it, and every collaborator
// the executor needs.
type Session struct {
	params Params
	log    *slog.Logger

	actions *action.Table
	entries []*executor.Entry

	startJD, endJD float64

	runTask func([]string) error
}

// New parses session-config-derived state and expands every
// subscribed strategy into Observing Actions, per spec.md §4.9's
// "load strategies, build OAs." It does not start the cooler or hand
// control to the executor; call Execute for that.
func New(p Params, startJD, endJD float64) (*Session, error) {
	if p.Config == nil {
		return nil, fmt.Errorf("session: config manager is required")
	}
	if p.Strategies == nil {
		return nil, fmt.Errorf("session: strategy catalog is required")
	}
	log := p.Log
	if log == nil {
		log = slog.Default()
	}

	s := &Session{params: p, log: log, startJD: startJD, endJD: endJD, runTask: runShellTask}

	cfg := p.Config.Get()
	included := map[string]float64{}
	for _, inc := range cfg.SchedIncludes {
		included[inc.Group] = inc.Priority
	}

	table := action.NewTable()
	for _, strat := range p.Strategies.All() {
		expanded, err := action.ExpandStrategy(table, strat, startJD, endJD)
		if err != nil {
			return nil, fmt.Errorf("session: expand %s: %w", strat.ObjectID, err)
		}
		for _, oa := range expanded {
			if oa.Location == nil && strat != nil && p.Catalog != nil {
				if loc, ok := p.Catalog.Get(strat.ObjectID); ok {
					oa.Location = &loc
				}
			}
			oa.SessionPriority = sessionPriority(oa.Group, included)
		}
	}
	s.actions = table

	s.entries = buildEntries(table.All(), included)
	return s, nil
}

// sessionPriority returns the highest subscribed-group priority
// multiplier among oa's groups, or 0 if oa belongs to no subscribed
// group (meaning it is not scheduled this session).
func sessionPriority(groups []string, included map[string]float64) float64 {
	best := 0.0
	for _, g := range groups {
		if p, ok := included[g]; ok && p > best {
			best = p
		}
	}
	return best
}

// buildEntries keeps only OAs whose session priority is nonzero
// (subscribed via SCHED_INCLUDE) and wraps each as an executor.Entry
// needing its first placement.
func buildEntries(actions []*action.Action, included map[string]float64) []*executor.Entry {
	var out []*executor.Entry
	for _, a := range actions {
		if a.SessionPriority <= 0 {
			continue
		}
		out = append(out, &executor.Entry{Action: a, NeedsExecution: true})
	}
	return out
}

// Actions returns the process-global OA table built during New, for
// callers (e.g. a status command) that need to inspect it directly.
func (s *Session) Actions() *action.Table { return s.actions }

// Execute runs the full session lifecycle of spec.md §4.9: start the
// cooler unless suppressed, hand the plan to the executor, then on
// return shut the cooler down/park/run SHUTDOWNTASK as configured.
func (s *Session) Execute(ctx context.Context) error {
	log := s.log
	log.Info("session: starting", "actions", len(s.entries))

	cfg := s.params.Config.Get()
	opts := s.params.Options

	if !opts.LeaveCoolerOff {
		if err := s.runCoolerStartup(); err != nil {
			log.Error("session: cooler startup failed, giving up", "error", err)
			return fmt.Errorf("session: cooler startup: %w", err)
		}
	}

	rescheduler := &executor.GeneticRescheduler{
		All:            s.entries,
		SessionStartJD: s.startJD,
		SessionEndJD:   s.endJD,
		Site:           s.params.Site,
		History:        s.params.History,
		Config:         s.params.GeneticConfig,
		Log:            log,
	}

	runner := &executor.DefaultRunner{
		Camera:    s.params.Camera,
		Tools:     s.params.Tools,
		Scripts:   s.params.Script,
		DB:        s.params.DB,
		History:   s.params.History,
		Reference: s.params.Reference,
		Log:       log,
	}
	if s.params.Mailbox != nil {
		runner.Mailbox = s.params.Mailbox
	}

	if opts.UseWorkQueue && s.params.Queue != nil {
		if _, err := s.params.Queue.AddToQueue("INIT"); err != nil {
			log.Warn("session: work queue INIT failed", "error", err)
		}
	}

	initial, err := rescheduler.Reschedule(ctx, s.startJD)
	if err != nil {
		return fmt.Errorf("session: initial schedule: %w", err)
	}

	eng := executor.New(initial, runner, rescheduler, nil, executor.SystemClock{}, log)

	log.Info("session: passing control to executor")
	result, runErr := eng.Run(ctx)

	keepCoolerRunning := opts.KeepCoolerRunning || result == executor.SchedAbort
	if !keepCoolerRunning {
		if err := s.runShutdownStep(s.params.CoolerShutdownCmd, "cooler shutdown"); err != nil {
			log.Warn("session: cooler shutdown failed", "error", err)
		}
	} else {
		log.Info("session: leaving cooler running")
	}

	if result == executor.SchedNormal && opts.ParkAtEnd {
		if err := s.runShutdownStep(s.params.ParkCmd, "mount park"); err != nil {
			log.Warn("session: mount park failed", "error", err)
		}
	}

	if opts.UseWorkQueue && s.params.Queue != nil {
		if _, err := s.params.Queue.AddToQueue("FINI"); err != nil {
			log.Warn("session: work queue FINI failed", "error", err)
		}
	}

	log.Info("session: done", "result", result)

	if cfg.ShutdownTask != "" {
		log.Info("session: starting SHUTDOWNTASK", "task", cfg.ShutdownTask)
		if err := s.runTask([]string{"/bin/sh", "-c", cfg.ShutdownTask}); err != nil {
			log.Warn("session: SHUTDOWNTASK completed with errors", "error", err)
		}
	}

	return runErr
}

func (s *Session) runCoolerStartup() error {
	if len(s.params.CoolerStartupCmd) == 0 {
		s.log.Info("session: no cooler startup command configured, skipping")
		return nil
	}
	s.log.Info("session: starting cooler")
	return s.runTask(s.params.CoolerStartupCmd)
}

func (s *Session) runShutdownStep(argv []string, label string) error {
	if len(argv) == 0 {
		return nil
	}
	s.log.Info("session: " + label)
	return s.runTask(argv)
}

func runShellTask(argv []string) error {
	if len(argv) == 0 {
		return nil
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// ParseShutdown resolves a SHUTDOWN=HH:MM config value into a
// terminal Julian date: tonight if HH:MM hasn't passed yet relative to
// sessionStartJD, else tomorrow morning. Grounded on session.cc's
// SHUTDOWN handling, which tries the evening date first and shifts to
// the following day if the result falls before session_start_time.
func ParseShutdown(hhmm string, eveningDate time.Time, sessionStartJD float64) (float64, error) {
	hour, minute, err := parseHHMM(hhmm)
	if err != nil {
		return 0, fmt.Errorf("session: SHUTDOWN: %w", err)
	}

	candidate := time.Date(eveningDate.Year(), eveningDate.Month(), eveningDate.Day(),
		hour, minute, 0, 0, eveningDate.Location())
	candidateJD := visibility.JDFromTime(candidate)
	if candidateJD < sessionStartJD {
		candidate = candidate.AddDate(0, 0, 1)
		candidateJD = visibility.JDFromTime(candidate)
	}
	return candidateJD, nil
}

func parseHHMM(hhmm string) (hour, minute int, err error) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", hhmm)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad hour in %q: %w", hhmm, err)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minute in %q: %w", hhmm, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("out of range HH:MM %q", hhmm)
	}
	return hour, minute, nil
}

// EveningDate returns the "evening" calendar date for a Julian date
// instant, per session.cc's comment: subtract one from the UTC day
// extracted from a JD around 18:00 local, since that day's number is
// the following "morning".
func EveningDate(startJD float64) time.Time {
	t := visibility.TimeFromJD(startJD)
	morning := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	if t.Hour() < 12 {
		return morning.AddDate(0, 0, -1)
	}
	return morning
}
