// Command scheduler is the standalone scheduler CLI of spec.md §6:
// `scheduler <input_file> <output_file>`. Input begins with
// "JD_start JD_end logfile_path\n" followed by one OA serialization
// per line (internal/genetic.ParseInputLine's encoding); output begins
// with a total score followed by one placed-action line per entry
// (internal/genetic.WriteSchedule's encoding).
//
// cmd/session's executor.GeneticRescheduler calls internal/genetic
// directly in-process rather than shelling out to this binary (the
// original forked a subprocess only because its scheduler carried
// mutable global state unsafe to share across StartBackgroundTask
// calls; a Go value-owned Scheduler has no such constraint, per
// DESIGN.md's discussion of the global-array redesign). This command
// exists to satisfy §6's documented external interface and as a
// standalone debugging/batch tool: given an input file with no
// resident strategy catalog to draw from (the original subprocess
// always re-read strategy files itself — see schedule.cc's spawn via
// system(), which hands a fresh process no access to the parent's
// memory), each input OA reconstructs its priority by name from an
// optional strategy catalog (-strategies-dir) and its sky position from
// an optional object catalog (-catalog).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/antigravity-dev/astrosession/internal/action"
	"github.com/antigravity-dev/astrosession/internal/genetic"
	"github.com/antigravity-dev/astrosession/internal/history"
	"github.com/antigravity-dev/astrosession/internal/session"
	"github.com/antigravity-dev/astrosession/internal/site"
	"github.com/antigravity-dev/astrosession/internal/strategy"
	"github.com/antigravity-dev/astrosession/internal/visibility"
)

func kindFromString(s string) (action.Kind, error) {
	switch s {
	case "TimeSeq":
		return action.KindTimeSeq, nil
	case "Quick":
		return action.KindQuick, nil
	case "Script":
		return action.KindScript, nil
	case "Dark":
		return action.KindDark, nil
	case "Flat":
		return action.KindFlat, nil
	default:
		return 0, fmt.Errorf("scheduler: unrecognized OA kind %q", s)
	}
}

// buildAction reconstructs an action.Action from one parsed input
// line, filling in priority/location from catalogs when named objects
// are found there, and defaulting to 1.0 priority otherwise (spec.md
// §8 scenario S4 assumes this default: a bare TimeSeq OA with no
// catalog entry scores as priority=session_priority=1.0).
func buildAction(id int, kind action.Kind, fields []string, strategies *strategy.Catalog, catalog *session.Catalog) (*action.Action, error) {
	a := &action.Action{ID: id, Kind: kind, StaticPriority: 1.0, SessionPriority: 1.0}

	var name string
	switch kind {
	case action.KindTimeSeq:
		if len(fields) != 3 {
			return nil, fmt.Errorf("scheduler: TimeSeq line wants 3 fields, got %d", len(fields))
		}
		name = fields[0]
		start, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("scheduler: TimeSeq start: %w", err)
		}
		end, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("scheduler: TimeSeq end: %w", err)
		}
		a.StartJD, a.EndJD = start, end

	case action.KindQuick:
		if len(fields) != 2 {
			return nil, fmt.Errorf("scheduler: Quick line wants 2 fields, got %d", len(fields))
		}
		name = fields[0]
		cadence, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("scheduler: Quick cadence: %w", err)
		}
		a.CadenceSeconds = cadence

	case action.KindScript:
		if len(fields) != 1 {
			return nil, fmt.Errorf("scheduler: Script line wants 1 field, got %d", len(fields))
		}
		name = fields[0]

	case action.KindDark, action.KindFlat:
		// name name jd, per encodePlacedAction's symmetric encoding;
		// the jd is a prior placement, not meaningful input state.
		if len(fields) > 0 {
			name = fields[0]
		}
	}

	if strategies != nil && name != "" {
		if s, ok := strategies.Get(name); ok {
			a.Strategy = s
			a.StaticPriority = s.Priority
		}
	}
	if catalog != nil && name != "" {
		if pos, ok := catalog.Get(name); ok {
			a.Location = &pos
		}
	}
	return a, nil
}

func readInput(path string) (startJD, endJD float64, logfile string, inputs []*genetic.Input, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, "", nil, fmt.Errorf("scheduler: open input: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !sc.Scan() {
		return 0, 0, "", nil, fmt.Errorf("scheduler: empty input file")
	}
	header := strings.Fields(sc.Text())
	if len(header) != 3 {
		return 0, 0, "", nil, fmt.Errorf("scheduler: malformed header %q", sc.Text())
	}
	startJD, err = strconv.ParseFloat(header[0], 64)
	if err != nil {
		return 0, 0, "", nil, fmt.Errorf("scheduler: JD_start: %w", err)
	}
	endJD, err = strconv.ParseFloat(header[1], 64)
	if err != nil {
		return 0, 0, "", nil, fmt.Errorf("scheduler: JD_end: %w", err)
	}
	logfile = header[2]

	var strategies *strategy.Catalog
	var catalog *session.Catalog
	strategiesDir := flagStrategiesDir
	if strategiesDir != "" {
		strategies, err = strategy.Load(strategiesDir)
		if err != nil {
			return 0, 0, "", nil, fmt.Errorf("scheduler: load strategies: %w", err)
		}
	}
	if flagCatalogPath != "" {
		catalog, err = session.LoadCatalog(flagCatalogPath)
		if err != nil {
			return 0, 0, "", nil, fmt.Errorf("scheduler: load catalog: %w", err)
		}
	}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		id, kindStr, fields, err := genetic.ParseInputLine(line)
		if err != nil {
			return 0, 0, "", nil, err
		}
		kind, err := kindFromString(kindStr)
		if err != nil {
			return 0, 0, "", nil, err
		}
		a, err := buildAction(id, kind, fields, strategies, catalog)
		if err != nil {
			return 0, 0, "", nil, err
		}
		inputs = append(inputs, &genetic.Input{Action: a})
	}
	if err := sc.Err(); err != nil {
		return 0, 0, "", nil, fmt.Errorf("scheduler: reading input: %w", err)
	}
	return startJD, endJD, logfile, inputs, nil
}

var (
	flagStrategiesDir string
	flagCatalogPath   string
)

func main() {
	flag.StringVar(&flagStrategiesDir, "strategies-dir", "", "optional strategy directory for priority lookup by object name")
	flag.StringVar(&flagCatalogPath, "catalog", "", "optional object catalog for sky-position lookup by object name")
	sitePath := flag.String("site", "", "optional observatory site file (defaults to an unobstructed horizon at the equator)")
	historyPath := flag.String("history", "", "optional observation history file")
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: scheduler [flags] <input_file> <output_file>")
		os.Exit(1)
	}
	inputPath, outputPath := args[0], args[1]

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	startJD, endJD, logfile, inputs, err := readInput(inputPath)
	if err != nil {
		log.Error("scheduler: failed to read input", "error", err)
		os.Exit(1)
	}
	log.Info("scheduler: loaded input", "inputs", len(inputs), "logfile", logfile)

	var vsite visibility.Site
	if *sitePath != "" {
		siteCfg, err := site.Load(*sitePath)
		if err != nil {
			log.Error("scheduler: failed to load site", "error", err)
			os.Exit(1)
		}
		vsite = siteCfg.VisibilitySite()
	}

	var hist *history.History
	if *historyPath != "" {
		hist = history.Open(*historyPath)
	}

	result := genetic.Run(inputs, startJD, endJD, vsite, hist, genetic.DefaultConfig(), log)

	out, err := os.Create(outputPath)
	if err != nil {
		log.Error("scheduler: failed to create output", "error", err)
		os.Exit(1)
	}
	defer out.Close()

	if err := genetic.WriteSchedule(out, result); err != nil {
		log.Error("scheduler: failed to write output", "error", err)
		os.Exit(1)
	}
	log.Info("scheduler: done", "score", result.Score, "placed", len(result.Placed))
}
