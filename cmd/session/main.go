// Command session runs a single night-long observing session: it
// loads the session-config, site, strategy catalog, and object
// catalog named on the command line, then runs the full lifecycle of
// spec.md §4.9 to completion.
//
// Grounded on cmd/cortex/main.go's wiring idiom: flag parsing,
// configureLogger's dev/JSON handler split, a single-instance flock,
// component construction in dependency order, and a signal loop that
// reloads config on SIGHUP and shuts down cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/antigravity-dev/astrosession/internal/astrodb"
	"github.com/antigravity-dev/astrosession/internal/config"
	"github.com/antigravity-dev/astrosession/internal/dispatch"
	"github.com/antigravity-dev/astrosession/internal/genetic"
	"github.com/antigravity-dev/astrosession/internal/health"
	"github.com/antigravity-dev/astrosession/internal/history"
	"github.com/antigravity-dev/astrosession/internal/mailbox"
	"github.com/antigravity-dev/astrosession/internal/planner"
	"github.com/antigravity-dev/astrosession/internal/session"
	"github.com/antigravity-dev/astrosession/internal/site"
	"github.com/antigravity-dev/astrosession/internal/strategy"
	"github.com/antigravity-dev/astrosession/internal/visibility"
	"github.com/antigravity-dev/astrosession/internal/workqueue"
	"golang.org/x/time/rate"
)

func configureLogger(logLevel string, useDev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if useDev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func splitArgv(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func main() {
	sitePath := flag.String("site", "site.toml", "path to the observatory site file")
	sessionConfigPath := flag.String("session-config", "session.cfg", "path to the KEY=value session-config file")
	strategiesDir := flag.String("strategies-dir", "strategies", "directory of *.strategy recipe files")
	catalogPath := flag.String("catalog", "catalog.txt", "path to the object catalog (name ra_deg dec_deg)")
	imageDir := flag.String("image-dir", "/data/images", "image/Astro-DB root directory")
	historyPath := flag.String("history", "history.txt", "path to the observation history file")
	queueDir := flag.String("queue-dir", "", "work queue directory (required if -use-work-queue)")
	mailboxDir := flag.String("mailbox-dir", "/tmp/astrosession-mailbox", "directory holding this process's control socket")
	mailboxName := flag.String("mailbox-name", "session", "this process's mailbox name")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	dev := flag.Bool("dev", false, "use text log format; defaults to auto-detecting an interactive terminal")
	lockFile := flag.String("lock-file", "/tmp/astrosession.lock", "single-instance lock path")

	darkProgram := flag.String("dark-program", "", "external dark-acquisition program")
	darkFlags := flag.String("dark-flags", "", "comma-separated dark-acquisition argument template")
	flatProgram := flag.String("flat-program", "", "external flat-acquisition program")
	flatFlags := flag.String("flat-flags", "", "comma-separated flat-acquisition argument template")
	coolerStartup := flag.String("cooler-startup-cmd", "", "comma-separated cooler-startup argv")
	coolerShutdown := flag.String("cooler-shutdown-cmd", "", "comma-separated cooler-shutdown argv")
	parkCmd := flag.String("park-cmd", "", "comma-separated mount-park argv")

	leaveCoolerOff := flag.Bool("leave-cooler-off", false, "skip the cooler startup step entirely")
	keepCoolerRunning := flag.Bool("keep-cooler-running", true, "leave the cooler running at session end")
	parkAtEnd := flag.Bool("park-at-end", false, "park the mount at a normal session end")
	useWorkQueue := flag.Bool("use-work-queue", false, "enable cross-process work-queue signaling")
	flag.Parse()

	useDevLog := *dev || isatty.IsTerminal(os.Stderr.Fd())
	logger := configureLogger(*logLevel, useDevLog)
	slog.SetDefault(logger)

	*sitePath = site.ExpandHome(*sitePath)
	*sessionConfigPath = site.ExpandHome(*sessionConfigPath)
	*strategiesDir = site.ExpandHome(*strategiesDir)
	*catalogPath = site.ExpandHome(*catalogPath)
	*imageDir = site.ExpandHome(*imageDir)
	*historyPath = site.ExpandHome(*historyPath)
	*queueDir = site.ExpandHome(*queueDir)
	*mailboxDir = site.ExpandHome(*mailboxDir)
	*lockFile = site.ExpandHome(*lockFile)

	lock, err := health.AcquireFlock(*lockFile)
	if err != nil {
		logger.Error("failed to acquire single-instance lock", "error", err)
		os.Exit(1)
	}
	defer health.ReleaseFlock(lock)

	siteCfg, err := site.Load(*sitePath)
	if err != nil {
		logger.Error("failed to load site", "error", err)
		os.Exit(1)
	}

	var exposureRef *planner.ReferenceData
	if ref, ok := siteCfg.ExposureReference(); ok {
		exposureRef = &ref
	}

	cfg, err := config.LoadSessionConfig(*sessionConfigPath)
	if err != nil {
		logger.Error("failed to load session config", "error", err)
		os.Exit(1)
	}
	cfgMgr := config.NewManager(cfg)

	strategies, err := strategy.Load(*strategiesDir)
	if err != nil {
		logger.Error("failed to load strategies", "error", err)
		os.Exit(1)
	}

	var catalog *session.Catalog
	if *catalogPath != "" {
		catalog, err = session.LoadCatalog(*catalogPath)
		if err != nil {
			logger.Error("failed to load object catalog", "error", err)
			os.Exit(1)
		}
	}

	startTime := time.Now()
	startJD := visibility.JDFromTime(startTime)
	evening := session.EveningDate(startJD)
	endJD, err := session.ParseShutdown(cfg.Shutdown, evening, startJD)
	if err != nil {
		logger.Error("failed to resolve SHUTDOWN time", "error", err)
		os.Exit(1)
	}

	dbPath := astrodb.PathForDate(*imageDir, evening.Format("2006-01-02"))
	db, err := astrodb.Open(dbPath, astrodb.ReadWrite)
	if err != nil {
		logger.Error("failed to open astro-db", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	hist := history.Open(*historyPath)

	var queue *workqueue.Queue
	if *useWorkQueue {
		if *queueDir == "" {
			logger.Error("-use-work-queue requires -queue-dir")
			os.Exit(1)
		}
		queue, err = workqueue.Open(*queueDir)
		if err != nil {
			logger.Error("failed to open work queue", "error", err)
			os.Exit(1)
		}
	}

	mbox, err := mailbox.Listen(*mailboxDir, *mailboxName)
	if err != nil {
		logger.Warn("failed to open control mailbox, continuing without one", "error", err)
		mbox = nil
	} else {
		defer mbox.Close()
	}

	tools := &dispatch.ShellToolRunner{
		Dark:       dispatch.ToolConfig{Program: *darkProgram, Flags: splitArgv(*darkFlags)},
		Flat:       dispatch.ToolConfig{Program: *flatProgram, Flags: splitArgv(*flatFlags)},
		Pool:       dispatch.NewThrottledPool(1, rate.Limit(1)),
		DefaultDir: *imageDir,
	}

	housekeeping, err := session.NewHousekeeping("0 */15 * * * *", db, logger.With("component", "housekeeping"))
	if err != nil {
		logger.Error("failed to build housekeeping schedule", "error", err)
		os.Exit(1)
	}
	housekeeping.Start()
	defer housekeeping.Stop()

	opts := session.DefaultOptions()
	opts.LeaveCoolerOff = *leaveCoolerOff
	opts.KeepCoolerRunning = *keepCoolerRunning
	opts.ParkAtEnd = *parkAtEnd || cfg.Park
	opts.UseWorkQueue = *useWorkQueue
	opts.TrustFocusStarPosition = cfg.TrustFocusStarPosition
	opts.UsePEC = cfg.PEC
	opts.UpdateMountModel = cfg.UpdateMountModel

	sess, err := session.New(session.Params{
		Config:            cfgMgr,
		Options:           opts,
		Site:              siteCfg.VisibilitySite(),
		Strategies:        strategies,
		Catalog:           catalog,
		DB:                db,
		History:           hist,
		Queue:             queue,
		Mailbox:           mbox,
		Tools:             tools,
		Reference:         exposureRef,
		GeneticConfig:     genetic.DefaultConfig(),
		CoolerStartupCmd:  splitArgv(*coolerStartup),
		CoolerShutdownCmd: splitArgv(*coolerShutdown),
		ParkCmd:           splitArgv(*parkCmd),
		Log:               logger,
	}, startJD, endJD)
	if err != nil {
		logger.Error("failed to build session", "error", err)
		os.Exit(1)
	}

	logger.Info("session ready",
		"start", startTime.Format(time.RFC3339),
		"duration_until_shutdown", humanize.RelTime(startTime, visibility.TimeFromJD(endJD), "", ""),
		"actions", len(sess.Actions().All()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				if err := cfgMgr.Reload(*sessionConfigPath); err != nil {
					logger.Error("config reload failed", "error", err)
					continue
				}
				logger.Info("session config reloaded")
			case syscall.SIGINT, syscall.SIGTERM:
				logger.Info("received signal, cancelling session", "signal", sig)
				cancel()
				return
			}
		}
	}()

	runStart := time.Now()
	if err := sess.Execute(ctx); err != nil {
		logger.Error("session ended with error", "error", err, "elapsed", humanize.RelTime(runStart, time.Now(), "", ""))
		os.Exit(1)
	}
	logger.Info("session complete", "elapsed", humanize.RelTime(runStart, time.Now(), "", ""))
}
