package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/astrosession/internal/action"
	"github.com/antigravity-dev/astrosession/internal/astrodb"
	"github.com/antigravity-dev/astrosession/internal/config"
	"github.com/antigravity-dev/astrosession/internal/genetic"
	"github.com/antigravity-dev/astrosession/internal/history"
	"github.com/antigravity-dev/astrosession/internal/strategy"
	"github.com/antigravity-dev/astrosession/internal/visibility"
)

func TestParseShutdownTonightWhenAfterStart(t *testing.T) {
	start := visibility.JDFromTime(time.Date(2026, 7, 30, 18, 0, 0, 0, time.UTC))
	evening := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	jd, err := ParseShutdown("23:30", evening, start)
	require.NoError(t, err)
	got := visibility.TimeFromJD(jd).UTC()
	require.Equal(t, 30, got.Day())
	require.Equal(t, 23, got.Hour())
}

func TestParseShutdownRollsToTomorrowWhenBeforeStart(t *testing.T) {
	start := visibility.JDFromTime(time.Date(2026, 7, 30, 20, 0, 0, 0, time.UTC))
	evening := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	jd, err := ParseShutdown("06:00", evening, start)
	require.NoError(t, err)
	got := visibility.TimeFromJD(jd).UTC()
	require.Equal(t, 31, got.Day())
	require.Equal(t, 6, got.Hour())
}

func TestParseShutdownRejectsMalformed(t *testing.T) {
	_, err := ParseShutdown("not-a-time", time.Now(), 0)
	require.Error(t, err)
}

type fakeShellTool struct {
	darks, flats int
}

func (f *fakeShellTool) RunDark(ctx context.Context, oa *action.Action) error {
	f.darks++
	return nil
}

func (f *fakeShellTool) RunFlat(ctx context.Context, oa *action.Action, filter string) error {
	f.flats++
	return nil
}

func writeStrategyFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".strategy"), []byte(contents), 0o644))
}

func TestSessionExecuteRunsDarkEntryToCompletion(t *testing.T) {
	dir := t.TempDir()
	writeStrategyFile(t, dir, "caldark", "PRIORITY=1.0\nOBSERVE=cal,Dark()\n")

	strategies, err := strategy.Load(dir)
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "astro_db.json")
	db, err := astrodb.Open(dbPath, astrodb.ReadWrite)
	require.NoError(t, err)

	hist := history.Open(filepath.Join(t.TempDir(), "history.txt"))

	cfgMgr := config.NewManager(&config.SessionConfig{
		FlatByFilter: map[string]string{},
		SchedIncludes: []config.SchedInclude{
			{Group: "cal", Priority: 1.0},
		},
	})

	tools := &fakeShellTool{}

	startJD := visibility.JDFromTime(time.Now())
	endJD := startJD + 0.3

	sess, err := New(Params{
		Config:        cfgMgr,
		Options:       DefaultOptions(),
		Site:          visibility.Site{},
		Strategies:    strategies,
		DB:            db,
		History:       hist,
		Tools:         tools,
		GeneticConfig: genetic.DefaultConfig(),
	}, startJD, endJD)
	require.NoError(t, err)
	require.Len(t, sess.Actions().All(), 1)

	var ranTask []string
	sess.runTask = func(argv []string) error {
		ranTask = append(ranTask, argv...)
		return nil
	}

	err = sess.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, tools.darks)
	require.Nil(t, ranTask) // no cooler/park/shutdown commands configured
}

func TestSessionExecuteRunsShutdownTask(t *testing.T) {
	dir := t.TempDir()
	writeStrategyFile(t, dir, "caldark", "PRIORITY=1.0\nOBSERVE=cal,Dark()\n")
	strategies, err := strategy.Load(dir)
	require.NoError(t, err)

	db, err := astrodb.Open(filepath.Join(t.TempDir(), "astro_db.json"), astrodb.ReadWrite)
	require.NoError(t, err)
	hist := history.Open(filepath.Join(t.TempDir(), "history.txt"))

	cfgMgr := config.NewManager(&config.SessionConfig{
		FlatByFilter:  map[string]string{},
		SchedIncludes: []config.SchedInclude{{Group: "cal", Priority: 1.0}},
		ShutdownTask:  "true",
	})

	startJD := visibility.JDFromTime(time.Now())
	sess, err := New(Params{
		Config:        cfgMgr,
		Options:       DefaultOptions(),
		Strategies:    strategies,
		DB:            db,
		History:       hist,
		Tools:         &fakeShellTool{},
		GeneticConfig: genetic.DefaultConfig(),
	}, startJD, startJD+0.1)
	require.NoError(t, err)

	var calledShutdown bool
	sess.runTask = func(argv []string) error {
		if len(argv) > 0 && argv[len(argv)-1] == "true" {
			calledShutdown = true
		}
		return nil
	}

	require.NoError(t, sess.Execute(context.Background()))
	require.True(t, calledShutdown)
}

func TestEveningDateSubtractsADayBeforeNoon(t *testing.T) {
	jd := visibility.JDFromTime(time.Date(2026, 7, 30, 3, 0, 0, 0, time.UTC))
	ev := EveningDate(jd)
	require.Equal(t, 29, ev.Day())
}

func TestEveningDateSameDayAfterNoon(t *testing.T) {
	jd := visibility.JDFromTime(time.Date(2026, 7, 30, 18, 0, 0, 0, time.UTC))
	ev := EveningDate(jd)
	require.Equal(t, 30, ev.Day())
}
