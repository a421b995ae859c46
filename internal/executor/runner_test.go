package executor

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/astrosession/internal/action"
	"github.com/antigravity-dev/astrosession/internal/astrodb"
	"github.com/antigravity-dev/astrosession/internal/history"
	"github.com/antigravity-dev/astrosession/internal/planner"
	"github.com/antigravity-dev/astrosession/internal/strategy"
	"github.com/antigravity-dev/astrosession/internal/visibility"
)

type stubCamera struct {
	correlateErr error
	results      []ExposureResult
	exposeErr    error

	lastExpTime float64
	lastCount   int
}

func (c *stubCamera) FindAndCorrelate(ctx context.Context, oa *action.Action) error {
	return c.correlateErr
}

func (c *stubCamera) Expose(ctx context.Context, oa *action.Action, filter string, expTime float64, count int) ([]ExposureResult, error) {
	c.lastExpTime, c.lastCount = expTime, count
	return c.results, c.exposeErr
}

type stubTools struct {
	darkErr, flatErr error
	darkCalls        int
}

func (s *stubTools) RunDark(ctx context.Context, oa *action.Action) error {
	s.darkCalls++
	return s.darkErr
}
func (s *stubTools) RunFlat(ctx context.Context, oa *action.Action, filter string) error {
	return s.flatErr
}

type stubMailbox struct {
	messages []MailboxMessage
	i        int
}

func (m *stubMailbox) Receive() (MailboxMessage, error) {
	if m.i >= len(m.messages) {
		return MessageNone, nil
	}
	msg := m.messages[m.i]
	m.i++
	return msg, nil
}

func quickAction(s *strategy.Strategy) *action.Action {
	loc := visibility.DecRA{Dec: 0, RA: 0}
	return &action.Action{ID: 42, Kind: action.KindQuick, Strategy: s, Location: &loc}
}

func TestDefaultRunnerQuickFlowRegistersExposuresAndHistory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "astro_db.json")
	db, err := astrodb.Open(dbPath, astrodb.ReadWrite)
	require.NoError(t, err)
	defer db.Close()

	hist := history.Open(filepath.Join(t.TempDir(), "history.dat"))

	s := &strategy.Strategy{ObjectID: "ru-vir", QuickExposureTime: 10, QuickNumExposures: 3, QuickFilterName: "V"}
	oa := quickAction(s)

	camera := &stubCamera{results: []ExposureResult{
		{Path: "/tmp/a.fits", JD: 2460000.1, Airmass: 1.2},
		{Path: "/tmp/b.fits", JD: 2460000.2, Airmass: 1.3},
	}}

	r := &DefaultRunner{Camera: camera, Tools: &stubTools{}, DB: db, History: hist}
	outcome, err := r.Execute(context.Background(), oa)

	require.NoError(t, err)
	require.Equal(t, OutcomeOkay, outcome)
	require.Equal(t, 1, oa.Quick.SetNumber)

	last, ok, err := hist.LastObservation("ru-vir")
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 2460000.2, last.JD, 1e-9)
}

func TestDefaultRunnerQuickUsesPlannerWhenAutoPhotUpdateSet(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "astro_db.json")
	db, err := astrodb.Open(dbPath, astrodb.ReadWrite)
	require.NoError(t, err)
	defer db.Close()

	hist := history.Open(filepath.Join(t.TempDir(), "history.dat"))
	require.NoError(t, hist.Remember(history.Observation{
		JD: 2459999.5, Object: "ru-vir", V: 11.0, B: 12.0, R: math.NaN(), I: math.NaN(),
	}))

	s := &strategy.Strategy{
		ObjectID: "ru-vir", QuickExposureTime: 10, QuickNumExposures: 3,
		QuickFilterName: "V", AutoPhotUpdate: true,
	}
	oa := quickAction(s)

	camera := &stubCamera{results: []ExposureResult{{Path: "/tmp/a.fits", JD: 2460000.1, Airmass: 1.2}}}

	ref := planner.DefaultReferenceData()
	ref.RefMagnitude = 12.0
	ref.RefFluxRate = 5000.0
	ref.SkyGlowPerPixelSecond = 5.0
	ref.DarkCurrentPerSecond = 0.003

	r := &DefaultRunner{Camera: camera, Tools: &stubTools{}, DB: db, History: hist, Reference: &ref}
	outcome, err := r.Execute(context.Background(), oa)

	require.NoError(t, err)
	require.Equal(t, OutcomeOkay, outcome)
	require.Greater(t, camera.lastExpTime, 0.0)
	require.NotEqual(t, s.QuickExposureTime, camera.lastExpTime)
}

func TestDefaultRunnerQuickRecordsRemarksAsComment(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "astro_db.json")
	db, err := astrodb.Open(dbPath, astrodb.ReadWrite)
	require.NoError(t, err)
	defer db.Close()

	hist := history.Open(filepath.Join(t.TempDir(), "history.dat"))

	s := &strategy.Strategy{
		ObjectID: "ru-vir", QuickExposureTime: 10, QuickNumExposures: 1, QuickFilterName: "V",
		Remarks: "faint comparison star", ReportNotes: "use check2 after 2026",
	}
	oa := quickAction(s)
	camera := &stubCamera{results: []ExposureResult{{Path: "/tmp/a.fits", JD: 2460000.1, Airmass: 1.2}}}

	r := &DefaultRunner{Camera: camera, Tools: &stubTools{}, DB: db, History: hist}
	outcome, err := r.Execute(context.Background(), oa)
	require.NoError(t, err)
	require.Equal(t, OutcomeOkay, outcome)

	last, ok, err := hist.LastObservation("ru-vir")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "faint comparison star; use check2 after 2026", last.Comment)
}

func TestDefaultRunnerQuickUsesPlannerWhenAutoSequenceSet(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "astro_db.json")
	db, err := astrodb.Open(dbPath, astrodb.ReadWrite)
	require.NoError(t, err)
	defer db.Close()

	hist := history.Open(filepath.Join(t.TempDir(), "history.dat"))
	require.NoError(t, hist.Remember(history.Observation{
		JD: 2459999.5, Object: "ru-vir", V: 11.0, B: 12.0, R: math.NaN(), I: math.NaN(),
	}))

	s := &strategy.Strategy{
		ObjectID: "ru-vir", QuickExposureTime: 10, QuickNumExposures: 3,
		QuickFilterName: "V", AutoSequence: true,
	}
	oa := quickAction(s)

	camera := &stubCamera{results: []ExposureResult{{Path: "/tmp/a.fits", JD: 2460000.1, Airmass: 1.2}}}

	ref := planner.DefaultReferenceData()
	ref.RefMagnitude = 12.0
	ref.RefFluxRate = 5000.0
	ref.SkyGlowPerPixelSecond = 5.0
	ref.DarkCurrentPerSecond = 0.003

	r := &DefaultRunner{Camera: camera, Tools: &stubTools{}, DB: db, History: hist, Reference: &ref}
	outcome, err := r.Execute(context.Background(), oa)

	require.NoError(t, err)
	require.Equal(t, OutcomeOkay, outcome)
	require.Greater(t, camera.lastExpTime, 0.0)
	require.NotEqual(t, s.QuickExposureTime, camera.lastExpTime)
}

func TestDefaultRunnerQuickNoStarsWhenExposeFails(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "astro_db.json")
	db, err := astrodb.Open(dbPath, astrodb.ReadWrite)
	require.NoError(t, err)
	defer db.Close()

	s := &strategy.Strategy{ObjectID: "ru-vir", QuickFilterName: "V"}
	oa := quickAction(s)
	camera := &stubCamera{results: nil}

	r := &DefaultRunner{Camera: camera, Tools: &stubTools{}, DB: db}
	outcome, err := r.Execute(context.Background(), oa)

	require.NoError(t, err)
	require.Equal(t, OutcomeNoStars, outcome)
}

func TestDefaultRunnerTimeSeqUnsupported(t *testing.T) {
	oa := &action.Action{ID: 1, Kind: action.KindTimeSeq}
	r := &DefaultRunner{Tools: &stubTools{}}
	outcome, err := r.Execute(context.Background(), oa)

	require.NoError(t, err)
	require.Equal(t, OutcomeNoStars, outcome)
}

func TestDefaultRunnerDarkInvokesShellTool(t *testing.T) {
	oa := &action.Action{ID: 1, Kind: action.KindDark}
	tools := &stubTools{}
	r := &DefaultRunner{Tools: tools}
	outcome, err := r.Execute(context.Background(), oa)

	require.NoError(t, err)
	require.Equal(t, OutcomeOkay, outcome)
	require.Equal(t, 1, tools.darkCalls)
}

func TestDefaultRunnerMailboxAbortShortCircuits(t *testing.T) {
	oa := &action.Action{ID: 1, Kind: action.KindDark}
	r := &DefaultRunner{Tools: &stubTools{}, Mailbox: &stubMailbox{messages: []MailboxMessage{MessageAbort}}}
	outcome, err := r.Execute(context.Background(), oa)

	require.NoError(t, err)
	require.Equal(t, OutcomePerformSessionShutdown, outcome)
}

func TestDefaultRunnerMailboxPauseThenResume(t *testing.T) {
	oa := &action.Action{ID: 1, Kind: action.KindDark}
	clock := &fakeClock{now: 2460000.0}
	mailbox := &stubMailbox{messages: []MailboxMessage{MessagePause, MessageNone, MessageResume}}
	r := &DefaultRunner{Tools: &stubTools{}, Mailbox: mailbox, Clock: clock}
	outcome, err := r.Execute(context.Background(), oa)

	require.NoError(t, err)
	require.Equal(t, OutcomeOkay, outcome)
	require.Len(t, clock.sleeps, 2)
}
