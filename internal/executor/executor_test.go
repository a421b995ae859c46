package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/astrosession/internal/action"
)

type fakeClock struct {
	now    float64
	sleeps []time.Duration
}

func (c *fakeClock) NowJD() float64 { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now += d.Seconds() / 86400.0
	return nil
}

type fakeTracking struct {
	disableCalls, enableCalls int
}

func (t *fakeTracking) Disable(ctx context.Context) error { t.disableCalls++; return nil }
func (t *fakeTracking) Enable(ctx context.Context) error  { t.enableCalls++; return nil }

type fakeRunner struct {
	outcomes []Outcome
	calls    int
}

func (r *fakeRunner) Execute(ctx context.Context, oa *action.Action) (Outcome, error) {
	o := r.outcomes[r.calls]
	r.calls++
	return o, nil
}

type fakeRescheduler struct {
	entries []*Entry
	calls   int
}

func (r *fakeRescheduler) Reschedule(ctx context.Context, now float64) ([]*Entry, error) {
	r.calls++
	return r.entries, nil
}

func darkEntry(id int, scheduled float64) *Entry {
	return &Entry{
		Action:         &action.Action{ID: id, Kind: action.KindDark},
		ScheduledTime:  scheduled,
		NeedsExecution: true,
	}
}

func TestRunCompletesAllEntriesNormally(t *testing.T) {
	clock := &fakeClock{now: 2460000.0}
	entries := []*Entry{darkEntry(1, clock.now), darkEntry(2, clock.now)}
	runner := &fakeRunner{outcomes: []Outcome{OutcomeOkay, OutcomeOkay}}
	resched := &fakeRescheduler{}

	ex := New(entries, runner, resched, nil, clock, nil)
	result, err := ex.Run(context.Background())

	require.NoError(t, err)
	require.Equal(t, SchedNormal, result)
	require.Equal(t, 2, runner.calls)
	require.Equal(t, 1, resched.calls)
	require.Equal(t, StatusCompleted, entries[0].Status)
	require.Equal(t, StatusCompleted, entries[1].Status)
	require.False(t, entries[0].NeedsExecution)
}

func TestRunAbortsOnPerformSessionShutdown(t *testing.T) {
	clock := &fakeClock{now: 2460000.0}
	entries := []*Entry{darkEntry(1, clock.now)}
	runner := &fakeRunner{outcomes: []Outcome{OutcomePerformSessionShutdown}}
	resched := &fakeRescheduler{}

	ex := New(entries, runner, resched, nil, clock, nil)
	result, err := ex.Run(context.Background())

	require.NoError(t, err)
	require.Equal(t, SchedAbort, result)
	require.Equal(t, StatusFailed, entries[0].Status)
}

func TestRunAbortsAfterThreeConsecutiveNoStars(t *testing.T) {
	clock := &fakeClock{now: 2460000.0}
	entries := []*Entry{darkEntry(1, clock.now)}
	runner := &fakeRunner{outcomes: []Outcome{OutcomeNoStars, OutcomeNoStars, OutcomeNoStars}}
	resched := &fakeRescheduler{entries: entries}

	ex := New(entries, runner, resched, nil, clock, nil)
	result, err := ex.Run(context.Background())

	require.NoError(t, err)
	require.Equal(t, SchedAbort, result)
	require.Equal(t, 3, runner.calls)
	require.Equal(t, 2, resched.calls)
}

func TestCloseEnoughWindow(t *testing.T) {
	require.True(t, closeEnough(2460000.0, 2460000.0))
	require.True(t, closeEnough(2460000.0, 2460000.0+10.0/1440.0))
	require.False(t, closeEnough(2460000.0, 2460000.0+20.0/1440.0))
}

func TestSelectNextAndWaitSleepsAndTogglesTracking(t *testing.T) {
	clock := &fakeClock{now: 2460000.0}
	delay := 1.0 / 24.0 // 1 hour
	entries := []*Entry{darkEntry(1, clock.now+delay)}
	tracking := &fakeTracking{}
	resched := &fakeRescheduler{}

	ex := New(entries, &fakeRunner{outcomes: []Outcome{OutcomeOkay}}, resched, tracking, clock, nil)
	entry, err := ex.selectNextAndWait(context.Background())

	require.NoError(t, err)
	require.Same(t, entries[0], entry)
	require.Equal(t, 1, tracking.disableCalls)
	require.Equal(t, 1, tracking.enableCalls)
	require.Len(t, clock.sleeps, 1)
	require.InDelta(t, 3600.0, clock.sleeps[0].Seconds(), 1.0)
}

func TestSelectNextAndWaitDesignatesImmediatelyBeyondSixHours(t *testing.T) {
	clock := &fakeClock{now: 2460000.0}
	entries := []*Entry{darkEntry(1, clock.now+0.5)} // 12h out
	tracking := &fakeTracking{}

	ex := New(entries, &fakeRunner{outcomes: []Outcome{OutcomeOkay}}, &fakeRescheduler{}, tracking, clock, nil)
	entry, err := ex.selectNextAndWait(context.Background())

	require.NoError(t, err)
	require.Same(t, entries[0], entry)
	require.Equal(t, 0, tracking.disableCalls)
	require.Empty(t, clock.sleeps)
}

func TestSelectNextAndWaitReschedulesWhenCursorExhausted(t *testing.T) {
	clock := &fakeClock{now: 2460000.0}
	fresh := []*Entry{darkEntry(2, clock.now)}
	resched := &fakeRescheduler{entries: fresh}

	ex := New(nil, &fakeRunner{outcomes: []Outcome{OutcomeOkay}}, resched, nil, clock, nil)
	entry, err := ex.selectNextAndWait(context.Background())

	require.NoError(t, err)
	require.Same(t, fresh[0], entry)
	require.Equal(t, 1, resched.calls)
}
