package mailbox

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/astrosession/internal/executor"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	target, err := Listen(dir, "simple_session")
	require.NoError(t, err)
	defer target.Close()

	sender := NewSender(dir)
	require.NoError(t, sender.Send("simple_session", KindPause, 7))

	msg, ok, err := target.TryReceive()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, KindPause, msg.Kind)
	require.Equal(t, int64(7), msg.Param)
	require.NotEqual(t, uuid.Nil, msg.ID)
}

func TestTryReceiveReturnsNotOkWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	target, err := Listen(dir, "idle_session")
	require.NoError(t, err)
	defer target.Close()

	_, ok, err := target.TryReceive()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTargetReceiveAdaptsMessageKindsToExecutorMailbox(t *testing.T) {
	dir := t.TempDir()
	target, err := Listen(dir, "sess")
	require.NoError(t, err)
	defer target.Close()
	sender := NewSender(dir)

	cases := []struct {
		kind MessageKind
		want executor.MailboxMessage
	}{
		{KindAbort, executor.MessageAbort},
		{KindPause, executor.MessagePause},
		{KindResume, executor.MessageResume},
	}
	for _, tc := range cases {
		require.NoError(t, sender.Send("sess", tc.kind, 0))
		got, err := target.Receive()
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}
}

func TestReceiveReportsNoneWhenMailboxEmpty(t *testing.T) {
	dir := t.TempDir()
	target, err := Listen(dir, "sess")
	require.NoError(t, err)
	defer target.Close()

	got, err := target.Receive()
	require.NoError(t, err)
	require.Equal(t, executor.MessageNone, got)
}

func TestSendToUnknownTargetReturnsError(t *testing.T) {
	dir := t.TempDir()
	sender := NewSender(dir)
	err := sender.Send("nobody_home", KindAbort, 0)
	require.Error(t, err)
}

func TestListTargetsReturnsListeningNames(t *testing.T) {
	dir := t.TempDir()
	a, err := Listen(dir, "alpha")
	require.NoError(t, err)
	defer a.Close()
	b, err := Listen(dir, "beta")
	require.NoError(t, err)
	defer b.Close()

	names, err := ListTargets(dir)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alpha", "beta"}, names)
}

func TestListTargetsOnMissingDirReturnsEmpty(t *testing.T) {
	names, err := ListTargets("/nonexistent/path/for/mailbox/test")
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestPauseThenResumeAfterDelay(t *testing.T) {
	dir := t.TempDir()
	target, err := Listen(dir, "simple_session")
	require.NoError(t, err)
	defer target.Close()
	sender := NewSender(dir)

	require.NoError(t, sender.Send("simple_session", KindPause, 0))
	got, err := target.Receive()
	require.NoError(t, err)
	require.Equal(t, executor.MessagePause, got)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, sender.Send("simple_session", KindResume, 0))
	got, err = target.Receive()
	require.NoError(t, err)
	require.Equal(t, executor.MessageResume, got)
}
