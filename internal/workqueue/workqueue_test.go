package workqueue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddAndGetLine(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(dir)
	require.NoError(t, err)

	uid, err := q.AddToQueue("OBSERVE=ru-vir;Vc;30")
	require.NoError(t, err)

	line, err := q.GetLine(uid)
	require.NoError(t, err)
	require.Equal(t, "OBSERVE=ru-vir;Vc;30", line)
}

func TestFIFOOrderAndUIDAllocation(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(dir)
	require.NoError(t, err)

	uid1, err := q.AddToQueue("first")
	require.NoError(t, err)
	uid2, err := q.AddToQueue("second")
	require.NoError(t, err)
	require.NotEqual(t, uid1, uid2)

	first, err := q.GetFirstLineUID()
	require.NoError(t, err)
	require.Equal(t, uid1, first)

	next, err := q.NextUIDWait(uid1)
	require.NoError(t, err)
	require.Equal(t, uid2, next)
}

func TestDeleteLineTombstones(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(dir)
	require.NoError(t, err)

	uid, err := q.AddToQueue("OBSERVE=ru-vir;Vc;30")
	require.NoError(t, err)

	require.NoError(t, q.DeleteLine(uid))

	done, err := q.IsDone(uid)
	require.NoError(t, err)
	require.True(t, done)
}

func TestReopenPreservesQueue(t *testing.T) {
	dir := t.TempDir()
	q1, err := Open(dir)
	require.NoError(t, err)
	uid, err := q1.AddToQueue("persisted")
	require.NoError(t, err)

	q2, err := Open(dir)
	require.NoError(t, err)
	line, err := q2.GetLine(uid)
	require.NoError(t, err)
	require.Equal(t, "persisted", line)
}
