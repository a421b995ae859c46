package jnode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRejectsListAssignment(t *testing.T) {
	bad := Node{Kind: KindList, items: []Node{Assign("x", Int(1))}}
	err := Validate(bad)
	require.Error(t, err)
}

func TestValidateRejectsEmptyAssignmentValue(t *testing.T) {
	bad := Node{Kind: KindSeq, items: []Node{Assign("x", Empty())}}
	err := Validate(bad)
	require.Error(t, err)
}

func TestValidateAcceptsWellFormedTree(t *testing.T) {
	good := Seq(
		Assign("name", String("ru-vir")),
		Assign("tstamp", Int(1234)),
		Assign("children", List(Int(1), Int(2), Int(3))),
		Assign("nullable", None()),
	)
	require.NoError(t, Validate(good))
}

func TestWriteReadRoundTrip(t *testing.T) {
	original := Seq(
		Assign("jd", Float(2460462.75)),
		Assign("exposures", List(
			Seq(Assign("juid", Int(2000000)), Assign("filter", String("Vc"))),
			Seq(Assign("juid", Int(2000001)), Assign("filter", String("B"))),
		)),
		Assign("active", Bool(true)),
		Assign("comment", None()),
	)

	data, err := Marshal(original)
	require.NoError(t, err)

	reparsed, err := Unmarshal(data)
	require.NoError(t, err)

	require.True(t, Equal(original, reparsed), "round-trip produced a different tree")
}

func TestGetAndWith(t *testing.T) {
	s := Seq(Assign("a", Int(1)), Assign("b", Int(2)))

	v, ok := s.Get("a")
	require.True(t, ok)
	require.Equal(t, int64(1), v.IntVal())

	_, ok = s.Get("missing")
	require.False(t, ok)

	updated := s.With("b", Int(20)).With("c", Int(3))
	v, ok = updated.Get("b")
	require.True(t, ok)
	require.Equal(t, int64(20), v.IntVal())
	v, ok = updated.Get("c")
	require.True(t, ok)
	require.Equal(t, int64(3), v.IntVal())

	// original untouched
	v, _ = s.Get("b")
	require.Equal(t, int64(2), v.IntVal())
}

func TestFloatRoundTripsPrecisely(t *testing.T) {
	n := Float(1.23456789012345)
	data, err := Marshal(n)
	require.NoError(t, err)
	reparsed, err := Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, n.FloatVal(), reparsed.FloatVal())
}
