package planner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func brightRef() ReferenceData {
	ref := DefaultReferenceData()
	ref.RefMagnitude = 12.0
	ref.RefFluxRate = 5000.0 // e-/sec at mag 12
	ref.SkyGlowPerPixelSecond = 5.0
	ref.DarkCurrentPerSecond = 0.003
	return ref
}

func TestRecommendReturnsNotOkWithoutCalibration(t *testing.T) {
	_, ok := Recommend(DefaultReferenceData(), 11.0, DefaultPalette())
	require.False(t, ok)
}

func TestRecommendPicksNonSaturatingCandidateForBrightStar(t *testing.T) {
	ref := brightRef()
	rec, ok := Recommend(ref, 8.0, DefaultPalette())
	require.True(t, ok)
	require.Greater(t, rec.ExposureSeconds, 0.0)
	require.GreaterOrEqual(t, rec.NumExposures, minExposures)
}

func TestRecommendGivesMoreExposuresForFainterStars(t *testing.T) {
	ref := brightRef()
	bright, ok := Recommend(ref, 10.0, DefaultPalette())
	require.True(t, ok)
	faint, ok := Recommend(ref, 14.0, DefaultPalette())
	require.True(t, ok)
	require.GreaterOrEqual(t, faint.NumExposures, bright.NumExposures)
}

func TestRecommendEnforcesMaxDwellTime(t *testing.T) {
	ref := brightRef()
	ref.RefFluxRate = 1.0 // very faint reference flux drives huge exposure counts
	rec, ok := Recommend(ref, 20.0, DefaultPalette())
	require.True(t, ok)
	dwell := float64(rec.NumExposures) * (rec.ExposureSeconds + downloadSeconds)
	require.LessOrEqual(t, dwell, maxDwellSeconds+1e-9)
}

func TestRecommendRejectsSaturatingPalette(t *testing.T) {
	ref := brightRef()
	ref.RefFluxRate = 1e9 // absurdly bright, saturates every candidate
	_, ok := Recommend(ref, 0.0, DefaultPalette())
	require.False(t, ok)
}
