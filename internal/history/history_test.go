package history

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRememberAndSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.txt")
	h := Open(path)

	require.NoError(t, h.Remember(Observation{
		JD: 2460462.75, Object: "RU-Vir", ExecSeconds: 60,
		B: 12.1, V: 11.4, R: math.NaN(), I: math.NaN(),
	}))
	require.NoError(t, h.Save())

	h2 := Open(path)
	obs, ok, err := h2.LastObservation("ru-vir")
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 2460462.75, obs.JD, 1e-6)
	require.InDelta(t, 12.1, obs.B, 1e-9)
	require.True(t, math.IsNaN(obs.R))
}

func TestEmptyMagnitudesPreserveCommas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.txt")
	h := Open(path)
	require.NoError(t, h.Remember(Observation{
		JD: 2460000.5, Object: "tt-ari", ExecSeconds: 30,
		B: math.NaN(), V: 10.5, R: math.NaN(), I: math.NaN(),
	}))
	require.NoError(t, h.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), ",,10.5,,")
}

func TestCommentOnlyLinesAreTolerated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.txt")
	require.NoError(t, os.WriteFile(path, []byte("# a pure comment line\n2460000.5 ru-vir 60.000,12.0,11.4,,\n"), 0644))

	h := Open(path)
	obs, ok, err := h.LastObservation("ru-vir")
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 12.0, obs.B, 1e-9)
}

func TestPredictBrightnessNaNWithFewPairs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.txt")
	h := Open(path)
	require.NoError(t, h.Remember(Observation{JD: 1, Object: "x", V: 10, B: 11, R: math.NaN(), I: math.NaN()}))
	require.NoError(t, h.Save())

	v, err := h.PredictBrightness("x", 'B', 10.5)
	require.NoError(t, err)
	require.True(t, math.IsNaN(v))
}

func TestPredictBrightnessVFromVIsIdentity(t *testing.T) {
	h := Open(filepath.Join(t.TempDir(), "history.txt"))
	v, err := h.PredictBrightness("anything", 'V', 9.87)
	require.NoError(t, err)
	require.Equal(t, 9.87, v)
}

func TestPredictBrightnessLinearFit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.txt")
	h := Open(path)
	// B = V + 1 exactly, across three points
	for i, v := range []float64{9.0, 10.0, 11.0} {
		require.NoError(t, h.Remember(Observation{
			JD: float64(2460000 + i), Object: "fit-star", V: v, B: v + 1, R: math.NaN(), I: math.NaN(),
		}))
	}
	require.NoError(t, h.Save())

	got, err := h.PredictBrightness("fit-star", 'B', 12.0)
	require.NoError(t, err)
	require.InDelta(t, 13.0, got, 1e-6)
}

func TestCacheInvalidatesOnExternalRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.txt")
	h := Open(path)
	require.NoError(t, h.Remember(Observation{JD: 1, Object: "a", V: 1, B: math.NaN(), R: math.NaN(), I: math.NaN()}))
	require.NoError(t, h.Save())

	_, ok, err := h.LastObservation("b")
	require.NoError(t, err)
	require.False(t, ok)

	// Simulate an external process rewriting the file with a newer mtime.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("2460001.0 b 10.000,,9.5,,\n"), 0644))
	future := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	obs, ok, err := h.LastObservation("b")
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 9.5, obs.V, 1e-9)
}
