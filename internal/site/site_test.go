package site

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "site.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadParsesLocationAndHorizon(t *testing.T) {
	path := writeConfig(t, `
name = "Backyard Observatory"
latitude_deg = 40.0
longitude_deg = -105.25
elevation_m = 1620.0
min_altitude_deg = 10.0
settle_time = "30s"

[[horizon]]
azimuth_deg = -180.0
min_altitude_deg = 35.0

[[horizon]]
azimuth_deg = 0.0
min_altitude_deg = 13.0

[[horizon]]
azimuth_deg = 180.0
min_altitude_deg = 35.0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "Backyard Observatory", cfg.Name)
	require.Equal(t, 40.0, cfg.LatitudeDeg)
	require.Len(t, cfg.Horizon, 3)
	require.Equal(t, 30.0, cfg.SettleTime.Seconds())
}

func TestLoadRejectsOutOfRangeLatitude(t *testing.T) {
	path := writeConfig(t, "latitude_deg = 140.0\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsNonAscendingHorizon(t *testing.T) {
	path := writeConfig(t, `
latitude_deg = 40.0

[[horizon]]
azimuth_deg = 10.0
min_altitude_deg = 5.0

[[horizon]]
azimuth_deg = 5.0
min_altitude_deg = 5.0
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestVisibilitySiteConvertsDegreesToRadians(t *testing.T) {
	path := writeConfig(t, `
latitude_deg = 45.0
longitude_deg = 90.0
min_altitude_deg = 5.0

[[horizon]]
azimuth_deg = -180.0
min_altitude_deg = 20.0

[[horizon]]
azimuth_deg = 180.0
min_altitude_deg = 20.0
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	vs := cfg.VisibilitySite()
	require.InDelta(t, 0.7853981633974483, vs.LatitudeRad, 1e-9)
	require.InDelta(t, 1.5707963267948966, vs.LongitudeRad, 1e-9)
	require.Equal(t, 5.0, vs.MinAltitudeDeg)
	require.Len(t, vs.HorizonMap, 2)
}

func TestExpandHomeHandlesTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "logs/site.log"), ExpandHome("~/logs/site.log"))
	require.Equal(t, "/abs/path", ExpandHome("/abs/path"))
}
