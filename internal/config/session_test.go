package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.cfg")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadSessionConfigParsesKnownKeys(t *testing.T) {
	path := writeFile(t, `
# comment line
FLAT=true
FLAT_Vc=/cal/flat_vc.fits
LOGFILE=/var/log/session.log
SHUTDOWN=05:30
SCHED_INCLUDE=lpv,1.5
SCHED_INCLUDE=eclipsing
PARK=true
`)
	cfg, err := LoadSessionConfig(path)
	require.NoError(t, err)
	require.True(t, cfg.Flat)
	require.Equal(t, "/cal/flat_vc.fits", cfg.FlatByFilter["Vc"])
	require.Equal(t, "05:30", cfg.Shutdown)
	require.Len(t, cfg.SchedIncludes, 2)
	require.Equal(t, "lpv", cfg.SchedIncludes[0].Group)
	require.Equal(t, 1.5, cfg.SchedIncludes[0].Priority)
	require.Equal(t, 1.0, cfg.SchedIncludes[1].Priority)
}

func TestLoadSessionConfigRejectsUnknownKey(t *testing.T) {
	path := writeFile(t, "SHUTDOWN=05:30\nBOGUS_KEY=1\n")
	_, err := LoadSessionConfig(path)
	require.Error(t, err)
}

func TestLoadSessionConfigRequiresShutdown(t *testing.T) {
	path := writeFile(t, "FLAT=true\n")
	_, err := LoadSessionConfig(path)
	require.Error(t, err)
}

func TestManagerReloadAndClone(t *testing.T) {
	path := writeFile(t, "SHUTDOWN=05:30\n")
	cfg, err := LoadSessionConfig(path)
	require.NoError(t, err)

	mgr := NewManager(cfg)
	got := mgr.Get()
	got.Shutdown = "mutated"

	require.Equal(t, "05:30", mgr.Get().Shutdown, "mutating a returned clone must not affect the manager")

	path2 := writeFile(t, "SHUTDOWN=06:00\n")
	require.NoError(t, mgr.Reload(path2))
	require.Equal(t, "06:00", mgr.Get().Shutdown)
}
