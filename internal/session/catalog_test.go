package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadCatalogParsesEntries(t *testing.T) {
	path := writeCatalog(t, "# comment\nrt-cyg 301.5 54.2\n\nss-cyg 313.73 43.59 # dwarf nova\n")
	cat, err := LoadCatalog(path)
	require.NoError(t, err)

	pos, ok := cat.Get("RT-Cyg")
	require.True(t, ok)
	require.InDelta(t, 301.5*3.141592653589793/180.0, pos.RA, 1e-9)

	_, ok = cat.Get("unknown")
	require.False(t, ok)
}

func TestLoadCatalogRejectsMalformedLine(t *testing.T) {
	path := writeCatalog(t, "rt-cyg 301.5\n")
	_, err := LoadCatalog(path)
	require.Error(t, err)
}

func TestLoadCatalogRejectsBadNumber(t *testing.T) {
	path := writeCatalog(t, "rt-cyg not-a-number 54.2\n")
	_, err := LoadCatalog(path)
	require.Error(t, err)
}
