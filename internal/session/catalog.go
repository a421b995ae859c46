// Object catalog: resolves a strategy's object name to a sky
// position. Spec.md §4.4 mentions only that "a reference to the
// session's object catalog resolves object_location" without
// specifying its on-disk form; original_source does not carry a
// catalog file either (it deferred to an external planetarium
// database). A minimal flat file is defined here, in the same
// whitespace-tolerant, `#`-commented style as every other
// line-oriented format in this system.
package session

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/antigravity-dev/astrosession/internal/visibility"
)

// Catalog maps a canonical (lowercased) object id to its J2000
// position.
type Catalog struct {
	byName map[string]visibility.DecRA
}

// Get looks up an object's position.
func (c *Catalog) Get(name string) (visibility.DecRA, bool) {
	pos, ok := c.byName[strings.ToLower(name)]
	return pos, ok
}

// LoadCatalog reads a catalog file of `name ra_deg dec_deg` lines
// (whitespace separated, `#` comments, blank lines ignored).
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("session: open catalog: %w", err)
	}
	defer f.Close()

	cat := &Catalog{byName: map[string]visibility.DecRA{}}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("session: catalog line %d: want \"name ra_deg dec_deg\", got %q", lineNo, line)
		}
		raDeg, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("session: catalog line %d: ra_deg: %w", lineNo, err)
		}
		decDeg, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("session: catalog line %d: dec_deg: %w", lineNo, err)
		}
		cat.byName[strings.ToLower(fields[0])] = visibility.DecRA{
			RA:  raDeg * math.Pi / 180.0,
			Dec: decDeg * math.Pi / 180.0,
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("session: reading catalog: %w", err)
	}
	return cat, nil
}
