package astrodb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// QueryIndex is a disposable, in-memory SQLite mirror of the
// exposures list, rebuilt on every lock-region entry. It exists
// purely to give session housekeeping and reporting queries ("every
// Vc exposure of ru-vir tonight with airmass < 2") a real query
// engine instead of hand-rolled linear scans over the tree, per
// SPEC_FULL.md's domain-stack wiring of modernc.org/sqlite as a
// secondary index rather than Astro-DB's primary store.
type QueryIndex struct {
	db *sql.DB
}

func newQueryIndex() (*QueryIndex, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("astrodb: open query index: %w", err)
	}
	schema := `
	CREATE TABLE exposures (
		juid INTEGER PRIMARY KEY,
		target TEXT,
		filter TEXT,
		jd REAL,
		exp_time REAL,
		airmass REAL,
		path TEXT
	);
	CREATE INDEX idx_exposures_target ON exposures(target);
	CREATE INDEX idx_exposures_filter ON exposures(filter);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("astrodb: create query index schema: %w", err)
	}
	return &QueryIndex{db: db}, nil
}

func (q *QueryIndex) Close() {
	if q == nil || q.db == nil {
		return
	}
	q.db.Close()
}

// ExposuresByTargetFilter returns the JUIDs of every exposure of
// target in filter, ordered by Julian date.
func (q *QueryIndex) ExposuresByTargetFilter(target, filter string) ([]int64, error) {
	rows, err := q.db.Query(
		`SELECT juid FROM exposures WHERE target = ? AND filter = ? ORDER BY jd ASC`,
		target, filter,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var juid int64
		if err := rows.Scan(&juid); err != nil {
			return nil, err
		}
		out = append(out, juid)
	}
	return out, rows.Err()
}

// AirmassBelow returns the JUIDs of exposures of target in filter
// whose recorded airmass is below the given ceiling.
func (q *QueryIndex) AirmassBelow(target, filter string, ceiling float64) ([]int64, error) {
	rows, err := q.db.Query(
		`SELECT juid FROM exposures WHERE target = ? AND filter = ? AND airmass < ? ORDER BY jd ASC`,
		target, filter, ceiling,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var juid int64
		if err := rows.Scan(&juid); err != nil {
			return nil, err
		}
		out = append(out, juid)
	}
	return out, rows.Err()
}

// rebuildIndexLocked rebuilds the query index from the current tree.
// Must be called with s.mu held and a lock region open. A rebuild
// failure does not abort the lock region — the index degrades to
// stale/empty rather than blocking legitimate Astro-DB mutation.
func (s *Store) rebuildIndexLocked() {
	if s.index == nil {
		idx, err := newQueryIndex()
		if err != nil {
			return
		}
		s.index = idx
	}
	if _, err := s.index.db.Exec(`DELETE FROM exposures`); err != nil {
		return
	}

	items, err := s.listFor(ListExposures)
	if err != nil {
		return
	}
	stmt, err := s.index.db.Prepare(
		`INSERT INTO exposures (juid, target, filter, jd, exp_time, airmass, path) VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return
	}
	defer stmt.Close()

	for _, item := range items {
		juid, _ := item.Get("juid")
		target, _ := item.Get("target")
		filter, _ := item.Get("filter")
		jd, _ := item.Get("julian")
		expTime, _ := item.Get("exposure")
		airmass, _ := item.Get("airmass")
		path, _ := item.Get("path")
		stmt.Exec(juid.IntVal(), target.StrVal(), filter.StrVal(), jd.FloatVal(), expTime.FloatVal(), airmass.FloatVal(), path.StrVal())
	}
}

// Index exposes the store's query index for callers (e.g. session
// housekeeping) that want SQL access instead of typed accessors. It
// is only valid to query while the caller's own lock region is open
// or immediately after Open/a prior lock region's release, since a
// subsequent writer's rebuild replaces its backing rows.
func (s *Store) Index() *QueryIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}
