package astrodb

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/antigravity-dev/astrosession/internal/jnode"
)

// FITSProber resolves the integer-second calibration duration a dark
// frame must have for a given science exposure. Real FITS keyword
// plumbing is out of scope (§ Non-goals); the default prober simply
// rounds the requested exposure time, which is correct for every
// camera in practice since exposure durations are commanded in whole
// seconds.
type FITSProber interface {
	DarkSeconds(expTimeSec float64) int
}

type roundingProber struct{}

func (roundingProber) DarkSeconds(expTimeSec float64) int { return int(math.Round(expTimeSec)) }

// DefaultFITSProber is used by AddExposure unless overridden.
var DefaultFITSProber FITSProber = roundingProber{}

// AddExposure records a completed (or planned) science exposure and
// returns its JUID. When needsDark/needsFlat are set, the matching
// calibration frame paths are recorded alongside using the sibling
// directory convention dark<N>.fits / flat_<filter>.fits.
func (s *Store) AddExposure(path, target, filter string, directive int64, jd, expTimeSec, airmass float64, chart string, needsDark, needsFlat bool) (int64, error) {
	var juid int64
	err := s.withLock(func() error {
		id, err := s.nextJUID(ListExposures)
		if err != nil {
			return err
		}
		juid = id

		clean := filepath.Clean(path)
		fields := []jnode.Node{
			jnode.Assign("juid", jnode.Int(juid)),
			jnode.Assign("tstamp", jnode.Int(now())),
			jnode.Assign("path", jnode.String(clean)),
			jnode.Assign("target", jnode.String(target)),
			jnode.Assign("filter", jnode.String(filter)),
			jnode.Assign("directive", jnode.Int(directive)),
			jnode.Assign("julian", jnode.Float(jd)),
			jnode.Assign("exposure", jnode.Float(expTimeSec)),
			jnode.Assign("airmass", jnode.Float(airmass)),
			jnode.Assign("chart", jnode.String(chart)),
		}

		dir := filepath.Dir(clean)
		if needsDark {
			secs := DefaultFITSProber.DarkSeconds(expTimeSec)
			fields = append(fields, jnode.Assign("dark", jnode.String(filepath.Join(dir, fmt.Sprintf("dark%d.fits", secs)))))
		}
		if needsFlat {
			fields = append(fields, jnode.Assign("flat", jnode.String(filepath.Join(dir, fmt.Sprintf("flat_%s.fits", filter)))))
		}

		items, err := s.listFor(ListExposures)
		if err != nil {
			return err
		}
		items = append(items, jnode.Seq(fields...))
		s.setList(ListExposures, items)
		return nil
	})
	return juid, err
}

// AddRefreshStack inserts or updates a combined-frame ("stack")
// record. Re-inserting a stack with a path already on file reuses its
// JUID and recomputes its constituent averages, matching the
// "replacing a stack's constituent list recomputes its averages"
// invariant. constituents are recorded under "included" when they
// name frames actually combined, or "source" when they name the
// exposures the stack is planned to be built from.
func (s *Store) AddRefreshStack(filter string, directive int64, target, stackPath string, constituents []int64, filenamesAreActual bool) (int64, error) {
	var juid int64
	err := s.withLock(func() error {
		items, err := s.listFor(ListStacks)
		if err != nil {
			return err
		}

		existingIdx := -1
		for i, item := range items {
			if p, ok := item.Get("path"); ok && p.StrVal() == stackPath {
				existingIdx = i
				break
			}
		}

		if existingIdx >= 0 {
			juidVal, _ := items[existingIdx].Get("juid")
			juid = juidVal.IntVal()
		} else {
			id, err := s.nextJUID(ListStacks)
			if err != nil {
				return err
			}
			juid = id
		}

		avgAirmass, avgExpTime, avgJD, err := s.averageExposureFields(constituents)
		if err != nil {
			return err
		}

		memberKey := "source"
		if filenamesAreActual {
			memberKey = "included"
		}
		memberItems := make([]jnode.Node, len(constituents))
		for i, c := range constituents {
			memberItems[i] = jnode.Int(c)
		}

		rec := jnode.Seq(
			jnode.Assign("juid", jnode.Int(juid)),
			jnode.Assign("tstamp", jnode.Int(now())),
			jnode.Assign("path", jnode.String(stackPath)),
			jnode.Assign("target", jnode.String(target)),
			jnode.Assign("filter", jnode.String(filter)),
			jnode.Assign("directive", jnode.Int(directive)),
			jnode.Assign(memberKey, jnode.List(memberItems...)),
			jnode.Assign("airmass", jnode.Float(avgAirmass)),
			jnode.Assign("exposure", jnode.Float(avgExpTime)),
			jnode.Assign("julian", jnode.Float(avgJD)),
		)

		if existingIdx >= 0 {
			items[existingIdx] = rec
		} else {
			items = append(items, rec)
		}
		s.setList(ListStacks, items)
		return nil
	})
	return juid, err
}

// averageExposureFields computes the arithmetic mean of airmass,
// exposure, and julian across the named exposure JUIDs. Must be
// called inside a lock region.
func (s *Store) averageExposureFields(exposureJUIDs []int64) (airmass, expTime, jd float64, err error) {
	if len(exposureJUIDs) == 0 {
		return 0, 0, 0, nil
	}
	items, err := s.listFor(ListExposures)
	if err != nil {
		return 0, 0, 0, err
	}
	byJUID := make(map[int64]jnode.Node, len(items))
	for _, item := range items {
		if v, ok := item.Get("juid"); ok {
			byJUID[v.IntVal()] = item
		}
	}

	var sumAirmass, sumExpTime, sumJD float64
	n := 0
	for _, juid := range exposureJUIDs {
		rec, ok := byJUID[juid]
		if !ok {
			continue
		}
		if v, ok := rec.Get("airmass"); ok {
			sumAirmass += v.FloatVal()
		}
		if v, ok := rec.Get("exposure"); ok {
			sumExpTime += v.FloatVal()
		}
		if v, ok := rec.Get("julian"); ok {
			sumJD += v.FloatVal()
		}
		n++
	}
	if n == 0 {
		return 0, 0, 0, nil
	}
	return sumAirmass / float64(n), sumExpTime / float64(n), sumJD / float64(n), nil
}
