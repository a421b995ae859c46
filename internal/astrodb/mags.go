package astrodb

import (
	"github.com/antigravity-dev/astrosession/internal/jnode"
)

// InstMagMeasurement is one star's instrumental magnitude entry in an
// AddInstMags call.
type InstMagMeasurement struct {
	StarID      string
	InstMag     float64
	Uncertainty float64
}

// DiffMagProfile is one star's differential/ensemble photometry
// result in an AddDiffMags call.
type DiffMagProfile struct {
	StarID  string
	Profile string
	DiffMag float64
	StdErr  float64
}

// AddInstMags records instrumental magnitudes measured from a single
// exposure. Re-running photometry for the same source exposure
// replaces the prior record in place, reusing its JUID, rather than
// accumulating stale duplicates.
func (s *Store) AddInstMags(sourceExposure int64, filter string, directive int64, method, uncertaintyTechnique string, measurements []InstMagMeasurement) (int64, error) {
	var juid int64
	err := s.withLock(func() error {
		srcRec, ok, err := s.findInListLocked(ListExposures, sourceExposure)
		if err != nil {
			return err
		}
		jd, expTime, airmass := jnode.None(), jnode.None(), jnode.None()
		if ok {
			if v, found := srcRec.Get("julian"); found {
				jd = v
			}
			if v, found := srcRec.Get("exposure"); found {
				expTime = v
			}
			if v, found := srcRec.Get("airmass"); found {
				airmass = v
			}
		}

		items, err := s.listFor(ListInstMags)
		if err != nil {
			return err
		}

		existingIdx := -1
		for i, item := range items {
			if v, ok := item.Get("source"); ok && v.IntVal() == sourceExposure {
				existingIdx = i
				break
			}
		}
		if existingIdx >= 0 {
			juidVal, _ := items[existingIdx].Get("juid")
			juid = juidVal.IntVal()
		} else {
			id, err := s.nextJUID(ListInstMags)
			if err != nil {
				return err
			}
			juid = id
		}

		measItems := make([]jnode.Node, len(measurements))
		for i, m := range measurements {
			measItems[i] = jnode.Seq(
				jnode.Assign("star_id", jnode.String(m.StarID)),
				jnode.Assign("inst_mag", jnode.Float(m.InstMag)),
				jnode.Assign("uncertainty", jnode.Float(m.Uncertainty)),
			)
		}

		rec := jnode.Seq(
			jnode.Assign("juid", jnode.Int(juid)),
			jnode.Assign("tstamp", jnode.Int(now())),
			jnode.Assign("source", jnode.Int(sourceExposure)),
			jnode.Assign("filter", jnode.String(filter)),
			jnode.Assign("directive", jnode.Int(directive)),
			jnode.Assign("method", jnode.String(method)),
			jnode.Assign("uncertainty_technique", jnode.String(uncertaintyTechnique)),
			jnode.Assign("jd", jd),
			jnode.Assign("exp_time", expTime),
			jnode.Assign("airmass", airmass),
			jnode.Assign("measurements", jnode.List(measItems...)),
		)

		if existingIdx >= 0 {
			items[existingIdx] = rec
		} else {
			items = append(items, rec)
		}
		s.setList(ListInstMags, items)
		return nil
	})
	return juid, err
}

// AddDiffMags records the differential/ensemble photometry produced
// from a sets-list source (a MERGE or BVRI set). As with AddInstMags,
// re-running analysis for the same source set replaces the prior
// record and reuses its JUID.
func (s *Store) AddDiffMags(sourceSet, directive int64, profiles []DiffMagProfile) (int64, error) {
	var juid int64
	err := s.withLock(func() error {
		items, err := s.listFor(ListAnalyses)
		if err != nil {
			return err
		}

		existingIdx := -1
		for i, item := range items {
			if v, ok := item.Get("source"); ok && v.IntVal() == sourceSet {
				existingIdx = i
				break
			}
		}
		if existingIdx >= 0 {
			juidVal, _ := items[existingIdx].Get("juid")
			juid = juidVal.IntVal()
		} else {
			id, err := s.nextJUID(ListAnalyses)
			if err != nil {
				return err
			}
			juid = id
		}

		profileItems := make([]jnode.Node, len(profiles))
		for i, p := range profiles {
			profileItems[i] = jnode.Seq(
				jnode.Assign("star_id", jnode.String(p.StarID)),
				jnode.Assign("profile_name", jnode.String(p.Profile)),
				jnode.Assign("diff_mag", jnode.Float(p.DiffMag)),
				jnode.Assign("std_err", jnode.Float(p.StdErr)),
			)
		}

		rec := jnode.Seq(
			jnode.Assign("juid", jnode.Int(juid)),
			jnode.Assign("tstamp", jnode.Int(now())),
			jnode.Assign("source", jnode.Int(sourceSet)),
			jnode.Assign("directive", jnode.Int(directive)),
			jnode.Assign("profiles", jnode.List(profileItems...)),
		)

		if existingIdx >= 0 {
			items[existingIdx] = rec
		} else {
			items = append(items, rec)
		}
		s.setList(ListAnalyses, items)
		return nil
	})
	return juid, err
}
