// Package planner recommends a per-filter exposure time and frame
// count from a star's predicted brightness and a site's sky-glow/
// read-noise calibration, spec.md's AUTOPHOTUPDATE/AUTOSEQUENCE gate
// (§4.4, SPEC_FULL's supplemented-features section).
//
// Grounded on original_source/SESSION_LIB/plan_exposure.cc's
// GetExposurePlan: for each candidate exposure time in a fixed
// palette, estimate total electron flux for the target star, reject
// candidates that saturate, compute the one-shot signal-to-noise
// ratio against read noise, dark current, and sky glow, and scale the
// exposure count to reach a target SNR. Non-saturating candidates are
// scanned longest exposure first, keeping the lowest total dwell time
// (exposure plus download overhead) seen so far and stopping at the
// first one whose dwell is within happyThreshold; the frame count is
// clamped to a minimum and to a maximum total dwell time.
//
// This port folds the original's two-pass "brightest/dimmest star in
// frame" field photometry into a single predicted magnitude, since
// this module has no modeled per-frame star catalog (no Finder-chart
// HGSC equivalent) — see DESIGN.md.
package planner

import "math"

// TimeCandidate is one entry in the fixed exposure-time palette,
// mirroring plan_exposure.cc's PaletteChoice / exposure_time_palette.
type TimeCandidate struct {
	ExposureSeconds float64
	ReadNoise       float64 // e-/pixel, before aperture scaling
	SystemGain      float64 // e-/ADU
	DataMax         float64 // ADU level that saturates this readout mode
}

// DefaultPalette mirrors plan_exposure.cc's QHY268M
// exposure_time_palette, longest exposure first.
func DefaultPalette() []TimeCandidate {
	return []TimeCandidate{
		{ExposureSeconds: 60.0, ReadNoise: 3.5 * 3, SystemGain: 1.0, DataMax: 500000.0},
		{ExposureSeconds: 30.0, ReadNoise: 3.5 * 3, SystemGain: 1.0, DataMax: 500000.0},
		{ExposureSeconds: 10.0, ReadNoise: 3.5 * 3, SystemGain: 1.0, DataMax: 500000.0},
		{ExposureSeconds: 5.0, ReadNoise: 3.5 * 3, SystemGain: 1.0, DataMax: 500000.0},
	}
}

// ReferenceData is the per-filter calibration plan_exposure.cc
// accumulates from measured frames (AddImageToExposurePlanner,
// UpdateReferenceData): sky brightness, dark current, and a
// magnitude/flux-rate anchor derived from catalog-matched stars.
type ReferenceData struct {
	SkyGlowPerPixelSecond float64 // e-/pixel/sec
	DarkCurrentPerSecond  float64 // e-/pixel/sec
	ApertureAreaPixels    float64 // PE_ApertureArea: 3-pixel-radius aperture by default
	PeakRatio             float64 // PE_PeakRatio: ADU peak / total flux
	RefMagnitude          float64 // magnitude at which RefFluxRate was measured
	RefFluxRate           float64 // e-/sec at RefMagnitude
}

// DefaultReferenceData returns the zero-calibration state
// plan_exposure.cc starts in before any measured frame has been fed
// to it: RefFluxRate of 0 makes Recommend report !ok, matching
// GetExposurePlan's "no data in this color, no candidate pushed."
func DefaultReferenceData() ReferenceData {
	return ReferenceData{
		ApertureAreaPixels: 3 * 3 * math.Pi,
		PeakRatio:          0.1,
	}
}

const (
	targetSNR       = 100.0
	minExposures    = 3
	downloadSeconds = 3.3   // QHY268M readout overhead
	maxDwellSeconds = 580.0 // seconds, original's MAX_DWELL_TIME
	happyThreshold  = 134.0
)

// Recommendation is one filter's chosen exposure time and frame count.
type Recommendation struct {
	ExposureSeconds float64
	NumExposures    int
}

// Recommend picks a non-saturating exposure candidate from palette,
// with the frame count that reaches targetSNR for a star of the given
// predicted magnitude, given ref's sky/dark/flux calibration.
// Candidates are scanned in palette order, keeping the shortest dwell
// time seen so far; the scan stops at the first candidate whose dwell
// time is at most happyThreshold seconds, so later candidates are not
// considered even if their dwell time would be shorter.
// Returns ok=false if ref carries no usable flux calibration (mirrors
// GetExposurePlan's per-color skip when no measurements exist).
func Recommend(ref ReferenceData, starMag float64, palette []TimeCandidate) (Recommendation, bool) {
	if ref.RefFluxRate <= 0 || ref.ApertureAreaPixels <= 0 {
		return Recommendation{}, false
	}

	type candidate struct {
		TimeCandidate
		numExposures int
		saturates    bool
	}

	deltaMag := ref.RefMagnitude - starMag
	fluxRate := ref.RefFluxRate * math.Pow(10.0, deltaMag/2.5) // e-/sec

	candidates := make([]candidate, 0, len(palette))
	for _, t := range palette {
		c := candidate{TimeCandidate: t}
		totalFlux := fluxRate * t.ExposureSeconds // e-

		peakADU := totalFlux * ref.PeakRatio / t.SystemGain
		if t.DataMax > 0 && peakADU > t.DataMax {
			c.saturates = true
			candidates = append(candidates, c)
			continue
		}

		readNoise := t.ReadNoise * math.Sqrt(ref.ApertureAreaPixels)
		darkCurrent := ref.DarkCurrentPerSecond * t.ExposureSeconds * ref.ApertureAreaPixels
		darkNoise := math.Sqrt(darkCurrent)
		skyGlow := ref.SkyGlowPerPixelSecond * t.ExposureSeconds * ref.ApertureAreaPixels
		skyGlowNoise := math.Sqrt(skyGlow)
		targetNoise := math.Sqrt(totalFlux)

		oneShotSNR := totalFlux / math.Sqrt(
			readNoise*readNoise+
				darkNoise*darkNoise+
				skyGlowNoise*skyGlowNoise+
				targetNoise*targetNoise)
		if oneShotSNR <= 0 || math.IsNaN(oneShotSNR) {
			c.saturates = true
			candidates = append(candidates, c)
			continue
		}

		snrRatio := targetSNR / oneShotSNR
		c.numExposures = int(0.5 + math.Ceil(snrRatio*snrRatio))
		candidates = append(candidates, c)
	}

	bestDwell := math.MaxFloat64
	best := -1
	for i, c := range candidates {
		if c.saturates {
			continue
		}
		n := c.numExposures
		if n < minExposures {
			n = minExposures
		}
		dwell := float64(n) * (c.ExposureSeconds + downloadSeconds)
		if dwell < bestDwell {
			bestDwell = dwell
			best = i
			if dwell <= happyThreshold {
				break
			}
		}
	}
	if best < 0 {
		return Recommendation{}, false
	}

	c := candidates[best]
	n := c.numExposures
	if n < minExposures {
		n = minExposures
	}
	capped := int(0.5 + maxDwellSeconds/(c.ExposureSeconds+downloadSeconds))
	if n > capped {
		n = capped
	}
	return Recommendation{ExposureSeconds: c.ExposureSeconds, NumExposures: n}, true
}
