// Package visibility computes target altitude/azimuth against a
// site-specific horizon map, §4.6/§4.8's "joint (altitude, azimuth)
// check" gate for the genetic scheduler and the schedule executor.
//
// Grounded on original_source/SESSION_LIB/strategy.cc's
// Strategy::IsVisible (ALT_AZ + a horizon-azimuth lookup table); the
// alt_az.h trigonometry itself was not part of the retrieved source
// tree, so the standard equatorial-to-horizontal conversion is used.
package visibility

import (
	"math"
	"time"
)

// unixEpochJD is the Julian date of the Unix epoch (1970-01-01T00:00:00Z).
const unixEpochJD = 2440587.5

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
	// hoursToRad converts sidereal hours to radians (15 deg/hour).
	hoursToRad = 15.0 * degToRad
)

// DecRA is a J2000 equatorial position, radians.
type DecRA struct {
	Dec float64
	RA  float64
}

// AltAz is a horizontal-coordinate position, radians. Azimuth is
// measured from south, increasing toward west, matching the
// convention of the teacher's horizon table (-180..180, 0 at south).
type AltAz struct {
	Altitude float64
	Azimuth  float64
}

// HorizonPoint is one vertex of a site's horizon map: the minimum
// observable altitude (degrees) at a given azimuth (degrees, same
// south-origin convention as AltAz).
type HorizonPoint struct {
	AzimuthDeg     float64
	MinAltitudeDeg float64
}

// Site is the observer's location and horizon obstruction map.
type Site struct {
	LatitudeRad  float64
	LongitudeRad float64 // east positive
	ElevationM   float64

	// HorizonMap must be sorted by AzimuthDeg ascending and span
	// [-180, 180]; MinHorizonAltitude interpolates linearly between
	// adjacent points. A nil/empty map means a flat 0 deg horizon.
	HorizonMap []HorizonPoint

	// MinAltitudeDeg is a per-site safety floor added on top of the
	// horizon map and the altitude>0 gate (original_source's MIN_ALT).
	// Zero preserves spec.md's literal "altitude > 0" behavior.
	MinAltitudeDeg float64
}

// GMSTRadians returns the Greenwich Mean Sidereal Time, in radians,
// for the given Julian date (the standard IAU 1982 polynomial).
func GMSTRadians(jd float64) float64 {
	t := (jd - 2451545.0) / 36525.0
	gmstSec := 67310.54841 +
		(876600.0*3600.0+8640184.812866)*t +
		0.093104*t*t -
		6.2e-6*t*t*t
	// gmstSec is in seconds of time; 86400 sec == 360 deg == 2*pi.
	gmstRad := math.Mod(gmstSec, 86400.0) / 86400.0 * 2.0 * math.Pi
	if gmstRad < 0 {
		gmstRad += 2.0 * math.Pi
	}
	return gmstRad
}

// LocalSiderealTime returns the local sidereal time, in radians, at
// the given site and Julian date.
func LocalSiderealTime(site Site, jd float64) float64 {
	lst := GMSTRadians(jd) + site.LongitudeRad
	return math.Mod(lst+2.0*math.Pi, 2.0*math.Pi)
}

// ComputeAltAz converts an equatorial position to horizontal
// coordinates for the given site and time.
func ComputeAltAz(coord DecRA, site Site, jd float64) AltAz {
	lst := LocalSiderealTime(site, jd)
	hourAngle := lst - coord.RA
	// Normalize into (-pi, pi] so azimuth comes out in the site's
	// south-origin, -180..180 convention.
	for hourAngle > math.Pi {
		hourAngle -= 2.0 * math.Pi
	}
	for hourAngle <= -math.Pi {
		hourAngle += 2.0 * math.Pi
	}

	sinLat, cosLat := math.Sin(site.LatitudeRad), math.Cos(site.LatitudeRad)
	sinDec, cosDec := math.Sin(coord.Dec), math.Cos(coord.Dec)
	sinH, cosH := math.Sin(hourAngle), math.Cos(hourAngle)

	sinAlt := sinDec*sinLat + cosDec*cosLat*cosH
	sinAlt = math.Max(-1.0, math.Min(1.0, sinAlt))
	alt := math.Asin(sinAlt)

	// Azimuth measured from south (0), increasing toward west
	// (positive), matching original_source's horizon table.
	y := sinH
	x := cosH*sinLat - (sinDec-sinLat*sinAlt)/(cosLat*math.Cos(alt)+1e-300)
	az := math.Atan2(y, x)

	return AltAz{Altitude: alt, Azimuth: az}
}

// MinHorizonAltitude interpolates the site's horizon map at the given
// azimuth (radians), returning the minimum observable altitude
// (radians) there. An empty map returns 0 (flat horizon).
func MinHorizonAltitude(site Site, azimuth float64) float64 {
	if len(site.HorizonMap) == 0 {
		return 0.0
	}
	azDeg := azimuth * radToDeg
	m := site.HorizonMap

	if azDeg <= m[0].AzimuthDeg {
		return m[0].MinAltitudeDeg * degToRad
	}
	if azDeg >= m[len(m)-1].AzimuthDeg {
		return m[len(m)-1].MinAltitudeDeg * degToRad
	}
	for i := 1; i < len(m); i++ {
		if azDeg <= m[i].AzimuthDeg {
			lo, hi := m[i-1], m[i]
			span := hi.AzimuthDeg - lo.AzimuthDeg
			if span == 0 {
				return lo.MinAltitudeDeg * degToRad
			}
			frac := (azDeg - lo.AzimuthDeg) / span
			alt := lo.MinAltitudeDeg + frac*(hi.MinAltitudeDeg-lo.MinAltitudeDeg)
			return alt * degToRad
		}
	}
	return m[len(m)-1].MinAltitudeDeg * degToRad
}

// IsVisible reports whether coord is above both the horizon map and
// the site's MinAltitudeDeg floor at jd. Matches spec.md §4.6/§4.8's
// "altitude > 0 at both ends" gate, widened by the original's MIN_ALT
// safety margin (zero by default).
func IsVisible(coord DecRA, site Site, jd float64) bool {
	aa := ComputeAltAz(coord, site, jd)
	floor := math.Max(MinHorizonAltitude(site, aa.Azimuth), site.MinAltitudeDeg*degToRad)
	return aa.Altitude > floor
}

// IsVisibleWindow reports whether coord is visible at both endpoints
// of [startJD, endJD], the check the scheduler applies to a candidate
// TimeSeq/Script placement (spec.md invariant 10).
func IsVisibleWindow(coord DecRA, site Site, startJD, endJD float64) bool {
	return IsVisible(coord, site, startJD) && IsVisible(coord, site, endJD)
}

// JDFromTime converts a wall-clock instant to a Julian date.
func JDFromTime(t time.Time) float64 {
	return float64(t.UnixNano())/86400e9 + unixEpochJD
}

// TimeFromJD converts a Julian date to a wall-clock instant (UTC).
func TimeFromJD(jd float64) time.Time {
	secs := (jd - unixEpochJD) * 86400.0
	return time.Unix(0, int64(secs*1e9)).UTC()
}

// MinAltitude returns the lower of the altitudes at the two window
// endpoints, the `sin(min_altitude)` scoring term of spec.md §4.6.
func MinAltitude(coord DecRA, site Site, startJD, endJD float64) float64 {
	a1 := ComputeAltAz(coord, site, startJD).Altitude
	a2 := ComputeAltAz(coord, site, endJD).Altitude
	return math.Min(a1, a2)
}
