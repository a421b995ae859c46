package visibility

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGMSTIsWithinRange(t *testing.T) {
	g := GMSTRadians(2460462.75)
	require.GreaterOrEqual(t, g, 0.0)
	require.Less(t, g, 2.0*math.Pi)
}

func TestZenithObjectHasAltitudeNearNinety(t *testing.T) {
	site := Site{LatitudeRad: 40.0 * degToRad, LongitudeRad: -105.0 * degToRad}
	jd := 2460462.75
	lst := LocalSiderealTime(site, jd)

	coord := DecRA{Dec: site.LatitudeRad, RA: lst}
	aa := ComputeAltAz(coord, site, jd)
	require.InDelta(t, math.Pi/2, aa.Altitude, 1e-6)
}

func TestOppositeDeclinationIsBelowHorizonAtTransit(t *testing.T) {
	site := Site{LatitudeRad: 40.0 * degToRad, LongitudeRad: 0}
	jd := 2460462.75
	lst := LocalSiderealTime(site, jd)

	// An object near the antipodal pole, on the meridian, should sit
	// well below the horizon for a mid-northern site.
	coord := DecRA{Dec: -85.0 * degToRad, RA: lst}
	aa := ComputeAltAz(coord, site, jd)
	require.Less(t, aa.Altitude, 0.0)
}

func TestMinHorizonAltitudeInterpolatesLinearly(t *testing.T) {
	site := Site{HorizonMap: []HorizonPoint{
		{AzimuthDeg: -180, MinAltitudeDeg: 20},
		{AzimuthDeg: 0, MinAltitudeDeg: 10},
		{AzimuthDeg: 180, MinAltitudeDeg: 20},
	}}
	got := MinHorizonAltitude(site, -90.0*degToRad)
	require.InDelta(t, 15.0*degToRad, got, 1e-9)
}

func TestMinHorizonAltitudeClampsAtEdges(t *testing.T) {
	site := Site{HorizonMap: []HorizonPoint{
		{AzimuthDeg: -90, MinAltitudeDeg: 5},
		{AzimuthDeg: 90, MinAltitudeDeg: 15},
	}}
	require.InDelta(t, 5.0*degToRad, MinHorizonAltitude(site, -179.0*degToRad), 1e-9)
	require.InDelta(t, 15.0*degToRad, MinHorizonAltitude(site, 179.0*degToRad), 1e-9)
}

func TestEmptyHorizonMapIsFlat(t *testing.T) {
	require.Equal(t, 0.0, MinHorizonAltitude(Site{}, 1.2))
}

func TestIsVisibleHonorsMinAltitudeFloor(t *testing.T) {
	site := Site{LatitudeRad: 40.0 * degToRad, MinAltitudeDeg: 10.0}
	jd := 2460462.75
	lst := LocalSiderealTime(site, jd)

	// An object whose altitude sits between 0 and the 10 deg floor.
	coord := DecRA{Dec: 45.0 * degToRad, RA: lst + 2.3}
	aa := ComputeAltAz(coord, site, jd)
	require.Greater(t, aa.Altitude, 0.0)
	require.Less(t, aa.Altitude, 10.0*degToRad)
	require.False(t, IsVisible(coord, site, jd))

	// The zenith-passing case clears any reasonable floor.
	zenith := DecRA{Dec: site.LatitudeRad, RA: lst}
	require.True(t, IsVisible(zenith, site, jd))
}

func TestIsVisibleWindowRequiresBothEndpoints(t *testing.T) {
	site := Site{LatitudeRad: 40.0 * degToRad}
	start, end := 2460462.70, 2460462.75
	lst := LocalSiderealTime(site, end)

	// An equatorial object rising in the east: at the end it sits at
	// hour angle -85 deg (altitude about 4 deg), but 1.2 h earlier, at
	// the start, it is still about 10 deg below the horizon.
	coord := DecRA{Dec: 0, RA: lst + 85.0*degToRad}
	require.True(t, IsVisible(coord, site, end))
	require.False(t, IsVisibleWindow(coord, site, start, end))
}

func TestMinAltitudeIsLowerOfTwoEndpoints(t *testing.T) {
	site := Site{LatitudeRad: 40.0 * degToRad}
	start, end := 2460462.70, 2460462.75

	coord := DecRA{Dec: 10.0 * degToRad, RA: LocalSiderealTime(site, end)}
	a1 := ComputeAltAz(coord, site, start).Altitude
	a2 := ComputeAltAz(coord, site, end).Altitude

	require.InDelta(t, math.Min(a1, a2), MinAltitude(coord, site, start, end), 1e-12)
}
