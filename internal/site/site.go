// Package site loads the observatory's TOML configuration: location,
// elevation, and the horizon-azimuth obstruction map that
// internal/visibility gates scheduling decisions against.
//
// Grounded on the teacher's internal/config/config.go Load/ExpandHome
// pattern (TOML decode, path normalization, validation), retargeted
// from Cortex's orchestrator schema to an observatory site schema.
package site

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/antigravity-dev/astrosession/internal/config"
	"github.com/antigravity-dev/astrosession/internal/planner"
	"github.com/antigravity-dev/astrosession/internal/visibility"
)

// HorizonEntry is one `[[horizon]]` TOML table: a vertex of the site's
// obstruction map, azimuth in degrees (south-origin, -180..180) and
// the minimum observable altitude there, also in degrees.
type HorizonEntry struct {
	AzimuthDeg     float64 `toml:"azimuth_deg"`
	MinAltitudeDeg float64 `toml:"min_altitude_deg"`
}

// ExposurePlannerConfig is the `[exposure_planner]` TOML table: the
// camera/sky calibration internal/planner needs to recommend Quick
// exposure times, grounded on original_source/SESSION_LIB/
// plan_exposure.cc's per-color reference data. A zero RefFluxRate
// (the default if the table is absent) leaves the planner unusable,
// matching plan_exposure.cc's behavior before any frame is measured.
type ExposurePlannerConfig struct {
	SkyGlowPerPixelSecond float64 `toml:"sky_glow_per_pixel_second"`
	DarkCurrentPerSecond  float64 `toml:"dark_current_per_pixel_second"`
	ApertureAreaPixels    float64 `toml:"aperture_area_pixels"`
	PeakRatio             float64 `toml:"peak_ratio"`
	RefMagnitude          float64 `toml:"ref_magnitude"`
	RefFluxRate           float64 `toml:"ref_flux_rate"`
}

// Config is the parsed observatory site file.
type Config struct {
	Name            string                `toml:"name"`
	LatitudeDeg     float64               `toml:"latitude_deg"`
	LongitudeDeg    float64               `toml:"longitude_deg"` // east positive
	ElevationM      float64               `toml:"elevation_m"`
	MinAltitudeDeg  float64               `toml:"min_altitude_deg"`
	SettleTime      config.Duration       `toml:"settle_time"`
	Horizon         []HorizonEntry        `toml:"horizon"`
	ExposurePlanner ExposurePlannerConfig `toml:"exposure_planner"`
}

// Load reads and validates the TOML observatory site file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("site: reading %s: %w", path, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("site: parsing %s: %w", path, err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("site: validating %s: %w", path, err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.LatitudeDeg < -90 || cfg.LatitudeDeg > 90 {
		return fmt.Errorf("latitude_deg %.4f out of range", cfg.LatitudeDeg)
	}
	if cfg.LongitudeDeg < -180 || cfg.LongitudeDeg > 180 {
		return fmt.Errorf("longitude_deg %.4f out of range", cfg.LongitudeDeg)
	}
	prev := -181.0
	for i, h := range cfg.Horizon {
		if h.AzimuthDeg <= prev {
			return fmt.Errorf("horizon[%d]: azimuth_deg must be strictly ascending", i)
		}
		prev = h.AzimuthDeg
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory,
// grounded on the teacher's config.ExpandHome/normalizePaths idiom.
// Used by cmd/session to normalize its file/directory flags before
// they reach os.Open/os.MkdirAll, since none of the site file's own
// fields are filesystem paths.
func ExpandHome(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// VisibilitySite converts the parsed TOML config into the
// visibility.Site value its horizon math operates on.
func (cfg *Config) VisibilitySite() visibility.Site {
	horizon := make([]visibility.HorizonPoint, len(cfg.Horizon))
	for i, h := range cfg.Horizon {
		horizon[i] = visibility.HorizonPoint{
			AzimuthDeg:     h.AzimuthDeg,
			MinAltitudeDeg: h.MinAltitudeDeg,
		}
	}
	return visibility.Site{
		LatitudeRad:    cfg.LatitudeDeg * (math.Pi / 180.0),
		LongitudeRad:   cfg.LongitudeDeg * (math.Pi / 180.0),
		ElevationM:     cfg.ElevationM,
		HorizonMap:     horizon,
		MinAltitudeDeg: cfg.MinAltitudeDeg,
	}
}

// ExposureReference converts the site file's `[exposure_planner]`
// table into planner.ReferenceData. Returns ok=false when no flux
// calibration was configured (RefFluxRate <= 0), in which case the
// caller should leave Quick exposures at each strategy's fixed
// values rather than pass an unusable reference to the executor.
func (cfg *Config) ExposureReference() (planner.ReferenceData, bool) {
	ep := cfg.ExposurePlanner
	if ep.RefFluxRate <= 0 {
		return planner.ReferenceData{}, false
	}
	ref := planner.DefaultReferenceData()
	ref.SkyGlowPerPixelSecond = ep.SkyGlowPerPixelSecond
	ref.DarkCurrentPerSecond = ep.DarkCurrentPerSecond
	ref.RefMagnitude = ep.RefMagnitude
	ref.RefFluxRate = ep.RefFluxRate
	if ep.ApertureAreaPixels > 0 {
		ref.ApertureAreaPixels = ep.ApertureAreaPixels
	}
	if ep.PeakRatio > 0 {
		ref.PeakRatio = ep.PeakRatio
	}
	return ref, true
}
