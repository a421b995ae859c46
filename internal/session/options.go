package session

// Options controls session-wide behavior that is not itself part of
// the per-night session-config file: switches normally fixed by the
// deployment rather than edited night to night.
//
// Grounded on original_source/SESSION_LIB/session.h's SessionOptions
// (do_focus, leave_cooler_off, keep_cooler_running,
// default_dark_count, update_mount_model,
// trust_focus_star_position, no_session_file, use_pec, park_at_end,
// use_work_queue).
type Options struct {
	DoFocus                bool
	LeaveCoolerOff         bool
	KeepCoolerRunning      bool
	DefaultDarkCount       int
	UpdateMountModel       bool
	TrustFocusStarPosition bool
	NoSessionFile          bool
	UsePEC                 bool
	ParkAtEnd              bool
	UseWorkQueue           bool
}

// DefaultOptions mirrors SetDefaultOptions: a cautious baseline where
// the cooler is left running across sessions and the telescope is not
// parked unless a session-config says otherwise.
func DefaultOptions() Options {
	return Options{
		KeepCoolerRunning:      true,
		DefaultDarkCount:       1,
		TrustFocusStarPosition: true,
	}
}
