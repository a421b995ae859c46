package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// SchedInclude is one SCHED_INCLUDE=name[,priority] entry: a group
// the session subscribes to, with the session-priority multiplier
// applied to every OA that group contains.
type SchedInclude struct {
	Group    string
	Priority float64
}

// SessionConfig is the parsed session-config file, §4.9.
type SessionConfig struct {
	Flat                    bool
	FlatByFilter            map[string]string
	Logfile                 string
	Focus                   string
	Shutdown                string // "HH:MM" local
	ShutdownTask            string
	TrustFocusStarPosition  bool
	UseWorkqueue            bool
	AnalyPrereq             string
	Spreadsheet             string
	PEC                     bool
	SchedIncludes           []SchedInclude
	Park                    bool
	CoolerShutdown          bool
	MountError              string
	UpdateMountModel        bool
}

// Clone returns a deep copy, for ConfigManager's copy-on-read/write
// discipline.
func (c *SessionConfig) Clone() *SessionConfig {
	if c == nil {
		return nil
	}
	cp := *c
	cp.FlatByFilter = make(map[string]string, len(c.FlatByFilter))
	for k, v := range c.FlatByFilter {
		cp.FlatByFilter[k] = v
	}
	cp.SchedIncludes = append([]SchedInclude(nil), c.SchedIncludes...)
	return &cp
}

func parseBool(value string) (bool, error) {
	if value == "" {
		return true, nil // bare KEY= (treated as a flag) means "on"
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("expected a boolean, got %q", value)
	}
	return v, nil
}

// LoadSessionConfig parses the KEY=value session-config file at path.
// An unrecognized key is a configuration error, per §7.
func LoadSessionConfig(path string) (*SessionConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open session config: %w", err)
	}
	defer f.Close()

	entries, err := ParseLines(f)
	if err != nil {
		return nil, err
	}

	cfg := &SessionConfig{FlatByFilter: map[string]string{}}
	for _, e := range entries {
		switch {
		case e.Key == "FLAT":
			v, err := parseBool(e.Value)
			if err != nil {
				return nil, fmt.Errorf("config: line %d: FLAT: %w", e.Line, err)
			}
			cfg.Flat = v
		case strings.HasPrefix(e.Key, "FLAT_"):
			filter := strings.TrimPrefix(e.Key, "FLAT_")
			cfg.FlatByFilter[filter] = e.Value
		case e.Key == "LOGFILE":
			cfg.Logfile = e.Value
		case e.Key == "FOCUS":
			cfg.Focus = e.Value
		case e.Key == "SHUTDOWN":
			cfg.Shutdown = e.Value
		case e.Key == "SHUTDOWNTASK":
			cfg.ShutdownTask = e.Value
		case e.Key == "TRUSTFOCUSSTARPOSITION":
			v, err := parseBool(e.Value)
			if err != nil {
				return nil, fmt.Errorf("config: line %d: TRUSTFOCUSSTARPOSITION: %w", e.Line, err)
			}
			cfg.TrustFocusStarPosition = v
		case e.Key == "USE_WORKQUEUE":
			v, err := parseBool(e.Value)
			if err != nil {
				return nil, fmt.Errorf("config: line %d: USE_WORKQUEUE: %w", e.Line, err)
			}
			cfg.UseWorkqueue = v
		case e.Key == "ANALY_PREREQ":
			cfg.AnalyPrereq = e.Value
		case e.Key == "SPREADSHEET":
			cfg.Spreadsheet = e.Value
		case e.Key == "PEC":
			v, err := parseBool(e.Value)
			if err != nil {
				return nil, fmt.Errorf("config: line %d: PEC: %w", e.Line, err)
			}
			cfg.PEC = v
		case e.Key == "SCHED_INCLUDE":
			parts := strings.SplitN(e.Value, ",", 2)
			si := SchedInclude{Group: parts[0], Priority: 1.0}
			if len(parts) == 2 {
				p, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
				if err != nil {
					return nil, fmt.Errorf("config: line %d: SCHED_INCLUDE priority: %w", e.Line, err)
				}
				si.Priority = p
			}
			cfg.SchedIncludes = append(cfg.SchedIncludes, si)
		case e.Key == "PARK":
			v, err := parseBool(e.Value)
			if err != nil {
				return nil, fmt.Errorf("config: line %d: PARK: %w", e.Line, err)
			}
			cfg.Park = v
		case e.Key == "COOLERSHUTDOWN":
			v, err := parseBool(e.Value)
			if err != nil {
				return nil, fmt.Errorf("config: line %d: COOLERSHUTDOWN: %w", e.Line, err)
			}
			cfg.CoolerShutdown = v
		case e.Key == "MOUNT_ERROR":
			cfg.MountError = e.Value
		case e.Key == "UPDATE_MOUNT_MODEL":
			v, err := parseBool(e.Value)
			if err != nil {
				return nil, fmt.Errorf("config: line %d: UPDATE_MOUNT_MODEL: %w", e.Line, err)
			}
			cfg.UpdateMountModel = v
		default:
			return nil, fmt.Errorf("config: line %d: unrecognized key %q", e.Line, e.Key)
		}
	}

	if cfg.Shutdown == "" {
		return nil, fmt.Errorf("config: missing required SHUTDOWN key")
	}
	return cfg, nil
}
