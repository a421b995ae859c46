// Package strategy loads per-object observing recipes: the fixed,
// persistent metadata (priority, periodicity, ephemeris, exposure
// plan) that drives scoring and Observing-Action generation.
//
// Grounded on internal/config's KEY=value line grammar (§4.4),
// generalized here with INCLUDE recursion and a second load pass that
// binds PARENT references across the whole catalog.
package strategy

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/antigravity-dev/astrosession/internal/config"
)

// Periodicity classifies how often an object should be revisited.
type Periodicity struct {
	Kind string // "ALWAYS", "DAILY", "WEEKLY", "NEVER", "DAYS"
	Days int    // meaningful only when Kind == "DAYS"
}

// Ephemeris drives TimeSeq (eclipse/orbit-phase) expansion.
type Ephemeris struct {
	JDRef               float64
	PeriodDays          float64
	EventLengthDays      float64
	SecondaryOffsetDays float64
}

// Hole is an observing hole: a half-open ephemeris phase interval
// with no prior observation.
type Hole struct {
	P0, P1 float64
}

// FilterPlan is one entry in a strategy's ordered filter list.
type FilterPlan struct {
	Filter   string
	ExpTime  float64 // seconds, 0 if unspecified
	Count    int     // 0 if unspecified
}

// Offset is a pointing offset from the catalog position, in radians,
// on two orthogonal axes.
type Offset struct {
	NorthSouth float64 // + north, - south, radians
	EastWest   float64 // + east, - west, radians
	Tolerance  float64 // arcmin
}

// Strategy is one object's fully parsed recipe.
type Strategy struct {
	ObjectID string // canonical lowercase name

	Designation string
	ReportName  string
	AAVSOName   string
	Chart       string

	Priority     float64
	Periodicity  Periodicity
	PlanningTime float64 // seconds

	Ephemeris *Ephemeris
	Holes     []Hole

	Filters       []FilterPlan
	FilterSeq     []string
	IDExposure    string

	Offset *Offset

	StandardField bool
	Script        string
	Remarks       string
	ReportNotes   string
	References    []string
	Stack         bool

	QuickExposureTime float64
	QuickNumExposures int
	QuickFilterName   string

	AutoExposureStars   []string
	AutoPhotUpdate      bool
	AutoSequence        bool
	UseHistoricalPlanningTime bool

	ObserveLines []string // raw OBSERVE= values, expanded later by package action

	ParentName string // raw PARENT= value, resolved by Catalog.resolveParents
	Parent     *Strategy
	Children   []*Strategy
}

// Catalog is every strategy loaded for a session, keyed by canonical
// object id.
type Catalog struct {
	byName map[string]*Strategy
	order  []string
}

func (c *Catalog) Get(name string) (*Strategy, bool) {
	s, ok := c.byName[strings.ToLower(name)]
	return s, ok
}

// All returns every strategy, in load order.
func (c *Catalog) All() []*Strategy {
	out := make([]*Strategy, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.byName[name])
	}
	return out
}

// Load reads every *.strategy file in dir (one object per file, named
// <object-id>.strategy) and binds PARENT references across the whole
// set once all files are read.
func Load(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("strategy: read dir: %w", err)
	}

	cat := &Catalog{byName: map[string]*Strategy{}}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".strategy") {
			continue
		}
		objectID := strings.ToLower(strings.TrimSuffix(e.Name(), ".strategy"))
		s, err := loadOne(filepath.Join(dir, e.Name()), objectID)
		if err != nil {
			return nil, fmt.Errorf("strategy: %s: %w", e.Name(), err)
		}
		cat.byName[objectID] = s
		cat.order = append(cat.order, objectID)
	}

	if err := cat.resolveParents(); err != nil {
		return nil, err
	}
	return cat, nil
}

func (c *Catalog) resolveParents() error {
	for _, s := range c.byName {
		if s.ParentName == "" {
			continue
		}
		p, ok := c.Get(s.ParentName)
		if !ok {
			return fmt.Errorf("strategy: %s: unresolved PARENT %q", s.ObjectID, s.ParentName)
		}
		s.Parent = p
		p.Children = append(p.Children, s)
	}
	return nil
}

// loadOne parses a single recipe file, recursively inlining INCLUDE
// directives before building the Strategy.
func loadOne(path, objectID string) (*Strategy, error) {
	entries, err := expandIncludes(path, map[string]bool{})
	if err != nil {
		return nil, err
	}

	s := &Strategy{ObjectID: objectID, Priority: 1.0}
	for _, e := range entries {
		if err := applyKey(s, e); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// expandIncludes reads path's KEY=value entries, splicing in the
// entries of any INCLUDE= target (recursively) at the point the
// directive appears. visited guards against include cycles.
func expandIncludes(path string, visited map[string]bool) ([]config.KV, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}
	if visited[abs] {
		return nil, fmt.Errorf("strategy: INCLUDE cycle at %s", path)
	}
	visited[abs] = true

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("strategy: open %s: %w", path, err)
	}
	defer f.Close()

	raw, err := config.ParseLines(f)
	if err != nil {
		return nil, err
	}

	var out []config.KV
	for _, e := range raw {
		if e.Key != "INCLUDE" {
			out = append(out, e)
			continue
		}
		includePath := e.Value
		if !filepath.IsAbs(includePath) {
			includePath = filepath.Join(filepath.Dir(path), includePath)
		}
		nested, err := expandIncludes(includePath, visited)
		if err != nil {
			return nil, err
		}
		out = append(out, nested...)
	}
	return out, nil
}

func applyKey(s *Strategy, e config.KV) error {
	switch e.Key {
	case "DESIGNATION":
		s.Designation = e.Value
	case "CHART":
		s.Chart = e.Value
	case "PRIORITY":
		v, err := strconv.ParseFloat(e.Value, 64)
		if err != nil {
			return lineErr(e, "PRIORITY", err)
		}
		s.Priority = v
	case "PLANNING_TIME":
		v, err := strconv.ParseFloat(e.Value, 64)
		if err != nil {
			return lineErr(e, "PLANNING_TIME", err)
		}
		s.PlanningTime = v
	case "PERIODICITY":
		p, err := parsePeriodicity(e.Value)
		if err != nil {
			return lineErr(e, "PERIODICITY", err)
		}
		s.Periodicity = p
	case "EPHEMERIS":
		eph, err := parseEphemeris(e.Value)
		if err != nil {
			return lineErr(e, "EPHEMERIS", err)
		}
		s.Ephemeris = eph
	case "ECLIPSE_LENGTH":
		v, err := strconv.ParseFloat(e.Value, 64)
		if err != nil {
			return lineErr(e, "ECLIPSE_LENGTH", err)
		}
		s.ensureEphemeris().EventLengthDays = v
	case "SECONDARY_ECLIPSE_OFFSET":
		v, err := strconv.ParseFloat(e.Value, 64)
		if err != nil {
			return lineErr(e, "SECONDARY_ECLIPSE_OFFSET", err)
		}
		s.ensureEphemeris().SecondaryOffsetDays = v
	case "HOLES":
		holes, err := parseHoles(e.Value)
		if err != nil {
			return lineErr(e, "HOLES", err)
		}
		s.Holes = holes
	case "EXPOSURE":
		plans, err := parseExposure(e.Value)
		if err != nil {
			return lineErr(e, "EXPOSURE", err)
		}
		s.Filters = append(s.Filters, plans...)
	case "SEQUENCE":
		s.FilterSeq = splitCSV(e.Value)
	case "ID_EXPOSURE":
		s.IDExposure = e.Value
	case "OFFSET":
		if s.Offset == nil {
			s.Offset = &Offset{}
		}
		ns, ew, err := parseOffset(e.Value)
		if err != nil {
			return lineErr(e, "OFFSET", err)
		}
		s.Offset.NorthSouth = ns
		s.Offset.EastWest = ew
	case "OFFSET_TOLERANCE":
		v, err := strconv.ParseFloat(e.Value, 64)
		if err != nil {
			return lineErr(e, "OFFSET_TOLERANCE", err)
		}
		if s.Offset == nil {
			s.Offset = &Offset{}
		}
		s.Offset.Tolerance = v
	case "STANDARD_FIELD":
		v, err := strconv.ParseBool(defaultTrue(e.Value))
		if err != nil {
			return lineErr(e, "STANDARD_FIELD", err)
		}
		s.StandardField = v
	case "REPORTNAME":
		s.ReportName = e.Value
	case "AAVSONAME":
		s.AAVSOName = e.Value
	case "PARENT":
		s.ParentName = strings.ToLower(e.Value)
	case "SCRIPT":
		s.Script = e.Value
	case "REMARKS":
		s.Remarks = e.Value
	case "REPORT_NOTES":
		s.ReportNotes = e.Value
	case "REFERENCE":
		s.References = splitCSV(e.Value)
	case "STACK":
		v, err := strconv.ParseBool(defaultTrue(e.Value))
		if err != nil {
			return lineErr(e, "STACK", err)
		}
		s.Stack = v
	case "QUICK_EXPOSURE":
		v, err := strconv.ParseFloat(e.Value, 64)
		if err != nil {
			return lineErr(e, "QUICK_EXPOSURE", err)
		}
		s.QuickExposureTime = v
	case "QUICK_SEQUENCE":
		v, err := strconv.Atoi(e.Value)
		if err != nil {
			return lineErr(e, "QUICK_SEQUENCE", err)
		}
		s.QuickNumExposures = v
	case "QUICK_FILTER":
		s.QuickFilterName = e.Value
	case "AUTOEXPOSURESTARS":
		s.AutoExposureStars = splitCSV(e.Value)
	case "AUTOPHOTUPDATE":
		v, err := strconv.ParseBool(defaultTrue(e.Value))
		if err != nil {
			return lineErr(e, "AUTOPHOTUPDATE", err)
		}
		s.AutoPhotUpdate = v
	case "AUTOSEQUENCE":
		v, err := strconv.ParseBool(defaultTrue(e.Value))
		if err != nil {
			return lineErr(e, "AUTOSEQUENCE", err)
		}
		s.AutoSequence = v
	case "USE_HISTORICAL_PLANNING_TIME":
		v, err := strconv.ParseBool(defaultTrue(e.Value))
		if err != nil {
			return lineErr(e, "USE_HISTORICAL_PLANNING_TIME", err)
		}
		s.UseHistoricalPlanningTime = v
	case "OBSERVE":
		s.ObserveLines = append(s.ObserveLines, e.Value)
	default:
		return lineErr(e, e.Key, fmt.Errorf("unrecognized strategy key"))
	}
	return nil
}

func (s *Strategy) ensureEphemeris() *Ephemeris {
	if s.Ephemeris == nil {
		s.Ephemeris = &Ephemeris{}
	}
	return s.Ephemeris
}

func lineErr(e config.KV, key string, err error) error {
	return fmt.Errorf("line %d: %s: %w", e.Line, key, err)
}

func defaultTrue(v string) string {
	if v == "" {
		return "true"
	}
	return v
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parsePeriodicity(v string) (Periodicity, error) {
	upper := strings.ToUpper(strings.TrimSpace(v))
	switch upper {
	case "ALWAYS", "DAILY", "WEEKLY", "NEVER":
		return Periodicity{Kind: upper}, nil
	}
	days, err := strconv.Atoi(upper)
	if err != nil {
		return Periodicity{}, fmt.Errorf("expected ALWAYS|DAILY|WEEKLY|NEVER|<days>, got %q", v)
	}
	return Periodicity{Kind: "DAYS", Days: days}, nil
}

func parseEphemeris(v string) (*Ephemeris, error) {
	fields := strings.Fields(v)
	if len(fields) < 2 {
		return nil, fmt.Errorf("expected JD_ref period_days [event_length_days [secondary_offset_days]]")
	}
	nums := make([]float64, 4)
	for i := 0; i < len(fields) && i < 4; i++ {
		n, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		nums[i] = n
	}
	return &Ephemeris{JDRef: nums[0], PeriodDays: nums[1], EventLengthDays: nums[2], SecondaryOffsetDays: nums[3]}, nil
}

func parseHoles(v string) ([]Hole, error) {
	var out []Hole
	for _, part := range splitCSV(v) {
		bounds := strings.SplitN(part, "-", 2)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("expected p0-p1, got %q", part)
		}
		p0, err := strconv.ParseFloat(bounds[0], 64)
		if err != nil {
			return nil, err
		}
		p1, err := strconv.ParseFloat(bounds[1], 64)
		if err != nil {
			return nil, err
		}
		out = append(out, Hole{P0: p0, P1: p1})
	}
	return out, nil
}

func parseExposure(v string) ([]FilterPlan, error) {
	var out []FilterPlan
	for _, part := range splitCSV(v) {
		fields := strings.Split(part, ":")
		plan := FilterPlan{Filter: fields[0]}
		if len(fields) > 1 {
			t, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, fmt.Errorf("exposure time %q: %w", fields[1], err)
			}
			plan.ExpTime = t
		}
		if len(fields) > 2 {
			c, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, fmt.Errorf("exposure count %q: %w", fields[2], err)
			}
			plan.Count = c
		}
		out = append(out, plan)
	}
	return out, nil
}

// parseOffset parses one or two orthogonal components of the form
// "<value><N|S|E|W>" in arcminutes, returning radians. Exactly one
// N/S and one E/W component must result.
func parseOffset(v string) (northSouth, eastWest float64, err error) {
	const arcminToRadians = (1.0 / 60.0) * (3.14159265358979323846 / 180.0)

	haveNS, haveEW := false, false
	i := 0
	for i < len(v) {
		j := i
		for j < len(v) && (v[j] == '.' || v[j] == '-' || v[j] == '+' || (v[j] >= '0' && v[j] <= '9')) {
			j++
		}
		if j == i || j >= len(v) {
			return 0, 0, fmt.Errorf("malformed offset %q", v)
		}
		mag, perr := strconv.ParseFloat(v[i:j], 64)
		if perr != nil {
			return 0, 0, fmt.Errorf("malformed offset magnitude %q: %w", v[i:j], perr)
		}
		dir := v[j]
		rad := mag * arcminToRadians
		switch dir {
		case 'N', 'n':
			if haveNS {
				return 0, 0, fmt.Errorf("duplicate N/S component in %q", v)
			}
			northSouth = rad
			haveNS = true
		case 'S', 's':
			if haveNS {
				return 0, 0, fmt.Errorf("duplicate N/S component in %q", v)
			}
			northSouth = -rad
			haveNS = true
		case 'E', 'e':
			if haveEW {
				return 0, 0, fmt.Errorf("duplicate E/W component in %q", v)
			}
			eastWest = rad
			haveEW = true
		case 'W', 'w':
			if haveEW {
				return 0, 0, fmt.Errorf("duplicate E/W component in %q", v)
			}
			eastWest = -rad
			haveEW = true
		default:
			return 0, 0, fmt.Errorf("unknown offset direction %q in %q", string(dir), v)
		}
		i = j + 1
	}
	if !haveNS || !haveEW {
		return 0, 0, fmt.Errorf("offset %q must specify exactly one N/S and one E/W component", v)
	}
	return northSouth, eastWest, nil
}
