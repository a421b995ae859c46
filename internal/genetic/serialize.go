package genetic

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antigravity-dev/astrosession/internal/action"
)

// WriteSchedule serializes a Result in the scheduler CLI's output
// format (spec.md §6): a total-score line, then one placed-action line
// per entry using the kind-specific encoding of §4.6.
func WriteSchedule(w io.Writer, result *Result) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%g\n", result.Score); err != nil {
		return err
	}
	for _, p := range result.Placed {
		line, err := encodePlacedAction(p)
		if err != nil {
			return err
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func objectName(oa *action.Action) string {
	if oa.Strategy != nil {
		return oa.Strategy.ObjectID
	}
	return "dark/flat"
}

func encodePlacedAction(p *PlacedAction) (string, error) {
	oa := p.Input.Action
	name := objectName(oa)

	switch oa.Kind {
	case action.KindDark, action.KindFlat:
		return fmt.Sprintf("%d %s %s %s %s", oa.ID, oa.Kind, name, name, jdString(p.ScheduledStart)), nil
	case action.KindTimeSeq:
		return fmt.Sprintf("%d %s %s %s %s", oa.ID, oa.Kind, name, jdString(p.ScheduledStart), jdString(p.ScheduledEnd)), nil
	case action.KindQuick, action.KindScript:
		return fmt.Sprintf("%d %s %s %s", oa.ID, oa.Kind, name, jdString(p.ScheduledStart)), nil
	default:
		return "", fmt.Errorf("genetic: unknown action kind %v", oa.Kind)
	}
}

func jdString(jd float64) string {
	return strconv.FormatFloat(jd, 'f', 6, 64)
}

// ParseInputLine parses one line of the scheduler CLI's input format
// (spec.md §6's "one OA serialization per line") back into an id and
// raw fields, for cmd/scheduler to rehydrate an action.Table entry
// against. Only the leading `id kind` pair follows encodePlacedAction's
// layout; the remaining fields are returned unparsed and cmd/scheduler
// reads them per kind (a Quick line carries its cadence, not a start JD).
func ParseInputLine(line string) (id int, kind string, fields []string, err error) {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return 0, "", nil, fmt.Errorf("genetic: malformed input line %q", line)
	}
	id, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", nil, fmt.Errorf("genetic: bad id %q: %w", parts[0], err)
	}
	return id, parts[1], parts[2:], nil
}
