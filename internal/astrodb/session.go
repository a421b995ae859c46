package astrodb

import (
	"github.com/antigravity-dev/astrosession/internal/jnode"
)

// NewSession appends a session-start record and returns its per-
// database sequence number (1, 2, 3, ...), distinct from its JUID: the
// sequence number is what observers refer a night's log to, the JUID
// is only ever used for cross-reference within the document.
func (s *Store) NewSession(sessionType, date, logfile, stdoutPath string) (seq int, juid int64, err error) {
	lockErr := s.withLock(func() error {
		items, err := s.listFor(ListSession)
		if err != nil {
			return err
		}

		maxSeq := 0
		for _, item := range items {
			if v, ok := item.Get("seq"); ok {
				if int(v.IntVal()) > maxSeq {
					maxSeq = int(v.IntVal())
				}
			}
		}
		seq = maxSeq + 1

		id, err := s.nextJUID(ListSession)
		if err != nil {
			return err
		}
		juid = id

		items = append(items, jnode.Seq(
			jnode.Assign("juid", jnode.Int(juid)),
			jnode.Assign("tstamp", jnode.Int(now())),
			jnode.Assign("date", jnode.String(date)),
			jnode.Assign("seq", jnode.Int(int64(seq))),
			jnode.Assign("type", jnode.String(sessionType)),
			jnode.Assign("logfile", jnode.String(logfile)),
			jnode.Assign("stdout", jnode.String(stdoutPath)),
		))
		s.setList(ListSession, items)
		return nil
	})
	return seq, juid, lockErr
}
