package event

import "time"

// Active reports whether now falls inside the half-open window [start, end).
// A notice arriving exactly at start is active; one arriving exactly at end
// is not. Degenerate windows where start is not before end never activate.
func Active(now, start, end time.Time) bool {
	return !now.Before(start) && now.Before(end)
}

// Active evaluates the deletion against its own reservation window, using
// the notice's timestamp rather than server wall-clock so the decision is
// reproducible from the payload alone.
func (n *DeletionNotice) Active() bool {
	return Active(n.Timestamp, n.Data.Start, n.Data.End)
}
