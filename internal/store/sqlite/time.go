package sqlite

import "time"

// timeLayout is the wire format for every timestamp column. RFC3339Nano
// round-trips through SQLite's TEXT affinity without precision loss, unlike
// the builtin datetime('now') (seconds only) the teacher's phase3.go uses —
// FSRS intervals and energy decay are sensitive enough to days that the
// core's own callers (not SQLite) own timestamp generation here.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

func timeFromUnix(ts int64) time.Time { return time.Unix(ts, 0).UTC() }
