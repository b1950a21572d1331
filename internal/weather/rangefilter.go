package weather

import "time"

// TimeRange is an inclusive [Start, End] window.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether ts lies inside the window. Zero instants never match.
func (r TimeRange) Contains(ts time.Time) bool {
	if ts.IsZero() || r.Start.IsZero() || r.End.IsZero() {
		return false
	}
	return !ts.Before(r.Start) && !ts.After(r.End)
}

// FilterRange returns the readings whose timestamp falls inside r, in input order.
// An inverted window yields an empty result.
func FilterRange(readings []Reading, r TimeRange) []Reading {
	out := make([]Reading, 0, len(readings))
	if r.Start.After(r.End) {
		return out
	}
	for _, rd := range readings {
		if r.Contains(rd.Timestamp) {
			out = append(out, rd)
		}
	}
	return out
}
