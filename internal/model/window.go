package model

import "time"

// DayWindow is an inclusive [Start, End] range covering one calendar day.
type DayWindow struct {
	Start time.Time
	End   time.Time
}

// DayWindowFor returns the day containing now, as seen in loc. End is the
// last millisecond of that day.
func DayWindowFor(now time.Time, loc *time.Location) DayWindow {
	if loc == nil {
		loc = time.UTC
	}

	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)

	return DayWindow{Start: start, End: end}
}

// Contains reports whether t falls inside the window.
func (w DayWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// DueCursor is a keyset position over (send_at, id). The zero value sorts
// before every row.
type DueCursor struct {
	SendAt time.Time
	ID     string
}

// Advance moves the cursor past msg.
func (c DueCursor) Advance(msg *ScheduledMessage) DueCursor {
	return DueCursor{SendAt: msg.SendAt, ID: msg.ID}
}
