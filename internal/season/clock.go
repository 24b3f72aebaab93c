// Package season owns the competitive calendar: the month-keyed season
// clock and the persisted active/lock state machine.
package season

import "time"

// OffDays is the length of the lock window in calendar days.
const OffDays = 5

// lockBufferMinutes pads the month boundary so final trades settle before
// the next season opens.
const lockBufferMinutes = 5

// Window holds the absolute boundaries of the season containing a given
// instant. All values are UTC.
type Window struct {
	StartAt     time.Time
	LockStartAt time.Time
	LockEndAt   time.Time
	OffDays     int
}

// Key returns the month key ("YYYYMM") for t.
func Key(t time.Time) string {
	return t.UTC().Format("200601")
}

// PrevKey returns the month key for the last minute of the month preceding
// t's month. Rollover runs just after midnight on the 1st and must name the
// season it is closing, not the one it is opening.
func PrevKey(t time.Time) string {
	at := t.UTC()
	firstOfMonth := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Key(firstOfMonth.Add(-time.Minute))
}

// WindowFor computes the season window containing t. Pure and recomputed on
// every call; nothing here is cached.
func WindowFor(t time.Time) Window {
	at := t.UTC()
	startAt := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	firstOfNext := time.Date(at.Year(), at.Month()+1, 1, 0, 0, 0, 0, time.UTC)

	// Last calendar day of the month: first of next month minus 1ms.
	lastDay := firstOfNext.Add(-time.Millisecond).Day()
	lockStartDay := lastDay - OffDays + 1
	lockStartAt := time.Date(at.Year(), at.Month(), lockStartDay, 0, 0, 0, 0, time.UTC)
	lockEndAt := firstOfNext.Add(lockBufferMinutes * time.Minute)

	return Window{
		StartAt:     startAt,
		LockStartAt: lockStartAt,
		LockEndAt:   lockEndAt,
		OffDays:     OffDays,
	}
}
