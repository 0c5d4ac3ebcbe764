package round

import "time"

// Clock supplies the current time for one operation. Time-based transitions
// are evaluated lazily against this value; nothing is scheduled.
type Clock interface {
	// Now returns the current Unix time in milliseconds.
	Now() int64
}

// WallClock reads the system clock.
type WallClock struct{}

func (WallClock) Now() int64 {
	return time.Now().UnixMilli()
}

// FixedClock always returns the same instant. Test helper.
type FixedClock int64

func (c FixedClock) Now() int64 {
	return int64(c)
}
