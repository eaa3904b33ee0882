package model

import "time"

// FromEpoch converts an exchange epoch value to UTC time. Values with at
// most 10 digits are seconds, more than 13 digits are microseconds and
// anything in between is milliseconds.
func FromEpoch(v int64) time.Time {
	switch n := digits(v); {
	case n <= 10:
		return time.UnixMilli(v * 1000).UTC()
	case n > 13:
		return time.UnixMicro(v).UTC()
	default:
		return time.UnixMilli(v).UTC()
	}
}

func digits(v int64) int {
	if v < 0 {
		v = -v
	}
	n := 1
	for v >= 10 {
		v /= 10
		n++
	}
	return n
}
