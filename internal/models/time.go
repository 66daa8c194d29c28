package models

import "time"

// timeLayout is fixed-width (zero-padded microseconds) so that the stored
// text sorts lexicographically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Now returns the current UTC time at storage precision.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// FormatTime renders a timestamp as the ISO-8601 text stored in the database
// and sent on the wire.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(timeLayout)
}

// ParseTime is the inverse of FormatTime. FormatTime(ParseTime(s)) == s for
// any s produced by FormatTime.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
