package inter

import (
	"time"
)

// Timestamp is a UTC time in nanoseconds.
type Timestamp uint64

// FromUnix converts seconds since epoch.
func FromUnix(t int64) Timestamp {
	return Timestamp(int64(t) * int64(time.Second))
}

// Timestamps converts time.Time.
func Timestamps(t time.Time) Timestamp {
	return Timestamp(t.UnixNano())
}

// Unix returns seconds since epoch.
func (t Timestamp) Unix() int64 {
	return int64(t) / int64(time.Second)
}

// Time converts to time.Time.
func (t Timestamp) Time() time.Time {
	return time.Unix(0, int64(t)).UTC()
}

func (t Timestamp) String() string {
	return t.Time().Format(time.RFC3339Nano)
}
