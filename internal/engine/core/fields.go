package core

import (
	"strconv"
	"time"
)

// ParseInt reads an integer hash field. Missing or malformed values are zero.
func ParseInt(fields map[string]string, name string) int64 {
	v, err := strconv.ParseInt(fields[name], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseUint reads a stored counter, treating missing or malformed values as zero
// and negative values as zero.
func ParseUint(fields map[string]string, name string) uint64 {
	v := ParseInt(fields, name)
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// ParseFloat reads a float hash field. Missing or malformed values are zero.
func ParseFloat(fields map[string]string, name string) float64 {
	v, err := strconv.ParseFloat(fields[name], 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseMillis reads a unix millisecond timestamp. The zero time is returned when missing.
func ParseMillis(fields map[string]string, name string) time.Time {
	ms := ParseInt(fields, name)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// FormatFloat encodes a float for storage.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// FormatMillis encodes a timestamp as unix milliseconds.
func FormatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
