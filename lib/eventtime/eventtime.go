// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventtime converts Matrix event timestamps into display time.
//
// A Matrix event carries origin_server_ts (milliseconds since the epoch
// when the homeserver received it) and, in its unsigned block, age: the
// milliseconds the event had existed when the homeserver sent it to us.
// The corrected timestamp subtracts age and keeps fractional seconds so
// events sharing a wall-clock second still sort in server order.
package eventtime

import (
	"math"
	"time"
)

// Corrected returns the event time in seconds since the epoch:
// (originServerTS - age) / 1000, with sub-second precision.
func Corrected(originServerTS, age int64) float64 {
	return float64(originServerTS-age) / 1000
}

// Time converts corrected seconds into a time.Time.
func Time(seconds float64) time.Time {
	whole, fraction := math.Modf(seconds)
	return time.Unix(int64(whole), int64(math.Round(fraction*1e9)))
}

// Clock formats t as a 24-hour HH:MM:SS time of day in loc.
func Clock(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("15:04:05")
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// DayMarker is the separator line text shown when history crosses
// into a new day.
func DayMarker(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Monday, 2 January 2006")
}

// Stamp formats t for a history line: time of day when t is on the
// same day as now, otherwise date and time.
func Stamp(t, now time.Time, loc *time.Location) string {
	if SameDay(t, now, loc) {
		return Clock(t, loc)
	}
	return t.In(loc).Format("2006-01-02 15:04")
}
