// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package eventtime

import (
	"testing"
	"time"
)

func TestCorrected(t *testing.T) {
	if got := Corrected(1000, 200); got != 0.8 {
		t.Errorf("Corrected(1000, 200) = %v, want 0.8", got)
	}
	if got := Corrected(1700000000123, 0); got != 1700000000.123 {
		t.Errorf("Corrected(1700000000123, 0) = %v", got)
	}
}

func TestCorrectedMonotonicWithinSecond(t *testing.T) {
	timestamps := []int64{1700000000001, 1700000000002, 1700000000500, 1700000000999, 1700000001000}
	previous := Corrected(timestamps[0], 0)
	for _, ts := range timestamps[1:] {
		current := Corrected(ts, 0)
		if current <= previous {
			t.Fatalf("Corrected(%d) = %v, not after %v", ts, current, previous)
		}
		previous = current
	}
}

func TestTime(t *testing.T) {
	got := Time(1700000000.25)
	want := time.Unix(1700000000, 250000000)
	if !got.Equal(want) {
		t.Errorf("Time = %v, want %v", got, want)
	}
}

func TestSameDayAndStamp(t *testing.T) {
	loc := time.UTC
	morning := time.Date(2026, 3, 4, 8, 0, 0, 0, loc)
	evening := time.Date(2026, 3, 4, 23, 59, 59, 0, loc)
	nextDay := time.Date(2026, 3, 5, 0, 0, 1, 0, loc)

	if !SameDay(morning, evening, loc) {
		t.Error("morning and evening should be the same day")
	}
	if SameDay(evening, nextDay, loc) {
		t.Error("evening and the next day should differ")
	}
	if got := Stamp(morning, evening, loc); got != "08:00:00" {
		t.Errorf("Stamp same day = %q", got)
	}
	if got := Stamp(morning, nextDay, loc); got != "2026-03-04 08:00" {
		t.Errorf("Stamp other day = %q", got)
	}
	if got := DayMarker(nextDay, loc); got != "Thursday, 5 March 2026" {
		t.Errorf("DayMarker = %q", got)
	}
}
