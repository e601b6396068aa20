// Package window computes the nightly access window that gates the
// board: open from OpenHour to CloseHour in a fixed reference timezone,
// with an operator override that forces the window open.
package window

import (
	"fmt"
	"time"
)

// Schedule is the daily access window, a half-open interval
// [OpenHour, CloseHour) evaluated in Location's civil time.
type Schedule struct {
	OpenHour  int
	CloseHour int
	Location  *time.Location
}

// State is the derived window state at one instant. It is recomputed
// on every tick and never persisted.
type State struct {
	IsOpen      bool
	NextOpenAt  time.Time
	NextCloseAt time.Time
	TimeLeft    time.Duration
}

// Target is the boundary the countdown runs toward: the close time
// while open, the next open time while closed.
func (s State) Target() time.Time {
	if s.IsOpen {
		return s.NextCloseAt
	}
	return s.NextOpenAt
}

// Compute derives the window state for now. Pure time arithmetic; the
// gate decision uses the schedule's reference zone, not the caller's,
// so every viewer sees the same state.
func (s Schedule) Compute(now time.Time, overrideActive bool) State {
	local := now.In(s.Location)
	hour := local.Hour()

	isOpen := overrideActive || (hour >= s.OpenHour && hour < s.CloseHour)

	year, month, day := local.Date()
	openToday := time.Date(year, month, day, s.OpenHour, 0, 0, 0, s.Location)
	closeToday := time.Date(year, month, day, s.CloseHour, 0, 0, 0, s.Location)
	openTomorrow := openToday.AddDate(0, 0, 1)
	closeTomorrow := closeToday.AddDate(0, 0, 1)

	var nextOpenAt, nextCloseAt time.Time
	switch {
	case isOpen:
		// One opening per day: the next one is always tomorrow's.
		nextCloseAt = closeToday
		nextOpenAt = openTomorrow
	case hour >= s.CloseHour:
		nextOpenAt = openTomorrow
		nextCloseAt = closeTomorrow
	default:
		// hour < OpenHour: today's boundaries are still ahead of us.
		nextOpenAt = openToday
		nextCloseAt = closeToday
	}

	state := State{
		IsOpen:      isOpen,
		NextOpenAt:  nextOpenAt,
		NextCloseAt: nextCloseAt,
	}
	timeLeft := state.Target().Sub(local)
	if timeLeft < 0 {
		timeLeft = 0
	}
	state.TimeLeft = timeLeft
	return state
}

// FormatTimeLeft renders a countdown as HH:MM:SS, clamped at zero.
func FormatTimeLeft(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	totalSeconds := int(d / time.Second)
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
