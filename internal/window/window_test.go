package window

import (
	"testing"
	"time"
)

func seoulSchedule(t *testing.T) Schedule {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("load Asia/Seoul: %v", err)
	}
	return Schedule{OpenHour: 0, CloseHour: 4, Location: loc}
}

func at(t *testing.T, s Schedule, hour, minute, sec int) time.Time {
	t.Helper()
	return time.Date(2025, 6, 1, hour, minute, sec, 0, s.Location)
}

func TestComputeBoundaries(t *testing.T) {
	s := seoulSchedule(t)

	cases := []struct {
		name     string
		now      time.Time
		wantOpen bool
	}{
		{"exact midnight", at(t, s, 0, 0, 0), true},
		{"last open second", at(t, s, 3, 59, 59), true},
		{"exact close", at(t, s, 4, 0, 0), false},
		{"last closed second", at(t, s, 23, 59, 59), false},
		{"midday", at(t, s, 12, 0, 0), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := s.Compute(tc.now, false)
			if state.IsOpen != tc.wantOpen {
				t.Errorf("IsOpen = %v, want %v", state.IsOpen, tc.wantOpen)
			}
			if state.TimeLeft < 0 {
				t.Errorf("TimeLeft = %v, must not be negative", state.TimeLeft)
			}
			if !state.Target().After(tc.now.Add(-time.Second)) {
				t.Errorf("target %v is not ahead of now %v", state.Target(), tc.now)
			}
		})
	}
}

func TestComputeClosedPointsAtTomorrowOpen(t *testing.T) {
	s := seoulSchedule(t)
	now := at(t, s, 23, 59, 59)

	state := s.Compute(now, false)
	wantOpen := time.Date(2025, 6, 2, 0, 0, 0, 0, s.Location)
	if !state.NextOpenAt.Equal(wantOpen) {
		t.Errorf("NextOpenAt = %v, want %v", state.NextOpenAt, wantOpen)
	}
	if state.TimeLeft != time.Second {
		t.Errorf("TimeLeft = %v, want 1s", state.TimeLeft)
	}
}

func TestComputeOpenScenario(t *testing.T) {
	// Open at 00:30 KST: closes today at 04:00, 3h30m left.
	s := seoulSchedule(t)
	now := at(t, s, 0, 30, 0)

	state := s.Compute(now, false)
	if !state.IsOpen {
		t.Fatal("expected open at 00:30")
	}
	wantClose := time.Date(2025, 6, 1, 4, 0, 0, 0, s.Location)
	if !state.NextCloseAt.Equal(wantClose) {
		t.Errorf("NextCloseAt = %v, want %v", state.NextCloseAt, wantClose)
	}
	if state.TimeLeft != 3*time.Hour+30*time.Minute {
		t.Errorf("TimeLeft = %v, want 3h30m", state.TimeLeft)
	}
	wantNextOpen := time.Date(2025, 6, 2, 0, 0, 0, 0, s.Location)
	if !state.NextOpenAt.Equal(wantNextOpen) {
		t.Errorf("NextOpenAt = %v, want %v (always the following day)", state.NextOpenAt, wantNextOpen)
	}
}

func TestComputeClosedScenario(t *testing.T) {
	// Closed at noon KST: opens tomorrow at 00:00, 12h left.
	s := seoulSchedule(t)
	now := at(t, s, 12, 0, 0)

	state := s.Compute(now, false)
	if state.IsOpen {
		t.Fatal("expected closed at noon")
	}
	wantOpen := time.Date(2025, 6, 2, 0, 0, 0, 0, s.Location)
	if !state.NextOpenAt.Equal(wantOpen) {
		t.Errorf("NextOpenAt = %v, want %v", state.NextOpenAt, wantOpen)
	}
	if state.TimeLeft != 12*time.Hour {
		t.Errorf("TimeLeft = %v, want 12h", state.TimeLeft)
	}
}

func TestComputeOverrideForcesOpen(t *testing.T) {
	s := seoulSchedule(t)
	for hour := 0; hour < 24; hour++ {
		state := s.Compute(at(t, s, hour, 15, 0), true)
		if !state.IsOpen {
			t.Errorf("hour %d: override must force open", hour)
		}
		if state.TimeLeft < 0 {
			t.Errorf("hour %d: TimeLeft negative", hour)
		}
	}
}

func TestComputeLateOpenHourBeforeWindow(t *testing.T) {
	// A non-midnight window: before the open hour, today's boundaries
	// apply instead of tomorrow's.
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("load Asia/Seoul: %v", err)
	}
	s := Schedule{OpenHour: 22, CloseHour: 23, Location: loc}
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, loc)

	state := s.Compute(now, false)
	if state.IsOpen {
		t.Fatal("expected closed before open hour")
	}
	wantOpen := time.Date(2025, 6, 1, 22, 0, 0, 0, loc)
	if !state.NextOpenAt.Equal(wantOpen) {
		t.Errorf("NextOpenAt = %v, want today %v", state.NextOpenAt, wantOpen)
	}
}

func TestComputeViewerZoneIrrelevant(t *testing.T) {
	// The same instant expressed in UTC must produce the same gate
	// decision as its KST representation.
	s := seoulSchedule(t)
	kst := at(t, s, 1, 0, 0)
	utc := kst.UTC()

	stateKST := s.Compute(kst, false)
	stateUTC := s.Compute(utc, false)
	if stateKST.IsOpen != stateUTC.IsOpen {
		t.Errorf("gate differs by viewer zone: KST=%v UTC=%v", stateKST.IsOpen, stateUTC.IsOpen)
	}
	if stateKST.TimeLeft != stateUTC.TimeLeft {
		t.Errorf("countdown differs by viewer zone: %v vs %v", stateKST.TimeLeft, stateUTC.TimeLeft)
	}
}

func TestFormatTimeLeft(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{-time.Minute, "00:00:00"},
		{time.Second, "00:00:01"},
		{3*time.Hour + 30*time.Minute, "03:30:00"},
		{12 * time.Hour, "12:00:00"},
		{61 * time.Second, "00:01:01"},
	}
	for _, tc := range cases {
		if got := FormatTimeLeft(tc.d); got != tc.want {
			t.Errorf("FormatTimeLeft(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
