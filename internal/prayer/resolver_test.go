package prayer

import (
	"errors"
	"testing"
	"time"
)

func testSchedule(t *testing.T) Schedule {
	t.Helper()
	s, err := ParseSchedule(map[string]string{
		"Fajr":     "05:00",
		"Sunrise":  "06:20",
		"Dhuhr":    "12:30",
		"Asr":      "16:15",
		"Maghrib":  "18:45",
		"Isha":     "20:00",
		"Midnight": "00:20",
	})
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	return s
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 14, hour, minute, 0, 0, time.UTC)
}

func TestResolveCurrentAndNext(t *testing.T) {
	s := testSchedule(t)

	tests := []struct {
		name        string
		now         time.Time
		wantCurrent Prayer
		wantNext    Prayer
	}{
		{"afternoon", at(15, 0), Dhuhr, Asr},
		{"after isha", at(21, 0), Isha, Fajr},
		{"before fajr", at(3, 10), Isha, Fajr},
		{"midnight", at(0, 0), Isha, Fajr},
		{"exactly dhuhr", at(12, 30), Fajr, Dhuhr},
		{"minute after dhuhr", at(12, 31), Dhuhr, Asr},
		{"exactly fajr", at(5, 0), Isha, Fajr},
		{"exactly isha", at(20, 0), Maghrib, Isha},
		{"end of day", at(23, 59), Isha, Fajr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur, next := ResolveCurrentAndNext(s, tt.now)
			if cur != tt.wantCurrent || next != tt.wantNext {
				t.Errorf("got (%s, %s), want (%s, %s)", cur, next, tt.wantCurrent, tt.wantNext)
			}
		})
	}
}

func TestTimeUntilNext(t *testing.T) {
	tests := []struct {
		name string
		next ClockTime
		now  time.Time
		want Countdown
	}{
		{"same day", ClockTime{16, 15}, at(14, 45), Countdown{1, 30}},
		{"wraps to tomorrow", ClockTime{5, 0}, at(21, 0), Countdown{8, 0}},
		{"equal means tomorrow", ClockTime{12, 30}, at(12, 30), Countdown{24, 0}},
		{"seconds floor", ClockTime{12, 31}, time.Date(2025, 3, 14, 12, 30, 30, 0, time.UTC), Countdown{0, 0}},
		{"one minute", ClockTime{0, 1}, at(0, 0), Countdown{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TimeUntilNext(tt.next, tt.now); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTimeUntilNext_UsesNowLocation(t *testing.T) {
	pkt := time.FixedZone("PKT", 5*3600)
	now := time.Date(2025, 3, 14, 21, 30, 0, 0, pkt)
	got := TimeUntilNext(ClockTime{5, 15}, now)
	if got != (Countdown{7, 45}) {
		t.Errorf("got %+v, want 7h45m", got)
	}
}

func TestResolve(t *testing.T) {
	st := Resolve(testSchedule(t), at(14, 45))
	if st.Current != Dhuhr || st.Next != Asr {
		t.Errorf("Resolve = %s/%s", st.Current, st.Next)
	}
	if st.NextTime != "16:15" || st.CurrentTime != "12:30" {
		t.Errorf("times = %s/%s", st.CurrentTime, st.NextTime)
	}
	if st.TimeUntilNext != (Countdown{1, 30}) {
		t.Errorf("countdown = %+v", st.TimeUntilNext)
	}
	if st.NextUrdu != "عصر" {
		t.Errorf("NextUrdu = %q", st.NextUrdu)
	}
}

func TestParseSchedule_Errors(t *testing.T) {
	valid := map[string]string{"Fajr": "05:00", "Dhuhr": "12:30", "Asr": "16:15", "Maghrib": "18:45", "Isha": "20:00"}
	clone := func(edit func(m map[string]string)) map[string]string {
		m := make(map[string]string, len(valid))
		for k, v := range valid {
			m[k] = v
		}
		edit(m)
		return m
	}

	tests := []struct {
		name    string
		timings map[string]string
	}{
		{"missing asr", clone(func(m map[string]string) { delete(m, "Asr") })},
		{"malformed", clone(func(m map[string]string) { m["Dhuhr"] = "noon" })},
		{"bad hour", clone(func(m map[string]string) { m["Isha"] = "25:00" })},
		{"out of order", clone(func(m map[string]string) { m["Maghrib"] = "16:00" })},
		{"duplicate time", clone(func(m map[string]string) { m["Asr"] = "12:30" })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSchedule(tt.timings); !errors.Is(err, ErrInvalidSchedule) {
				t.Errorf("err = %v, want ErrInvalidSchedule", err)
			}
		})
	}
}

func TestParseClockTime_ZoneSuffix(t *testing.T) {
	ct, err := ParseClockTime("05:42 (PKT)")
	if err != nil {
		t.Fatal(err)
	}
	if ct != (ClockTime{5, 42}) {
		t.Errorf("got %+v", ct)
	}
}

func TestMethods(t *testing.T) {
	ms := Methods()
	if len(ms) != 14 {
		t.Errorf("len = %d, want 14", len(ms))
	}
	if !ValidMethod(2) || ValidMethod(6) || ValidMethod(99) {
		t.Error("ValidMethod wrong")
	}
	ms[0].Name = "changed"
	if Methods()[0].Name == "changed" {
		t.Error("Methods must return a copy")
	}
}
