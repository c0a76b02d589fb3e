package schedule

import (
	"testing"
	"time"
)

func TestDateArithmetic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from Date
		days int
		want Date
	}{
		{"same month", jan(10), 2, jan(12)},
		{"crosses month", jan(30), 5, D(2025, time.February, 4)},
		{"lead crosses year", jan(2), -3, D(2024, time.December, 30)},
		{"leap day", D(2024, time.February, 28), 1, D(2024, time.February, 29)},
		{"zero", jan(5), 0, jan(5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.from.AddDays(tt.days)
			if got != tt.want {
				t.Errorf("%s.AddDays(%d) = %s, want %s", tt.from, tt.days, got, tt.want)
			}
			if back := tt.from.DaysUntil(got); back != tt.days {
				t.Errorf("DaysUntil = %d, want %d", back, tt.days)
			}
		})
	}
}

func TestDateCompare(t *testing.T) {
	t.Parallel()
	if !jan(1).Before(jan(2)) || jan(2).Before(jan(1)) {
		t.Error("Before ordering wrong")
	}
	if !D(2025, time.March, 1).After(jan(31)) {
		t.Error("March 1 should be after January 31")
	}
	if got := MinDate(Date{}, jan(3)); got != jan(3) {
		t.Errorf("MinDate(zero, jan 3) = %s, want 2025-01-03", got)
	}
	if got := MaxDate(jan(9), jan(3)); got != jan(9) {
		t.Errorf("MaxDate = %s, want 2025-01-09", got)
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	d, err := ParseDate("2025-03-01")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d != D(2025, time.March, 1) {
		t.Errorf("ParseDate = %+v", d)
	}

	zero, err := ParseDate("")
	if err != nil || !zero.IsZero() {
		t.Errorf("ParseDate(\"\") = %v, %v; want zero, nil", zero, err)
	}

	if _, err := ParseDate("03/01/2025"); err == nil {
		t.Error("expected error for non-ISO date")
	}

	var round Date
	text, _ := d.MarshalText()
	if err := round.UnmarshalText(text); err != nil || round != d {
		t.Errorf("text round trip = %v, %v", round, err)
	}
}
