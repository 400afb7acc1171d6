package digest

import (
	"testing"
	"time"
)

func TestRunDate_Morning(t *testing.T) {
	// 2026-01-22 08:30 EST
	now := time.Date(2026, 1, 22, 13, 30, 0, 0, time.UTC)

	got, err := RunDate(now, "America/New_York")
	if err != nil {
		t.Fatalf("RunDate() error = %v", err)
	}

	if got.Year() != 2026 || got.Month() != time.January || got.Day() != 22 {
		t.Errorf("RunDate() = %v, want 2026-01-22", got)
	}
	if got.Location().String() != "America/New_York" {
		t.Errorf("location = %v, want America/New_York", got.Location())
	}
}

func TestRunDate_LateNightBelongsToPreviousDay(t *testing.T) {
	// 2026-07-23 02:15 EDT is still the 22nd's work day
	now := time.Date(2026, 7, 23, 6, 15, 0, 0, time.UTC)

	got, err := RunDate(now, "America/New_York")
	if err != nil {
		t.Fatalf("RunDate() error = %v", err)
	}

	if got.Day() != 22 {
		t.Errorf("RunDate().Day() = %d, want 22", got.Day())
	}
}

func TestRunDate_DateDependsOnTimezone(t *testing.T) {
	// 2026-03-08 04:30 UTC: 23:30 on the 7th in New York, 13:30 on the 8th in Tokyo
	now := time.Date(2026, 3, 8, 4, 30, 0, 0, time.UTC)

	ny, err := RunDate(now, "America/New_York")
	if err != nil {
		t.Fatalf("RunDate() error = %v", err)
	}
	tokyo, err := RunDate(now, "Asia/Tokyo")
	if err != nil {
		t.Fatalf("RunDate() error = %v", err)
	}

	if ny.Day() != 7 {
		t.Errorf("New York day = %d, want 7", ny.Day())
	}
	if tokyo.Day() != 8 {
		t.Errorf("Tokyo day = %d, want 8", tokyo.Day())
	}
}

func TestRunDate_InvalidTimezone(t *testing.T) {
	_, err := RunDate(time.Now(), "Invalid/Timezone")
	if err == nil {
		t.Error("RunDate() expected error for invalid timezone")
	}
}

func TestFormatDate(t *testing.T) {
	got := FormatDate(time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC))
	if want := "Monday, October 05, 2026"; got != want {
		t.Errorf("FormatDate() = %q, want %q", got, want)
	}
}
