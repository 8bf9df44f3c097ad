package core

import (
	"testing"
	"time"
)

func TestParseMonth(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"2026-01", "2026-01", true},
		{"2026-12", "2026-12", true},
		{"2026-13", "", false},
		{"2026-00", "", false},
		{"2026-1", "", false},
		{"01-2026", "", false},
		{"2026-01-01", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		m, err := ParseMonth(tc.in)
		if tc.ok {
			if err != nil || m.String() != tc.out {
				t.Fatalf("%q expected %q, got %q (err=%v)", tc.in, tc.out, m.String(), err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestMonthWindows(t *testing.T) {
	m, _ := ParseMonth("2026-02")
	if got := m.Start(); !got.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %v", got)
	}
	if got := m.NextStart(); !got.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected next start: %v", got)
	}

	// December rolls into the next year
	dec, _ := ParseMonth("2025-12")
	if got := dec.Next().String(); got != "2026-01" {
		t.Fatalf("expected 2026-01 after 2025-12, got %s", got)
	}
	jan, _ := ParseMonth("2026-01")
	if got := jan.Prev().String(); got != "2025-12" {
		t.Fatalf("expected 2025-12 before 2026-01, got %s", got)
	}
}

func TestMonthCompare(t *testing.T) {
	a, _ := ParseMonth("2025-12")
	b, _ := ParseMonth("2026-01")
	if !a.Before(b) || b.Before(a) || !b.After(a) {
		t.Fatal("ordering across year boundary is wrong")
	}
	if a.Compare(a) != 0 {
		t.Fatal("month should compare equal to itself")
	}
}

func TestMonthsBetween(t *testing.T) {
	start, _ := ParseMonth("2025-11")
	end, _ := ParseMonth("2026-02")
	months := MonthsBetween(start, end)
	want := []string{"2025-11", "2025-12", "2026-01", "2026-02"}
	if len(months) != len(want) {
		t.Fatalf("expected %d months, got %d", len(want), len(months))
	}
	for i, m := range months {
		if m.String() != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], m)
		}
	}
	if got := MonthsBetween(end, start); got != nil {
		t.Fatalf("reversed range should be nil, got %v", got)
	}
}

func TestMonthOf(t *testing.T) {
	d := time.Date(2026, 7, 31, 23, 59, 0, 0, time.UTC)
	if got := MonthOf(d).String(); got != "2026-07" {
		t.Fatalf("expected 2026-07, got %s", got)
	}
	if !MonthOf(d).Contains(d) {
		t.Fatal("month should contain its own date")
	}
}
