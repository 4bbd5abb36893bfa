package archive

import (
	"testing"
	"time"
)

func TestNextCronTimeDaily(t *testing.T) {
	after := time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)
	next, err := nextCronTime("0 3 * * *", after)
	if err != nil {
		t.Fatalf("nextCronTime: %v", err)
	}
	want := time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestNextCronTimeMonthly(t *testing.T) {
	after := time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)
	next, err := nextCronTime("0 3 1 * *", after)
	if err != nil {
		t.Fatalf("nextCronTime: %v", err)
	}
	want := time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestNextCronTimeCommaList(t *testing.T) {
	after := time.Date(2026, 8, 29, 14, 20, 0, 0, time.UTC)
	next, err := nextCronTime("15,45 * * * *", after)
	if err != nil {
		t.Fatalf("nextCronTime: %v", err)
	}
	want := time.Date(2026, 8, 29, 14, 45, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestParseCronRejectsBadExpressions(t *testing.T) {
	for _, expr := range []string{"", "* * *", "a * * * *", "1,x * * * *"} {
		if _, err := parseCron(expr); err == nil {
			t.Errorf("parseCron(%q) succeeded, want error", expr)
		}
	}
}
