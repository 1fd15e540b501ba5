package reminder

import (
	"errors"
	"testing"
	"time"
)

func TestComputePlanFuture(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	plan, err := ComputePlan("2025-01-01", "14:00", now, DefaultLead, time.UTC)
	if err != nil {
		t.Fatalf("compute plan: %v", err)
	}

	want := time.Date(2025, 1, 1, 13, 55, 0, 0, time.UTC)
	if !plan.FireAt.Equal(want) {
		t.Errorf("fire at = %v, want %v", plan.FireAt, want)
	}
	if plan.Phrase != "in 5 minutes" {
		t.Errorf("phrase = %q, want %q", plan.Phrase, "in 5 minutes")
	}
	if plan.Clamped {
		t.Error("expected unclamped plan")
	}
}

func TestComputePlanInsideLeadWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 13, 57, 0, 0, time.UTC)

	plan, err := ComputePlan("2025-01-01", "14:00", now, DefaultLead, time.UTC)
	if err != nil {
		t.Fatalf("compute plan: %v", err)
	}

	if want := now.Add(time.Second); !plan.FireAt.Equal(want) {
		t.Errorf("fire at = %v, want %v", plan.FireAt, want)
	}
	if plan.Phrase != "in 3 minutes" {
		t.Errorf("phrase = %q, want %q", plan.Phrase, "in 3 minutes")
	}
	if !plan.Clamped {
		t.Error("expected clamped plan")
	}
}

func TestComputePlanExactlyAtLeadBoundary(t *testing.T) {
	now := time.Date(2025, 1, 1, 13, 55, 0, 0, time.UTC)

	plan, err := ComputePlan("2025-01-01", "14:00", now, DefaultLead, time.UTC)
	if err != nil {
		t.Fatalf("compute plan: %v", err)
	}
	if !plan.Clamped {
		t.Error("expected clamp when candidate fire time equals now")
	}
	if plan.Phrase != "in 5 minutes" {
		t.Errorf("phrase = %q, want %q", plan.Phrase, "in 5 minutes")
	}
}

func TestComputePlanPartialMinuteRoundsUp(t *testing.T) {
	now := time.Date(2025, 1, 1, 13, 59, 30, 0, time.UTC)

	plan, err := ComputePlan("2025-01-01", "14:00", now, DefaultLead, time.UTC)
	if err != nil {
		t.Fatalf("compute plan: %v", err)
	}
	if plan.Phrase != "in 1 minute" {
		t.Errorf("phrase = %q, want %q", plan.Phrase, "in 1 minute")
	}
}

func TestComputePlanAppointmentPassed(t *testing.T) {
	for _, now := range []time.Time{
		time.Date(2025, 1, 1, 14, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC),
	} {
		plan, err := ComputePlan("2025-01-01", "14:00", now, DefaultLead, time.UTC)
		if err != nil {
			t.Fatalf("compute plan: %v", err)
		}
		if plan.Phrase != "now" {
			t.Errorf("now=%v: phrase = %q, want %q", now, plan.Phrase, "now")
		}
		if want := now.Add(time.Second); !plan.FireAt.Equal(want) {
			t.Errorf("now=%v: fire at = %v, want %v", now, plan.FireAt, want)
		}
	}
}

func TestComputePlanSingleDigitHour(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	plan, err := ComputePlan("2025-06-01", "9:30", now, DefaultLead, time.UTC)
	if err != nil {
		t.Fatalf("compute plan: %v", err)
	}
	if want := time.Date(2025, 6, 1, 9, 25, 0, 0, time.UTC); !plan.FireAt.Equal(want) {
		t.Errorf("fire at = %v, want %v", plan.FireAt, want)
	}
}

func TestComputePlanUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	plan, err := ComputePlan("2025-01-01", "14:00", now, DefaultLead, loc)
	if err != nil {
		t.Fatalf("compute plan: %v", err)
	}
	if want := time.Date(2025, 1, 1, 11, 55, 0, 0, time.UTC); !plan.FireAt.Equal(want) {
		t.Errorf("fire at = %v, want %v", plan.FireAt.UTC(), want)
	}
}

func TestComputePlanMalformed(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		date, clock string
		field       string
	}{
		{"2025-1-01", "14:00", "date"},
		{"01/01/2025", "14:00", "date"},
		{"", "14:00", "date"},
		{"2025-01-01", "2pm", "time"},
		{"2025-01-01", "14:0", "time"},
		{"2025-01-01", "14:00 PM", "time"},
		{"2025-13-01", "14:00", "datetime"},
		{"2025-01-01", "25:00", "datetime"},
	}

	for _, tt := range tests {
		_, err := ComputePlan(tt.date, tt.clock, now, DefaultLead, time.UTC)
		var mErr *MalformedInputError
		if !errors.As(err, &mErr) {
			t.Errorf("ComputePlan(%q, %q) error = %v, want MalformedInputError", tt.date, tt.clock, err)
			continue
		}
		if mErr.Field != tt.field {
			t.Errorf("ComputePlan(%q, %q) field = %q, want %q", tt.date, tt.clock, mErr.Field, tt.field)
		}
	}
}
