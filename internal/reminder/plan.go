package reminder

import (
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/dukerupert/appointments/internal/timeofday"
)

const (
	// DefaultLead is how long before an appointment its reminder fires.
	DefaultLead = 5 * time.Minute

	// clampDelay is the delay applied when the lead window has already passed.
	clampDelay = time.Second
)

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern = regexp.MustCompile(`^\d{1,2}:\d{2}$`)
)

// Plan is the computed timing of a single reminder.
type Plan struct {
	AppointmentAt time.Time
	FireAt        time.Time
	// Phrase describes the remaining time, e.g. "in 5 minutes" or "now".
	Phrase string
	// Clamped is set when the lead window had already passed and FireAt was
	// pulled forward to just after now.
	Clamped bool
}

// ComputePlan works out when the reminder for an appointment on date at clock
// should fire. date must be "YYYY-MM-DD" and clock "H:MM" or "HH:MM"; both are
// read in loc.
func ComputePlan(date, clock string, now time.Time, lead time.Duration, loc *time.Location) (Plan, error) {
	if !datePattern.MatchString(date) {
		return Plan{}, &MalformedInputError{Field: "date", Value: date}
	}
	if !timePattern.MatchString(clock) {
		return Plan{}, &MalformedInputError{Field: "time", Value: clock}
	}
	if loc == nil {
		loc = time.Local
	}

	at, err := time.ParseInLocation("2006-01-02 15:04", date+" "+timeofday.FormatDisplay(clock), loc)
	if err != nil {
		return Plan{}, &MalformedInputError{Field: "datetime", Value: date + " " + clock, Err: err}
	}

	candidate := at.Add(-lead)
	if candidate.After(now) {
		return Plan{
			AppointmentAt: at,
			FireAt:        candidate,
			Phrase:        inMinutes(int(lead / time.Minute)),
		}, nil
	}

	phrase := "now"
	if remaining := at.Sub(now); remaining > 0 {
		phrase = inMinutes(int(math.Ceil(remaining.Minutes())))
	}
	return Plan{
		AppointmentAt: at,
		FireAt:        now.Add(clampDelay),
		Phrase:        phrase,
		Clamped:       true,
	}, nil
}

func inMinutes(n int) string {
	if n == 1 {
		return "in 1 minute"
	}
	return fmt.Sprintf("in %d minutes", n)
}
