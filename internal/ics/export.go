// Package ics renders the appointment collection as an iCalendar feed.
package ics

import (
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/dukerupert/appointments/internal/model"
	"github.com/dukerupert/appointments/internal/reminder"
)

const productID = "-//dukerupert//appointments//EN"

// Export writes appts as a VCALENDAR. Appointments without an id or with a
// date or time that cannot be read are left out; the count written is returned.
func Export(w io.Writer, appts []model.Appointment, loc *time.Location, now time.Time) (int, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetName("Appointments")

	n := 0
	for _, a := range appts {
		if a.ID == "" {
			continue
		}
		// Lead 0 makes the plan's AppointmentAt the parsed start instant.
		plan, err := reminder.ComputePlan(a.Date, a.Time, now, 0, loc)
		if err != nil {
			continue
		}
		start := plan.AppointmentAt

		ev := cal.AddEvent(UID(a.ID))
		ev.SetDtStampTime(now)
		ev.SetStartAt(start)
		ev.SetEndAt(start.Add(model.DefaultDuration * time.Minute))
		ev.SetSummary(a.Title)
		if a.Content != "" {
			ev.SetDescription(a.Content)
		}
		if a.Location != "" {
			ev.SetLocation(a.Location)
		}
		n++
	}

	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return 0, err
	}
	return n, nil
}

// UID is the iCalendar UID for an appointment.
func UID(id model.ID) string {
	return "appointment-" + id.String() + "@appointments"
}
