// Package layout packs a day's appointments into side-by-side columns so that
// overlapping appointments never share one.
package layout

import (
	"sort"

	"github.com/dukerupert/appointments/internal/model"
)

// Slot is the render placement of one appointment in a day view.
type Slot struct {
	AppointmentID model.ID `json:"appointment_id"`
	Column        int      `json:"column_index"`
	TotalColumns  int      `json:"total_columns"`
	StartMinute   int      `json:"start_minute"`
	EndMinute     int      `json:"end_minute"`
}

// Day is the result of one layout pass.
type Day struct {
	Slots        []Slot `json:"slots"`
	TotalColumns int    `json:"total_columns"`
}

// Compute assigns each appointment to the leftmost column whose last
// appointment has ended by the time this one starts, opening a new column
// when none is free. Appointments are visited in start order; equal starts
// keep their input order. Slots are returned in visiting order.
func Compute(appts []model.Appointment) Day {
	order := make([]int, len(appts))
	starts := make([]int, len(appts))
	for i, a := range appts {
		order[i] = i
		starts[i] = a.StartMinute()
	}
	sort.SliceStable(order, func(i, j int) bool {
		return starts[order[i]] < starts[order[j]]
	})

	// columnEnds[c] is the end minute of the most recent appointment placed in column c.
	var columnEnds []int
	slots := make([]Slot, 0, len(appts))

	for _, idx := range order {
		start := starts[idx]
		end := start + model.DefaultDuration

		col := -1
		for c, lastEnd := range columnEnds {
			if lastEnd <= start {
				col = c
				break
			}
		}
		if col < 0 {
			col = len(columnEnds)
			columnEnds = append(columnEnds, end)
		} else {
			columnEnds[col] = end
		}

		slots = append(slots, Slot{
			AppointmentID: appts[idx].ID,
			Column:        col,
			StartMinute:   start,
			EndMinute:     end,
		})
	}

	total := len(columnEnds)
	for i := range slots {
		slots[i].TotalColumns = total
	}

	return Day{Slots: slots, TotalColumns: total}
}

// MaxOverlap returns the largest number of appointments in progress at any
// single instant, treating each as the half-open interval [start, start+60).
func MaxOverlap(appts []model.Appointment) int {
	type edge struct {
		at    int
		delta int
	}
	edges := make([]edge, 0, len(appts)*2)
	for _, a := range appts {
		start := a.StartMinute()
		edges = append(edges, edge{start, 1}, edge{start + model.DefaultDuration, -1})
	}
	// Ends sort before starts at the same minute: [09:00,10:00) and [10:00,11:00) do not overlap.
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].at != edges[j].at {
			return edges[i].at < edges[j].at
		}
		return edges[i].delta < edges[j].delta
	})

	cur, best := 0, 0
	for _, e := range edges {
		cur += e.delta
		if cur > best {
			best = cur
		}
	}
	return best
}
