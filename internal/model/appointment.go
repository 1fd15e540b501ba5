package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/appointments/internal/timeofday"
)

// DefaultDuration is the length of every appointment in minutes.
const DefaultDuration = 60

// ID is the store-assigned appointment identifier. The store may send it as a
// JSON number or a JSON string; both decode to the same ID.
type ID string

func (id ID) String() string {
	return string(id)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON emits numeric ids as JSON numbers so the store sees the type it assigned.
func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if isNumeric(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func isNumeric(s string) bool {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

type Appointment struct {
	ID       ID     `json:"id,omitempty"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Date     string `json:"appointment_date"`
	Time     string `json:"appointment_time"`
	Location string `json:"appointment_location"`
}

// StartMinute is the appointment's start as minutes since midnight.
func (a Appointment) StartMinute() int {
	return timeofday.ParseMinutes(a.Time)
}

func (a Appointment) EndMinute() int {
	return a.StartMinute() + DefaultDuration
}

// MissingFields lists the required fields that are empty or blank.
func (a Appointment) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(a.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(a.Date) == "" {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(a.Time) == "" {
		missing = append(missing, "time")
	}
	return missing
}

// CalendarDay parses Date ("YYYY-MM-DD") into its year, month and day components.
func (a Appointment) CalendarDay() (year int, month time.Month, day int, ok bool) {
	parts := strings.Split(strings.TrimSpace(a.Date), "-")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, 0, 0, false
		}
		nums[i] = n
	}
	return nums[0], time.Month(nums[1]), nums[2], true
}

// OnDay reports whether the appointment falls on the calendar day of t,
// evaluated in t's location. Out-of-range components normalize the way
// time.Date does, so "2025-02-30" lands on March 2.
func (a Appointment) OnDay(t time.Time) bool {
	y, m, d, ok := a.CalendarDay()
	if !ok {
		return false
	}
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	ty, tm, td := t.Date()
	dy, dm, dd := day.Date()
	return ty == dy && tm == dm && td == dd
}
