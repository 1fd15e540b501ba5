package model

import "time"

// ScheduledTrigger is a reminder held by the notification delivery layer,
// keyed by the appointment it belongs to.
type ScheduledTrigger struct {
	AppointmentID string     `json:"appointment_id"`
	ChannelID     string     `json:"channel_id"`
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	FireAt        time.Time  `json:"fire_at"`
	FiredAt       *time.Time `json:"fired_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (t ScheduledTrigger) Pending() bool {
	return t.FiredAt == nil
}
