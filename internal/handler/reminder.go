package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/appointments/internal/model"
	"github.com/dukerupert/appointments/internal/reminder"
)

// Triggers exposes the scheduler's view of reminders.
type Triggers interface {
	Triggers() []reminder.Trigger
}

// Delivery is the notification capability surfaced over HTTP.
type Delivery interface {
	ListScheduled(ctx context.Context) ([]model.ScheduledTrigger, error)
	RequestPermission(ctx context.Context) (bool, error)
	HasExactSchedulingCapability(ctx context.Context) (bool, error)
}

type ReminderHandler struct {
	triggers Triggers
	delivery Delivery
	logger   *slog.Logger
}

func NewReminderHandler(t Triggers, d Delivery, logger *slog.Logger) *ReminderHandler {
	return &ReminderHandler{triggers: t, delivery: d, logger: logger}
}

func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	scheduled, err := h.delivery.ListScheduled(r.Context())
	if err != nil {
		h.logger.Error("list scheduled triggers", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list scheduled reminders")
		return
	}
	if scheduled == nil {
		scheduled = []model.ScheduledTrigger{}
	}
	exact, _ := h.delivery.HasExactSchedulingCapability(r.Context())

	writeJSON(w, http.StatusOK, map[string]any{
		"exact_alarms": exact,
		"triggers":     h.triggers.Triggers(),
		"scheduled":    scheduled,
	})
}

func (h *ReminderHandler) RequestPermission(w http.ResponseWriter, r *http.Request) {
	granted, err := h.delivery.RequestPermission(r.Context())
	if err != nil {
		h.logger.Error("request notification permission", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to request permission")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"granted": granted})
}
