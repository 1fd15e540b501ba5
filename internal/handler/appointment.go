package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/appointments/internal/apiclient"
	"github.com/dukerupert/appointments/internal/ics"
	"github.com/dukerupert/appointments/internal/layout"
	"github.com/dukerupert/appointments/internal/lifecycle"
	"github.com/dukerupert/appointments/internal/model"
	ws "github.com/dukerupert/appointments/internal/websocket"
)

// Appointments is the lifecycle the handlers drive.
type Appointments interface {
	Create(ctx context.Context, input model.Appointment) (*lifecycle.Result, error)
	Update(ctx context.Context, appt model.Appointment) (*lifecycle.Result, error)
	Delete(ctx context.Context, id model.ID) (*lifecycle.Result, error)
	Refresh(ctx context.Context) error
	Appointments() []model.Appointment
	DailySlice(day time.Time) []model.Appointment
	Lookup(id model.ID) (model.Appointment, bool)
}

// Publisher broadcasts realtime events.
type Publisher interface {
	Publish(ev ws.Event)
}

type AppointmentHandler struct {
	appts  Appointments
	events Publisher
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

func NewAppointmentHandler(appts Appointments, events Publisher, loc *time.Location, logger *slog.Logger) *AppointmentHandler {
	if loc == nil {
		loc = time.Local
	}
	return &AppointmentHandler{appts: appts, events: events, loc: loc, now: time.Now, logger: logger}
}

// mutationResponse is the body returned by create, update and delete.
type mutationResponse struct {
	*lifecycle.Result
	ReminderMessage string `json:"reminder_message,omitempty"`
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if q := r.URL.Query().Get("date"); q != "" {
		day, err := time.ParseInLocation("2006-01-02", q, h.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		writeJSON(w, http.StatusOK, h.appts.DailySlice(day))
		return
	}
	writeJSON(w, http.StatusOK, h.appts.Appointments())
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	appt, ok := h.appts.Lookup(model.ID(r.PathValue("id")))
	if !ok {
		writeError(w, http.StatusNotFound, "appointment not found")
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.Appointment
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	res, err := h.appts.Create(r.Context(), req)
	if !h.handleMutationError(w, res, err) {
		return
	}
	h.publish("created", res)
	h.writeResult(w, http.StatusCreated, res)
}

func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.Appointment
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.ID = model.ID(r.PathValue("id"))

	res, err := h.appts.Update(r.Context(), req)
	if !h.handleMutationError(w, res, err) {
		return
	}
	h.publish("updated", res)
	h.writeResult(w, http.StatusOK, res)
}

func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	res, err := h.appts.Delete(r.Context(), model.ID(r.PathValue("id")))
	if !h.handleMutationError(w, res, err) {
		return
	}
	h.publish("deleted", res)
	h.writeResult(w, http.StatusOK, res)
}

func (h *AppointmentHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.appts.Refresh(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, "failed to fetch appointments")
		return
	}
	appts := h.appts.Appointments()
	h.events.Publish(ws.NewEvent("appointment", "refreshed", "", map[string]any{"count": len(appts)}))
	writeJSON(w, http.StatusOK, appts)
}

// dayResponse is one day view: its appointments and their column layout.
type dayResponse struct {
	Date         string              `json:"date"`
	Appointments []model.Appointment `json:"appointments"`
	Slots        []layout.Slot       `json:"slots"`
	TotalColumns int                 `json:"total_columns"`
}

func (h *AppointmentHandler) Day(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	day, err := time.ParseInLocation("2006-01-02", date, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	appts := h.appts.DailySlice(day)
	l := layout.Compute(appts)
	writeJSON(w, http.StatusOK, dayResponse{
		Date:         date,
		Appointments: appts,
		Slots:        l.Slots,
		TotalColumns: l.TotalColumns,
	})
}

func (h *AppointmentHandler) ExportICS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="appointments.ics"`)
	if _, err := ics.Export(w, h.appts.Appointments(), h.loc, h.now()); err != nil {
		h.logger.Error("write ics export", "error", err)
	}
}

// handleMutationError writes the error response for err and reports whether
// the caller should go on to write res. A mutation that was stored but whose
// refresh failed still counts as a success.
func (h *AppointmentHandler) handleMutationError(w http.ResponseWriter, res *lifecycle.Result, err error) bool {
	if err == nil {
		return true
	}

	var vErr *lifecycle.ValidationError
	if errors.As(err, &vErr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   vErr.Error(),
			"missing": vErr.Missing,
		})
		return false
	}

	if res != nil {
		h.logger.Warn("appointment stored but refresh failed", "error", err)
		if res.Warning == "" {
			res.Warning = "saved, but the appointment list could not be refreshed"
		}
		return true
	}

	var sErr *apiclient.StoreError
	if errors.As(err, &sErr) && sErr.StatusCode == http.StatusNotFound {
		writeError(w, http.StatusNotFound, "appointment not found")
		return false
	}

	h.logger.Error("appointment store call failed", "error", err)
	writeError(w, http.StatusBadGateway, "appointment store unavailable")
	return false
}

func (h *AppointmentHandler) publish(action string, res *lifecycle.Result) {
	h.events.Publish(ws.NewEvent("appointment", action, res.Appointment.ID.String(), res.Appointment))
}

func (h *AppointmentHandler) writeResult(w http.ResponseWriter, status int, res *lifecycle.Result) {
	body := mutationResponse{Result: res}
	if res.Reminder != nil {
		body.ReminderMessage = res.Reminder.Message()
	}
	writeJSON(w, status, body)
}
