package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/appointments/internal/handler"
	"github.com/dukerupert/appointments/internal/middleware"
	ws "github.com/dukerupert/appointments/internal/websocket"
)

// Deps are the collaborators the HTTP API is built from.
type Deps struct {
	Appointments handler.Appointments
	Triggers     handler.Triggers
	Delivery     handler.Delivery
	Hub          *ws.Hub
	Location     *time.Location
	CORSOrigins  []string
	Logger       *slog.Logger
}

type Server struct {
	hub          *ws.Hub
	appointmentH *handler.AppointmentHandler
	reminderH    *handler.ReminderHandler
	throttle     *middleware.Throttle
	corsOrigins  []string
	logger       *slog.Logger
}

func New(d Deps) *Server {
	logger := d.Logger
	return &Server{
		hub:          d.Hub,
		appointmentH: handler.NewAppointmentHandler(d.Appointments, d.Hub, d.Location, logger.With("component", "appointment")),
		reminderH:    handler.NewReminderHandler(d.Triggers, d.Delivery, logger.With("component", "reminder")),
		throttle:     middleware.NewThrottle(10, 10*time.Second),
		corsOrigins:  d.CORSOrigins,
		logger:       logger,
	}
}

// Throttle returns the mutation throttle for periodic sweeping.
func (s *Server) Throttle() *middleware.Throttle {
	return s.throttle
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.corsOrigins, s.logger.With("component", "websocket")))

	// Appointment API routes
	mux.HandleFunc("GET /api/appointments", s.appointmentH.List)
	mux.HandleFunc("POST /api/appointments", s.appointmentH.Create)
	mux.HandleFunc("GET /api/appointments.ics", s.appointmentH.ExportICS)
	mux.HandleFunc("POST /api/appointments/refresh", s.appointmentH.Refresh)
	mux.HandleFunc("GET /api/appointments/{id}", s.appointmentH.Get)
	mux.HandleFunc("PUT /api/appointments/{id}", s.appointmentH.Update)
	mux.HandleFunc("DELETE /api/appointments/{id}", s.appointmentH.Delete)
	mux.HandleFunc("GET /api/days/{date}", s.appointmentH.Day)

	// Reminder API routes
	mux.HandleFunc("GET /api/reminders", s.reminderH.List)
	mux.HandleFunc("POST /api/notifications/permission", s.reminderH.RequestPermission)

	var h http.Handler = mux
	h = middleware.Limit(s.throttle)(h)
	h = middleware.CORS(s.corsOrigins)(h)
	return middleware.RequestLogger(s.logger.With("component", "http"))(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}
