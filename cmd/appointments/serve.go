package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/dukerupert/appointments/internal/apiclient"
	"github.com/dukerupert/appointments/internal/database"
	"github.com/dukerupert/appointments/internal/lifecycle"
	"github.com/dukerupert/appointments/internal/logging"
	"github.com/dukerupert/appointments/internal/model"
	"github.com/dukerupert/appointments/internal/notify"
	"github.com/dukerupert/appointments/internal/reminder"
	"github.com/dukerupert/appointments/internal/server"
	"github.com/dukerupert/appointments/internal/store"
	ws "github.com/dukerupert/appointments/internal/websocket"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, reminder delivery and scheduled refresh.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub(logger.With("component", "websocket"))

	local := notify.NewLocal(store.NewTriggerStore(db), notify.Config{
		ExactAlarms:  cfg.Notifications.ExactAlarms,
		Permission:   cfg.Notifications.Permission,
		TickInterval: cfg.TickInterval(),
	}, logger.With("component", "notify"), notify.LogSink{Logger: logger.With("component", "display")}, hub)
	if err := local.Init(ctx); err != nil {
		return fmt.Errorf("init notifications: %w", err)
	}

	sched := reminder.NewScheduler(local, reminder.Config{
		Lead:     cfg.ReminderLead(),
		Location: loc,
	}, logger.With("component", "reminder"))
	local.OnFire(func(t model.ScheduledTrigger) { sched.MarkFired(t.AppointmentID) })

	client := apiclient.NewClient(cfg.StoreURL, nil, logger.With("component", "store"))
	coord := lifecycle.New(client, sched, local, logger.With("component", "lifecycle"))

	if err := coord.Refresh(ctx); err != nil {
		logger.Warn("initial refresh failed, starting with an empty collection", "error", err)
	}

	srv := server.New(server.Deps{
		Appointments: coord,
		Triggers:     sched,
		Delivery:     local,
		Hub:          hub,
		Location:     loc,
		CORSOrigins:  cfg.CORSOrigins,
		Logger:       logger,
	})

	c, err := newCron(ctx, cfg.Refresh, coord, hub, srv, logger.With("component", "cron"))
	if err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	local.Start(ctx)
	defer local.Stop()

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("appointments service listening", "addr", cfg.Listen, "store", cfg.StoreURL, "timezone", loc.String())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newCron schedules the authoritative refresh and throttle sweeping. An
// empty refresh spec leaves only the sweep.
func newCron(ctx context.Context, refresh string, coord *lifecycle.Coordinator, hub *ws.Hub, srv *server.Server, logger *slog.Logger) (*cron.Cron, error) {
	c := cron.New()

	if refresh != "" {
		_, err := c.AddFunc(refresh, func() {
			if err := coord.Refresh(ctx); err != nil {
				logger.Warn("scheduled refresh", "error", err)
				return
			}
			hub.Publish(ws.NewEvent("appointment", "refreshed", "", map[string]any{"count": len(coord.Appointments())}))
		})
		if err != nil {
			return nil, fmt.Errorf("parse refresh schedule %q: %w", refresh, err)
		}
	}

	if _, err := c.AddFunc("@every 1m", srv.Throttle().Sweep); err != nil {
		return nil, fmt.Errorf("schedule throttle sweep: %w", err)
	}
	return c, nil
}
