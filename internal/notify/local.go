// Package notify is the local notification delivery capability. Triggers are
// kept in SQLite and fired by a ticker loop into one or more sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/appointments/internal/model"
)

// DefaultChannelID is the channel created by Init.
const DefaultChannelID = "local-channel"

var (
	ErrNotInitialized     = errors.New("notifications not initialized")
	ErrAlreadyInitialized = errors.New("notifications already initialized")
	ErrPermissionDenied   = errors.New("notification permission denied")
	ErrUnknownChannel     = errors.New("unknown notification channel")
)

// Permission values.
const (
	PermissionGranted = "granted"
	PermissionPrompt  = "prompt"
	PermissionDenied  = "denied"
)

// TriggerStore persists scheduled triggers keyed by appointment id.
type TriggerStore interface {
	Upsert(t model.ScheduledTrigger) error
	ListPending() ([]model.ScheduledTrigger, error)
	ListDue(now time.Time) ([]model.ScheduledTrigger, error)
	MarkFired(appointmentID string, fireAt, firedAt time.Time) (bool, error)
	Delete(appointmentID string) error
	DeleteAll() (int64, error)
	CleanupFired(before time.Time) (int64, error)
}

// ChannelConfig describes a notification channel.
type ChannelConfig struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
	Importance  string `json:"importance,omitempty" yaml:"importance"`
}

// Config configures Local.
type Config struct {
	// ExactAlarms is whether exact scheduling is available before the user
	// is asked for it.
	ExactAlarms bool
	// Permission is the starting notification permission: granted, prompt
	// or denied. Empty means prompt.
	Permission   string
	TickInterval time.Duration
	// Retention is how long fired triggers are kept.
	Retention time.Duration
	Now       func() time.Time
}

// Local implements the notification delivery capability in-process.
type Local struct {
	mu          sync.RWMutex
	store       TriggerStore
	sinks       []Sink
	onFire      []func(model.ScheduledTrigger)
	channels    map[string]ChannelConfig
	initialized bool
	permission  string
	exact       bool
	interval    time.Duration
	retention   time.Duration
	now         func() time.Time
	logger      *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewLocal creates a Local backed by ts that displays into sinks.
func NewLocal(ts TriggerStore, cfg Config, logger *slog.Logger, sinks ...Sink) *Local {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Permission == "" {
		cfg.Permission = PermissionPrompt
	}
	return &Local{
		store:      ts,
		sinks:      sinks,
		channels:   make(map[string]ChannelConfig),
		permission: cfg.Permission,
		exact:      cfg.ExactAlarms,
		interval:   cfg.TickInterval,
		retention:  cfg.Retention,
		now:        cfg.Now,
		logger:     logger,
	}
}

// Init creates the default channel. It may be called once per process.
func (l *Local) Init(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.initialized {
		return ErrAlreadyInitialized
	}
	l.channels[DefaultChannelID] = ChannelConfig{
		ID:          DefaultChannelID,
		Name:        "Appointment reminders",
		Description: "Reminders shortly before an appointment starts",
		Importance:  "high",
	}
	l.initialized = true
	l.logger.Info("notifications initialized", "channel", DefaultChannelID, "permission", l.permission, "exact_alarms", l.exact)
	return nil
}

// CreateChannel registers a channel. It reports false if the channel already
// existed, in which case its config is replaced.
func (l *Local) CreateChannel(ctx context.Context, cfg ChannelConfig) (bool, error) {
	if cfg.ID == "" {
		return false, fmt.Errorf("create channel: empty id")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return false, ErrNotInitialized
	}
	_, existed := l.channels[cfg.ID]
	l.channels[cfg.ID] = cfg
	return !existed, nil
}

// Channels returns the registered channels.
func (l *Local) Channels() []ChannelConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ChannelConfig, 0, len(l.channels))
	for _, c := range l.channels {
		out = append(out, c)
	}
	return out
}

// RequestPermission asks the user for notification permission, which also
// enables exact scheduling. A denied permission stays denied.
func (l *Local) RequestPermission(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return false, ErrNotInitialized
	}
	if l.permission == PermissionDenied {
		return false, nil
	}
	l.permission = PermissionGranted
	l.exact = true
	l.logger.Info("notification permission granted")
	return true, nil
}

// Permission returns the current notification permission.
func (l *Local) Permission() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.permission
}

func (l *Local) HasExactSchedulingCapability(ctx context.Context) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.initialized {
		return false, ErrNotInitialized
	}
	return l.exact, nil
}

// DisplayImmediate shows a notification on the default channel right away.
func (l *Local) DisplayImmediate(ctx context.Context, title, body string) error {
	l.mu.RLock()
	initialized, permission, sinks := l.initialized, l.permission, l.sinks
	l.mu.RUnlock()
	if !initialized {
		return ErrNotInitialized
	}
	if permission == PermissionDenied {
		return ErrPermissionDenied
	}

	l.dispatch(ctx, sinks, Notification{
		Kind:      KindImmediate,
		ChannelID: DefaultChannelID,
		Title:     title,
		Body:      body,
		At:        l.now(),
	})
	return nil
}

// ScheduleAt stores a trigger for id on the default channel, replacing any
// earlier trigger with the same id.
func (l *Local) ScheduleAt(ctx context.Context, at time.Time, id, title, body string) error {
	return l.ScheduleOn(ctx, DefaultChannelID, at, id, title, body)
}

// ScheduleOn is ScheduleAt on a named channel.
func (l *Local) ScheduleOn(ctx context.Context, channelID string, at time.Time, id, title, body string) error {
	l.mu.RLock()
	initialized := l.initialized
	_, known := l.channels[channelID]
	l.mu.RUnlock()
	if !initialized {
		return ErrNotInitialized
	}
	if !known {
		return fmt.Errorf("schedule %s: %w", id, ErrUnknownChannel)
	}
	if id == "" {
		return fmt.Errorf("schedule: empty id")
	}

	err := l.store.Upsert(model.ScheduledTrigger{
		AppointmentID: id,
		ChannelID:     channelID,
		Title:         title,
		Body:          body,
		FireAt:        at,
		CreatedAt:     l.now(),
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", id, err)
	}
	l.logger.Debug("trigger stored", "id", id, "fire_at", at)
	return nil
}

// Cancel removes the trigger for id. Unknown ids are a no-op.
func (l *Local) Cancel(ctx context.Context, id string) error {
	if err := l.requireInit(); err != nil {
		return err
	}
	if err := l.store.Delete(id); err != nil {
		return fmt.Errorf("cancel %s: %w", id, err)
	}
	return nil
}

// CancelAll removes every trigger.
func (l *Local) CancelAll(ctx context.Context) error {
	if err := l.requireInit(); err != nil {
		return err
	}
	n, err := l.store.DeleteAll()
	if err != nil {
		return fmt.Errorf("cancel all: %w", err)
	}
	l.logger.Info("all triggers cancelled", "count", n)
	return nil
}

// ListScheduled returns the triggers that have not fired yet.
func (l *Local) ListScheduled(ctx context.Context) ([]model.ScheduledTrigger, error) {
	if err := l.requireInit(); err != nil {
		return nil, err
	}
	triggers, err := l.store.ListPending()
	if err != nil {
		return nil, fmt.Errorf("list scheduled: %w", err)
	}
	return triggers, nil
}

// OnFire registers fn to be called after a trigger fires.
func (l *Local) OnFire(fn func(model.ScheduledTrigger)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onFire = append(l.onFire, fn)
}

// AddSink adds a sink after construction.
func (l *Local) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Start begins the loop that fires due triggers.
func (l *Local) Start(ctx context.Context) {
	l.mu.Lock()
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	l.mu.Unlock()

	go func() {
		defer close(l.done)
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.tick(ctx)
			}
		}
	}()
}

// Stop stops the loop and waits for it to exit.
func (l *Local) Stop() {
	l.mu.RLock()
	cancel := l.cancel
	done := l.done
	l.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (l *Local) tick(ctx context.Context) {
	if l.requireInit() != nil {
		return
	}
	now := l.now()

	due, err := l.store.ListDue(now)
	if err != nil {
		l.logger.Error("list due triggers", "error", err)
		return
	}

	l.mu.RLock()
	sinks, callbacks := l.sinks, l.onFire
	l.mu.RUnlock()

	for _, t := range due {
		ok, err := l.store.MarkFired(t.AppointmentID, t.FireAt, now)
		if err != nil {
			l.logger.Error("mark trigger fired", "id", t.AppointmentID, "error", err)
			continue
		}
		if !ok {
			// Replaced or cancelled since it was listed.
			continue
		}
		firedAt := now
		t.FiredAt = &firedAt

		l.dispatch(ctx, sinks, Notification{
			Kind:      KindReminder,
			ID:        t.AppointmentID,
			ChannelID: t.ChannelID,
			Title:     t.Title,
			Body:      t.Body,
			At:        now,
		})
		for _, fn := range callbacks {
			fn(t)
		}
	}

	if _, err := l.store.CleanupFired(now.Add(-l.retention)); err != nil {
		l.logger.Warn("cleanup fired triggers", "error", err)
	}
}

func (l *Local) dispatch(ctx context.Context, sinks []Sink, n Notification) {
	for _, s := range sinks {
		if err := s.Deliver(ctx, n); err != nil {
			l.logger.Warn("deliver notification", "kind", n.Kind, "id", n.ID, "error", err)
		}
	}
}

func (l *Local) requireInit() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.initialized {
		return ErrNotInitialized
	}
	return nil
}
