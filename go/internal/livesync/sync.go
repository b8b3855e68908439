package livesync

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scoreboard/go/internal/models"
	"github.com/mcdev12/scoreboard/go/internal/rounds"
)

// RoundsApp is what live sync needs to mutate rounds
type RoundsApp interface {
	AddTime(ctx context.Context, date, name, rawTime string) (*models.Round, error)
	UpdateField(ctx context.Context, date string, field models.Field, value string) (*models.Round, error)
}

// Broadcaster delivers frames to clients
type Broadcaster interface {
	Broadcast(event *Event)
	SendTo(conn *Connection, event *Event)
}

// ChangeSource is a round change feed: the store itself or a NATS relay
type ChangeSource interface {
	Subscribe(ctx context.Context) (<-chan models.Change, error)
}

type SyncConfig struct {
	DebounceWindow time.Duration // Inactivity before a car/track edit is written
	WriteTimeout   time.Duration // Bound on a debounced store write
	Version        string        // Sent to each client on connect
	Clock          clockwork.Clock
	Logger         *zerolog.Logger
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		DebounceWindow: 500 * time.Millisecond,
		WriteTimeout:   5 * time.Second,
		Version:        "dev",
	}
}

// Sync applies client edits and keeps every connection up to date.
type Sync struct {
	app    RoundsApp
	hub    Broadcaster
	cfg    SyncConfig
	clock  clockwork.Clock
	logger zerolog.Logger

	cars   *Debouncer
	tracks *Debouncer
}

func NewSync(app RoundsApp, hub Broadcaster, cfg SyncConfig) *Sync {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	s := &Sync{
		app:    app,
		hub:    hub,
		cfg:    cfg,
		clock:  clock,
		logger: logger.With().Str("component", "livesync").Logger(),
	}
	s.cars = NewDebouncer(clock, cfg.DebounceWindow, s.flushField(models.FieldCar))
	s.tracks = NewDebouncer(clock, cfg.DebounceWindow, s.flushField(models.FieldTrack))
	return s
}

// AddTime writes a lap time immediately and broadcasts the round's times to everyone,
// the sender included. Nothing is broadcast when the write fails.
func (s *Sync) AddTime(ctx context.Context, date, name, rawTime string) (*models.Round, error) {
	round, err := s.app.AddTime(ctx, date, name, rawTime)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("date", date).
			Str("name", name).
			Str("time", rawTime).
			Msg("adding time failed")
		return nil, err
	}

	s.logger.Info().
		Str("date", date).
		Str("name", name).
		Str("time", rawTime).
		Msg("time added")
	s.broadcastChange(models.ChangeFor(round, models.FieldTimes))
	return round, nil
}

// ChangeCarName queues a car label edit for date.
func (s *Sync) ChangeCarName(date, name string) error {
	if !rounds.ValidDate(date) {
		return &rounds.ValidationError{Err: rounds.ErrInvalidDate}
	}
	s.cars.Push(date, name)
	return nil
}

// ChangeTrackName queues a track label edit for date.
func (s *Sync) ChangeTrackName(date, name string) error {
	if !rounds.ValidDate(date) {
		return &rounds.ValidationError{Err: rounds.ErrInvalidDate}
	}
	s.tracks.Push(date, name)
	return nil
}

// flushField writes the coalesced value. Failures are logged and dropped.
func (s *Sync) flushField(field models.Field) FlushFunc {
	return func(date, value string) {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		defer cancel()

		round, err := s.app.UpdateField(ctx, date, field, value)
		if err != nil {
			s.logger.Error().
				Err(err).
				Str("field", string(field)).
				Str("date", date).
				Msg("debounced write failed, dropping edit")
			return
		}

		s.logger.Debug().
			Str("field", string(field)).
			Str("date", date).
			Msg("debounced write flushed")
		s.broadcastChange(models.ChangeFor(round, field))
	}
}

func (s *Sync) broadcastChange(change models.Change) {
	event, err := eventForChange(change, s.clock.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build change event")
		return
	}
	s.hub.Broadcast(event)
}

// Run forwards every change from src to all connections until ctx is done or
// the feed closes.
func (s *Sync) Run(ctx context.Context, src ChangeSource) error {
	changes, err := src.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to changes: %w", err)
	}

	s.logger.Info().Msg("forwarding round changes")
	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				s.logger.Warn().Msg("change feed closed")
				return nil
			}
			s.broadcastChange(change)
		}
	}
}

// Stop discards edits still waiting in the debounce windows.
func (s *Sync) Stop() {
	s.cars.Stop()
	s.tracks.Stop()
}

// OnConnect greets a new connection with the build version.
func (s *Sync) OnConnect(conn *Connection) []*Event {
	event, err := NewEvent(EventTypeVersion, VersionPayload{Version: s.cfg.Version}, s.clock.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build version event")
		return nil
	}
	return []*Event{event}
}

// HandleMessage dispatches a client frame. Failures go back to the sender only.
func (s *Sync) HandleMessage(ctx context.Context, conn *Connection, msg ClientMessage) {
	var err error

	switch msg.Type {
	case EventTypeCarNameChanged, EventTypeTrackNameChanged, EventTypeTimeAdded:
		var payload any
		payload, err = ParseEventPayload(msg.Type, msg.Data)
		if err != nil {
			err = fmt.Errorf("malformed %s payload: %w", msg.Type, err)
			break
		}
		switch p := payload.(type) {
		case NameChangedPayload:
			s.logger.Debug().
				Str("user_id", conn.UserID).
				Str("type", string(msg.Type)).
				Str("date", p.Date).
				Str("name", p.Name).
				Msg("label edit received")
			if msg.Type == EventTypeCarNameChanged {
				err = s.ChangeCarName(p.Date, p.Name)
			} else {
				err = s.ChangeTrackName(p.Date, p.Name)
			}
		case TimeAddedPayload:
			s.logger.Info().
				Str("user_id", conn.UserID).
				Str("date", p.Date).
				Str("name", p.Name).
				Str("time", p.Time).
				Msg("user changes time")
			_, err = s.AddTime(ctx, p.Date, p.Name, p.Time)
		}
	default:
		err = fmt.Errorf("unsupported message type %q", msg.Type)
	}

	if err != nil {
		s.sendError(conn, err)
	}
}

func (s *Sync) sendError(conn *Connection, cause error) {
	event, err := NewEvent(EventTypeError, ErrorPayload{Message: cause.Error()}, s.clock.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build error event")
		return
	}
	s.hub.SendTo(conn, event)
}

var (
	_ MessageHandler = (*Sync)(nil)
	_ Broadcaster    = (*Hub)(nil)
)
