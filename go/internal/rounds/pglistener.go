package rounds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scoreboard/go/internal/models"
)

type ListenerConfig struct {
	DatabaseURL          string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel        string        // Channel name to LISTEN on
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
	PingInterval         time.Duration
	Buffer               int // Changes buffered for a slow consumer
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		DatabaseURL:          "",
		NotifyChannel:        "round_changes",
		MinReconnectInterval: 10 * time.Second,
		MaxReconnectInterval: time.Minute,
		PingInterval:         90 * time.Second,
		Buffer:               64,
	}
}

// RoundFetcher loads the current state of a round after a notification.
type RoundFetcher interface {
	GetRound(ctx context.Context, date string) (*models.Round, error)
}

// ChangeListener turns rounds table notifications into models.Change values.
type ChangeListener struct {
	listener *pq.Listener
	fetcher  RoundFetcher
	cfg      ListenerConfig
	out      chan models.Change
	logger   zerolog.Logger
}

// roundNotification is the payload emitted by the notify_round_change trigger.
type roundNotification struct {
	Date   string         `json:"date"`
	Fields []models.Field `json:"fields"`
}

func NewChangeListener(fetcher RoundFetcher, cfg ListenerConfig) (*ChangeListener, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("listener database url is required")
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultListenerConfig().Buffer
	}
	logger := log.With().Str("channel", cfg.NotifyChannel).Logger()

	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnectInterval,
		cfg.MaxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	logger.Info().Msg("listening for notifications")

	return &ChangeListener{
		listener: l,
		fetcher:  fetcher,
		cfg:      cfg,
		out:      make(chan models.Change, cfg.Buffer),
		logger:   logger,
	}, nil
}

// Changes is closed once Start returns.
func (l *ChangeListener) Changes() <-chan models.Change {
	return l.out
}

func (l *ChangeListener) Start(ctx context.Context) error {
	l.logger.Info().
		Dur("ping_interval", l.cfg.PingInterval).
		Msg("listener started")

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()
	defer close(l.out)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("listener shutting down")
			return l.listener.Close()
		case note := <-l.listener.Notify:
			if note == nil {
				// connection was re-established; anything sent meanwhile is lost
				l.logger.Warn().Msg("listener reconnected")
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				l.logger.Error().Err(err).Msg("failed to handle notification")
			}
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				l.logger.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

// handleNotification fetches the round named in extra and emits one change per
// changed field.
func (l *ChangeListener) handleNotification(ctx context.Context, extra string) error {
	n, err := parseNotification(extra)
	if err != nil {
		return err
	}

	round, err := l.fetcher.GetRound(ctx, n.Date)
	if err != nil {
		return fmt.Errorf("failed to fetch round %s: %w", n.Date, err)
	}

	for _, change := range changesFor(round, n.Fields) {
		select {
		case l.out <- change:
		default:
			l.logger.Warn().
				Str("field", string(change.Field)).
				Str("date", change.Date).
				Msg("change buffer full, dropping change")
		}
	}
	return nil
}

func parseNotification(extra string) (roundNotification, error) {
	var n roundNotification
	if err := json.Unmarshal([]byte(extra), &n); err != nil {
		return n, fmt.Errorf("invalid notification payload: %w", err)
	}
	if !ValidDate(n.Date) {
		return n, fmt.Errorf("invalid notification date %q: %w", n.Date, ErrInvalidDate)
	}
	return n, nil
}

func changesFor(round *models.Round, fields []models.Field) []models.Change {
	changes := make([]models.Change, 0, len(fields))
	for _, f := range fields {
		switch f {
		case models.FieldCar, models.FieldTrack, models.FieldTimes:
			changes = append(changes, models.ChangeFor(round, f))
		}
	}
	return changes
}
