package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scoreboard/go/internal/models"
)

type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	Buffer        int // Messages buffered per subscription
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "scoreboard.rounds",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		Buffer:        256,
	}
}

// Connect dials NATS with logging handlers attached.
func Connect(cfg Config) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// subjectFor returns prefix.field, e.g. scoreboard.rounds.car
func subjectFor(prefix string, field models.Field) string {
	return prefix + "." + string(field)
}

func wildcard(prefix string) string {
	return prefix + ".>"
}

func encodeChange(change models.Change) ([]byte, error) {
	data, err := json.Marshal(change)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal change: %w", err)
	}
	return data, nil
}

// decodeChange parses a message and checks it against the field in its subject.
func decodeChange(subject string, data []byte) (models.Change, error) {
	var change models.Change
	if err := json.Unmarshal(data, &change); err != nil {
		return change, fmt.Errorf("failed to unmarshal change: %w", err)
	}
	if i := strings.LastIndexByte(subject, '.'); i >= 0 {
		if field := models.Field(subject[i+1:]); field != change.Field {
			return change, fmt.Errorf("change field %q does not match subject %s", change.Field, subject)
		}
	}
	return change, nil
}

// Publisher puts round changes on NATS.
type Publisher struct {
	nc     *nats.Conn
	config Config
}

func NewPublisher(nc *nats.Conn, cfg Config) *Publisher {
	return &Publisher{nc: nc, config: cfg}
}

func (p *Publisher) Publish(ctx context.Context, change models.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeChange(change)
	if err != nil {
		return err
	}
	subject := subjectFor(p.config.SubjectPrefix, change.Field)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Subscriber reads round changes relayed over NATS. It satisfies the same
// Subscribe shape as a round store.
type Subscriber struct {
	nc     *nats.Conn
	config Config
}

func NewSubscriber(nc *nats.Conn, cfg Config) *Subscriber {
	return &Subscriber{nc: nc, config: cfg}
}

func (s *Subscriber) Subscribe(ctx context.Context) (<-chan models.Change, error) {
	msgs := make(chan *nats.Msg, s.config.Buffer)
	sub, err := s.nc.ChanSubscribe(wildcard(s.config.SubjectPrefix), msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", wildcard(s.config.SubjectPrefix), err)
	}

	out := make(chan models.Change, s.config.Buffer)
	go func() {
		defer close(out)
		defer func() {
			if err := sub.Unsubscribe(); err != nil {
				log.Warn().Err(err).Msg("failed to unsubscribe")
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				change, err := decodeChange(msg.Subject, msg.Data)
				if err != nil {
					log.Error().Err(err).Str("subject", msg.Subject).Msg("dropping malformed change")
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	log.Info().Str("subject", wildcard(s.config.SubjectPrefix)).Msg("subscribed to round changes")
	return out, nil
}

// Source is a round change feed.
type Source interface {
	Subscribe(ctx context.Context) (<-chan models.Change, error)
}

// ChangePublisher accepts round changes for delivery.
type ChangePublisher interface {
	Publish(ctx context.Context, change models.Change) error
}

// Relayer copies changes from a source to a publisher and keeps counters for
// health checks.
type Relayer struct {
	src Source
	pub ChangePublisher

	mu         sync.Mutex
	running    bool
	relayed    uint64
	failed     uint64
	lastChange time.Time
}

func NewRelayer(src Source, pub ChangePublisher) *Relayer {
	return &Relayer{src: src, pub: pub}
}

// Relay copies every change from src to pub until ctx is done or src closes.
func Relay(ctx context.Context, src Source, pub ChangePublisher) error {
	return NewRelayer(src, pub).Run(ctx)
}

func (r *Relayer) Run(ctx context.Context) error {
	changes, err := r.src.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to source: %w", err)
	}

	r.setRunning(true)
	defer r.setRunning(false)

	for change := range changes {
		if err := r.pub.Publish(ctx, change); err != nil {
			r.record(false)
			log.Error().
				Err(err).
				Str("field", string(change.Field)).
				Str("date", change.Date).
				Msg("failed to relay change")
			continue
		}
		r.record(true)
		log.Debug().
			Str("field", string(change.Field)).
			Str("date", change.Date).
			Msg("relayed change")
	}
	return ctx.Err()
}

func (r *Relayer) setRunning(running bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = running
}

func (r *Relayer) record(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !ok {
		r.failed++
		return
	}
	r.relayed++
	r.lastChange = time.Now()
}

// Stats returns how many changes were relayed, how many failed and when the
// last one went out.
func (r *Relayer) Stats() (relayed, failed uint64, last time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.relayed, r.failed, r.lastChange
}

func (r *Relayer) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
