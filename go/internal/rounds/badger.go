package rounds

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mcdev12/scoreboard/go/internal/laptime"
	"github.com/mcdev12/scoreboard/go/internal/models"
)

var errStoreClosed = errors.New("store closed")

const (
	roundPrefix      = "round/"
	maxTxnRetries    = 5
	defaultSubBuffer = 64
)

// BadgerConfig configures the embedded store.
type BadgerConfig struct {
	Path      string
	InMemory  bool
	SubBuffer int
	Logger    *zerolog.Logger
}

// BadgerStore keeps rounds in an embedded Badger database and fans changes out to
// in-process subscribers.
type BadgerStore struct {
	db     *badger.DB
	logger zerolog.Logger
	buffer int

	// serializes read-modify-write so changes are published in commit order
	writeMu sync.Mutex

	subMu  sync.RWMutex
	subs   map[chan models.Change]struct{}
	closed bool
	done   chan struct{}
}

type roundRecord struct {
	Date  string       `msgpack:"date"`
	Car   string       `msgpack:"car"`
	Track string       `msgpack:"track"`
	Times []timeRecord `msgpack:"times"`
}

type timeRecord struct {
	Name      string    `msgpack:"name"`
	Time      string    `msgpack:"time"`
	Timestamp time.Time `msgpack:"timestamp"`
}

// NewBadgerStore opens the database described by cfg.
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	buffer := cfg.SubBuffer
	if buffer <= 0 {
		buffer = defaultSubBuffer
	}

	return &BadgerStore{
		db:     db,
		logger: logger.With().Str("store", "badger").Logger(),
		buffer: buffer,
		subs:   make(map[chan models.Change]struct{}),
		done:   make(chan struct{}),
	}, nil
}

func roundKey(date string) []byte {
	return []byte(roundPrefix + date)
}

func encodeRound(r *models.Round) ([]byte, error) {
	rec := roundRecord{Date: r.Date, Car: r.Car, Track: r.Track, Times: make([]timeRecord, 0, len(r.Times))}
	for _, t := range r.Times {
		rec.Times = append(rec.Times, timeRecord{Name: t.Name, Time: t.Time.String(), Timestamp: t.Timestamp})
	}
	buf, err := msgpack.Marshal(&rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal round: %w", err)
	}
	return buf, nil
}

func decodeRound(val []byte) (*models.Round, error) {
	var rec roundRecord
	if err := msgpack.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal round: %w", err)
	}

	round := models.NewRound(rec.Date)
	round.Car = rec.Car
	round.Track = rec.Track
	for _, t := range rec.Times {
		lt, err := laptime.Normalize(t.Time)
		if err != nil {
			return nil, fmt.Errorf("stored time for %s: %w", t.Name, err)
		}
		round.Times = append(round.Times, models.TimeEntry{Name: t.Name, Time: lt, Timestamp: t.Timestamp.UTC()})
	}
	return round, nil
}

func getRound(txn *badger.Txn, date string) (*models.Round, error) {
	item, err := txn.Get(roundKey(date))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrRoundNotFound
		}
		return nil, err
	}

	var round *models.Round
	err = item.Value(func(val []byte) error {
		round, err = decodeRound(val)
		return err
	})
	return round, err
}

func (s *BadgerStore) GetRound(ctx context.Context, date string) (*models.Round, error) {
	var round *models.Round
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		round, err = getRound(txn, date)
		return err
	})
	if errors.Is(err, ErrRoundNotFound) {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, storeErr("get round", err)
	}
	return round, nil
}

func (s *BadgerStore) ListRounds(ctx context.Context, r models.DateRange) ([]models.Round, error) {
	rounds := []models.Round{}
	err := s.eachRound(r, func(round *models.Round) {
		rounds = append(rounds, *round)
	})
	if err != nil {
		return nil, storeErr("list rounds", err)
	}
	return rounds, nil
}

// eachRound visits the rounds within r newest first.
func (s *BadgerStore) eachRound(r models.DateRange, fn func(*models.Round)) error {
	prefix := []byte(roundPrefix)
	seek := append([]byte(roundPrefix), 0xff)
	if r.End != "" {
		seek = roundKey(r.End)
	}

	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			date := string(it.Item().Key()[len(prefix):])
			if r.Start != "" && date < r.Start {
				break
			}
			if !r.Contains(date) {
				continue
			}

			var round *models.Round
			if err := it.Item().Value(func(val []byte) error {
				var err error
				round, err = decodeRound(val)
				return err
			}); err != nil {
				return err
			}
			fn(round)
		}
		return nil
	})
}

func (s *BadgerStore) UpsertTime(ctx context.Context, date string, entry models.TimeEntry) (*models.Round, error) {
	round, err := s.mutate(date, func(r *models.Round) {
		r.PutTime(entry)
	})
	if err != nil {
		return nil, storeErr("upsert time", err)
	}
	return round, nil
}

func (s *BadgerStore) UpdateField(ctx context.Context, date string, field models.Field, value string) (*models.Round, error) {
	if field != models.FieldCar && field != models.FieldTrack {
		return nil, invalid(ErrInvalidField)
	}
	round, err := s.mutate(date, func(r *models.Round) {
		r.SetField(field, value)
	})
	if err != nil {
		return nil, storeErr("update field", err)
	}
	return round, nil
}

// mutate applies fn to the round for date inside a single transaction and
// publishes whatever actually changed.
func (s *BadgerStore) mutate(date string, fn func(*models.Round)) (*models.Round, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var before, after *models.Round
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			current, err := getRound(txn, date)
			switch {
			case errors.Is(err, ErrRoundNotFound):
				before = nil
				current = models.NewRound(date)
			case err != nil:
				return err
			default:
				before = current.Copy()
			}

			fn(current)
			buf, err := encodeRound(current)
			if err != nil {
				return err
			}
			after = current
			return txn.Set(roundKey(date), buf)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		s.logger.Debug().Str("date", date).Int("attempt", attempt+1).Msg("transaction conflict, retrying")
	}
	if err != nil {
		return nil, err
	}

	for _, change := range models.Diff(before, after) {
		s.publish(change)
	}
	return after.Copy(), nil
}

func (s *BadgerStore) Subscribe(ctx context.Context) (<-chan models.Change, error) {
	ch := make(chan models.Change, s.buffer)

	s.subMu.Lock()
	if s.closed {
		s.subMu.Unlock()
		return nil, storeErr("subscribe", errStoreClosed)
	}
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.unsubscribe(ch)
	}()

	return ch, nil
}

func (s *BadgerStore) unsubscribe(ch chan models.Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

func (s *BadgerStore) publish(change models.Change) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for ch := range s.subs {
		select {
		case ch <- change:
		default:
			s.logger.Warn().
				Str("field", string(change.Field)).
				Str("date", change.Date).
				Msg("subscriber buffer full, dropping change")
		}
	}
}

func (s *BadgerStore) ListCars(ctx context.Context) ([]string, error) {
	return s.distinct("list cars", func(r *models.Round) []string { return []string{r.Car} })
}

func (s *BadgerStore) ListTracks(ctx context.Context) ([]string, error) {
	return s.distinct("list tracks", func(r *models.Round) []string { return []string{r.Track} })
}

func (s *BadgerStore) ListUsernames(ctx context.Context) ([]string, error) {
	return s.distinct("list usernames", func(r *models.Round) []string {
		names := make([]string, 0, len(r.Times))
		for _, t := range r.Times {
			names = append(names, t.Name)
		}
		return names
	})
}

func (s *BadgerStore) distinct(op string, values func(*models.Round) []string) ([]string, error) {
	seen := make(map[string]struct{})
	err := s.eachRound(models.DateRange{}, func(r *models.Round) {
		for _, v := range values(r) {
			if v != "" {
				seen[v] = struct{}{}
			}
		}
	})
	if err != nil {
		return nil, storeErr(op, err)
	}

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// Close stops every subscription and closes the database.
func (s *BadgerStore) Close() error {
	s.subMu.Lock()
	if s.closed {
		s.subMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
	s.subMu.Unlock()

	return s.db.Close()
}
