package rounds

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/scoreboard/go/internal/models"
	"github.com/mcdev12/scoreboard/go/internal/sqlutil"
)

//go:embed schema.sql
var schemaSQL string

const roundColumns = `date, car, track, times`

const getRoundSQL = `SELECT ` + roundColumns + ` FROM rounds WHERE date = $1`

const listRoundsSQL = `SELECT ` + roundColumns + ` FROM rounds
WHERE ($1 = '' OR date >= $1) AND ($2 = '' OR date <= $2)
ORDER BY date DESC`

// Drops the driver's previous entry and appends the new one in a single statement.
const upsertTimeSQL = `INSERT INTO rounds (date, times) VALUES ($1, jsonb_build_array($2::jsonb))
ON CONFLICT (date) DO UPDATE SET
    times = COALESCE(
        (SELECT jsonb_agg(t) FROM jsonb_array_elements(rounds.times) t WHERE t->>'name' <> $3::text),
        '[]'::jsonb
    ) || jsonb_build_array($2::jsonb),
    updated_at = now()
RETURNING ` + roundColumns

const updateFieldSQL = `INSERT INTO rounds (date, %[1]s) VALUES ($1, $2)
ON CONFLICT (date) DO UPDATE SET %[1]s = EXCLUDED.%[1]s, updated_at = now()
RETURNING ` + roundColumns

const (
	listCarsSQL      = `SELECT DISTINCT car FROM rounds WHERE car <> '' ORDER BY car`
	listTracksSQL    = `SELECT DISTINCT track FROM rounds WHERE track <> '' ORDER BY track`
	listUsernamesSQL = `SELECT DISTINCT t->>'name' AS name FROM rounds, jsonb_array_elements(rounds.times) t
WHERE t->>'name' <> '' ORDER BY name`
)

// fieldColumns whitelists the columns UpdateField may write.
var fieldColumns = map[models.Field]string{
	models.FieldCar:   "car",
	models.FieldTrack: "track",
}

// updateFieldQuery formats updateFieldSQL for a whitelisted column.
func updateFieldQuery(field models.Field) (string, error) {
	column, ok := fieldColumns[field]
	if !ok {
		return "", invalid(ErrInvalidField)
	}
	return fmt.Sprintf(updateFieldSQL, column), nil
}

// PostgresStore keeps rounds in a Postgres table and streams changes through
// LISTEN/NOTIFY.
type PostgresStore struct {
	db       *sql.DB
	listener ListenerConfig
}

// NewPostgresStore wraps an open database. listener.DatabaseURL must be set for Subscribe.
func NewPostgresStore(db *sql.DB, listener ListenerConfig) *PostgresStore {
	return &PostgresStore{db: db, listener: listener}
}

// EnsureSchema creates the rounds table and its change trigger.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	return sqlutil.RunTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRound(row rowScanner) (*models.Round, error) {
	var (
		round models.Round
		times pqtype.NullRawMessage
	)
	if err := row.Scan(&round.Date, &round.Car, &round.Track, &times); err != nil {
		return nil, err
	}
	round.Times = []models.TimeEntry{}
	if err := sqlutil.FromNullRawMessage(times, &round.Times); err != nil {
		return nil, fmt.Errorf("failed to decode times for %s: %w", round.Date, err)
	}
	return &round, nil
}

func (s *PostgresStore) GetRound(ctx context.Context, date string) (*models.Round, error) {
	round, err := scanRound(s.db.QueryRowContext(ctx, getRoundSQL, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, storeErr("get round", err)
	}
	return round, nil
}

func (s *PostgresStore) ListRounds(ctx context.Context, r models.DateRange) ([]models.Round, error) {
	rows, err := s.db.QueryContext(ctx, listRoundsSQL, r.Start, r.End)
	if err != nil {
		return nil, storeErr("list rounds", err)
	}
	defer rows.Close()

	rounds := []models.Round{}
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, storeErr("list rounds", err)
		}
		rounds = append(rounds, *round)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list rounds", err)
	}
	return rounds, nil
}

func (s *PostgresStore) UpsertTime(ctx context.Context, date string, entry models.TimeEntry) (*models.Round, error) {
	payload, err := sqlutil.ToNullRawMessage(entry)
	if err != nil {
		return nil, storeErr("upsert time", err)
	}

	round, err := scanRound(s.db.QueryRowContext(ctx, upsertTimeSQL, date, payload, entry.Name))
	if err != nil {
		return nil, storeErr("upsert time", err)
	}
	return round, nil
}

func (s *PostgresStore) UpdateField(ctx context.Context, date string, field models.Field, value string) (*models.Round, error) {
	query, err := updateFieldQuery(field)
	if err != nil {
		return nil, err
	}
	round, err := scanRound(s.db.QueryRowContext(ctx, query, date, value))
	if err != nil {
		return nil, storeErr("update field", err)
	}
	return round, nil
}

// Subscribe opens a dedicated LISTEN connection for the lifetime of ctx.
func (s *PostgresStore) Subscribe(ctx context.Context) (<-chan models.Change, error) {
	l, err := NewChangeListener(s, s.listener)
	if err != nil {
		return nil, storeErr("subscribe", err)
	}
	go func() {
		if err := l.Start(ctx); err != nil {
			l.logger.Error().Err(err).Msg("change listener stopped")
		}
	}()
	return l.Changes(), nil
}

func (s *PostgresStore) ListCars(ctx context.Context) ([]string, error) {
	return s.listStrings(ctx, "list cars", listCarsSQL)
}

func (s *PostgresStore) ListTracks(ctx context.Context) ([]string, error) {
	return s.listStrings(ctx, "list tracks", listTracksSQL)
}

func (s *PostgresStore) ListUsernames(ctx context.Context) ([]string, error) {
	return s.listStrings(ctx, "list usernames", listUsernamesSQL)
}

func (s *PostgresStore) listStrings(ctx context.Context, op, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, storeErr(op, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
