package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/scoreboard/go/internal/dbconfig"
	"github.com/mcdev12/scoreboard/go/internal/models"
	"github.com/mcdev12/scoreboard/go/internal/rounds"
)

const defaultSnapshot = "go/internal/assets/rounds.json"

// loadRounds reads a JSON snapshot and rejects rounds with a malformed date.
func loadRounds(path string) ([]models.Round, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read JSON: %w", err)
	}

	var list []models.Round
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}

	for _, r := range list {
		if !rounds.ValidDate(r.Date) {
			return nil, fmt.Errorf("round %q: %w", r.Date, rounds.ErrInvalidDate)
		}
	}
	return list, nil
}

func timesJSON(r models.Round) ([]byte, error) {
	times := r.Times
	if times == nil {
		times = []models.TimeEntry{}
	}
	return json.Marshal(times)
}

func main() {
	path := defaultSnapshot
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the JSON snapshot
	list, err := loadRounds(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert and count
	var (
		total    = len(list)
		inserted int
		skipped  int
		errs     int
	)

	for _, r := range list {
		times, err := timesJSON(r)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error encoding times for %s: %v\n", r.Date, err)
			errs++
			continue
		}

		cmdTag, err := pool.Exec(context.Background(), `
            INSERT INTO rounds (date, car, track, times)
            VALUES ($1, $2, $3, $4::jsonb)
            ON CONFLICT (date) DO NOTHING
        `,
			r.Date, r.Car, r.Track, string(times),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting round %s: %v\n", r.Date, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Rounds seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}
