package scores

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/scoreboard/go/internal/models"
	"github.com/mcdev12/scoreboard/go/internal/rounds"
)

var (
	ErrInvalidResolution = errors.New("resolution must be one of day, week, month, all")
	ErrNegativeOffset    = errors.New("offset must be zero or positive")
)

// Resolution is the length of a scoring window.
type Resolution string

const (
	ResolutionDay   Resolution = "day"
	ResolutionWeek  Resolution = "week"
	ResolutionMonth Resolution = "month"
	ResolutionAll   Resolution = "all"
)

// fanOut is the set computed when no resolution is requested.
var fanOut = []Resolution{ResolutionAll, ResolutionMonth, ResolutionWeek, ResolutionDay}

// ParseResolution accepts the four resolutions and the empty string, which
// selects every resolution.
func ParseResolution(s string) (Resolution, error) {
	switch r := Resolution(s); r {
	case "", ResolutionDay, ResolutionWeek, ResolutionMonth, ResolutionAll:
		return r, nil
	default:
		return "", fmt.Errorf("%q: %w", s, ErrInvalidResolution)
	}
}

// Score is a driver's result for one round. Lower is better; the winner scores 0.
type Score struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
	Date  string `json:"date"`
}

// Standings are the scores for one window.
type Standings struct {
	Start  string             `json:"start,omitempty"`
	End    string             `json:"end,omitempty"`
	Rounds map[string][]Score `json:"rounds"`
	Totals map[string]int     `json:"totals"`
}

// RoundLister is what the engine needs from the round store.
type RoundLister interface {
	ListRounds(ctx context.Context, r models.DateRange) ([]models.Round, error)
}

type Engine struct {
	rounds RoundLister
	clock  clockwork.Clock
}

func NewEngine(lister RoundLister, clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{rounds: lister, clock: clock}
}

// ScoreRound ranks a round's entries fastest first. Equal times are ordered by
// driver name so the result is deterministic.
func ScoreRound(round models.Round) []Score {
	entries := append([]models.TimeEntry(nil), round.Times...)
	sort.SliceStable(entries, func(i, j int) bool {
		if c := entries[i].Time.Compare(entries[j].Time); c != 0 {
			return c < 0
		}
		return entries[i].Name < entries[j].Name
	})

	scores := make([]Score, 0, len(entries))
	for i, e := range entries {
		scores = append(scores, Score{Name: e.Name, Score: i, Date: round.Date})
	}
	return scores
}

// ScoreRange scores every round in r, keyed by date.
func (e *Engine) ScoreRange(ctx context.Context, r models.DateRange) (map[string][]Score, error) {
	list, err := e.rounds.ListRounds(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}

	out := make(map[string][]Score, len(list))
	for _, round := range list {
		out[round.Date] = ScoreRound(round)
	}
	return out, nil
}

// RangeFor returns the window for resolution shifted offset windows into the past.
// Weeks run Monday through Sunday.
func RangeFor(res Resolution, offset int, now time.Time) models.DateRange {
	y, m, d := now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	switch res {
	case ResolutionDay:
		date := day.AddDate(0, 0, -offset).Format(rounds.DateLayout)
		return models.DateRange{Start: date, End: date}
	case ResolutionWeek:
		day = day.AddDate(0, 0, -7*offset)
		monday := day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
		return models.DateRange{
			Start: monday.Format(rounds.DateLayout),
			End:   monday.AddDate(0, 0, 6).Format(rounds.DateLayout),
		}
	case ResolutionMonth:
		first := time.Date(y, m-time.Month(offset), 1, 0, 0, 0, 0, now.Location())
		return models.DateRange{
			Start: first.Format(rounds.DateLayout),
			End:   first.AddDate(0, 1, -1).Format(rounds.DateLayout),
		}
	default:
		return models.DateRange{}
	}
}

// GetScores computes the standings for res, or for every resolution when res is empty.
func (e *Engine) GetScores(ctx context.Context, res Resolution, offset int) (map[Resolution]Standings, error) {
	if offset < 0 {
		return nil, ErrNegativeOffset
	}

	resolutions := fanOut
	switch res {
	case ResolutionDay, ResolutionWeek, ResolutionMonth, ResolutionAll:
		resolutions = []Resolution{res}
	}

	now := e.clock.Now()
	out := make(map[Resolution]Standings, len(resolutions))
	for _, r := range resolutions {
		window := RangeFor(r, offset, now)
		scored, err := e.ScoreRange(ctx, window)
		if err != nil {
			return nil, fmt.Errorf("%s scores: %w", r, err)
		}
		out[r] = Standings{
			Start:  window.Start,
			End:    window.End,
			Rounds: scored,
			Totals: Totals(scored),
		}
	}
	return out, nil
}

// Totals sums each driver's scores across rounds.
func Totals(byDate map[string][]Score) map[string]int {
	totals := make(map[string]int)
	for _, scores := range byDate {
		for _, s := range scores {
			totals[s.Name] += s.Score
		}
	}
	return totals
}
