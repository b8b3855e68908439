package scores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/scoreboard/go/internal/laptime"
	"github.com/mcdev12/scoreboard/go/internal/models"
	"github.com/mcdev12/scoreboard/go/internal/rounds"
)

type fakeRounds struct {
	rounds []models.Round
	err    error
	calls  []models.DateRange
}

func (f *fakeRounds) ListRounds(ctx context.Context, r models.DateRange) ([]models.Round, error) {
	f.calls = append(f.calls, r)
	if f.err != nil {
		return nil, f.err
	}
	out := []models.Round{}
	for _, round := range f.rounds {
		if r.Contains(round.Date) {
			out = append(out, round)
		}
	}
	return out, nil
}

func round(t *testing.T, date string, times map[string]string) models.Round {
	t.Helper()
	r := models.NewRound(date)
	for name, raw := range times {
		lt, err := laptime.Normalize(raw)
		require.NoError(t, err)
		r.PutTime(models.TimeEntry{Name: name, Time: lt})
	}
	return *r
}

func TestScoreRound(t *testing.T) {
	r := round(t, "2024-05-01", map[string]string{
		"carol": "1:10.000",
		"alice": "1:05.500",
		"bob":   "1:05",
	})

	assert.Equal(t, []Score{
		{Name: "alice", Score: 0, Date: "2024-05-01"},
		{Name: "bob", Score: 1, Date: "2024-05-01"},
		{Name: "carol", Score: 2, Date: "2024-05-01"},
	}, ScoreRound(r))
}

func TestScoreRoundTiesBreakByName(t *testing.T) {
	r := round(t, "2024-05-01", map[string]string{
		"zed":  "1:00.100",
		"amy":  "1:00.100",
		"mike": "0:59.000",
	})

	scores := ScoreRound(r)
	require.Len(t, scores, 3)
	assert.Equal(t, "mike", scores[0].Name)
	assert.Equal(t, "amy", scores[1].Name)
	assert.Equal(t, "zed", scores[2].Name)
}

func TestScoreRoundEmpty(t *testing.T) {
	assert.Empty(t, ScoreRound(*models.NewRound("2024-05-01")))
}

func TestRangeFor(t *testing.T) {
	// Wednesday
	now := time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		res    Resolution
		offset int
		want   models.DateRange
	}{
		{name: "today", res: ResolutionDay, offset: 0, want: models.DateRange{Start: "2024-03-13", End: "2024-03-13"}},
		{name: "day across month", res: ResolutionDay, offset: 13, want: models.DateRange{Start: "2024-02-29", End: "2024-02-29"}},
		{name: "this week", res: ResolutionWeek, offset: 0, want: models.DateRange{Start: "2024-03-11", End: "2024-03-17"}},
		{name: "last week", res: ResolutionWeek, offset: 1, want: models.DateRange{Start: "2024-03-04", End: "2024-03-10"}},
		{name: "this month", res: ResolutionMonth, offset: 0, want: models.DateRange{Start: "2024-03-01", End: "2024-03-31"}},
		{name: "leap february", res: ResolutionMonth, offset: 1, want: models.DateRange{Start: "2024-02-01", End: "2024-02-29"}},
		{name: "previous year", res: ResolutionMonth, offset: 3, want: models.DateRange{Start: "2023-12-01", End: "2023-12-31"}},
		{name: "all", res: ResolutionAll, offset: 4, want: models.DateRange{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RangeFor(tt.res, tt.offset, now))
		})
	}
}

func TestRangeForWeekOnSunday(t *testing.T) {
	sunday := time.Date(2024, 3, 17, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, models.DateRange{Start: "2024-03-11", End: "2024-03-17"}, RangeFor(ResolutionWeek, 0, sunday))

	monday := time.Date(2024, 3, 18, 0, 30, 0, 0, time.UTC)
	assert.Equal(t, models.DateRange{Start: "2024-03-18", End: "2024-03-24"}, RangeFor(ResolutionWeek, 0, monday))
}

func TestParseResolution(t *testing.T) {
	for _, s := range []string{"", "day", "week", "month", "all"} {
		res, err := ParseResolution(s)
		require.NoError(t, err)
		assert.Equal(t, Resolution(s), res)
	}

	_, err := ParseResolution("year")
	assert.ErrorIs(t, err, ErrInvalidResolution)
}

func newTestEngine(t *testing.T) (*Engine, *fakeRounds) {
	t.Helper()
	rounds := &fakeRounds{rounds: []models.Round{
		round(t, "2024-03-13", map[string]string{"alice": "1:00", "bob": "1:01", "carol": "1:02"}),
		round(t, "2024-03-12", map[string]string{"alice": "1:03", "bob": "1:01"}),
		round(t, "2024-03-01", map[string]string{"carol": "0:58", "alice": "0:59"}),
		round(t, "2024-02-20", map[string]string{"bob": "0:50", "alice": "0:51"}),
	}}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC))
	return NewEngine(rounds, clock), rounds
}

func TestGetScoresFanOut(t *testing.T) {
	engine, _ := newTestEngine(t)

	got, err := engine.GetScores(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Len(t, got[ResolutionDay].Rounds, 1)
	assert.Equal(t, map[string]int{"alice": 0, "bob": 1, "carol": 2}, got[ResolutionDay].Totals)

	assert.Equal(t, "2024-03-11", got[ResolutionWeek].Start)
	assert.Len(t, got[ResolutionWeek].Rounds, 2)
	assert.Equal(t, map[string]int{"alice": 1, "bob": 1, "carol": 2}, got[ResolutionWeek].Totals)

	assert.Len(t, got[ResolutionMonth].Rounds, 3)
	assert.Equal(t, map[string]int{"alice": 2, "bob": 1, "carol": 2}, got[ResolutionMonth].Totals)

	assert.Len(t, got[ResolutionAll].Rounds, 4)
	assert.Equal(t, map[string]int{"alice": 3, "bob": 1, "carol": 2}, got[ResolutionAll].Totals)
	assert.Empty(t, got[ResolutionAll].Start)
}

func TestGetScoresSingleResolution(t *testing.T) {
	engine, rounds := newTestEngine(t)

	got, err := engine.GetScores(context.Background(), ResolutionMonth, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-02-01", got[ResolutionMonth].Start)
	assert.Equal(t, map[string]int{"bob": 0, "alice": 1}, got[ResolutionMonth].Totals)
	assert.Equal(t, []models.DateRange{{Start: "2024-02-01", End: "2024-02-29"}}, rounds.calls)
}

func TestGetScoresErrors(t *testing.T) {
	engine, rounds := newTestEngine(t)

	_, err := engine.GetScores(context.Background(), ResolutionDay, -1)
	assert.ErrorIs(t, err, ErrNegativeOffset)

	boom := errors.New("boom")
	rounds.err = boom
	_, err = engine.GetScores(context.Background(), ResolutionDay, 0)
	assert.ErrorIs(t, err, boom)
}

func TestTotals(t *testing.T) {
	assert.Equal(t, map[string]int{}, Totals(nil))
	assert.Equal(t, map[string]int{"a": 3, "b": 1}, Totals(map[string][]Score{
		"2024-01-01": {{Name: "a", Score: 1}, {Name: "b", Score: 0}},
		"2024-01-02": {{Name: "b", Score: 1}, {Name: "a", Score: 2}},
	}))
}

func TestRangeForProducesStoreDates(t *testing.T) {
	now := time.Date(2024, 1, 3, 15, 0, 0, 0, time.UTC)

	for _, res := range []Resolution{ResolutionDay, ResolutionWeek, ResolutionMonth} {
		for offset := 0; offset < 14; offset++ {
			r := RangeFor(res, offset, now)
			assert.True(t, rounds.ValidDate(r.Start), "%s/%d start %q", res, offset, r.Start)
			assert.True(t, rounds.ValidDate(r.End), "%s/%d end %q", res, offset, r.End)
			assert.LessOrEqual(t, r.Start, r.End)
		}
	}
}
