package rounds

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/scoreboard/go/internal/laptime"
	"github.com/mcdev12/scoreboard/go/internal/models"
)

func setupApp(t *testing.T) (*App, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 15, 10, 30, 0, 0, time.Local))
	return NewApp(setupBadgerStore(t), clock), clock
}

func TestAddTime(t *testing.T) {
	app, clock := setupApp(t)
	ctx := context.Background()

	round, err := app.AddTime(ctx, "2024-03-15", "  alice ", "1:5.2")
	require.NoError(t, err)
	require.Len(t, round.Times, 1)
	assert.Equal(t, "alice", round.Times[0].Name)
	assert.Equal(t, "1:05.299", round.Times[0].Time.String())
	assert.True(t, round.Times[0].Timestamp.Equal(clock.Now()))
}

func TestAddTimeRejectsBadInputWithoutWriting(t *testing.T) {
	app, _ := setupApp(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		date    string
		driver  string
		time    string
		wantErr error
	}{
		{name: "seconds out of bounds", date: "2024-03-15", driver: "alice", time: "0:60", wantErr: laptime.ErrSecondsOutOfBounds},
		{name: "minutes out of bounds", date: "2024-03-15", driver: "alice", time: "60:00", wantErr: laptime.ErrMinutesOutOfBounds},
		{name: "malformed time", date: "2024-03-15", driver: "alice", time: "fast", wantErr: laptime.ErrInvalidFormat},
		{name: "empty name", date: "2024-03-15", driver: "   ", time: "1:00", wantErr: ErrEmptyName},
		{name: "bad date", date: "2024-02-30", driver: "alice", time: "1:00", wantErr: ErrInvalidDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := app.AddTime(ctx, tt.date, tt.driver, tt.time)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := app.GetRound(ctx, "2024-03-15")
	assert.ErrorIs(t, err, ErrRoundNotFound)
}

func TestUpdateFieldValidation(t *testing.T) {
	app, _ := setupApp(t)
	ctx := context.Background()

	_, err := app.UpdateField(ctx, "15-03-2024", models.FieldCar, "red")
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = app.UpdateField(ctx, "2024-03-15", models.FieldTimes, "red")
	assert.ErrorIs(t, err, ErrInvalidField)

	round, err := app.UpdateField(ctx, "2024-03-15", models.FieldTrack, "north")
	require.NoError(t, err)
	assert.Equal(t, "north", round.Track)
}

func TestListRoundsWithToday(t *testing.T) {
	app, clock := setupApp(t)
	ctx := context.Background()

	rounds, err := app.ListRoundsWithToday(ctx)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, "2024-03-15", rounds[0].Date)
	assert.Empty(t, rounds[0].Times)

	_, err = app.UpdateField(ctx, "2024-03-14", models.FieldCar, "red")
	require.NoError(t, err)
	rounds, err = app.ListRoundsWithToday(ctx)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, "2024-03-15", rounds[0].Date)
	assert.Equal(t, "2024-03-14", rounds[1].Date)

	// the implicit round is never persisted
	_, err = app.GetRound(ctx, "2024-03-15")
	assert.ErrorIs(t, err, ErrRoundNotFound)

	clock.Advance(24 * time.Hour)
	_, err = app.AddTime(ctx, "2024-03-16", "alice", "1:00")
	require.NoError(t, err)
	rounds, err = app.ListRoundsWithToday(ctx)
	require.NoError(t, err)
	assert.Len(t, rounds, 2)
	assert.Equal(t, "2024-03-16", rounds[0].Date)
}

func TestValidDate(t *testing.T) {
	assert.True(t, ValidDate("2024-02-29"))
	assert.False(t, ValidDate("2023-02-29"))
	assert.False(t, ValidDate("2024-2-01"))
	assert.False(t, ValidDate(""))
}
