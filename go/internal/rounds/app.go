package rounds

import (
	"context"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/scoreboard/go/internal/laptime"
	"github.com/mcdev12/scoreboard/go/internal/models"
)

// App validates round edits before they reach the store.
type App struct {
	store Store
	clock clockwork.Clock
}

func NewApp(store Store, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{store: store, clock: clock}
}

// Today is the current round date in local time.
func (a *App) Today() string {
	return a.clock.Now().Format(DateLayout)
}

// AddTime records rawTime for name on date. Nothing is written unless the date,
// name and time are all valid.
func (a *App) AddTime(ctx context.Context, date, name, rawTime string) (*models.Round, error) {
	if !ValidDate(date) {
		return nil, invalid(ErrInvalidDate)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid(ErrEmptyName)
	}
	lt, err := laptime.Normalize(rawTime)
	if err != nil {
		return nil, invalid(err)
	}

	entry := models.TimeEntry{
		Name:      name,
		Time:      lt,
		Timestamp: a.clock.Now().UTC(),
	}
	return a.store.UpsertTime(ctx, date, entry)
}

// UpdateField sets the car or track label for date.
func (a *App) UpdateField(ctx context.Context, date string, field models.Field, value string) (*models.Round, error) {
	if !ValidDate(date) {
		return nil, invalid(ErrInvalidDate)
	}
	if field != models.FieldCar && field != models.FieldTrack {
		return nil, invalid(ErrInvalidField)
	}
	return a.store.UpdateField(ctx, date, field, value)
}

func (a *App) GetRound(ctx context.Context, date string) (*models.Round, error) {
	if !ValidDate(date) {
		return nil, invalid(ErrInvalidDate)
	}
	return a.store.GetRound(ctx, date)
}

func (a *App) ListRounds(ctx context.Context, r models.DateRange) ([]models.Round, error) {
	return a.store.ListRounds(ctx, r)
}

// ListRoundsWithToday lists every round newest first, prepending an unsaved empty
// round for today when none exists yet.
func (a *App) ListRoundsWithToday(ctx context.Context) ([]models.Round, error) {
	rounds, err := a.store.ListRounds(ctx, models.DateRange{})
	if err != nil {
		return nil, err
	}

	today := a.Today()
	for _, r := range rounds {
		if r.Date == today {
			return rounds, nil
		}
	}
	return append([]models.Round{*models.NewRound(today)}, rounds...), nil
}

func (a *App) Cars(ctx context.Context) ([]string, error) {
	return a.store.ListCars(ctx)
}

func (a *App) Tracks(ctx context.Context) ([]string, error) {
	return a.store.ListTracks(ctx)
}

func (a *App) Usernames(ctx context.Context) ([]string, error) {
	return a.store.ListUsernames(ctx)
}

// Subscribe exposes the store's change feed.
func (a *App) Subscribe(ctx context.Context) (<-chan models.Change, error) {
	return a.store.Subscribe(ctx)
}
