package rounds

import (
	"context"
	"time"

	"github.com/mcdev12/scoreboard/go/internal/models"
)

// DateLayout is the canonical round key format.
const DateLayout = "2006-01-02"

// Store persists rounds and reports changes to them.
type Store interface {
	GetRound(ctx context.Context, date string) (*models.Round, error)
	// ListRounds returns the rounds within r ordered by date descending.
	ListRounds(ctx context.Context, r models.DateRange) ([]models.Round, error)
	// UpsertTime replaces the driver's entry for date, creating the round if needed.
	UpsertTime(ctx context.Context, date string, entry models.TimeEntry) (*models.Round, error)
	// UpdateField sets car or track for date, creating the round if needed.
	UpdateField(ctx context.Context, date string, field models.Field, value string) (*models.Round, error)
	// Subscribe streams changes until ctx is done. The channel is closed afterwards.
	Subscribe(ctx context.Context) (<-chan models.Change, error)

	ListCars(ctx context.Context) ([]string, error)
	ListTracks(ctx context.Context) ([]string, error)
	ListUsernames(ctx context.Context) ([]string, error)

	Close() error
}

// ValidDate reports whether date is a real calendar date in DateLayout.
func ValidDate(date string) bool {
	t, err := time.Parse(DateLayout, date)
	return err == nil && t.Format(DateLayout) == date
}
