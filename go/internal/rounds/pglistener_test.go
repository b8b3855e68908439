package rounds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/scoreboard/go/internal/models"
)

func TestParseNotification(t *testing.T) {
	n, err := parseNotification(`{"date":"2024-05-01","fields":["car","times"]}`)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", n.Date)
	assert.Equal(t, []models.Field{models.FieldCar, models.FieldTimes}, n.Fields)

	_, err = parseNotification(`not json`)
	assert.Error(t, err)

	_, err = parseNotification(`{"date":"yesterday","fields":["car"]}`)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestChangesFor(t *testing.T) {
	round := models.NewRound("2024-05-01")
	round.Car = "red"
	round.Track = "north"

	changes := changesFor(round, []models.Field{models.FieldTrack, "colour", models.FieldCar})
	require.Len(t, changes, 2)
	assert.Equal(t, models.Change{Field: models.FieldTrack, Date: "2024-05-01", Name: "north"}, changes[0])
	assert.Equal(t, models.Change{Field: models.FieldCar, Date: "2024-05-01", Name: "red"}, changes[1])
}

func TestNewChangeListenerRequiresURL(t *testing.T) {
	_, err := NewChangeListener(nil, DefaultListenerConfig())
	assert.Error(t, err)
}
