package changefeed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/scoreboard/go/internal/models"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "scoreboard.rounds.car", subjectFor("scoreboard.rounds", models.FieldCar))
	assert.Equal(t, "scoreboard.rounds.times", subjectFor("scoreboard.rounds", models.FieldTimes))
	assert.Equal(t, "scoreboard.rounds.>", wildcard("scoreboard.rounds"))
}

func TestEncodeDecodeChange(t *testing.T) {
	change := models.Change{Field: models.FieldTrack, Date: "2024-05-01", Name: "north"}
	data, err := encodeChange(change)
	require.NoError(t, err)

	got, err := decodeChange("scoreboard.rounds.track", data)
	require.NoError(t, err)
	assert.Equal(t, change, got)

	_, err = decodeChange("scoreboard.rounds.car", data)
	assert.Error(t, err)

	_, err = decodeChange("scoreboard.rounds.track", []byte("{"))
	assert.Error(t, err)
}

type sliceSource []models.Change

func (s sliceSource) Subscribe(ctx context.Context) (<-chan models.Change, error) {
	ch := make(chan models.Change, len(s))
	for _, c := range s {
		ch <- c
	}
	close(ch)
	return ch, nil
}

type recordingPublisher struct {
	published []models.Change
	failOn    string
}

func (p *recordingPublisher) Publish(ctx context.Context, change models.Change) error {
	if change.Date == p.failOn {
		return errors.New("nats down")
	}
	p.published = append(p.published, change)
	return nil
}

func TestRelay(t *testing.T) {
	src := sliceSource{
		{Field: models.FieldCar, Date: "2024-05-01", Name: "red"},
		{Field: models.FieldCar, Date: "2024-05-02", Name: "blue"},
		{Field: models.FieldTimes, Date: "2024-05-03"},
	}
	pub := &recordingPublisher{failOn: "2024-05-02"}

	require.NoError(t, Relay(context.Background(), src, pub))
	require.Len(t, pub.published, 2)
	assert.Equal(t, "2024-05-01", pub.published[0].Date)
	assert.Equal(t, "2024-05-03", pub.published[1].Date)
}
