package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/scoreboard/go/internal/models"
)

type fakePinger struct{ err error }

func (p fakePinger) PingContext(ctx context.Context) error { return p.err }

type fakeConn bool

func (c fakeConn) IsConnected() bool { return bool(c) }

// blockingSource yields its changes and then stays open until ctx is done.
type blockingSource []models.Change

func (s blockingSource) Subscribe(ctx context.Context) (<-chan models.Change, error) {
	ch := make(chan models.Change, len(s))
	for _, c := range s {
		ch <- c
	}
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func TestRelayerStats(t *testing.T) {
	src := sliceSource{
		{Field: models.FieldCar, Date: "2024-05-01", Name: "red"},
		{Field: models.FieldCar, Date: "2024-05-02", Name: "blue"},
	}
	relay := NewRelayer(src, &recordingPublisher{failOn: "2024-05-02"})

	require.NoError(t, relay.Run(context.Background()))
	relayed, failed, last := relay.Stats()
	assert.Equal(t, uint64(1), relayed)
	assert.Equal(t, uint64(1), failed)
	assert.False(t, last.IsZero())
	assert.False(t, relay.Active())
}

func TestHealthChecker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay := NewRelayer(blockingSource{{Field: models.FieldTrack, Date: "2024-05-01", Name: "loop"}}, &recordingPublisher{})
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, relay.Active, time.Second, 10*time.Millisecond)

	healthy := NewHealthChecker(relay, fakePinger{}, fakeConn(true))
	require.Eventually(t, func() bool {
		return healthy.Check(ctx).ChangesRelayed == 1
	}, time.Second, 10*time.Millisecond)
	status := healthy.Check(ctx)
	assert.True(t, status.Healthy)
	assert.Empty(t, status.Errors)

	rec := httptest.NewRecorder()
	healthy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	sick := NewHealthChecker(relay, fakePinger{err: errors.New("refused")}, fakeConn(false))
	rec = httptest.NewRecorder()
	sick.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.DatabaseConnected)
	assert.False(t, body.NATSConnected)
	assert.Len(t, body.Errors, 2)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, relay.Active())
}
