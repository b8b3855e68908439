package livesync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/scoreboard/go/internal/laptime"
	"github.com/mcdev12/scoreboard/go/internal/models"
	"github.com/mcdev12/scoreboard/go/internal/rounds"
)

type fieldUpdate struct {
	date  string
	field models.Field
	value string
}

type fakeApp struct {
	mu        sync.Mutex
	updates   []fieldUpdate
	updateErr error
	addErr    error
}

func (a *fakeApp) AddTime(ctx context.Context, date, name, rawTime string) (*models.Round, error) {
	if a.addErr != nil {
		return nil, a.addErr
	}
	lt, err := laptime.Normalize(rawTime)
	if err != nil {
		return nil, &rounds.ValidationError{Err: err}
	}
	r := models.NewRound(date)
	r.PutTime(models.TimeEntry{Name: name, Time: lt})
	return r, nil
}

func (a *fakeApp) UpdateField(ctx context.Context, date string, field models.Field, value string) (*models.Round, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updates = append(a.updates, fieldUpdate{date: date, field: field, value: value})
	if a.updateErr != nil {
		return nil, a.updateErr
	}
	r := models.NewRound(date)
	r.SetField(field, value)
	return r, nil
}

func (a *fakeApp) getUpdates() []fieldUpdate {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]fieldUpdate(nil), a.updates...)
}

type sentEvent struct {
	conn  *Connection
	event *Event
}

type fakeBroadcaster struct {
	mu        sync.Mutex
	broadcast []*Event
	sent      []sentEvent
}

func (b *fakeBroadcaster) Broadcast(event *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcast = append(b.broadcast, event)
}

func (b *fakeBroadcaster) SendTo(conn *Connection, event *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentEvent{conn: conn, event: event})
}

func (b *fakeBroadcaster) getBroadcast() []*Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Event(nil), b.broadcast...)
}

func (b *fakeBroadcaster) getSent() []sentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sentEvent(nil), b.sent...)
}

func newTestSync(t *testing.T) (*Sync, *fakeApp, *fakeBroadcaster, *clockwork.FakeClock) {
	t.Helper()
	app := &fakeApp{}
	hub := &fakeBroadcaster{}
	clock := clockwork.NewFakeClock()
	cfg := DefaultSyncConfig()
	cfg.Clock = clock
	cfg.Version = "abc123"
	s := NewSync(app, hub, cfg)
	t.Cleanup(s.Stop)
	return s, app, hub, clock
}

func TestSyncAddTimeBroadcastsTimes(t *testing.T) {
	s, _, hub, _ := newTestSync(t)

	_, err := s.AddTime(context.Background(), "2024-05-01", "alice", "1:5")
	require.NoError(t, err)

	events := hub.getBroadcast()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeTimesChanged, events[0].Type)

	var times TimesChangedPayload
	require.NoError(t, json.Unmarshal(events[0].Data, &times))
	assert.Equal(t, "2024-05-01", times.Date)
	require.Len(t, times.Times, 1)
	assert.Equal(t, "1:05.999", times.Times[0].Time.String())
}

func TestSyncAddTimeFailureDoesNotBroadcast(t *testing.T) {
	s, app, hub, _ := newTestSync(t)

	_, err := s.AddTime(context.Background(), "2024-05-01", "alice", "1:61")
	assert.True(t, rounds.IsValidation(err))

	app.addErr = &rounds.StoreError{Op: "upsert time", Err: errors.New("db down")}
	_, err = s.AddTime(context.Background(), "2024-05-01", "alice", "1:01")
	assert.True(t, rounds.IsStore(err))

	assert.Empty(t, hub.getBroadcast())
}

func TestSyncDebouncesCarEdits(t *testing.T) {
	s, app, hub, clock := newTestSync(t)

	require.NoError(t, s.ChangeCarName("2024-05-01", "r"))
	require.NoError(t, s.ChangeCarName("2024-05-01", "red"))
	require.NoError(t, s.ChangeTrackName("2024-05-01", "north"))
	assert.Empty(t, app.getUpdates())

	clock.Advance(500 * time.Millisecond)

	require.Eventually(t, func() bool { return len(hub.getBroadcast()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []fieldUpdate{
		{date: "2024-05-01", field: models.FieldCar, value: "red"},
		{date: "2024-05-01", field: models.FieldTrack, value: "north"},
	}, app.getUpdates())

	byType := map[EventType]NameChangedPayload{}
	for _, ev := range hub.getBroadcast() {
		var p NameChangedPayload
		require.NoError(t, json.Unmarshal(ev.Data, &p))
		byType[ev.Type] = p
	}
	assert.Equal(t, NameChangedPayload{Date: "2024-05-01", Name: "red"}, byType[EventTypeCarNameChanged])
	assert.Equal(t, NameChangedPayload{Date: "2024-05-01", Name: "north"}, byType[EventTypeTrackNameChanged])
}

func TestSyncFlushFailureIsDropped(t *testing.T) {
	s, app, hub, clock := newTestSync(t)
	app.updateErr = &rounds.StoreError{Op: "update field", Err: errors.New("db down")}

	require.NoError(t, s.ChangeTrackName("2024-05-01", "north"))
	clock.Advance(500 * time.Millisecond)

	require.Eventually(t, func() bool { return len(app.getUpdates()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return len(hub.getBroadcast()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestSyncRejectsBadDate(t *testing.T) {
	s, _, _, _ := newTestSync(t)

	err := s.ChangeCarName("tomorrow", "red")
	assert.ErrorIs(t, err, rounds.ErrInvalidDate)
	assert.True(t, rounds.IsValidation(err))
}

func TestSyncHandleMessage(t *testing.T) {
	s, _, hub, _ := newTestSync(t)
	conn := &Connection{ID: "c1", UserID: "User 127.0.0.1"}

	s.HandleMessage(context.Background(), conn, ClientMessage{
		Type: EventTypeTimeAdded,
		Data: json.RawMessage(`{"date":"2024-05-01","name":"alice","time":"0:99"}`),
	})
	s.HandleMessage(context.Background(), conn, ClientMessage{Type: "delete round", Data: json.RawMessage(`{}`)})
	s.HandleMessage(context.Background(), conn, ClientMessage{Type: EventTypeCarNameChanged, Data: json.RawMessage(`[1,2]`)})

	sent := hub.getSent()
	require.Len(t, sent, 3)
	for _, se := range sent {
		assert.Same(t, conn, se.conn)
		assert.Equal(t, EventTypeError, se.event.Type)
	}
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(sent[0].event.Data, &p))
	assert.Equal(t, laptime.ErrSecondsOutOfBounds.Error(), p.Message)
	assert.Empty(t, hub.getBroadcast())

	s.HandleMessage(context.Background(), conn, ClientMessage{
		Type: EventTypeTimeAdded,
		Data: json.RawMessage(`{"date":"2024-05-01","name":"alice","time":"0:59"}`),
	})
	assert.Len(t, hub.getBroadcast(), 1)
	assert.Len(t, hub.getSent(), 3)
}

func TestSyncOnConnectSendsVersion(t *testing.T) {
	s, _, hub, _ := newTestSync(t)
	conn := &Connection{ID: "c1"}

	greeting := s.OnConnect(conn)

	require.Len(t, greeting, 1)
	assert.Equal(t, EventTypeVersion, greeting[0].Type)
	assert.JSONEq(t, `{"version":"abc123"}`, string(greeting[0].Data))
	assert.Empty(t, hub.getSent())
	assert.Empty(t, hub.getBroadcast())
}

type chanSource struct {
	ch chan models.Change
}

func (c chanSource) Subscribe(ctx context.Context) (<-chan models.Change, error) {
	return c.ch, nil
}

func TestSyncRunForwardsChanges(t *testing.T) {
	s, _, hub, _ := newTestSync(t)
	src := chanSource{ch: make(chan models.Change, 3)}
	src.ch <- models.Change{Field: models.FieldCar, Date: "2024-05-01", Name: "red"}
	src.ch <- models.Change{Field: models.FieldTimes, Date: "2024-05-01"}
	src.ch <- models.Change{Field: "colour", Date: "2024-05-01"}
	close(src.ch)

	require.NoError(t, s.Run(context.Background(), src))

	events := hub.getBroadcast()
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeCarNameChanged, events[0].Type)
	assert.Equal(t, EventTypeTimesChanged, events[1].Type)
	assert.JSONEq(t, `{"date":"2024-05-01","times":[]}`, string(events[1].Data))
}
