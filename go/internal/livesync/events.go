package livesync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/scoreboard/go/internal/models"
)

// Event is the frame sent to every client
type Event struct {
	ID        string          `json:"id"`        // Event UUID
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// ClientMessage is a frame received from a client
type ClientMessage struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EventType names a frame on the wire
type EventType string

const (
	EventTypeVersion          EventType = "version"
	EventTypeCarNameChanged   EventType = "car name changed"
	EventTypeTrackNameChanged EventType = "track name changed"
	EventTypeTimesChanged     EventType = "times changed"
	EventTypeTimeAdded        EventType = "time added"
	EventTypeError            EventType = "error"
)

type VersionPayload struct {
	Version string `json:"version"`
}

// NameChangedPayload carries a car or track label
type NameChangedPayload struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

type TimesChangedPayload struct {
	Date  string             `json:"date"`
	Times []models.TimeEntry `json:"times"`
}

type TimeAddedPayload struct {
	Date string `json:"date"`
	Name string `json:"name"`
	Time string `json:"time"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// NewEvent wraps payload in a fresh frame
func NewEvent(eventType EventType, payload any, now time.Time) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: now.UTC(),
		Data:      data,
	}, nil
}

// ParseEventPayload decodes the data of a frame a client may send. Server to
// client types are rejected.
func ParseEventPayload(eventType EventType, data json.RawMessage) (any, error) {
	switch eventType {
	case EventTypeCarNameChanged, EventTypeTrackNameChanged:
		var payload NameChangedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeTimeAdded:
		var payload TimeAddedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("unsupported client event type %q", eventType)
	}
}

// eventForChange maps a store change onto its broadcast frame.
func eventForChange(change models.Change, now time.Time) (*Event, error) {
	switch change.Field {
	case models.FieldCar:
		return NewEvent(EventTypeCarNameChanged, NameChangedPayload{Date: change.Date, Name: change.Name}, now)
	case models.FieldTrack:
		return NewEvent(EventTypeTrackNameChanged, NameChangedPayload{Date: change.Date, Name: change.Name}, now)
	case models.FieldTimes:
		times := change.Times
		if times == nil {
			times = []models.TimeEntry{}
		}
		return NewEvent(EventTypeTimesChanged, TimesChangedPayload{Date: change.Date, Times: times}, now)
	default:
		return nil, fmt.Errorf("unknown change field %q", change.Field)
	}
}
