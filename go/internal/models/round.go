package models

import (
	"time"

	"github.com/mcdev12/scoreboard/go/internal/laptime"
)

// Field identifies a mutable part of a round.
type Field string

const (
	FieldCar   Field = "car"
	FieldTrack Field = "track"
	FieldTimes Field = "times"
)

// TimeEntry is one driver's recorded lap time for a round.
type TimeEntry struct {
	Name      string          `json:"name"`
	Time      laptime.LapTime `json:"time"`
	Timestamp time.Time       `json:"timestamp"`
}

// Round is the record of a single racing day. Date (YYYY-MM-DD) is the key.
type Round struct {
	Date  string      `json:"date"`
	Car   string      `json:"car"`
	Track string      `json:"track"`
	Times []TimeEntry `json:"times"`
}

// NewRound returns a round with default car, track and times.
func NewRound(date string) *Round {
	return &Round{
		Date:  date,
		Times: []TimeEntry{},
	}
}

// Copy returns a deep copy of the round.
func (r *Round) Copy() *Round {
	if r == nil {
		return nil
	}
	times := make([]TimeEntry, len(r.Times))
	copy(times, r.Times)
	return &Round{
		Date:  r.Date,
		Car:   r.Car,
		Track: r.Track,
		Times: times,
	}
}

// PutTime replaces the entry for entry.Name, keeping every other driver's entry.
func (r *Round) PutTime(entry TimeEntry) {
	times := make([]TimeEntry, 0, len(r.Times)+1)
	for _, t := range r.Times {
		if t.Name != entry.Name {
			times = append(times, t)
		}
	}
	r.Times = append(times, entry)
}

// SetField sets car or track. It reports false for any other field.
func (r *Round) SetField(field Field, value string) bool {
	switch field {
	case FieldCar:
		r.Car = value
	case FieldTrack:
		r.Track = value
	default:
		return false
	}
	return true
}

// Change is a single observed modification of a round. Name carries the new
// car or track label, Times the full entry list for FieldTimes.
type Change struct {
	Field Field       `json:"field"`
	Date  string      `json:"date"`
	Name  string      `json:"name,omitempty"`
	Times []TimeEntry `json:"times,omitempty"`
}

// ChangeFor builds the change carrying round's current value of field.
func ChangeFor(round *Round, field Field) Change {
	change := Change{Field: field, Date: round.Date}
	switch field {
	case FieldCar:
		change.Name = round.Car
	case FieldTrack:
		change.Name = round.Track
	case FieldTimes:
		change.Times = append([]TimeEntry{}, round.Times...)
	}
	return change
}

// Diff lists the fields whose values differ between before and after. A nil
// before is treated as a freshly defaulted round.
func Diff(before, after *Round) []Change {
	if before == nil {
		before = NewRound(after.Date)
	}

	var changes []Change
	if before.Car != after.Car {
		changes = append(changes, ChangeFor(after, FieldCar))
	}
	if before.Track != after.Track {
		changes = append(changes, ChangeFor(after, FieldTrack))
	}
	if !timesEqual(before.Times, after.Times) {
		changes = append(changes, ChangeFor(after, FieldTimes))
	}
	return changes
}

func timesEqual(a, b []TimeEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Time != b[i].Time || !a[i].Timestamp.Equal(b[i].Timestamp) {
			return false
		}
	}
	return true
}

// DateRange bounds a round query. Both bounds are inclusive; an empty bound is open.
type DateRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Unbounded reports whether the range covers every round.
func (d DateRange) Unbounded() bool {
	return d.Start == "" && d.End == ""
}

// Contains reports whether date falls within the range. Dates compare lexically.
func (d DateRange) Contains(date string) bool {
	if d.Start != "" && date < d.Start {
		return false
	}
	if d.End != "" && date > d.End {
		return false
	}
	return true
}
