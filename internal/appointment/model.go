package appointment

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Appointment struct {
	ID          uuid.UUID // assigned by the store, uuid.Nil until persisted
	PhysicianID string
	PatientName string
	ScheduledAt time.Time // minute precision
	Notes       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Persisted reports whether the store has assigned an identity.
func (a Appointment) Persisted() bool {
	return a.ID != uuid.Nil
}

// SameKey reports whether two appointments share physician, patient and timestamp.
func (a Appointment) SameKey(b Appointment) bool {
	return a.PhysicianID == b.PhysicianID &&
		a.PatientName == b.PatientName &&
		a.ScheduledAt.Equal(b.ScheduledAt)
}

// normalized returns a copy with trimmed names and the timestamp cut to the minute.
func (a Appointment) normalized() Appointment {
	a.PhysicianID = strings.TrimSpace(a.PhysicianID)
	a.PatientName = strings.TrimSpace(a.PatientName)
	a.ScheduledAt = a.ScheduledAt.Truncate(time.Minute)
	return a
}

func (a Appointment) validate() error {
	switch {
	case a.PhysicianID == "":
		return &ValidationError{Field: "physician_id", Reason: "is required"}
	case a.PatientName == "":
		return &ValidationError{Field: "patient_name", Reason: "is required"}
	case a.ScheduledAt.IsZero():
		return &ValidationError{Field: "scheduled_at", Reason: "is required"}
	}
	return nil
}

type EventKind string

const (
	EventCreated   EventKind = "appointment.created"
	EventUpdated   EventKind = "appointment.updated"
	EventDeleted   EventKind = "appointment.deleted"
	EventAnyChange EventKind = "appointment.changed"
)

// Event is delivered to subscribers after a mutation is durable.
// Appointment is the zero value for bulk clears.
type Event struct {
	Kind        EventKind
	Appointment Appointment
	At          time.Time
}
