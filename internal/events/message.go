package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/physician-availability/internal/appointment"
)

const DefaultChannel = "appointments.events"

// Message is the wire form of an appointment event.
type Message struct {
	Kind          appointment.EventKind `json:"kind"`
	AppointmentID *uuid.UUID            `json:"appointment_id,omitempty"`
	PhysicianID   string                `json:"physician_id,omitempty"`
	PatientName   string                `json:"patient_name,omitempty"`
	ScheduledAt   *time.Time            `json:"scheduled_at,omitempty"`
	Notes         *string               `json:"notes,omitempty"`
	OccurredAt    time.Time             `json:"occurred_at"`
}

func NewMessage(ev appointment.Event) Message {
	msg := Message{
		Kind:        ev.Kind,
		PhysicianID: ev.Appointment.PhysicianID,
		PatientName: ev.Appointment.PatientName,
		Notes:       ev.Appointment.Notes,
		OccurredAt:  ev.At,
	}
	if ev.Appointment.Persisted() {
		id := ev.Appointment.ID
		msg.AppointmentID = &id
	}
	if !ev.Appointment.ScheduledAt.IsZero() {
		ts := ev.Appointment.ScheduledAt
		msg.ScheduledAt = &ts
	}
	return msg
}
