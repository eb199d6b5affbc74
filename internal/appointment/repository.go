package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrDuplicate           = errors.New("appointment already exists for physician at this time")
)

// Store is the durable appointment storage the registry and the availability
// engine consume. Implementations must reject a second appointment for the
// same physician and timestamp with ErrDuplicate.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (Appointment, error)
	ListForPhysician(ctx context.Context, physicianID string) ([]Appointment, error)
	// Ordered by ScheduledAt ascending; from inclusive, to exclusive.
	ListForPhysicianInRange(ctx context.Context, physicianID string, from, to time.Time) ([]Appointment, error)

	// Insert sets ID, CreatedAt and UpdatedAt on success.
	Insert(ctx context.Context, appt *Appointment) error
	Update(ctx context.Context, appt Appointment) error
	UpdateNotesByMatch(ctx context.Context, appt Appointment) error

	DeleteByMatch(ctx context.Context, physicianID, patientName string, at time.Time) error
	DeleteAll(ctx context.Context) error
}

var (
	ErrInvalidAppointment = errors.New("invalid appointment")
	ErrSlotTaken          = errors.New("physician already has an appointment at this time")
	ErrPhysicianBusy      = errors.New("physician schedule is being modified, please retry")
	ErrStore              = errors.New("appointment store failure")
)

// ValidationError names the missing or malformed field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidAppointment, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidAppointment
}

// storeError keeps the cause reachable while marking it as a storage failure.
type storeError struct {
	op  string
	err error
}

func (e *storeError) Error() string {
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *storeError) Unwrap() []error {
	return []error{ErrStore, e.err}
}

func wrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	return &storeError{op: op, err: err}
}
