package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/physician-availability/internal/appointment"
	"github.com/hackgods/physician-availability/internal/slot"
)

const dateLayout = time.DateOnly

type CreateAppointmentRequest struct {
	PhysicianID string    `json:"physician_id"`
	PatientName string    `json:"patient_name"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       *string   `json:"notes,omitempty"`
}

func (r CreateAppointmentRequest) toAppointment() appointment.Appointment {
	return appointment.Appointment{
		PhysicianID: r.PhysicianID,
		PatientName: r.PatientName,
		ScheduledAt: r.ScheduledAt,
		Notes:       r.Notes,
	}
}

// UpdateAppointmentRequest carries the new timestamp and notes for {id}.
type UpdateAppointmentRequest = CreateAppointmentRequest

type DeleteAppointmentRequest struct {
	PhysicianID string    `json:"physician_id"`
	PatientName string    `json:"patient_name"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

type AppointmentResponse struct {
	ID          uuid.UUID `json:"id"`
	PhysicianID string    `json:"physician_id"`
	PatientName string    `json:"patient_name"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       *string   `json:"notes,omitempty"`
}

func newAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		PhysicianID: a.PhysicianID,
		PatientName: a.PatientName,
		ScheduledAt: a.ScheduledAt,
		Notes:       a.Notes,
	}
}

type SlotResponse struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Booked      bool      `json:"booked"`
	PatientName string    `json:"patient_name,omitempty"`
}

func newSlotResponses(slots []slot.TimeSlot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{
			Start:       s.Start,
			End:         s.End,
			Booked:      s.Booked,
			PatientName: s.PatientName,
		})
	}
	return out
}

type DailyAvailabilityResponse struct {
	PhysicianID string         `json:"physician_id"`
	Date        string         `json:"date"`
	Degraded    bool           `json:"degraded"`
	Slots       []SlotResponse `json:"slots"`
}

type DayResponse struct {
	Date  string         `json:"date"`
	Slots []SlotResponse `json:"slots"`
}

type WeeklyAvailabilityResponse struct {
	PhysicianID string        `json:"physician_id"`
	Start       string        `json:"start"`
	Degraded    bool          `json:"degraded"`
	Days        []DayResponse `json:"days"`
}

type SlotAvailableResponse struct {
	PhysicianID string    `json:"physician_id"`
	At          time.Time `json:"at"`
	Available   bool      `json:"available"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
