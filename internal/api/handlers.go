package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/physician-availability/internal/appointment"
	"github.com/hackgods/physician-availability/internal/availability"
	"github.com/hackgods/physician-availability/internal/metrics"
)

func createAppointmentHandler(reg *appointment.Registry, m *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt := req.toAppointment()
		if err := reg.AddAppointment(r.Context(), &appt); err != nil {
			handleMutationError(w, m, err)
			return
		}

		writeJSON(w, http.StatusCreated, newAppointmentResponse(appt))
	}
}

func updateAppointmentHandler(reg *appointment.Registry, m *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req UpdateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt := req.toAppointment()
		appt.ID = id
		if err := reg.UpdateAppointment(r.Context(), &appt); err != nil {
			handleMutationError(w, m, err)
			return
		}

		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func deleteAppointmentHandler(reg *appointment.Registry, m *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DeleteAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		err := reg.DeleteAppointment(r.Context(), appointment.Appointment{
			PhysicianID: req.PhysicianID,
			PatientName: req.PatientName,
			ScheduledAt: req.ScheduledAt,
		})
		if err != nil {
			handleMutationError(w, m, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteAllAppointmentsHandler(reg *appointment.Registry, m *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := reg.DeleteAll(r.Context()); err != nil {
			handleMutationError(w, m, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listAppointmentsHandler(reg *appointment.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appts, err := reg.GetAppointmentsForPhysician(r.Context(), chi.URLParam(r, "physicianID"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for _, a := range appts {
			resp = append(resp, newAppointmentResponse(a))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func slotAvailableHandler(reg *appointment.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		physicianID := chi.URLParam(r, "physicianID")
		at, err := time.Parse(time.RFC3339, r.URL.Query().Get("at"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_at", "at must be an RFC3339 timestamp")
			return
		}

		ok, err := reg.IsSlotAvailable(r.Context(), physicianID, at)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, SlotAvailableResponse{
			PhysicianID: physicianID,
			At:          at.Truncate(time.Minute),
			Available:   ok,
		})
	}
}

// dailyAvailabilityHandler serves the all-free grid when the projection
// fails, so the calendar keeps rendering while the store is unavailable.
func dailyAvailabilityHandler(engine *availability.Engine, m *metrics.Collector, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		physicianID := chi.URLParam(r, "physicianID")
		date, err := parseDay(r, "date")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		resp := DailyAvailabilityResponse{
			PhysicianID: physicianID,
			Date:        date.Format(dateLayout),
		}

		slots, err := engine.DailyAvailability(r.Context(), physicianID, date)
		if err != nil {
			logger.Error("daily availability degraded",
				zap.String("physician_id", physicianID),
				zap.String("date", resp.Date),
				zap.String("request_id", GetRequestID(r.Context())),
				zap.Error(err),
			)
			m.DegradedProjections.WithLabelValues("daily").Inc()
			slots = engine.FreeGrid(date)
			resp.Degraded = true
		}

		resp.Slots = newSlotResponses(slots)
		writeJSON(w, http.StatusOK, resp)
	}
}

func weeklyAvailabilityHandler(engine *availability.Engine, m *metrics.Collector, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		physicianID := chi.URLParam(r, "physicianID")
		start, err := parseDay(r, "start")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", err.Error())
			return
		}

		resp := WeeklyAvailabilityResponse{
			PhysicianID: physicianID,
			Start:       start.Format(dateLayout),
		}

		week, err := engine.WeeklyAvailability(r.Context(), physicianID, start)
		if err != nil {
			logger.Error("weekly availability degraded",
				zap.String("physician_id", physicianID),
				zap.String("start", resp.Start),
				zap.String("request_id", GetRequestID(r.Context())),
				zap.Error(err),
			)
			m.DegradedProjections.WithLabelValues("weekly").Inc()
			week = make(availability.WeeklyGrid, 0, availability.DaysPerWeek)
			for i := 0; i < availability.DaysPerWeek; i++ {
				date := start.AddDate(0, 0, i)
				week = append(week, availability.DayGrid{Date: date, Slots: engine.FreeGrid(date)})
			}
			resp.Degraded = true
		}

		for _, d := range week {
			resp.Days = append(resp.Days, DayResponse{
				Date:  d.Date.Format(dateLayout),
				Slots: newSlotResponses(d.Slots),
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// parseDay reads a YYYY-MM-DD query parameter in the optional tz location.
func parseDay(r *http.Request, param string) (time.Time, error) {
	loc := time.Local
	if tz := r.URL.Query().Get("tz"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, errors.New("tz must be an IANA time zone name")
		}
		loc = l
	}

	raw := r.URL.Query().Get(param)
	if raw == "" {
		return time.Time{}, errors.New(param + " is required")
	}
	day, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return time.Time{}, errors.New(param + " must be formatted as YYYY-MM-DD")
	}
	return day, nil
}

func handleMutationError(w http.ResponseWriter, m *metrics.Collector, err error) {
	switch {
	case errors.Is(err, appointment.ErrInvalidAppointment):
		m.RejectedTotal.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, "invalid_appointment", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotTaken):
		m.RejectedTotal.WithLabelValues("conflict").Inc()
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	case errors.Is(err, appointment.ErrPhysicianBusy):
		m.RejectedTotal.WithLabelValues("busy").Inc()
		writeError(w, http.StatusConflict, "physician_busy", "physician schedule is being modified, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
