package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/hackgods/physician-availability/internal/redis"
)

// Registry is the only writer of appointments. It owns the
// one-appointment-per-physician-per-instant invariant and tells
// subscribers about every successful mutation.
type Registry struct {
	store     Store
	locker    redisclient.Locker
	logger    *zap.Logger
	clock     func() time.Time
	listeners *listenerSet
}

func NewRegistry(store Store, locker redisclient.Locker, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:     store,
		locker:    locker,
		logger:    logger.Named("registry"),
		clock:     time.Now,
		listeners: newListenerSet(),
	}
}

// IsSlotAvailable reports whether physicianID has nothing booked at exactly at
// (minute precision). The ID is trimmed the way mutations trim it.
func (r *Registry) IsSlotAvailable(ctx context.Context, physicianID string, at time.Time) (bool, error) {
	taken, err := r.occupied(ctx, strings.TrimSpace(physicianID), at.Truncate(time.Minute), uuid.Nil)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

func (r *Registry) occupied(ctx context.Context, physicianID string, at time.Time, except uuid.UUID) (bool, error) {
	existing, err := r.store.ListForPhysicianInRange(ctx, physicianID, at, at.Add(time.Minute))
	if err != nil {
		return false, wrapStore("check slot", err)
	}
	for _, a := range existing {
		if a.ID != except {
			return true, nil
		}
	}
	return false, nil
}

// AddAppointment checks for a conflict and inserts under the physician lock.
// On success appt carries the store-assigned ID.
func (r *Registry) AddAppointment(ctx context.Context, appt *Appointment) error {
	if appt == nil {
		return &ValidationError{Field: "appointment", Reason: "is required"}
	}
	n := appt.normalized()
	if err := n.validate(); err != nil {
		return err
	}
	if n.Persisted() {
		return &ValidationError{Field: "id", Reason: "must be empty for a new appointment"}
	}

	err := r.withPhysicianLock(ctx, n.PhysicianID, func(lockCtx context.Context) error {
		taken, err := r.occupied(lockCtx, n.PhysicianID, n.ScheduledAt, uuid.Nil)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotTaken
		}

		if err := r.store.Insert(lockCtx, &n); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return ErrSlotTaken
			}
			return wrapStore("insert appointment", err)
		}
		return nil
	})
	if err != nil {
		r.logFailure("add appointment", n, err)
		return err
	}

	*appt = n
	r.emit(ctx, EventCreated, n)
	return nil
}

// UpdateAppointment persists timestamp and notes by ID. Physician and
// patient must match the stored appointment. Callers without an ID can only
// change notes; the appointment is then matched by key. On success appt holds
// the stored row.
func (r *Registry) UpdateAppointment(ctx context.Context, appt *Appointment) error {
	if appt == nil {
		return &ValidationError{Field: "appointment", Reason: "is required"}
	}
	n := appt.normalized()
	if err := n.validate(); err != nil {
		return err
	}

	if n.Persisted() {
		current, err := r.store.Get(ctx, n.ID)
		if err != nil {
			err = r.storeErr("load appointment", err)
			r.logFailure("update appointment", n, err)
			return err
		}
		if err := checkOwner(current, n); err != nil {
			r.logFailure("update appointment", n, err)
			return err
		}
	}

	var result Appointment
	err := r.withPhysicianLock(ctx, n.PhysicianID, func(lockCtx context.Context) error {
		if !n.Persisted() {
			if err := r.storeErr("update appointment notes", r.store.UpdateNotesByMatch(lockCtx, n)); err != nil {
				return err
			}
			stored, err := r.findByKey(lockCtx, n)
			if err != nil {
				return err
			}
			result = stored
			return nil
		}

		taken, err := r.occupied(lockCtx, n.PhysicianID, n.ScheduledAt, n.ID)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotTaken
		}
		if err := r.storeErr("update appointment", r.store.Update(lockCtx, n)); err != nil {
			return err
		}
		stored, err := r.store.Get(lockCtx, n.ID)
		if err != nil {
			return r.storeErr("reload appointment", err)
		}
		result = stored
		return nil
	})
	if err != nil {
		r.logFailure("update appointment", n, err)
		return err
	}

	*appt = result
	r.emit(ctx, EventUpdated, result)
	return nil
}

// checkOwner rejects an update whose physician or patient differs from the
// stored appointment with the same ID.
func checkOwner(stored, update Appointment) error {
	switch {
	case stored.PhysicianID != update.PhysicianID:
		return &ValidationError{Field: "physician_id", Reason: "does not match the stored appointment"}
	case stored.PatientName != update.PatientName:
		return &ValidationError{Field: "patient_name", Reason: "does not match the stored appointment"}
	}
	return nil
}

func (r *Registry) findByKey(ctx context.Context, key Appointment) (Appointment, error) {
	candidates, err := r.store.ListForPhysicianInRange(ctx, key.PhysicianID, key.ScheduledAt, key.ScheduledAt.Add(time.Minute))
	if err != nil {
		return Appointment{}, wrapStore("reload appointment", err)
	}
	for _, a := range candidates {
		if a.SameKey(key) {
			return a, nil
		}
	}
	return Appointment{}, fmt.Errorf("reload appointment: %w", ErrAppointmentNotFound)
}

// DeleteAppointment removes the appointment matching physician, patient and
// timestamp. The ID is not consulted.
func (r *Registry) DeleteAppointment(ctx context.Context, appt Appointment) error {
	n := appt.normalized()
	if err := n.validate(); err != nil {
		return err
	}

	err := r.withPhysicianLock(ctx, n.PhysicianID, func(lockCtx context.Context) error {
		return r.storeErr("delete appointment", r.store.DeleteByMatch(lockCtx, n.PhysicianID, n.PatientName, n.ScheduledAt))
	})
	if err != nil {
		r.logFailure("delete appointment", n, err)
		return err
	}

	r.emit(ctx, EventDeleted, n)
	return nil
}

// DeleteAll clears the store. Only catch-all listeners are told.
func (r *Registry) DeleteAll(ctx context.Context) error {
	if err := r.store.DeleteAll(ctx); err != nil {
		r.logger.Error("delete all appointments failed", zap.Error(err))
		return wrapStore("delete all appointments", err)
	}

	r.logger.Info("all appointments deleted")
	r.emit(ctx, EventAnyChange, Appointment{})
	return nil
}

func (r *Registry) GetAppointmentsForPhysician(ctx context.Context, physicianID string) ([]Appointment, error) {
	appts, err := r.store.ListForPhysician(ctx, physicianID)
	if err != nil {
		return nil, wrapStore("list appointments", err)
	}
	return appts, nil
}

// Subscribe registers fn for kind. The returned func removes it.
func (r *Registry) Subscribe(kind EventKind, fn Handler) (unsubscribe func()) {
	id := r.listeners.add(kind, fn)
	return func() { r.listeners.remove(id) }
}

// AddChangeListener registers fn to run after any successful mutation.
func (r *Registry) AddChangeListener(fn func()) (unsubscribe func()) {
	return r.Subscribe(EventAnyChange, func(context.Context, Event) { fn() })
}

// SetOnAppointmentCreated replaces the handler installed by a previous call.
// Handlers added through Subscribe are unaffected.
func (r *Registry) SetOnAppointmentCreated(fn func(Appointment)) {
	r.listeners.replace(EventCreated, typed(fn))
}

func (r *Registry) SetOnAppointmentUpdated(fn func(Appointment)) {
	r.listeners.replace(EventUpdated, typed(fn))
}

func (r *Registry) SetOnAppointmentDeleted(fn func(Appointment)) {
	r.listeners.replace(EventDeleted, typed(fn))
}

func typed(fn func(Appointment)) Handler {
	if fn == nil {
		return nil
	}
	return func(_ context.Context, ev Event) { fn(ev.Appointment) }
}

// Close drops every listener. The registry stays usable.
func (r *Registry) Close() {
	r.listeners.clear()
}

func (r *Registry) emit(ctx context.Context, kind EventKind, appt Appointment) {
	ev := Event{Kind: kind, Appointment: appt, At: r.clock()}
	for _, fn := range r.listeners.matching(kind) {
		fn(ctx, ev)
	}
}

func (r *Registry) withPhysicianLock(ctx context.Context, physicianID string, fn func(ctx context.Context) error) error {
	err := r.locker.WithPhysicianLock(ctx, physicianID, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrPhysicianBusy
	}
	return err
}

// storeErr keeps not-found and conflict distinct from other store failures.
func (r *Registry) storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAppointmentNotFound):
		return fmt.Errorf("%s: %w", op, ErrAppointmentNotFound)
	case errors.Is(err, ErrDuplicate):
		return ErrSlotTaken
	default:
		return wrapStore(op, err)
	}
}

func (r *Registry) logFailure(op string, appt Appointment, err error) {
	fields := []zap.Field{
		zap.String("physician_id", appt.PhysicianID),
		zap.Time("scheduled_at", appt.ScheduledAt),
		zap.Error(err),
	}
	switch {
	case errors.Is(err, ErrStore):
		r.logger.Error(op+" failed", fields...)
	default:
		r.logger.Warn(op+" rejected", fields...)
	}
}
