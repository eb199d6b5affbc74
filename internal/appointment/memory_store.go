package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps appointments in process. It enforces the same
// (physician, timestamp) uniqueness as the Postgres schema.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]Appointment
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[uuid.UUID]Appointment),
		clock: time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (Appointment, error) {
	if err := ctx.Err(); err != nil {
		return Appointment{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return Appointment{}, ErrAppointmentNotFound
	}
	return a, nil
}

func (s *MemoryStore) ListForPhysician(ctx context.Context, physicianID string) ([]Appointment, error) {
	return s.filter(ctx, func(a Appointment) bool {
		return a.PhysicianID == physicianID
	})
}

func (s *MemoryStore) ListForPhysicianInRange(ctx context.Context, physicianID string, from, to time.Time) ([]Appointment, error) {
	return s.filter(ctx, func(a Appointment) bool {
		return a.PhysicianID == physicianID &&
			!a.ScheduledAt.Before(from) &&
			a.ScheduledAt.Before(to)
	})
}

func (s *MemoryStore) filter(ctx context.Context, keep func(Appointment) bool) ([]Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Appointment
	for _, a := range s.byID {
		if keep(a) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledAt.Before(result[j].ScheduledAt)
	})
	return result, nil
}

// occupied must be called with mu held.
func (s *MemoryStore) occupied(physicianID string, at time.Time, except uuid.UUID) bool {
	for id, a := range s.byID {
		if id != except && a.PhysicianID == physicianID && a.ScheduledAt.Equal(at) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) Insert(ctx context.Context, appt *Appointment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.occupied(appt.PhysicianID, appt.ScheduledAt, uuid.Nil) {
		return ErrDuplicate
	}

	now := s.clock()
	appt.ID = uuid.New()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	s.byID[appt.ID] = *appt
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, appt Appointment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[appt.ID]
	if !ok {
		return ErrAppointmentNotFound
	}
	if s.occupied(existing.PhysicianID, appt.ScheduledAt, appt.ID) {
		return ErrDuplicate
	}

	existing.ScheduledAt = appt.ScheduledAt
	existing.Notes = appt.Notes
	existing.UpdatedAt = s.clock()
	s.byID[appt.ID] = existing
	return nil
}

func (s *MemoryStore) UpdateNotesByMatch(ctx context.Context, appt Appointment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, a := range s.byID {
		if a.SameKey(appt) {
			a.Notes = appt.Notes
			a.UpdatedAt = s.clock()
			s.byID[id] = a
			return nil
		}
	}
	return ErrAppointmentNotFound
}

func (s *MemoryStore) DeleteByMatch(ctx context.Context, physicianID, patientName string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := Appointment{PhysicianID: physicianID, PatientName: patientName, ScheduledAt: at}
	for id, a := range s.byID {
		if a.SameKey(key) {
			delete(s.byID, id)
			return nil
		}
	}
	return ErrAppointmentNotFound
}

func (s *MemoryStore) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[uuid.UUID]Appointment)
	return nil
}
