package appointment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/hackgods/physician-availability/internal/redis"
)

var june1 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return june1.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func newTestRegistry(t *testing.T) (*Registry, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	reg := NewRegistry(store, redisclient.NewLocalLocker(), nil)
	t.Cleanup(reg.Close)
	return reg, store
}

// failingStore wraps a MemoryStore and lets tests inject errors per call.
type failingStore struct {
	*MemoryStore
	rangeErr  error
	insertErr error
	deleteErr error
}

func (s *failingStore) ListForPhysicianInRange(ctx context.Context, physicianID string, from, to time.Time) ([]Appointment, error) {
	if s.rangeErr != nil {
		return nil, s.rangeErr
	}
	return s.MemoryStore.ListForPhysicianInRange(ctx, physicianID, from, to)
}

func (s *failingStore) Insert(ctx context.Context, appt *Appointment) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	return s.MemoryStore.Insert(ctx, appt)
}

func (s *failingStore) DeleteAll(ctx context.Context) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.MemoryStore.DeleteAll(ctx)
}

type busyLocker struct{}

func (busyLocker) WithPhysicianLock(context.Context, string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestRegistryAddAndNoDoubleBooking(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	ok, err := reg.IsSlotAvailable(ctx, "p1", at(9, 0))
	require.NoError(t, err)
	assert.True(t, ok)

	alice := &Appointment{PhysicianID: "p1", PatientName: "Alice", ScheduledAt: at(9, 0)}
	require.NoError(t, reg.AddAppointment(ctx, alice))
	assert.True(t, alice.Persisted())

	ok, err = reg.IsSlotAvailable(ctx, "p1", at(9, 0))
	require.NoError(t, err)
	assert.False(t, ok)

	bob := &Appointment{PhysicianID: "p1", PatientName: "Bob", ScheduledAt: at(9, 0)}
	err = reg.AddAppointment(ctx, bob)
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.False(t, bob.Persisted())

	appts, err := reg.GetAppointmentsForPhysician(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, "Alice", appts[0].PatientName)
}

func TestRegistryCrossPhysicianIsolation(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.AddAppointment(ctx, &Appointment{PhysicianID: "A", PatientName: "Alice", ScheduledAt: at(10, 30)}))

	ok, err := reg.IsSlotAvailable(ctx, "B", at(10, 30))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, reg.AddAppointment(ctx, &Appointment{PhysicianID: "B", PatientName: "Alice", ScheduledAt: at(10, 30)}))
}

func TestRegistryTruncatesToMinute(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	appt := &Appointment{PhysicianID: "p1", PatientName: "  Alice ", ScheduledAt: at(9, 0).Add(42 * time.Second)}
	require.NoError(t, reg.AddAppointment(ctx, appt))
	assert.True(t, appt.ScheduledAt.Equal(at(9, 0)))
	assert.Equal(t, "Alice", appt.PatientName)

	ok, err := reg.IsSlotAvailable(ctx, "p1", at(9, 0).Add(5*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = reg.IsSlotAvailable(ctx, "p1", at(9, 1))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegistryValidation(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		appt  *Appointment
		field string
	}{
		{"nil", nil, "appointment"},
		{"no physician", &Appointment{PatientName: "Alice", ScheduledAt: at(9, 0)}, "physician_id"},
		{"blank patient", &Appointment{PhysicianID: "p1", PatientName: "   ", ScheduledAt: at(9, 0)}, "patient_name"},
		{"no timestamp", &Appointment{PhysicianID: "p1", PatientName: "Alice"}, "scheduled_at"},
		{"already persisted", &Appointment{ID: uuid.New(), PhysicianID: "p1", PatientName: "Alice", ScheduledAt: at(9, 0)}, "id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.AddAppointment(ctx, tt.appt)
			require.ErrorIs(t, err, ErrInvalidAppointment)
			assert.NotErrorIs(t, err, ErrStore)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRegistryCreatedFiresAfterWrite(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()

	var order []string
	reg.SetOnAppointmentCreated(func(a Appointment) {
		stored, err := store.ListForPhysician(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, stored, 1, "record must be durable before the callback")
		assert.Equal(t, "Alice", a.PatientName)
		assert.Equal(t, "p1", a.PhysicianID)
		assert.True(t, a.ScheduledAt.Equal(at(9, 0)))
		assert.Equal(t, stored[0].ID, a.ID)
		order = append(order, "created")
	})
	reg.AddChangeListener(func() { order = append(order, "changed") })
	reg.SetOnAppointmentDeleted(func(Appointment) { order = append(order, "deleted") })

	notes := "first visit"
	require.NoError(t, reg.AddAppointment(ctx, &Appointment{PhysicianID: "p1", PatientName: "Alice", ScheduledAt: at(9, 0), Notes: &notes}))
	assert.Equal(t, []string{"created", "changed"}, order)
}

func TestRegistryDeleteFiresWithMatchingKey(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.AddAppointment(ctx, &Appointment{PhysicianID: "p1", PatientName: "Alice", ScheduledAt: at(9, 0)}))

	var deleted []Appointment
	reg.SetOnAppointmentDeleted(func(a Appointment) { deleted = append(deleted, a) })

	// callers may not know the ID
	key := Appointment{PhysicianID: "p1", PatientName: "Alice", ScheduledAt: at(9, 0)}
	require.NoError(t, reg.DeleteAppointment(ctx, key))
	require.Len(t, deleted, 1)
	assert.True(t, deleted[0].SameKey(key))

	ok, err := reg.IsSlotAvailable(ctx, "p1", at(9, 0))
	require.NoError(t, err)
	assert.True(t, ok)

	err = reg.DeleteAppointment(ctx, key)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.Len(t, deleted, 1, "failed delete must not notify")
}

func TestRegistryUpdate(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()

	alice := &Appointment{PhysicianID: "p1", PatientName: "Alice", ScheduledAt: at(9, 0)}
	bob := &Appointment{PhysicianID: "p1", PatientName: "Bob", ScheduledAt: at(10, 0)}
	require.NoError(t, reg.AddAppointment(ctx, alice))
	require.NoError(t, reg.AddAppointment(ctx, bob))

	var updated []Appointment
	reg.SetOnAppointmentUpdated(func(a Appointment) { updated = append(updated, a) })

	t.Run("move onto occupied time", func(t *testing.T) {
		moved := *alice
		moved.ScheduledAt = at(10, 0)
		assert.ErrorIs(t, reg.UpdateAppointment(ctx, &moved), ErrSlotTaken)
		assert.Empty(t, updated)
	})

	notes := "bring x-rays"
	t.Run("same time new notes", func(t *testing.T) {
		same := *alice
		same.Notes = &notes
		require.NoError(t, reg.UpdateAppointment(ctx, &same))
		require.Len(t, updated, 1)
		require.NotNil(t, same.Notes)
		assert.Equal(t, notes, *same.Notes)
	})

	t.Run("move to free time", func(t *testing.T) {
		moved := *alice
		moved.ScheduledAt = at(11, 30)
		moved.Notes = &notes
		require.NoError(t, reg.UpdateAppointment(ctx, &moved))
		assert.Equal(t, at(11, 30), moved.ScheduledAt)
		assert.Equal(t, alice.CreatedAt, moved.CreatedAt)

		stored, err := store.ListForPhysicianInRange(ctx, "p1", at(11, 30), at(12, 0))
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, alice.ID, stored[0].ID)
		require.NotNil(t, stored[0].Notes)
		assert.Equal(t, "bring x-rays", *stored[0].Notes)
	})

	t.Run("notes by key without id", func(t *testing.T) {
		bobNotes := "rescheduled twice"
		key := Appointment{PhysicianID: "p1", PatientName: "Bob", ScheduledAt: at(10, 0), Notes: &bobNotes}
		require.NoError(t, reg.UpdateAppointment(ctx, &key))
		assert.Equal(t, bob.ID, key.ID)

		stored, err := store.ListForPhysicianInRange(ctx, "p1", at(10, 0), at(10, 1))
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, bobNotes, *stored[0].Notes)

		last := updated[len(updated)-1]
		assert.Equal(t, bob.ID, last.ID)
	})

	t.Run("unknown id", func(t *testing.T) {
		ghost := Appointment{ID: uuid.New(), PhysicianID: "p1", PatientName: "Ghost", ScheduledAt: at(15, 0)}
		assert.ErrorIs(t, reg.UpdateAppointment(ctx, &ghost), ErrAppointmentNotFound)
	})

	assert.ErrorIs(t, reg.UpdateAppointment(ctx, nil), ErrInvalidAppointment)
}

func TestRegistryUpdateRejectsForeignIdentity(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()

	alice := &Appointment{PhysicianID: "p1", PatientName: "Alice", ScheduledAt: at(9, 0)}
	require.NoError(t, reg.AddAppointment(ctx, alice))

	var events []Appointment
	reg.Subscribe(EventUpdated, func(_ context.Context, ev Event) { events = append(events, ev.Appointment) })

	tests := []struct {
		name      string
		physician string
		patient   string
		field     string
	}{
		{"other physician", "p2", "Alice", "physician_id"},
		{"other patient", "p1", "Mallory", "patient_name"},
		{"both differ", "p2", "Mallory", "physician_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hijack := Appointment{ID: alice.ID, PhysicianID: tt.physician, PatientName: tt.patient, ScheduledAt: at(9, 30)}
			err := reg.UpdateAppointment(ctx, &hijack)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorIs(t, err, ErrInvalidAppointment)
		})
	}

	assert.Empty(t, events)
	stored, err := store.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "p1", stored.PhysicianID)
	assert.Equal(t, "Alice", stored.PatientName)
	assert.Equal(t, at(9, 0), stored.ScheduledAt)
}

func TestRegistryUpdateEventCarriesStoredRow(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	alice := &Appointment{PhysicianID: "p1", PatientName: "Alice", ScheduledAt: at(9, 0)}
	require.NoError(t, reg.AddAppointment(ctx, alice))

	var got Event
	reg.Subscribe(EventUpdated, func(_ context.Context, ev Event) { got = ev })

	// Padding is trimmed before matching the stored identity.
	moved := Appointment{ID: alice.ID, PhysicianID: " p1 ", PatientName: "Alice ", ScheduledAt: at(9, 30)}
	require.NoError(t, reg.UpdateAppointment(ctx, &moved))

	assert.Equal(t, alice.ID, got.Appointment.ID)
	assert.Equal(t, "p1", got.Appointment.PhysicianID)
	assert.Equal(t, "Alice", got.Appointment.PatientName)
	assert.Equal(t, at(9, 30), got.Appointment.ScheduledAt)
	assert.Equal(t, alice.CreatedAt, got.Appointment.CreatedAt)
	assert.Equal(t, got.Appointment, moved)
}

func TestRegistryIsSlotAvailableTrimsPhysician(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.AddAppointment(ctx, &Appointment{PhysicianID: "p1", PatientName: "Alice", ScheduledAt: at(9, 0)}))

	free, err := reg.IsSlotAvailable(ctx, "  p1 ", at(9, 0))
	require.NoError(t, err)
	assert.False(t, free)
}

func TestRegistryDeleteAllFiresOnlyChangeListeners(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.AddAppointment(ctx, &Appointment{PhysicianID: "p1", PatientName: "Alice", ScheduledAt: at(9, 0)}))

	var typedCalls, changed int
	reg.SetOnAppointmentDeleted(func(Appointment) { typedCalls++ })
	reg.AddChangeListener(func() { changed++ })
	var kinds []EventKind
	reg.Subscribe(EventAnyChange, func(_ context.Context, ev Event) { kinds = append(kinds, ev.Kind) })

	require.NoError(t, reg.DeleteAll(ctx))
	assert.Zero(t, typedCalls)
	assert.Equal(t, 1, changed)
	assert.Equal(t, []EventKind{EventAnyChange}, kinds)

	appts, err := reg.GetAppointmentsForPhysician(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, appts)
}

func TestRegistrySetOnReplacesPreviousHandler(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	var first, second, subscribed int
	reg.SetOnAppointmentCreated(func(Appointment) { first++ })
	reg.SetOnAppointmentCreated(func(Appointment) { second++ })
	reg.Subscribe(EventCreated, func(context.Context, Event) { subscribed++ })

	require.NoError(t, reg.AddAppointment(ctx, &Appointment{PhysicianID: "p1", PatientName: "Alice", ScheduledAt: at(9, 0)}))
	assert.Zero(t, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, 1, subscribed)

	reg.SetOnAppointmentCreated(nil)
	require.NoError(t, reg.AddAppointment(ctx, &Appointment{PhysicianID: "p1", PatientName: "Bob", ScheduledAt: at(9, 30)}))
	assert.Equal(t, 1, second)
	assert.Equal(t, 2, subscribed)
}

func TestRegistryUnsubscribeAndClose(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	var a, b int
	unsubA := reg.AddChangeListener(func() { a++ })
	reg.AddChangeListener(func() { b++ })

	require.NoError(t, reg.AddAppointment(ctx, &Appointment{PhysicianID: "p1", PatientName: "Alice", ScheduledAt: at(9, 0)}))
	unsubA()
	require.NoError(t, reg.AddAppointment(ctx, &Appointment{PhysicianID: "p1", PatientName: "Bob", ScheduledAt: at(9, 30)}))
	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)

	reg.Close()
	require.NoError(t, reg.AddAppointment(ctx, &Appointment{PhysicianID: "p1", PatientName: "Carol", ScheduledAt: at(10, 0)}))
	assert.Equal(t, 2, b)
}

func TestRegistriesDoNotShareListeners(t *testing.T) {
	reg1, _ := newTestRegistry(t)
	reg2, _ := newTestRegistry(t)

	var calls int
	reg1.AddChangeListener(func() { calls++ })

	require.NoError(t, reg2.AddAppointment(context.Background(), &Appointment{PhysicianID: "p1", PatientName: "Alice", ScheduledAt: at(9, 0)}))
	assert.Zero(t, calls)
}

func TestRegistryStoreFailures(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("connection reset")

	t.Run("conflict check", func(t *testing.T) {
		reg := NewRegistry(&failingStore{MemoryStore: NewMemoryStore(), rangeErr: cause}, redisclient.NewLocalLocker(), nil)
		var fired bool
		reg.AddChangeListener(func() { fired = true })

		err := reg.AddAppointment(ctx, &Appointment{PhysicianID: "p1", PatientName: "Alice", ScheduledAt: at(9, 0)})
		assert.ErrorIs(t, err, ErrStore)
		assert.ErrorIs(t, err, cause)
		assert.False(t, fired)

		_, err = reg.IsSlotAvailable(ctx, "p1", at(9, 0))
		assert.ErrorIs(t, err, ErrStore)
	})

	t.Run("insert", func(t *testing.T) {
		reg := NewRegistry(&failingStore{MemoryStore: NewMemoryStore(), insertErr: cause}, redisclient.NewLocalLocker(), nil)
		err := reg.AddAppointment(ctx, &Appointment{PhysicianID: "p1", PatientName: "Alice", ScheduledAt: at(9, 0)})
		assert.ErrorIs(t, err, ErrStore)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("insert loses race", func(t *testing.T) {
		reg := NewRegistry(&failingStore{MemoryStore: NewMemoryStore(), insertErr: ErrDuplicate}, redisclient.NewLocalLocker(), nil)
		err := reg.AddAppointment(ctx, &Appointment{PhysicianID: "p1", PatientName: "Alice", ScheduledAt: at(9, 0)})
		assert.ErrorIs(t, err, ErrSlotTaken)
		assert.NotErrorIs(t, err, ErrStore)
	})

	t.Run("delete all", func(t *testing.T) {
		reg := NewRegistry(&failingStore{MemoryStore: NewMemoryStore(), deleteErr: cause}, redisclient.NewLocalLocker(), nil)
		assert.ErrorIs(t, reg.DeleteAll(ctx), ErrStore)
	})
}

func TestRegistryLockBusy(t *testing.T) {
	reg := NewRegistry(NewMemoryStore(), busyLocker{}, nil)
	err := reg.AddAppointment(context.Background(), &Appointment{PhysicianID: "p1", PatientName: "Alice", ScheduledAt: at(9, 0)})
	assert.ErrorIs(t, err, ErrPhysicianBusy)
}

func TestRegistryConcurrentBookingsSameInstant(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()

	var created int32
	reg.SetOnAppointmentCreated(func(Appointment) { atomic.AddInt32(&created, 1) })

	const callers = 25
	var wg sync.WaitGroup
	var ok, taken int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := reg.AddAppointment(ctx, &Appointment{
				PhysicianID: "p1",
				PatientName: string(rune('A' + i)),
				ScheduledAt: at(14, 0),
			})
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, ErrSlotTaken):
				atomic.AddInt32(&taken, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok)
	assert.Equal(t, int32(callers-1), taken)
	assert.Equal(t, int32(1), atomic.LoadInt32(&created))

	stored, err := store.ListForPhysician(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}
