package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// queryable is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgStore struct {
	db queryable
}

func NewPgStore(db queryable) *PgStore {
	return &PgStore{db: db}
}

const appointmentCols = `id, physician_id, patient_name, scheduled_at, notes, created_at, updated_at`

const uniqueViolation = "23505"

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var notes *string

	err := row.Scan(
		&a.ID,
		&a.PhysicianID,
		&a.PatientName,
		&a.ScheduledAt,
		&notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Notes = notes
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Interface methods

func (s *PgStore) Get(ctx context.Context, id uuid.UUID) (Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE id = $1
	`, id)

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return Appointment{}, err
		}
		return Appointment{}, fmt.Errorf("get appointment: %w", err)
	}
	return *a, nil
}

func (s *PgStore) ListForPhysician(ctx context.Context, physicianID string) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE physician_id = $1
		ORDER BY scheduled_at ASC
	`, physicianID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (s *PgStore) ListForPhysicianInRange(ctx context.Context, physicianID string, from, to time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE physician_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		ORDER BY scheduled_at ASC
	`, physicianID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments in range: %w", err)
	}
	return collectAppointments(rows)
}

func (s *PgStore) Insert(ctx context.Context, appt *Appointment) error {
	id := uuid.New()

	row := s.db.QueryRow(ctx, `
		INSERT INTO appointments (id, physician_id, patient_name, scheduled_at, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+appointmentCols, id, appt.PhysicianID, appt.PatientName, appt.ScheduledAt, appt.Notes)

	created, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert appointment: %w", err)
	}

	*appt = *created
	return nil
}

func (s *PgStore) Update(ctx context.Context, appt Appointment) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET scheduled_at = $2,
		    notes = $3,
		    updated_at = now()
		WHERE id = $1
	`, appt.ID, appt.ScheduledAt, appt.Notes)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (s *PgStore) UpdateNotesByMatch(ctx context.Context, appt Appointment) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET notes = $4,
		    updated_at = now()
		WHERE physician_id = $1
		  AND patient_name = $2
		  AND scheduled_at = $3
	`, appt.PhysicianID, appt.PatientName, appt.ScheduledAt, appt.Notes)
	if err != nil {
		return fmt.Errorf("update appointment notes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (s *PgStore) DeleteByMatch(ctx context.Context, physicianID, patientName string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM appointments
		WHERE physician_id = $1
		  AND patient_name = $2
		  AND scheduled_at = $3
	`, physicianID, patientName, at)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (s *PgStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM appointments`); err != nil {
		return fmt.Errorf("delete all appointments: %w", err)
	}
	return nil
}
