package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/hackgods/physician-availability/internal/appointment"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgEventLog appends every registry event to the event_logs table.
type PgEventLog struct {
	db     execer
	logger *zap.Logger
}

func NewPgEventLog(db execer, logger *zap.Logger) *PgEventLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgEventLog{db: db, logger: logger.Named("event_log")}
}

func (l *PgEventLog) Attach(reg *appointment.Registry) (detach func()) {
	return reg.Subscribe(appointment.EventAnyChange, l.Handle)
}

func (l *PgEventLog) Handle(ctx context.Context, ev appointment.Event) {
	if err := l.Insert(context.WithoutCancel(ctx), NewMessage(ev)); err != nil {
		l.logger.Error("failed to insert event log",
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
	}
}

func (l *PgEventLog) Insert(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, string(msg.Kind), msg.AppointmentID, payload, nullableTime(msg.OccurredAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
