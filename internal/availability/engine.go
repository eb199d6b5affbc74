package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hackgods/physician-availability/internal/appointment"
	"github.com/hackgods/physician-availability/internal/slot"
)

const DaysPerWeek = 7

var (
	ErrProjection = errors.New("availability projection failed")
)

// RangeReader is the slice of the appointment store the engine needs.
type RangeReader interface {
	ListForPhysicianInRange(ctx context.Context, physicianID string, from, to time.Time) ([]appointment.Appointment, error)
}

// Engine projects stored appointments onto the slot template. It never
// substitutes a fallback grid; callers decide how to degrade.
type Engine struct {
	reader   RangeReader
	template slot.Template
}

func NewEngine(reader RangeReader, template slot.Template) *Engine {
	return &Engine{
		reader:   reader,
		template: template,
	}
}

func (e *Engine) Template() slot.Template {
	return e.template
}

// DailyAvailability returns the full grid for date's calendar day. Only
// appointments starting exactly on a slot boundary inside the window mark a
// slot booked; the rest stay in the store but do not render.
func (e *Engine) DailyAvailability(ctx context.Context, physicianID string, date time.Time) ([]slot.TimeSlot, error) {
	from := slot.StartOfDay(date)
	to := from.AddDate(0, 0, 1)

	appts, err := e.reader.ListForPhysicianInRange(ctx, physicianID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: physician %s on %s: %w", ErrProjection, physicianID, from.Format(time.DateOnly), err)
	}

	grid := e.template.GenerateDailySlots(date)
	for _, a := range appts {
		ts := a.ScheduledAt.In(date.Location())
		idx, ok := e.template.IndexOf(ts)
		if !ok || !grid[idx].AlignedWith(ts) {
			continue
		}
		grid[idx].Book(a.PatientName)
	}

	return grid, nil
}

// FreeGrid is the all-free grid for date, used by callers as a degraded view.
func (e *Engine) FreeGrid(date time.Time) []slot.TimeSlot {
	return e.template.GenerateDailySlots(date)
}

type DayGrid struct {
	Date  time.Time
	Slots []slot.TimeSlot
}

// WeeklyGrid holds seven consecutive days in calendar order.
type WeeklyGrid []DayGrid

// Day returns the grid for date's calendar day, if present.
func (w WeeklyGrid) Day(date time.Time) ([]slot.TimeSlot, bool) {
	want := slot.StartOfDay(date)
	for _, d := range w {
		if d.Date.Equal(want) {
			return d.Slots, true
		}
	}
	return nil, false
}

// WeeklyAvailability projects start and the six days after it. start is not
// required to be a Monday.
func (e *Engine) WeeklyAvailability(ctx context.Context, physicianID string, start time.Time) (WeeklyGrid, error) {
	first := slot.StartOfDay(start)
	week := make(WeeklyGrid, 0, DaysPerWeek)

	for i := 0; i < DaysPerWeek; i++ {
		date := first.AddDate(0, 0, i)
		slots, err := e.DailyAvailability(ctx, physicianID, date)
		if err != nil {
			return nil, err
		}
		week = append(week, DayGrid{Date: date, Slots: slots})
	}

	return week, nil
}
