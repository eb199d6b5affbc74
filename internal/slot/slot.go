package slot

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultDayStart = 8 * time.Hour
	DefaultCadence  = 30 * time.Minute
	DefaultCount    = 18
)

var (
	ErrInvalidTemplate = errors.New("invalid slot template")
)

// TimeSlot is one bookable window of a physician's day.
type TimeSlot struct {
	Start       time.Time
	End         time.Time
	Booked      bool
	PatientName string // empty when free
}

// Contains reports whether ts falls in [Start, End).
func (s TimeSlot) Contains(ts time.Time) bool {
	return !ts.Before(s.Start) && ts.Before(s.End)
}

// AlignedWith reports whether ts sits exactly on the slot boundary.
func (s TimeSlot) AlignedWith(ts time.Time) bool {
	return ts.Equal(s.Start)
}

func (s *TimeSlot) Book(patientName string) {
	s.Booked = true
	s.PatientName = patientName
}

func (s *TimeSlot) Release() {
	s.Booked = false
	s.PatientName = ""
}

// Template describes the operating window a daily grid covers.
type Template struct {
	DayStart time.Duration // offset from midnight of the first slot
	Cadence  time.Duration // length of each slot
	Count    int           // slots per day
}

// DefaultTemplate covers 08:00-17:00 in half-hour slots.
var DefaultTemplate = Template{
	DayStart: DefaultDayStart,
	Cadence:  DefaultCadence,
	Count:    DefaultCount,
}

func (t Template) Validate() error {
	if t.Cadence <= 0 {
		return fmt.Errorf("%w: cadence must be positive", ErrInvalidTemplate)
	}
	if t.Count <= 0 {
		return fmt.Errorf("%w: count must be positive", ErrInvalidTemplate)
	}
	if t.DayStart < 0 {
		return fmt.Errorf("%w: day start must not be negative", ErrInvalidTemplate)
	}
	if t.DayStart+time.Duration(t.Count)*t.Cadence > 24*time.Hour {
		return fmt.Errorf("%w: window runs past midnight", ErrInvalidTemplate)
	}
	return nil
}

// WindowEnd is the end of the last slot, as an offset from midnight.
func (t Template) WindowEnd() time.Duration {
	return t.DayStart + time.Duration(t.Count)*t.Cadence
}

// GenerateDailySlots builds the free grid for date's calendar day, in date's
// location. Slot boundaries are wall-clock times, so the window stays put on
// daylight-saving transition days.
func (t Template) GenerateDailySlots(date time.Time) []TimeSlot {
	slots := make([]TimeSlot, 0, t.Count)
	for i := 0; i < t.Count; i++ {
		offset := t.DayStart + time.Duration(i)*t.Cadence
		slots = append(slots, TimeSlot{
			Start: wallClock(date, offset),
			End:   wallClock(date, offset+t.Cadence),
		})
	}
	return slots
}

// IndexOf returns the index of the slot starting exactly at ts, judged by
// ts's wall clock. Timestamps between boundaries or outside the window have
// no index.
func (t Template) IndexOf(ts time.Time) (int, bool) {
	offset := time.Duration(ts.Hour())*time.Hour +
		time.Duration(ts.Minute())*time.Minute +
		time.Duration(ts.Second())*time.Second +
		time.Duration(ts.Nanosecond())
	if offset < t.DayStart || offset >= t.WindowEnd() {
		return 0, false
	}
	rel := offset - t.DayStart
	if rel%t.Cadence != 0 {
		return 0, false
	}
	return int(rel / t.Cadence), true
}

// wallClock returns the instant whose local clock on date's calendar day
// reads offset past midnight. time.Date normalises the overflowing fields.
func wallClock(date time.Time, offset time.Duration) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, int(offset/time.Second), int(offset%time.Second), date.Location())
}

func GenerateDailySlots(date time.Time) []TimeSlot {
	return DefaultTemplate.GenerateDailySlots(date)
}

// StartOfDay returns midnight of ts's calendar day in ts's location.
func StartOfDay(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
}
