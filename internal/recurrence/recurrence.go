// Package recurrence translates a target instant and a repeat unit into a
// calendar-matching pattern.
//
// Each unit maps to a fixed set of calendar fields held constant by the
// pattern. The sets are derived once, coarser units extending finer ones:
//
//	hourly  = minute, second
//	daily   = hourly + hour
//	weekly  = daily + weekday
//	monthly = daily + day
//	yearly  = monthly + year, month
//	none    = yearly fields, not repeating
package recurrence

import (
	"fmt"
	"strings"
	"time"
)

// Unit is the granularity at which a calendar trigger repeats.
type Unit int

const (
	None Unit = iota
	Hourly
	Daily
	Weekly
	Monthly
	Yearly
)

func (u Unit) String() string {
	switch u {
	case None:
		return "none"
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case Yearly:
		return "yearly"
	default:
		return fmt.Sprintf("unit(%d)", int(u))
	}
}

// ParseUnit accepts both "hour" and "hourly" style names.
func ParseUnit(raw string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none", "once":
		return None, nil
	case "hour", "hourly":
		return Hourly, nil
	case "day", "daily":
		return Daily, nil
	case "week", "weekly":
		return Weekly, nil
	case "month", "monthly":
		return Monthly, nil
	case "year", "yearly":
		return Yearly, nil
	}
	return None, fmt.Errorf("unknown repeat interval %q (use none, hourly, daily, weekly, monthly, yearly)", raw)
}

// Field is one calendar component. Fields combine into a FieldSet.
type Field uint8

const (
	Year Field = 1 << iota
	Month
	Day
	Weekday
	Hour
	Minute
	Second
)

var fieldNames = []struct {
	f    Field
	name string
}{
	{Year, "year"},
	{Month, "month"},
	{Day, "day"},
	{Weekday, "weekday"},
	{Hour, "hour"},
	{Minute, "minute"},
	{Second, "second"},
}

func (f Field) String() string {
	for _, fn := range fieldNames {
		if fn.f == f {
			return fn.name
		}
	}
	return fmt.Sprintf("field(%d)", uint8(f))
}

// FieldSet is a bit set of Field values.
type FieldSet uint8

func Fields(fs ...Field) FieldSet {
	var s FieldSet
	for _, f := range fs {
		s |= FieldSet(f)
	}
	return s
}

func (s FieldSet) Has(f Field) bool { return s&FieldSet(f) != 0 }

// Contains reports whether every field of other is also in s.
func (s FieldSet) Contains(other FieldSet) bool { return s&other == other }

func (s FieldSet) String() string {
	parts := make([]string, 0, len(fieldNames))
	for _, fn := range fieldNames {
		if s.Has(fn.f) {
			parts = append(parts, fn.name)
		}
	}
	return "{" + strings.Join(parts, ",") + "}"
}

var unitFields = func() map[Unit]FieldSet {
	hourly := Fields(Minute, Second)
	daily := hourly | Fields(Hour)
	weekly := daily | Fields(Weekday)
	monthly := daily | Fields(Day)
	yearly := monthly | Fields(Year, Month)
	return map[Unit]FieldSet{
		None:    yearly,
		Hourly:  hourly,
		Daily:   daily,
		Weekly:  weekly,
		Monthly: monthly,
		Yearly:  yearly,
	}
}()

// FieldsFor returns the calendar fields a unit holds fixed.
// Unknown units behave like None.
func FieldsFor(u Unit) FieldSet {
	if fs, ok := unitFields[u]; ok {
		return fs
	}
	return unitFields[None]
}

// Translate maps an instant and repeat unit to a calendar pattern.
// Components are read in the instant's own location.
func Translate(instant time.Time, u Unit) (Pattern, bool) {
	fs := FieldsFor(u)
	p := Pattern{Fields: fs, Zone: instant.Location().String()}
	if _, err := time.LoadLocation(p.Zone); p.Zone == "" || err != nil {
		_, p.Offset = instant.Zone()
		p.Fixed = true
	}
	if fs.Has(Year) {
		p.Year = instant.Year()
	}
	if fs.Has(Month) {
		p.Month = int(instant.Month())
	}
	if fs.Has(Day) {
		p.Day = instant.Day()
	}
	if fs.Has(Weekday) {
		p.Weekday = int(instant.Weekday())
	}
	if fs.Has(Hour) {
		p.Hour = instant.Hour()
	}
	if fs.Has(Minute) {
		p.Minute = instant.Minute()
	}
	if fs.Has(Second) {
		p.Second = instant.Second()
	}
	_, known := unitFields[u]
	return p, known && u != None
}
