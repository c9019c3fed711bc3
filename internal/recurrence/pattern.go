package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrEmptyPattern = errors.New("calendar pattern has no fields")

// maxYearScan bounds the search for a pattern with a fixed year.
const maxYearScan = 100

// Pattern is a set of calendar components a moment must match. Only the
// components named in Fields are meaningful. Weekday uses time.Weekday
// numbering (Sunday = 0).
type Pattern struct {
	Fields  FieldSet `json:"fields"`
	Year    int      `json:"year,omitempty"`
	Month   int      `json:"month,omitempty"`
	Day     int      `json:"day,omitempty"`
	Weekday int      `json:"weekday,omitempty"`
	Hour    int      `json:"hour,omitempty"`
	Minute  int      `json:"minute,omitempty"`
	Second  int      `json:"second,omitempty"`

	// Zone is the name of the location the components are read in. It is an
	// IANA name unless Fixed is set.
	Zone string `json:"zone,omitempty"`
	// Fixed marks a location with no IANA entry, such as a bare "+05:00"
	// offset. It is rebuilt from Zone and Offset (seconds east of UTC).
	Fixed  bool `json:"fixed,omitempty"`
	Offset int  `json:"offset,omitempty"`
}

// Location resolves the pattern's location, falling back to fallback when
// it carries none.
func (p Pattern) Location(fallback *time.Location) *time.Location {
	z := strings.TrimSpace(p.Zone)
	if !p.Fixed && z != "" {
		if loc, err := time.LoadLocation(z); err == nil {
			return loc
		}
	}
	if p.Fixed || p.Offset != 0 {
		return time.FixedZone(z, p.Offset)
	}
	if fallback == nil {
		return time.Local
	}
	return fallback
}

// Matches reports whether t agrees with every fixed component.
func (p Pattern) Matches(t time.Time) bool {
	if p.Fields == 0 {
		return false
	}
	t = t.In(p.Location(t.Location()))
	checks := []struct {
		f    Field
		want int
		got  int
	}{
		{Year, p.Year, t.Year()},
		{Month, p.Month, int(t.Month())},
		{Day, p.Day, t.Day()},
		{Weekday, p.Weekday, int(t.Weekday())},
		{Hour, p.Hour, t.Hour()},
		{Minute, p.Minute, t.Minute()},
		{Second, p.Second, t.Second()},
	}
	for _, c := range checks {
		if p.Fields.Has(c.f) && c.want != c.got {
			return false
		}
	}
	return true
}

// CronSpec renders the pattern as a six-field cron expression
// (second minute hour day-of-month month day-of-week). Year has no cron
// column and is checked separately by Next.
func (p Pattern) CronSpec() string {
	col := func(f Field, v int) string {
		if p.Fields.Has(f) {
			return strconv.Itoa(v)
		}
		return "*"
	}
	return strings.Join([]string{
		col(Second, p.Second),
		col(Minute, p.Minute),
		col(Hour, p.Hour),
		col(Day, p.Day),
		col(Month, p.Month),
		col(Weekday, p.Weekday),
	}, " ")
}

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Schedule compiles the pattern into a robfig/cron schedule.
func (p Pattern) Schedule() (cron.Schedule, error) {
	if p.Fields == 0 {
		return nil, ErrEmptyPattern
	}
	s, err := cronParser.Parse(p.CronSpec())
	if err != nil {
		return nil, fmt.Errorf("pattern %s: %w", p, err)
	}
	return s, nil
}

// Next returns the first instant strictly after `after` matching the
// pattern. ok is false when no such instant exists, e.g. a fixed year that
// already passed.
func (p Pattern) Next(after time.Time) (next time.Time, ok bool) {
	sched, err := p.Schedule()
	if err != nil {
		return time.Time{}, false
	}
	loc := p.Location(after.Location())
	t := after.In(loc)
	if !p.Fields.Has(Year) {
		n := sched.Next(t)
		return n, !n.IsZero()
	}
	if t.Year() > p.Year {
		return time.Time{}, false
	}
	for i := 0; i < maxYearScan; i++ {
		n := sched.Next(t)
		switch {
		case n.IsZero(), n.Year() > p.Year:
			return time.Time{}, false
		case n.Year() == p.Year:
			return n, true
		}
		t = n
	}
	return time.Time{}, false
}

func (p Pattern) String() string {
	parts := make([]string, 0, len(fieldNames)+1)
	vals := map[Field]int{
		Year: p.Year, Month: p.Month, Day: p.Day, Weekday: p.Weekday,
		Hour: p.Hour, Minute: p.Minute, Second: p.Second,
	}
	for _, fn := range fieldNames {
		if p.Fields.Has(fn.f) {
			parts = append(parts, fn.name+"="+strconv.Itoa(vals[fn.f]))
		}
	}
	if p.Zone != "" {
		parts = append(parts, "zone="+p.Zone)
	}
	if p.Fixed {
		parts = append(parts, "offset="+strconv.Itoa(p.Offset))
	}
	return strings.Join(parts, " ")
}
