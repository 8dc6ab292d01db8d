package crontab

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Column describes the legal domain of one of the five schedule columns.
type Column struct {
	Name  string
	Min   int
	Max   int
	Names NameTable
}

var (
	Minute  = Column{Name: "minute", Min: 0, Max: 59}
	Hour    = Column{Name: "hour", Min: 0, Max: 23}
	Day     = Column{Name: "day", Min: 1, Max: 31}
	Month   = Column{Name: "month", Min: 1, Max: 12, Names: MonthNames}
	Weekday = Column{Name: "weekday", Min: 0, Max: 6, Names: WeekdayNames}
)

// TimeFieldSet is the comma-separated list of entries of one column, in
// source order.
type TimeFieldSet []*TimeField

// Parse splits text on "," and parses every entry against the column's
// domain. Empty entries ("1,,2") are rejected.
func (c Column) Parse(text string) (TimeFieldSet, error) {
	entries := strings.Split(text, ",")
	fields := make(TimeFieldSet, 0, len(entries))
	for _, entry := range entries {
		if entry == "" {
			return nil, fmt.Errorf("%w: empty entry in %s list %q", ErrFormat, c.Name, text)
		}
		field := NewTimeField(c.Min, c.Max, c.Names)
		if err := field.Parse(entry); err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		fields = append(fields, field)
	}
	return fields, nil
}

func (s TimeFieldSet) Build() string {
	parts := make([]string, len(s))
	for i, field := range s {
		parts[i] = field.Build()
	}
	return strings.Join(parts, ",")
}

const columnPattern = `[0-9A-Za-z\-,*/]+`

var (
	scheduleMatcher = regexp.MustCompile(
		`^\s*(` + columnPattern + `)\s+(` + columnPattern + `)\s+(` + columnPattern +
			`)\s+(` + columnPattern + `)\s+(` + columnPattern + `)\s*$`,
	)

	nextParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
)

// Schedule holds the five columns of a cron job line.
type Schedule struct {
	minutes  TimeFieldSet
	hours    TimeFieldSet
	days     TimeFieldSet
	months   TimeFieldSet
	weekdays TimeFieldSet
}

// NewSchedule returns a schedule that builds to "* * * * *".
func NewSchedule() *Schedule {
	wildcard := func(c Column) TimeFieldSet {
		return TimeFieldSet{NewTimeField(c.Min, c.Max, c.Names)}
	}
	return &Schedule{
		minutes:  wildcard(Minute),
		hours:    wildcard(Hour),
		days:     wildcard(Day),
		months:   wildcard(Month),
		weekdays: wildcard(Weekday),
	}
}

func ParseSchedule(text string) (*Schedule, error) {
	s := NewSchedule()
	if err := s.Parse(text); err != nil {
		return nil, err
	}
	return s, nil
}

// Parse replaces all five columns from text such as "0 */12 1,3-5 * mon".
// Nothing is replaced if any column fails.
func (s *Schedule) Parse(text string) error {
	m := scheduleMatcher.FindStringSubmatch(text)
	if m == nil {
		return fmt.Errorf("%w: schedule %q does not match \"MINUTE HOUR DAY MONTH WEEKDAY\"", ErrFormat, text)
	}
	return s.setColumns(m[1], m[2], m[3], m[4], m[5])
}

func (s *Schedule) setColumns(minute, hour, day, month, weekday string) error {
	columns := []Column{Minute, Hour, Day, Month, Weekday}
	texts := []string{minute, hour, day, month, weekday}
	sets := make([]TimeFieldSet, len(columns))
	for i, c := range columns {
		set, err := c.Parse(texts[i])
		if err != nil {
			return err
		}
		sets[i] = set
	}
	s.minutes, s.hours, s.days, s.months, s.weekdays = sets[0], sets[1], sets[2], sets[3], sets[4]
	return nil
}

func (s *Schedule) SetMinutes(text string) error  { return setColumn(&s.minutes, Minute, text) }
func (s *Schedule) SetHours(text string) error    { return setColumn(&s.hours, Hour, text) }
func (s *Schedule) SetDays(text string) error     { return setColumn(&s.days, Day, text) }
func (s *Schedule) SetMonths(text string) error   { return setColumn(&s.months, Month, text) }
func (s *Schedule) SetWeekdays(text string) error { return setColumn(&s.weekdays, Weekday, text) }

func setColumn(dst *TimeFieldSet, c Column, text string) error {
	set, err := c.Parse(text)
	if err != nil {
		return err
	}
	*dst = set
	return nil
}

func (s *Schedule) Minutes() TimeFieldSet  { return s.minutes }
func (s *Schedule) Hours() TimeFieldSet    { return s.hours }
func (s *Schedule) Days() TimeFieldSet     { return s.days }
func (s *Schedule) Months() TimeFieldSet   { return s.months }
func (s *Schedule) Weekdays() TimeFieldSet { return s.weekdays }

// Build always separates columns with a single space.
func (s *Schedule) Build() string {
	return strings.Join([]string{
		s.minutes.Build(),
		s.hours.Build(),
		s.days.Build(),
		s.months.Build(),
		s.weekdays.Build(),
	}, " ")
}

// Next returns the first activation strictly after t. A schedule that can
// never fire (e.g. "0 0 30 2 *") returns the zero time.
func (s *Schedule) Next(t time.Time) (time.Time, error) {
	expr, err := nextParser.Parse(s.Build())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return expr.Next(t), nil
}
