package crontab

import (
	"fmt"
	"strconv"
	"strings"
)

// NameTable maps lowercase abbreviations (e.g. "jan", "mon") to the
// numeric value of a field.
type NameTable map[string]int

var (
	MonthNames = NameTable{
		"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
		"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
	}

	WeekdayNames = NameTable{
		"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
		"7": 0,
	}
)

func (n NameTable) resolve(s string) string {
	if v, ok := n[strings.ToLower(s)]; ok {
		return strconv.Itoa(v)
	}
	return s
}

// TimeField is a single entry of a comma-separated cron column: a
// wildcard, a value or a range, optionally with a step.
type TimeField struct {
	min   int
	max   int
	from  int
	to    int
	step  int
	names NameTable
}

func NewTimeField(min, max int, names NameTable) *TimeField {
	return &TimeField{
		min:   min,
		max:   max,
		from:  min,
		to:    max,
		step:  1,
		names: names,
	}
}

func (f *TimeField) Min() int  { return f.min }
func (f *TimeField) Max() int  { return f.max }
func (f *TimeField) From() int { return f.from }
func (f *TimeField) To() int   { return f.to }
func (f *TimeField) Step() int { return f.step }

func (f *TimeField) IsRange() bool {
	return f.from != f.to
}

// HasValue is false when the field spans its whole domain, i.e. when it
// builds to "*".
func (f *TimeField) HasValue() bool {
	return !(f.from == f.min && f.to == f.max)
}

func (f *TimeField) SetValue(value int) error {
	return f.SetRangeValue(value, value)
}

func (f *TimeField) SetRangeValue(from, to int) error {
	if err := f.checkRange(from, to); err != nil {
		return err
	}
	f.from = from
	f.to = to
	return nil
}

func (f *TimeField) UnsetValue() {
	f.from = f.min
	f.to = f.max
}

func (f *TimeField) SetStep(step int) error {
	if err := checkStep(step); err != nil {
		return err
	}
	f.step = step
	return nil
}

func (f *TimeField) checkRange(from, to int) error {
	if from < f.min || from > f.max {
		return fmt.Errorf("%w: %d is not in the range %d to %d", ErrOutOfRange, from, f.min, f.max)
	}
	if to < f.min || to > f.max {
		return fmt.Errorf("%w: %d is not in the range %d to %d", ErrOutOfRange, to, f.min, f.max)
	}
	if from > to {
		return fmt.Errorf("%w: range %d-%d is reversed", ErrOutOfRange, from, to)
	}
	return nil
}

func checkStep(step int) error {
	if step < 1 {
		return fmt.Errorf("%w: the step must be greater than 0", ErrOutOfRange)
	}
	return nil
}

// Parse reads one list entry, e.g. "*", "5", "1-3", "*/2", "jan-apr/2".
// The field is left untouched when an error is returned.
func (f *TimeField) Parse(token string) error {
	value, stepText, hasStep := strings.Cut(token, "/")

	step := 1
	if hasStep {
		n, ok := atoi(stepText)
		if !ok {
			return fmt.Errorf("%w: bad step %q in %q", ErrFormat, stepText, token)
		}
		step = n
	}

	from, to := f.min, f.max
	if value != "*" {
		left, right, isRange := strings.Cut(value, "-")
		var err error
		if from, err = f.parseNumber(left, token); err != nil {
			return err
		}
		to = from
		if isRange {
			if to, err = f.parseNumber(right, token); err != nil {
				return err
			}
		}
		if err := f.checkRange(from, to); err != nil {
			return err
		}
	}

	if err := checkStep(step); err != nil {
		return err
	}

	f.from = from
	f.to = to
	f.step = step
	return nil
}

func (f *TimeField) parseNumber(s string, token string) (int, error) {
	n, ok := atoi(f.names.resolve(s))
	if !ok {
		return 0, fmt.Errorf("%w: bad value %q in %q", ErrFormat, s, token)
	}
	return n, nil
}

// atoi only accepts plain decimal digits; strconv.Atoi alone would let
// signs through.
func atoi(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

func (f *TimeField) Build() string {
	var val string
	switch {
	case !f.HasValue():
		val = "*"
	case f.IsRange():
		val = fmt.Sprintf("%d-%d", f.from, f.to)
	default:
		val = strconv.Itoa(f.from)
	}

	if f.step != 1 {
		val = fmt.Sprintf("%s/%d", val, f.step)
	}

	return val
}
