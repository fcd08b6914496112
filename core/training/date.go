package training

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

const isoLayout = "2006-01-02"

// Date is a civil calendar date with no time or zone.
// It may hold a triple that is not a real calendar day (e.g. 31/02/2024) so that
// such input can be reported instead of silently normalised; use IsValid before arithmetic.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseISODate parses a yyyy-mm-dd string and checks it against the calendar.
func ParseISODate(s string) (Date, error) {
	t, err := time.Parse(isoLayout, s)
	if err != nil {
		return Date{}, errors.Wrapf(ErrInvalidDate, "parsing %q", s)
	}
	return DateOf(t), nil
}

// DaysIn returns the number of days of month in year.
func DaysIn(year int, month time.Month) int {
	switch month {
	case time.April, time.June, time.September, time.November:
		return 30
	case time.February:
		if isLeap(year) {
			return 29
		}
		return 28
	default:
		return 31
	}
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func (d Date) IsZero() bool { return d == Date{} }

// IsValid reports whether d names a real calendar day.
func (d Date) IsValid() bool {
	if d.Year < 1 || d.Month < time.January || d.Month > time.December {
		return false
	}
	return d.Day >= 1 && d.Day <= DaysIn(d.Year, d.Month)
}

// AddMonths adds months to d, carrying into the year and clamping the day to the
// last day of the target month when it does not exist there (31 Jan + 1 => 28/29 Feb).
func (d Date) AddMonths(months int) (Date, error) {
	if !d.IsValid() {
		return Date{}, errors.Wrapf(ErrInvalidDate, "%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
	}
	total := int(d.Month) - 1 + months
	year := d.Year + total/12
	m := total % 12
	if m < 0 {
		m += 12
		year--
	}
	month := time.Month(m + 1)

	day := d.Day
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return Date{Year: year, Month: month, Day: day}, nil
}

func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// DMY formats d the way matrices write dates (dd/mm/yyyy).
func (d Date) DMY() string {
	return fmt.Sprintf("%02d/%02d/%04d", d.Day, int(d.Month), d.Year)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseISODate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// NullDate is a nullable Date.
type NullDate struct {
	Date  Date
	Valid bool
}

func DateFrom(d Date) NullDate { return NullDate{Date: d, Valid: true} }

func (n NullDate) Equal(o NullDate) bool {
	if n.Valid != o.Valid {
		return false
	}
	return !n.Valid || n.Date == o.Date
}

func (n NullDate) String() string {
	if !n.Valid {
		return "null"
	}
	return n.Date.String()
}

func (n NullDate) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return n.Date.MarshalJSON()
}

func (n *NullDate) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NullDate{}
		return nil
	}
	if err := n.Date.UnmarshalJSON(data); err != nil {
		return err
	}
	n.Valid = true
	return nil
}
