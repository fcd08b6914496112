package training

import (
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

// Expiry returns the date a course completed on completion stops being valid.
// A null validity means the course never expires and yields a null expiry whatever
// the completion date. Months are added calendar-wise with the day clamped to the end
// of the target month (see Date.AddMonths); a date-object rollover is never used.
func Expiry(completion Date, validityMonths null.Int) (NullDate, error) {
	if !validityMonths.Valid {
		return NullDate{}, nil
	}
	if validityMonths.Int <= 0 {
		return NullDate{}, errors.Wrapf(ErrInvalidMonths, "%d", validityMonths.Int)
	}
	exp, err := completion.AddMonths(validityMonths.Int)
	if err != nil {
		return NullDate{}, err
	}
	return DateFrom(exp), nil
}

// ExpiryFor derives the expiry of a record from its completion date.
// Records without a completion date never carry an expiry.
func ExpiryFor(completion NullDate, validityMonths null.Int) (NullDate, error) {
	if !completion.Valid {
		return NullDate{}, nil
	}
	return Expiry(completion.Date, validityMonths)
}
