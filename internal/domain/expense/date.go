package expense

import (
	"errors"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar date without a time component. It marshals as
// "YYYY-MM-DD" and accepts either that layout or a full RFC 3339 timestamp
// on input.
type Date struct {
	t time.Time
}

func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(raw string) (Date, error) {
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return NewDate(t), nil
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return NewDate(t), nil
	}

	return Date{}, errors.New("invalid date, expected YYYY-MM-DD")
}

func (d Date) Time() time.Time { return d.t }

func (d Date) IsZero() bool { return d.t.IsZero() }

func (d Date) String() string { return d.t.Format(dateLayout) }

func (d Date) Before(other Date) bool { return d.t.Before(other.t) }

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.t.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)

	if raw == "" || raw == "null" {
		return errors.New("date must not be empty")
	}

	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}

	*d = parsed
	return nil
}
