package domain

import (
	"math"
	"strconv"
	"strings"
)

// Value is a volume that is either numeric or explicitly blank.
// Numeric zero and blank are different states.
type Value struct {
	num     float64
	present bool
}

// Numeric returns a present numeric value. NaN is treated as blank.
func Numeric(v float64) Value {
	if math.IsNaN(v) {
		return Value{}
	}
	return Value{num: v, present: true}
}

// Blank returns an absent value.
func Blank() Value {
	return Value{}
}

// IsBlank reports whether the value is absent.
func (v Value) IsBlank() bool {
	return !v.present
}

// IsZero reports whether the value is present and equal to zero.
func (v Value) IsZero() bool {
	return v.present && v.num == 0
}

// Float returns the numeric value and whether it is present.
func (v Value) Float() (float64, bool) {
	return v.num, v.present
}

// OrZero returns the numeric value, or zero when blank.
func (v Value) OrZero() float64 {
	if !v.present {
		return 0
	}
	return v.num
}

// SQL returns the driver value: nil for blank, float64 otherwise.
func (v Value) SQL() any {
	if !v.present {
		return nil
	}
	return v.num
}

func (v Value) String() string {
	if !v.present {
		return ""
	}
	return strconv.FormatFloat(v.num, 'f', -1, 64)
}

// ParseValue converts a raw cell into a Value. Empty or whitespace is blank.
func ParseValue(raw string) (Value, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Blank(), nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		return Blank(), err
	}
	return Numeric(f), nil
}

// ValueFromDB classifies a stored column value. Null and all-whitespace
// strings are blank; text that does not parse as a number is blank too.
func ValueFromDB(raw any) Value {
	switch v := raw.(type) {
	case nil:
		return Blank()
	case float64:
		return Numeric(v)
	case float32:
		return Numeric(float64(v))
	case int64:
		return Numeric(float64(v))
	case int32:
		return Numeric(float64(v))
	case int:
		return Numeric(float64(v))
	case []byte:
		return ValueFromDB(string(v))
	case string:
		parsed, err := ParseValue(v)
		if err != nil {
			return Blank()
		}
		return parsed
	default:
		return Blank()
	}
}
