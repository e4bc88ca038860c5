package service

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var integerString = regexp.MustCompile(`^-?\d+$`)

// Quantity is a carico/scarico value read from a request or a bundle.
// It accepts integers, integral floats and integer strings; null and the
// empty string mean zero.
type Quantity int64

// ParseQuantity converts a form value.
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if !integerString.MatchString(s) {
		return 0, ErrInvalidValue
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrInvalidValue
	}
	return Quantity(n), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*q = 0
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return ErrInvalidValue
		}
		v, err := ParseQuantity(s)
		if err != nil {
			return err
		}
		*q = v
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return ErrInvalidValue
	}
	if n, err := num.Int64(); err == nil {
		*q = Quantity(n)
		return nil
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return ErrInvalidValue
	}
	*q = Quantity(f)
	return nil
}
