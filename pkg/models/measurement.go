package models

import (
	"bytes"

	"go.mongodb.org/mongo-driver/bson"
)

// Measurement is a single reconstructed time-series document: the meta value
// (if projected), the time value, and every field the measurement carried at
// its row index. Fields are laid out in a deterministic order, so two
// measurements holding the same fields and values are byte-equal.
type Measurement bson.Raw

// Lookup returns the value stored under the given field name. The second
// return is false when the measurement has no such field.
func (m Measurement) Lookup(field string) (bson.RawValue, bool) {
	v, err := bson.Raw(m).LookupErr(field)
	if err != nil {
		return bson.RawValue{}, false
	}
	return v, true
}

// Has reports whether the measurement carries the given field.
func (m Measurement) Has(field string) bool {
	_, ok := m.Lookup(field)
	return ok
}

// Equal reports whether two measurements hold the same fields in the same
// order with the same values.
func (m Measurement) Equal(other Measurement) bool {
	return bytes.Equal(m, other)
}

// String renders the measurement as relaxed extended JSON.
func (m Measurement) String() string {
	return bson.Raw(m).String()
}
