package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func mustMeasurement(t *testing.T, doc bson.D) Measurement {
	t.Helper()
	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	return Measurement(raw)
}

func TestMeasurementLookup(t *testing.T) {
	m := mustMeasurement(t, bson.D{{Key: "time", Value: 1}, {Key: "a", Value: "x"}})

	v, ok := m.Lookup("a")
	require.True(t, ok)
	s, sok := v.StringValueOK()
	require.True(t, sok)
	assert.Equal(t, "x", s)

	_, ok = m.Lookup("missing")
	assert.False(t, ok)

	assert.True(t, m.Has("time"))
	assert.False(t, m.Has("b"))
}

func TestMeasurementEqual(t *testing.T) {
	a := mustMeasurement(t, bson.D{{Key: "time", Value: 1}, {Key: "a", Value: 2}})
	b := mustMeasurement(t, bson.D{{Key: "time", Value: 1}, {Key: "a", Value: 2}})
	c := mustMeasurement(t, bson.D{{Key: "a", Value: 2}, {Key: "time", Value: 1}})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c), "field order is part of identity")
}

func TestMeasurementString(t *testing.T) {
	m := mustMeasurement(t, bson.D{{Key: "a", Value: 1}})
	assert.Contains(t, m.String(), `"a"`)
}
