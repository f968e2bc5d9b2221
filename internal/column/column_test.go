package column

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

func int32Value(v int32) bsoncore.Value {
	return bsoncore.Value{Type: bsontype.Int32, Data: bsoncore.AppendInt32(nil, v)}
}

func nullValue() bsoncore.Value {
	return bsoncore.Value{Type: bsontype.Null}
}

func TestFromDocument(t *testing.T) {
	doc := bsoncore.NewDocumentBuilder().
		AppendInt32("0", 10).
		AppendInt32("2", 30).
		Build()

	col, err := FromDocument(doc)
	require.NoError(t, err)

	assert.Equal(t, 2, col.Len())
	assert.Equal(t, []int{0, 2}, col.Indexes())

	v, ok := col.Value(0)
	require.True(t, ok)
	assert.EqualValues(t, 10, v.Int32())

	_, ok = col.Value(1)
	assert.False(t, ok, "gap rows have no value")

	v, ok = col.Value(2)
	require.True(t, ok)
	assert.EqualValues(t, 30, v.Int32())
}

func TestFromDocumentRejectsBadRowKeys(t *testing.T) {
	for _, key := range []string{"x", "-1", "1.5", ""} {
		doc := bsoncore.NewDocumentBuilder().AppendInt32(key, 1).Build()
		_, err := FromDocument(doc)
		require.ErrorIs(t, err, ErrInvalidColumn, "key %q", key)
	}
}

func TestBuilderRoundTrip(t *testing.T) {
	b := NewBuilder("a")
	b.Append(int32Value(1))
	b.Skip()
	b.Append(int32Value(3))
	require.Equal(t, 3, b.Len())

	blob, err := b.Finalize()
	require.NoError(t, err)

	col, err := Decode(blob)
	require.NoError(t, err)

	assert.Equal(t, 2, col.Len())
	assert.Equal(t, []int{0, 2}, col.Indexes())

	v, ok := col.Value(0)
	require.True(t, ok)
	assert.EqualValues(t, 1, v.Int32())

	_, ok = col.Value(1)
	assert.False(t, ok)

	v, ok = col.Value(2)
	require.True(t, ok)
	assert.EqualValues(t, 3, v.Int32())
}

func TestBuilderAppendAt(t *testing.T) {
	b := NewBuilder("a")
	require.NoError(t, b.AppendAt(2, int32Value(5)))
	require.NoError(t, b.AppendAt(5, int32Value(9)))

	err := b.AppendAt(3, int32Value(7))
	require.ErrorIs(t, err, ErrInvalidColumn, "out-of-order appends must be rejected")

	blob, err := b.Finalize()
	require.NoError(t, err)

	col, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5}, col.Indexes())
}

func TestDecodeMissingVersusNull(t *testing.T) {
	b := NewBuilder("a")
	b.Append(nullValue())
	b.Skip()

	blob, err := b.Finalize()
	require.NoError(t, err)

	col, err := Decode(blob)
	require.NoError(t, err)

	// A stored null is present; a skipped row is not.
	v, ok := col.Value(0)
	require.True(t, ok)
	assert.Equal(t, bsontype.Null, v.Type)

	_, ok = col.Value(1)
	assert.False(t, ok)
}

func TestDecodeRandomRepeatedAccess(t *testing.T) {
	b := NewBuilder("a")
	for i := int32(0); i < 10; i++ {
		b.Append(int32Value(i * i))
	}
	blob, err := b.Finalize()
	require.NoError(t, err)

	col, err := Decode(blob)
	require.NoError(t, err)

	for _, idx := range []int{7, 0, 7, 9, 3, 3, 0} {
		v, ok := col.Value(idx)
		require.True(t, ok)
		assert.EqualValues(t, idx*idx, v.Int32())
	}
}

func TestDecodeRejectsBadBlobs(t *testing.T) {
	_, err := Decode(nil)
	require.ErrorIs(t, err, ErrInvalidColumn)

	_, err = Decode([]byte("XX"))
	require.ErrorIs(t, err, ErrInvalidColumn)

	_, err = Decode([]byte("XXXXgarbage"))
	require.ErrorIs(t, err, ErrInvalidColumn)

	// Right magic, broken frame.
	_, err = Decode(append([]byte("CCB1"), 0xde, 0xad, 0xbe, 0xef))
	require.ErrorIs(t, err, ErrInvalidColumn)
}

func TestSetEncoderLevel(t *testing.T) {
	require.Error(t, SetEncoderLevel(-3))
	require.NoError(t, SetEncoderLevel(19))
	t.Cleanup(func() { require.NoError(t, SetEncoderLevel(3)) })

	b := NewBuilder("a")
	b.Append(int32Value(42))
	blob, err := b.Finalize()
	require.NoError(t, err)

	col, err := Decode(blob)
	require.NoError(t, err)
	v, ok := col.Value(0)
	require.True(t, ok)
	assert.EqualValues(t, 42, v.Int32())
}
