package tsbucket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

func TestCompressRewritesVersionAndColumns(t *testing.T) {
	compressed := compressedBucket(t, twoRowBucket(t))

	version, err := bson.Raw(compressed).LookupErr("control", "version")
	require.NoError(t, err)
	assert.EqualValues(t, Version2, version.Int32())

	// Meta survives untouched; every data column becomes a binary blob.
	meta, err := bson.Raw(compressed).LookupErr("meta")
	require.NoError(t, err)
	assert.Equal(t, bsontype.EmbeddedDocument, meta.Type)

	data, err := bson.Raw(compressed).LookupErr("data")
	require.NoError(t, err)
	elems, err := data.Document().Elements()
	require.NoError(t, err)
	require.Len(t, elems, 4)
	for _, elem := range elems {
		assert.Equal(t, bsontype.Binary, elem.Value().Type, "column %q", elem.Key())
	}
}

func TestCompressPreservesExtraControlFields(t *testing.T) {
	bucket := rawDoc(t, bson.D{
		{Key: "control", Value: bson.D{{Key: "version", Value: 1}, {Key: "min", Value: bson.D{{Key: "time", Value: 1}}}}},
		{Key: "data", Value: bson.D{
			{Key: "time", Value: bson.D{{Key: "0", Value: 1}}},
		}},
	})

	compressed := compressedBucket(t, bucket)
	minVal, err := bson.Raw(compressed).LookupErr("control", "min", "time")
	require.NoError(t, err)
	assert.EqualValues(t, 1, minVal.Int32())
}

func TestCompressRejectsUnorderedRowKeys(t *testing.T) {
	bucket := rawDoc(t, bson.D{
		{Key: "control", Value: bson.D{{Key: "version", Value: 1}}},
		{Key: "data", Value: bson.D{
			{Key: "time", Value: bson.D{{Key: "1", Value: 1}, {Key: "0", Value: 2}}},
		}},
	})

	_, err := Compress(bucket, testTimeField)
	require.ErrorIs(t, err, ErrMalformedBucket)
}

func TestCompressRejectsNonDocumentColumn(t *testing.T) {
	bucket := rawDoc(t, bson.D{
		{Key: "control", Value: bson.D{{Key: "version", Value: 1}}},
		{Key: "data", Value: bson.D{
			{Key: "time", Value: 42},
		}},
	})

	_, err := Compress(bucket, testTimeField)
	require.ErrorIs(t, err, ErrMalformedBucket)
}
