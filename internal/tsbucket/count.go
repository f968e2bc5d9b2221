package tsbucket

import (
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// Serialized sizes of a row-keyed datetime column: a document costs 5 bytes
// of framing, each entry costs a type byte, the decimal row key with its
// terminator, and an 8-byte datetime payload. Entry cost is therefore
// constant between consecutive powers of ten of the row key.
const (
	docFramingBytes  = 5
	entryFixedBytes  = 10
	maxTimeColumnLen = 16 << 20
)

type sizeBracket struct {
	count int // measurements at this bracket boundary
	size  int // serialized column size at that count
}

// sizeTable holds the cumulative column size at every power-of-ten count, up
// to the first boundary past the maximum column size. Built once; immutable.
var sizeTable = buildSizeTable()

func buildSizeTable() []sizeBracket {
	table := []sizeBracket{{count: 0, size: docFramingBytes}}
	count, size := 0, docFramingBytes
	for width := 1; size <= maxTimeColumnLen; width++ {
		n := 9 * pow10(width-1)
		if width == 1 {
			n = 10
		}
		count += n
		size += n * (entryFixedBytes + width)
		table = append(table, sizeBracket{count: count, size: size})
	}
	return table
}

func pow10(exp int) int {
	n := 1
	for i := 0; i < exp; i++ {
		n *= 10
	}
	return n
}

// MeasurementCount returns the exact number of measurements in an
// uncompressed bucket without decoding any column. It brackets the time
// column's serialized byte size between power-of-ten row-key widths, then
// recovers the count arithmetically inside the bracket. The time column must
// hold datetime values, whose fixed payload size the bracket table assumes.
func MeasurementCount(bucket bson.Raw, timeField string) (int, error) {
	doc := bsoncore.Document(bucket)

	if _, err := doc.LookupErr(controlFieldName); err != nil {
		return 0, fmt.Errorf("%w: missing %q field", ErrMalformedBucket, controlFieldName)
	}
	timeVal, err := doc.LookupErr(dataFieldName, timeField)
	if err != nil {
		return 0, fmt.Errorf("%w: missing time column %q", ErrMalformedBucket, timeField)
	}
	if timeVal.Type != bsontype.EmbeddedDocument {
		return 0, fmt.Errorf("%w: time column %q is %v, counting requires an uncompressed column",
			ErrMalformedBucket, timeField, timeVal.Type)
	}
	timeDoc, _ := timeVal.DocumentOK()
	target := len(timeDoc)

	i := sort.Search(len(sizeTable), func(i int) bool { return sizeTable[i].size >= target })
	if i < len(sizeTable) && sizeTable[i].size == target {
		return sizeTable[i].count, nil
	}
	if i == 0 || i == len(sizeTable) {
		return 0, fmt.Errorf("%w: time column size %d out of range", ErrMalformedBucket, target)
	}

	// Inside bracket i every entry has an i-digit row key.
	prev := sizeTable[i-1]
	perEntry := entryFixedBytes + i
	diff := target - prev.size
	if diff%perEntry != 0 {
		return 0, fmt.Errorf("%w: time column size %d does not align to %d-byte entries",
			ErrMalformedBucket, target, perEntry)
	}
	return prev.count + diff/perEntry, nil
}
