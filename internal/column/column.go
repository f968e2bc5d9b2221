// Package column implements the columnar value codec used inside time-series
// buckets. A column maps small integer row indexes to BSON values for one
// field. Columns are stored either as a plain BSON document keyed by decimal
// row index (bucket version 1) or as a zstd-compressed binary blob holding
// the same document (bucket version 2).
package column

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// Column provides random access to one field's values within a bucket.
// Lookups may repeat and may arrive in any order; both are O(1) after
// construction. A missing entry is distinct from a stored BSON null.
type Column interface {
	// Value returns the value stored at the given row index. The second
	// return is false when the column has no entry at that index.
	Value(index int) (bsoncore.Value, bool)

	// Indexes returns the row indexes that hold a value, in ascending order.
	Indexes() []int

	// Len returns the number of stored values.
	Len() int
}

// ErrInvalidColumn indicates a column document or blob that cannot be decoded.
var ErrInvalidColumn = errors.New("invalid column encoding")

// docColumn backs both encodings: version 2 blobs decompress into the same
// keyed document that version 1 stores directly.
type docColumn struct {
	values map[int]bsoncore.Value
	sorted []int
}

// FromDocument builds a column from a plain row-keyed document.
func FromDocument(doc bsoncore.Document) (Column, error) {
	elems, err := doc.Elements()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidColumn, err)
	}

	c := &docColumn{values: make(map[int]bsoncore.Value, len(elems))}
	for _, elem := range elems {
		idx, err := strconv.Atoi(elem.Key())
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("%w: row key %q is not a non-negative integer", ErrInvalidColumn, elem.Key())
		}
		c.values[idx] = elem.Value()
		c.sorted = append(c.sorted, idx)
	}
	sort.Ints(c.sorted)
	return c, nil
}

func (c *docColumn) Value(index int) (bsoncore.Value, bool) {
	v, ok := c.values[index]
	return v, ok
}

func (c *docColumn) Indexes() []int {
	return c.sorted
}

func (c *docColumn) Len() int {
	return len(c.values)
}
