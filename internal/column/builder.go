package column

import (
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// Builder accumulates one field's values in row order and finalizes them into
// a compressed column blob. Rows without a value are skipped rather than
// stored; appends must arrive in ascending row order.
type Builder struct {
	name string
	next int
	idx  int32
	doc  []byte
}

// NewBuilder returns a builder for the named field.
func NewBuilder(name string) *Builder {
	b := &Builder{name: name}
	b.idx, b.doc = bsoncore.AppendDocumentStart(nil)
	return b
}

// Name returns the field name this builder was created for.
func (b *Builder) Name() string {
	return b.name
}

// Len returns the number of rows consumed so far, including skipped rows.
func (b *Builder) Len() int {
	return b.next
}

// Append stores a value at the next row index.
func (b *Builder) Append(v bsoncore.Value) {
	b.doc = bsoncore.AppendValueElement(b.doc, strconv.Itoa(b.next), v)
	b.next++
}

// AppendAt stores a value at the given row index, skipping any rows between
// the current position and the index. Indexes must arrive in ascending order.
func (b *Builder) AppendAt(index int, v bsoncore.Value) error {
	if index < b.next {
		return fmt.Errorf("%w: row index %d appended after %d", ErrInvalidColumn, index, b.next)
	}
	for b.next < index {
		b.Skip()
	}
	b.Append(v)
	return nil
}

// Skip advances past a row that holds no value for this field.
func (b *Builder) Skip() {
	b.next++
}

// Finalize closes the column and returns the compressed blob. The builder
// must not be reused afterwards.
func (b *Builder) Finalize() ([]byte, error) {
	doc, err := bsoncore.AppendDocumentEnd(b.doc, b.idx)
	if err != nil {
		return nil, fmt.Errorf("finalize column %q: %w", b.name, err)
	}
	return compressDoc(doc), nil
}
