package tsbucket

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"

	"github.com/calyxdb/calyx/internal/column"
	"github.com/calyxdb/calyx/pkg/models"
)

// Bucket document field names.
const (
	controlFieldName = "control"
	versionFieldName = "version"
	metaFieldName    = "meta"
	dataFieldName    = "data"
)

// Bucket format versions: 1 stores plain row-keyed column documents, 2 stores
// compressed column blobs.
const (
	Version1 = 1
	Version2 = 2
)

type namedColumn struct {
	name   string
	col    column.Column
	isTime bool
}

// Unpacker is a forward cursor over one bucket. Construct it once per
// projection, then Reset it for every bucket to scan; Reset invalidates all
// prior iteration state. Not safe for concurrent use.
type Unpacker struct {
	spec        Spec
	behavior    Behavior
	includeMeta bool
	includeTime bool
	log         zerolog.Logger

	bucket  bson.Raw
	meta    bsoncore.Value
	hasMeta bool
	timeCol column.Column
	cols    []namedColumn
	rows    []int
	pos     int
}

// New builds an unpacker for the given projection. The spec's meta field is
// resolved (and stripped from the field set) here, once.
func New(spec Spec, behavior Behavior, log zerolog.Logger) *Unpacker {
	u := &Unpacker{
		spec:     spec,
		behavior: behavior,
		log:      log.With().Str("component", "bucket-unpacker").Logger(),
	}
	u.includeMeta = u.spec.ResolveMeta(behavior)
	u.includeTime = u.spec.IncludesTime(behavior)
	return u
}

// Spec returns the unpacker's resolved projection spec.
func (u *Unpacker) Spec() Spec {
	return u.spec
}

// Behavior returns the unpacker's projection behavior.
func (u *Unpacker) Behavior() Behavior {
	return u.behavior
}

// Reset loads a bucket and prepares iteration over its measurements. The
// bucket must stay unmodified while the unpacker holds it. Validation
// failures are reported here and never later: a nil return guarantees that
// Next and ExtractSingleMeasurement cannot fail for this bucket.
func (u *Unpacker) Reset(bucket bson.Raw) error {
	u.bucket = bucket
	u.meta = bsoncore.Value{}
	u.hasMeta = false
	u.timeCol = nil
	u.cols = nil
	u.rows = nil
	u.pos = 0

	doc := bsoncore.Document(bucket)

	control, err := doc.LookupErr(controlFieldName)
	if err != nil {
		return fmt.Errorf("%w: missing %q field", ErrMalformedBucket, controlFieldName)
	}
	if err := validateControl(control); err != nil {
		return err
	}

	if metaVal, err := doc.LookupErr(metaFieldName); err == nil {
		if u.spec.MetaField == "" {
			return fmt.Errorf("%w: found %v", ErrUnexpectedMeta, metaVal.Type)
		}
		if metaVal.Type == bsontype.Undefined {
			return fmt.Errorf("%w: field %q", ErrUndefinedMeta, u.spec.MetaField)
		}
		// Copied out so records handed to callers never alias bucket memory.
		u.meta = bsoncore.Value{Type: metaVal.Type, Data: append([]byte(nil), metaVal.Data...)}
		u.hasMeta = true
	}

	dataVal, err := doc.LookupErr(dataFieldName)
	if err != nil {
		return fmt.Errorf("%w: missing %q field", ErrMalformedBucket, dataFieldName)
	}
	dataDoc, ok := dataVal.DocumentOK()
	if !ok {
		return fmt.Errorf("%w: %q is %v, expected a document", ErrMalformedBucket, dataFieldName, dataVal.Type)
	}
	elems, err := dataDoc.Elements()
	if err != nil {
		return fmt.Errorf("%w: %q region: %v", ErrMalformedBucket, dataFieldName, err)
	}

	for _, elem := range elems {
		name := elem.Key()
		isTime := name == u.spec.TimeField
		include := u.spec.IncludesField(name, u.behavior)
		if isTime {
			include = u.includeTime
		}
		if !isTime && !include {
			continue
		}

		col, err := decodeColumn(elem.Value())
		if err != nil {
			return fmt.Errorf("%w: column %q: %v", ErrMalformedBucket, name, err)
		}
		if isTime {
			u.timeCol = col
			u.rows = col.Indexes()
		}
		if include {
			u.cols = append(u.cols, namedColumn{name: name, col: col, isTime: isTime})
		}
	}

	if len(elems) > 0 && u.timeCol == nil {
		return fmt.Errorf("%w: missing time column %q", ErrMalformedBucket, u.spec.TimeField)
	}

	u.log.Debug().
		Int("measurements", len(u.rows)).
		Int("columns", len(u.cols)).
		Bool("meta", u.hasMeta).
		Msg("Bucket loaded")
	return nil
}

// Count returns the number of measurements in the loaded bucket.
func (u *Unpacker) Count() int {
	return len(u.rows)
}

// HasNext reports whether another measurement remains.
func (u *Unpacker) HasNext() bool {
	return u.pos < len(u.rows)
}

// Next materializes the next measurement and advances the cursor. Rows are
// visited in ascending numeric row-key order regardless of how the bucket
// stored them. Calling Next on an exhausted (or never reset) unpacker is a
// programmer error and panics; callers must check HasNext first.
func (u *Unpacker) Next() models.Measurement {
	if u.pos >= len(u.rows) {
		panic("tsbucket: Next called on an exhausted unpacker")
	}
	row := u.rows[u.pos]
	u.pos++
	return u.materialize(row, true)
}

// ExtractSingleMeasurement materializes the i-th measurement (in row order)
// without touching the iteration cursor. Any order and any repetition of
// indexes is fine. An index outside [0, Count) is a programmer error and
// panics.
func (u *Unpacker) ExtractSingleMeasurement(i int) models.Measurement {
	if i < 0 || i >= len(u.rows) {
		panic(fmt.Sprintf("tsbucket: measurement index %d out of range [0, %d)", i, len(u.rows)))
	}
	return u.materialize(u.rows[i], false)
}

// materialize builds one measurement document for a row. The forward path
// emits time first, then meta, then the remaining columns in bucket order;
// the random-access path emits meta first and keeps time in its natural data
// position. Sparse columns without a value at this row are omitted.
func (u *Unpacker) materialize(row int, timeFirst bool) models.Measurement {
	idx, out := bsoncore.AppendDocumentStart(nil)

	if timeFirst {
		if u.includeTime {
			// The time column is dense over the row domain by construction.
			if v, ok := u.timeCol.Value(row); ok {
				out = bsoncore.AppendValueElement(out, u.spec.TimeField, v)
			}
		}
		out = u.appendMeta(out)
		for _, nc := range u.cols {
			if nc.isTime {
				continue
			}
			if v, ok := nc.col.Value(row); ok {
				out = bsoncore.AppendValueElement(out, nc.name, v)
			}
		}
	} else {
		out = u.appendMeta(out)
		for _, nc := range u.cols {
			if v, ok := nc.col.Value(row); ok {
				out = bsoncore.AppendValueElement(out, nc.name, v)
			}
		}
	}

	out, _ = bsoncore.AppendDocumentEnd(out, idx)
	return models.Measurement(out)
}

func (u *Unpacker) appendMeta(out []byte) []byte {
	if u.includeMeta && u.hasMeta {
		return bsoncore.AppendValueElement(out, u.spec.MetaField, u.meta)
	}
	return out
}

func validateControl(control bsoncore.Value) error {
	controlDoc, ok := control.DocumentOK()
	if !ok {
		return fmt.Errorf("%w: %q is %v, expected a document", ErrMalformedBucket, controlFieldName, control.Type)
	}
	versionVal, err := controlDoc.LookupErr(versionFieldName)
	if err != nil {
		return fmt.Errorf("%w: control block missing %q", ErrMalformedBucket, versionFieldName)
	}
	version, ok := versionVal.AsInt64OK()
	if !ok || (version != Version1 && version != Version2) {
		return fmt.Errorf("%w: unsupported bucket version %v", ErrMalformedBucket, versionVal)
	}
	return nil
}

// decodeColumn picks the column decoder by value shape: plain documents for
// version-1 columns, binary blobs for version-2.
func decodeColumn(v bsoncore.Value) (column.Column, error) {
	switch v.Type {
	case bsontype.EmbeddedDocument:
		doc, _ := v.DocumentOK()
		return column.FromDocument(doc)
	case bsontype.Binary:
		_, blob, _ := v.BinaryOK()
		return column.Decode(blob)
	default:
		return nil, fmt.Errorf("unexpected column type %v", v.Type)
	}
}
