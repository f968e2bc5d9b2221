package tsbucket

import (
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"

	"github.com/calyxdb/calyx/internal/column"
)

// Compress rewrites a version-1 bucket into a version-2 bucket by encoding
// every data column as a compressed blob. Control fields other than the
// version tag and all non-data top-level fields are carried over unchanged.
// Buckets with row keys stored out of ascending order are rejected.
func Compress(bucket bson.Raw, timeField string) (bson.Raw, error) {
	doc := bsoncore.Document(bucket)
	elems, err := doc.Elements()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBucket, err)
	}

	idx, out := bsoncore.AppendDocumentStart(nil)
	for _, elem := range elems {
		switch elem.Key() {
		case controlFieldName:
			out, err = appendRewrittenControl(out, elem.Value())
		case dataFieldName:
			out, err = appendCompressedData(out, elem.Value())
		default:
			out = bsoncore.AppendValueElement(out, elem.Key(), elem.Value())
		}
		if err != nil {
			return nil, err
		}
	}
	out, err = bsoncore.AppendDocumentEnd(out, idx)
	if err != nil {
		return nil, fmt.Errorf("compress bucket: %w", err)
	}
	return bson.Raw(out), nil
}

func appendRewrittenControl(out []byte, control bsoncore.Value) ([]byte, error) {
	controlDoc, ok := control.DocumentOK()
	if !ok {
		return nil, fmt.Errorf("%w: %q is %v, expected a document", ErrMalformedBucket, controlFieldName, control.Type)
	}
	elems, err := controlDoc.Elements()
	if err != nil {
		return nil, fmt.Errorf("%w: control block: %v", ErrMalformedBucket, err)
	}

	cIdx, cOut := bsoncore.AppendDocumentElementStart(out, controlFieldName)
	for _, elem := range elems {
		if elem.Key() == versionFieldName {
			cOut = bsoncore.AppendInt32Element(cOut, versionFieldName, Version2)
			continue
		}
		cOut = bsoncore.AppendValueElement(cOut, elem.Key(), elem.Value())
	}
	return bsoncore.AppendDocumentEnd(cOut, cIdx)
}

func appendCompressedData(out []byte, data bsoncore.Value) ([]byte, error) {
	dataDoc, ok := data.DocumentOK()
	if !ok {
		return nil, fmt.Errorf("%w: %q is %v, expected a document", ErrMalformedBucket, dataFieldName, data.Type)
	}
	cols, err := dataDoc.Elements()
	if err != nil {
		return nil, fmt.Errorf("%w: %q region: %v", ErrMalformedBucket, dataFieldName, err)
	}

	dIdx, dOut := bsoncore.AppendDocumentElementStart(out, dataFieldName)
	for _, col := range cols {
		colDoc, ok := col.Value().DocumentOK()
		if !ok {
			return nil, fmt.Errorf("%w: column %q is %v, expected a document", ErrMalformedBucket, col.Key(), col.Value().Type)
		}
		rows, err := colDoc.Elements()
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", ErrMalformedBucket, col.Key(), err)
		}

		b := column.NewBuilder(col.Key())
		for _, row := range rows {
			rowIdx, err := strconv.Atoi(row.Key())
			if err != nil || rowIdx < 0 {
				return nil, fmt.Errorf("%w: column %q row key %q", ErrMalformedBucket, col.Key(), row.Key())
			}
			if err := b.AppendAt(rowIdx, row.Value()); err != nil {
				return nil, fmt.Errorf("%w: column %q: %v", ErrMalformedBucket, col.Key(), err)
			}
		}
		blob, err := b.Finalize()
		if err != nil {
			return nil, err
		}
		dOut = bsoncore.AppendBinaryElement(dOut, col.Key(), bsontype.BinaryGeneric, blob)
	}
	return bsoncore.AppendDocumentEnd(dOut, dIdx)
}
