package tsbucket

import "errors"

// Bucket validation errors. All of them surface synchronously from Reset (or
// from MeasurementCount); iteration over a successfully reset unpacker never
// fails.
var (
	// ErrMalformedBucket indicates a bucket missing its control block, its
	// data block, or the time column inside a non-empty data block.
	ErrMalformedBucket = errors.New("malformed time-series bucket")

	// ErrUndefinedMeta indicates a bucket whose meta value is the BSON
	// undefined sentinel.
	ErrUndefinedMeta = errors.New("bucket meta value is undefined")

	// ErrUnexpectedMeta indicates a bucket that carries a meta value while
	// the projection declares no meta field.
	ErrUnexpectedMeta = errors.New("bucket carries a meta value but no meta field is configured")
)
