package column

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// Compressed column blob layout: 4-byte magic followed by a single zstd
// frame whose decompressed payload is a row-keyed column document.
var blobMagic = []byte("CCB1")

var (
	codecMu sync.Mutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
}

// SetEncoderLevel replaces the shared blob encoder with one using the given
// zstd compression level (1-22). Not safe to call concurrently with Finalize.
func SetEncoderLevel(level int) error {
	if level < 1 || level > 22 {
		return fmt.Errorf("column encoder level %d: out of range [1, 22]", level)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return fmt.Errorf("column encoder level %d: %w", level, err)
	}
	codecMu.Lock()
	encoder = enc
	codecMu.Unlock()
	return nil
}

// Decode builds a column from a compressed blob. The whole column is
// decompressed up front so that value lookups stay random-access.
func Decode(blob []byte) (Column, error) {
	if len(blob) < len(blobMagic) || !bytes.Equal(blob[:len(blobMagic)], blobMagic) {
		return nil, fmt.Errorf("%w: bad blob magic", ErrInvalidColumn)
	}

	payload, err := decoder.DecodeAll(blob[len(blobMagic):], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", ErrInvalidColumn, err)
	}

	doc := bsoncore.Document(payload)
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: decompressed payload: %v", ErrInvalidColumn, err)
	}
	return FromDocument(doc)
}

func compressDoc(doc []byte) []byte {
	codecMu.Lock()
	enc := encoder
	codecMu.Unlock()

	blob := make([]byte, len(blobMagic), len(blobMagic)+len(doc)/2)
	copy(blob, blobMagic)
	return enc.EncodeAll(doc, blob)
}
