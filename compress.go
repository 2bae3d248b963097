package etp

import (
	"bytes"
	"compress/gzip"
	"io"
	"sync"

	"github.com/pkg/errors"
)

var gzipWriters = sync.Pool{
	New: func() any {
		return gzip.NewWriter(nil)
	},
}

// compress gzips a message body.
func compress(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzipWriters.Get().(*gzip.Writer)
	defer gzipWriters.Put(gz)

	gz.Reset(&buf)
	if _, err := gz.Write(body); err != nil {
		return nil, errors.Wrap(err, "etp: compress body")
	}
	if err := gz.Close(); err != nil {
		return nil, errors.Wrap(err, "etp: compress body")
	}
	return buf.Bytes(), nil
}

// decompress reverses compress.
func decompress(body []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "etp: decompress body")
	}
	defer gz.Close()

	out, err := io.ReadAll(gz)
	if err != nil {
		return nil, errors.Wrap(err, "etp: decompress body")
	}
	return out, nil
}
