package osm2graph

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Source provides the raw bytes of an extract. Every Open starts from the beginning
type Source interface {
	Open() (io.ReadCloser, error)
}

// FileSource reads extract from file system
type FileSource string

func (src FileSource) Open() (io.ReadCloser, error) {
	file, err := os.Open(string(src))
	if err != nil {
		return nil, errors.Wrapf(err, "Can't open file '%s'", string(src))
	}
	return file, nil
}

func (src FileSource) String() string {
	return string(src)
}

// BytesSource reads extract from memory
type BytesSource []byte

func (src BytesSource) Open() (io.ReadCloser, error) {
	return nopReaderAtCloser{bytes.NewReader(src)}, nil
}

type nopReaderAtCloser struct {
	*bytes.Reader
}

func (nopReaderAtCloser) Close() error {
	return nil
}

// SourceFunc adapts function to Source
type SourceFunc func() (io.ReadCloser, error)

func (fn SourceFunc) Open() (io.ReadCloser, error) {
	return fn()
}
