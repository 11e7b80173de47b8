package osm2graph

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

// Framing is a transport-level wrapping of the extract
type Framing uint8

const (
	FRAMING_RAW = Framing(iota + 1)
	FRAMING_GZIP
	FRAMING_ZIP
	FRAMING_ZSTD
	FRAMING_XZ
	FRAMING_LZ4
	FRAMING_UNDEFINED = Framing(0)
)

func (iotaIdx Framing) String() string {
	return [...]string{"undefined", "raw", "gzip", "zip", "zstd", "xz", "lz4"}[iotaIdx]
}

// Encoding is a content format of unwrapped extract
type Encoding uint8

const (
	ENCODING_XML = Encoding(iota + 1)
	ENCODING_PBF
	ENCODING_UNDEFINED = Encoding(0)
)

func (iotaIdx Encoding) String() string {
	return [...]string{"undefined", "xml", "pbf"}[iotaIdx]
}

var (
	magicGzip = []byte{0x1F, 0x8B}
	magicZip  = []byte{'P', 'K'}
	magicZstd = []byte{0x28, 0xB5, 0x2F, 0xFD}
	magicXz   = []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}
	magicLz4  = []byte{0x04, 0x22, 0x4D, 0x18}

	utf8BOM = []byte{0xEF, 0xBB, 0xBF}
)

const magicPrefixLength = 6

// DetectFraming inspects magic prefix
func DetectFraming(prefix []byte) Framing {
	switch {
	case bytes.HasPrefix(prefix, magicGzip):
		return FRAMING_GZIP
	case bytes.HasPrefix(prefix, magicZip):
		return FRAMING_ZIP
	case bytes.HasPrefix(prefix, magicZstd):
		return FRAMING_ZSTD
	case bytes.HasPrefix(prefix, magicXz):
		return FRAMING_XZ
	case bytes.HasPrefix(prefix, magicLz4):
		return FRAMING_LZ4
	default:
		return FRAMING_RAW
	}
}

// DetectEncoding inspects first bytes of unwrapped content. XML starts with '<' after optional BOM and spaces
func DetectEncoding(prefix []byte) Encoding {
	prefix = bytes.TrimPrefix(prefix, utf8BOM)
	prefix = bytes.TrimLeft(prefix, " \t\r\n")
	if len(prefix) == 0 {
		return ENCODING_UNDEFINED
	}
	if prefix[0] == '<' {
		return ENCODING_XML
	}
	return ENCODING_PBF
}

type readerAtStat interface {
	io.ReaderAt
	Stat() (os.FileInfo, error)
}

type readerAtSize interface {
	io.ReaderAt
	Size() int64
}

// unwrapped is decoded content of extract with everything that must be closed
type unwrapped struct {
	*bufio.Reader
	framing  Framing
	encoding Encoding
	closers  []io.Closer
}

func (u *unwrapped) Close() error {
	var err error
	for i := len(u.closers) - 1; i >= 0; i-- {
		if cerr := u.closers[i].Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// unwrap detects framing of raw, strips it and detects content encoding
func unwrap(raw io.ReadCloser) (*unwrapped, error) {
	result := &unwrapped{closers: []io.Closer{raw}}
	buffered := bufio.NewReaderSize(raw, 1<<16)
	prefix, err := buffered.Peek(magicPrefixLength)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		result.Close()
		return nil, errors.Wrap(err, "Can't read source prefix")
	}
	if len(prefix) == 0 {
		result.Close()
		return nil, ErrEmptySource
	}
	result.framing = DetectFraming(prefix)
	var content io.Reader
	switch result.framing {
	case FRAMING_GZIP:
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			result.Close()
			return nil, errors.Wrap(err, "Can't open gzip stream")
		}
		result.closers = append(result.closers, gz)
		content = gz
	case FRAMING_ZIP:
		entry, err := openZipEntry(raw, buffered)
		if err != nil {
			result.Close()
			return nil, err
		}
		result.closers = append(result.closers, entry)
		content = entry
	case FRAMING_ZSTD:
		zr, err := zstd.NewReader(buffered)
		if err != nil {
			result.Close()
			return nil, errors.Wrap(err, "Can't open zstd stream")
		}
		rc := zr.IOReadCloser()
		result.closers = append(result.closers, rc)
		content = rc
	case FRAMING_XZ:
		xr, err := xz.NewReader(buffered)
		if err != nil {
			result.Close()
			return nil, errors.Wrap(err, "Can't open xz stream")
		}
		content = xr
	case FRAMING_LZ4:
		content = lz4.NewReader(buffered)
	}
	if content == nil {
		result.Reader = buffered
	} else {
		result.Reader = bufio.NewReaderSize(content, 1<<16)
	}
	inner, err := result.Reader.Peek(64)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		result.Close()
		return nil, errors.Wrapf(err, "Can't read %s content", result.framing)
	}
	result.encoding = DetectEncoding(inner)
	if result.encoding == ENCODING_UNDEFINED {
		result.Close()
		return nil, ErrEmptySource
	}
	return result, nil
}

// openZipEntry opens first regular file of zip archive
func openZipEntry(raw io.ReadCloser, buffered *bufio.Reader) (io.ReadCloser, error) {
	var (
		readerAt io.ReaderAt
		size     int64
	)
	switch r := raw.(type) {
	case readerAtStat:
		info, err := r.Stat()
		if err != nil {
			return nil, errors.Wrap(err, "Can't stat zip archive")
		}
		readerAt, size = r, info.Size()
	case readerAtSize:
		readerAt, size = r, r.Size()
	default:
		data, err := io.ReadAll(buffered)
		if err != nil {
			return nil, errors.Wrap(err, "Can't read zip archive")
		}
		readerAt, size = bytes.NewReader(data), int64(len(data))
	}
	archive, err := zip.NewReader(readerAt, size)
	if err != nil {
		return nil, errors.Wrap(err, "Can't open zip archive")
	}
	for _, file := range archive.File {
		if file.FileInfo().IsDir() {
			continue
		}
		entry, err := file.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "Can't open zip entry '%s'", file.Name)
		}
		return entry, nil
	}
	return nil, errors.Wrap(ErrEmptySource, "zip archive has no files")
}
