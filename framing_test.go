package osm2graph

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func TestDetectFraming(t *testing.T) {
	tests := []struct {
		name     string
		prefix   []byte
		expected Framing
	}{
		{"gzip", []byte{0x1F, 0x8B, 0x08, 0x00}, FRAMING_GZIP},
		{"zip", []byte("PK\x03\x04"), FRAMING_ZIP},
		{"zstd", []byte{0x28, 0xB5, 0x2F, 0xFD, 0x00}, FRAMING_ZSTD},
		{"xz", []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}, FRAMING_XZ},
		{"lz4", []byte{0x04, 0x22, 0x4D, 0x18}, FRAMING_LZ4},
		{"xml", []byte("<?xml"), FRAMING_RAW},
		{"pbf", []byte{0x00, 0x00, 0x00, 0x0D, 0x0A}, FRAMING_RAW},
		{"short", []byte{0x1F}, FRAMING_RAW},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, DetectFraming(tt.prefix), tt.name)
	}
}

func TestDetectEncoding(t *testing.T) {
	assert.Equal(t, ENCODING_XML, DetectEncoding([]byte("<?xml version=\"1.0\"?>")))
	assert.Equal(t, ENCODING_XML, DetectEncoding([]byte("\xEF\xBB\xBF  \n<osm>")))
	assert.Equal(t, ENCODING_PBF, DetectEncoding([]byte{0x00, 0x00, 0x00, 0x0E, 0x0A, 0x09}))
	assert.Equal(t, ENCODING_UNDEFINED, DetectEncoding(nil))
	assert.Equal(t, ENCODING_UNDEFINED, DetectEncoding([]byte(" \n\t")))
}

func compressTest(t *testing.T, framing Framing, data []byte) []byte {
	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch framing {
	case FRAMING_RAW:
		return data
	case FRAMING_GZIP:
		w = gzip.NewWriter(&buf)
	case FRAMING_ZSTD:
		w, err = zstd.NewWriter(&buf)
	case FRAMING_XZ:
		w, err = xz.NewWriter(&buf)
	case FRAMING_LZ4:
		w = lz4.NewWriter(&buf)
	case FRAMING_ZIP:
		archive := zip.NewWriter(&buf)
		_, err = archive.Create("extract/")
		require.NoError(t, err)
		entry, err := archive.Create("extract/map.osm")
		require.NoError(t, err)
		_, err = entry.Write(data)
		require.NoError(t, err)
		require.NoError(t, archive.Close())
		return buf.Bytes()
	default:
		t.Fatalf("no compressor for %s", framing)
	}
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestUnwrap(t *testing.T) {
	content := lineExtract().XML()
	for _, framing := range []Framing{FRAMING_RAW, FRAMING_GZIP, FRAMING_ZIP, FRAMING_ZSTD, FRAMING_XZ, FRAMING_LZ4} {
		t.Run(framing.String(), func(t *testing.T) {
			raw, err := BytesSource(compressTest(t, framing, content)).Open()
			require.NoError(t, err)
			u, err := unwrap(raw)
			require.NoError(t, err)
			defer u.Close()
			assert.Equal(t, framing, u.framing)
			assert.Equal(t, ENCODING_XML, u.encoding)
			got, err := io.ReadAll(u)
			require.NoError(t, err)
			assert.Equal(t, content, got)
		})
	}
}

func TestUnwrapZipWithoutReaderAt(t *testing.T) {
	content := lineExtract().XML()
	data := compressTest(t, FRAMING_ZIP, content)
	source := SourceFunc(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
	raw, err := source.Open()
	require.NoError(t, err)
	u, err := unwrap(raw)
	require.NoError(t, err)
	defer u.Close()
	got, err := io.ReadAll(u)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestUnwrapEmpty(t *testing.T) {
	raw, err := BytesSource(nil).Open()
	require.NoError(t, err)
	_, err = unwrap(raw)
	assert.True(t, errors.Is(err, ErrEmptySource))

	raw, err = BytesSource(compressTest(t, FRAMING_GZIP, nil)).Open()
	require.NoError(t, err)
	_, err = unwrap(raw)
	assert.True(t, errors.Is(err, ErrEmptySource))

	raw, err = BytesSource(compressTest(t, FRAMING_ZIP, []byte("   "))).Open()
	require.NoError(t, err)
	_, err = unwrap(raw)
	assert.True(t, errors.Is(err, ErrEmptySource))
}
