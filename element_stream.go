package osm2graph

import (
	"context"
	"io"
	"runtime"
	"sync"

	"github.com/destel/rill"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"github.com/pkg/errors"
)

// OSMScanner is common part of osmxml and osmpbf scanners
type OSMScanner interface {
	Scan() bool
	Close() error
	Err() error
	Object() osm.Object
}

// MalformedFunc receives elements skipped by the stream
type MalformedFunc func(kind ElementKind, id int64, reason string)

// ElementStream is a restartable sequence of elements of a source.
// Each Open decodes the source from the beginning.
type ElementStream struct {
	source      Source
	procs       int
	buffer      int
	onMalformed MalformedFunc
}

// NewElementStream returns stream over source
func NewElementStream(source Source, options ...func(*ElementStream)) *ElementStream {
	stream := &ElementStream{
		source: source,
		procs:  runtime.GOMAXPROCS(-1),
		buffer: 1024,
	}
	for _, option := range options {
		option(stream)
	}
	return stream
}

// WithDecoderProcs sets number of goroutines decoding PBF blocks
func WithDecoderProcs(procs int) func(*ElementStream) {
	return func(stream *ElementStream) {
		if procs > 0 {
			stream.procs = procs
		}
	}
}

// WithStreamBuffer sets capacity of channel between decoder and consumer
func WithStreamBuffer(size int) func(*ElementStream) {
	return func(stream *ElementStream) {
		if size >= 0 {
			stream.buffer = size
		}
	}
}

// WithMalformedHandler sets callback for skipped elements
func WithMalformedHandler(fn MalformedFunc) func(*ElementStream) {
	return func(stream *ElementStream) {
		stream.onMalformed = fn
	}
}

// ReaderState is a position of ElementReader
type ReaderState uint8

const (
	READER_IDLE = ReaderState(iota + 1)
	READER_STREAMING
	READER_DRAINED
	READER_FAILED
	READER_CLOSED
)

func (iotaIdx ReaderState) String() string {
	return [...]string{"undefined", "idle", "streaming", "drained", "failed", "closed"}[iotaIdx]
}

// ElementReader is one pass over the stream
type ElementReader struct {
	state    ReaderState
	err      error
	framing  Framing
	encoding Encoding
	out      chan rill.Try[Element]
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
	scanner  OSMScanner
	content  *unwrapped
}

// Open starts a new pass over elements of given kinds
func (stream *ElementStream) Open(ctx context.Context, mask KindMask) (*ElementReader, error) {
	raw, err := stream.source.Open()
	if err != nil {
		return nil, err
	}
	content, err := unwrap(raw)
	if err != nil {
		return nil, err
	}
	var scanner OSMScanner
	switch content.encoding {
	case ENCODING_XML:
		scanner = osmxml.New(ctx, content)
	default:
		pbf := osmpbf.New(ctx, content, stream.procs)
		pbf.SkipNodes = !mask.Has(KIND_POINT)
		pbf.SkipWays = !mask.Has(KIND_WAY)
		pbf.SkipRelations = !mask.Has(KIND_RELATION)
		scanner = pbf
	}
	reader := &ElementReader{
		state:    READER_IDLE,
		framing:  content.framing,
		encoding: content.encoding,
		out:      make(chan rill.Try[Element], stream.buffer),
		done:     make(chan struct{}),
		scanner:  scanner,
		content:  content,
	}
	reader.wg.Add(1)
	go stream.produce(ctx, reader, mask)
	return reader, nil
}

func (stream *ElementStream) produce(ctx context.Context, reader *ElementReader, mask KindMask) {
	defer reader.wg.Done()
	defer close(reader.out)
	send := func(item rill.Try[Element]) bool {
		select {
		case reader.out <- item:
			return true
		case <-reader.done:
			return false
		case <-ctx.Done():
			return false
		}
	}
	for reader.scanner.Scan() {
		select {
		case <-reader.done:
			return
		default:
		}
		element, kind, id, reason := convertObject(reader.scanner.Object(), mask)
		if reason != "" {
			if stream.onMalformed != nil {
				stream.onMalformed(kind, id, reason)
			}
			continue
		}
		if element == nil {
			continue
		}
		if !send(rill.Try[Element]{Value: element}) {
			return
		}
	}
	if err := reader.scanner.Err(); err != nil && ctx.Err() == nil {
		send(rill.Try[Element]{Error: errors.Wrapf(err, "Can't decode %s stream", reader.encoding)})
	}
}

// convertObject converts decoded object. Returns nil element for objects out of mask
func convertObject(obj osm.Object, mask KindMask) (Element, ElementKind, int64, string) {
	switch o := obj.(type) {
	case *osm.Node:
		if !mask.Has(KIND_POINT) {
			return nil, KIND_POINT, int64(o.ID), ""
		}
		point, reason := pointFromOSM(o)
		if reason != "" {
			return nil, KIND_POINT, int64(o.ID), reason
		}
		return point, KIND_POINT, point.ID, ""
	case *osm.Way:
		if !mask.Has(KIND_WAY) {
			return nil, KIND_WAY, int64(o.ID), ""
		}
		way, reason := wayFromOSM(o)
		if reason != "" {
			return nil, KIND_WAY, int64(o.ID), reason
		}
		return way, KIND_WAY, way.ID, ""
	case *osm.Relation:
		if !mask.Has(KIND_RELATION) {
			return nil, KIND_RELATION, int64(o.ID), ""
		}
		relation, reason := relationFromOSM(o)
		if reason != "" {
			return nil, KIND_RELATION, int64(o.ID), reason
		}
		return relation, KIND_RELATION, relation.ID, ""
	default:
		return nil, KIND_UNDEFINED, 0, ""
	}
}

// Framing returns detected framing of the source
func (reader *ElementReader) Framing() Framing {
	return reader.framing
}

// Encoding returns detected content encoding of the source
func (reader *ElementReader) Encoding() Encoding {
	return reader.encoding
}

// State returns current position of the reader
func (reader *ElementReader) State() ReaderState {
	return reader.state
}

// Elements exposes underlying channel. It must not be mixed with Next
func (reader *ElementReader) Elements() <-chan rill.Try[Element] {
	reader.state = READER_STREAMING
	return reader.out
}

// Next returns next element or io.EOF when pass is over
func (reader *ElementReader) Next() (Element, error) {
	switch reader.state {
	case READER_DRAINED:
		return nil, io.EOF
	case READER_FAILED:
		return nil, reader.err
	case READER_CLOSED:
		return nil, errors.New("element reader is closed")
	}
	reader.state = READER_STREAMING
	item, ok := <-reader.out
	if !ok {
		reader.state = READER_DRAINED
		return nil, io.EOF
	}
	if item.Error != nil {
		reader.state = READER_FAILED
		reader.err = item.Error
		return nil, item.Error
	}
	return item.Value, nil
}

// Close stops decoding and releases source
func (reader *ElementReader) Close() error {
	var err error
	reader.once.Do(func() {
		close(reader.done)
		// decoder may be blocked on the full channel
		for range reader.out {
		}
		reader.wg.Wait()
		err = reader.scanner.Close()
		if cerr := reader.content.Close(); cerr != nil && err == nil {
			err = cerr
		}
		reader.state = READER_CLOSED
	})
	return err
}
