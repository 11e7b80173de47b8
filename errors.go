package osm2graph

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrEmptySource is returned when byte source holds no data
	ErrEmptySource = errors.New("source is empty")
	// ErrNoNodes is returned when no node has been placed after points pass
	ErrNoNodes = errors.New("osm must not be empty")
	// ErrMixedIDSigns is returned when points use both positive and negative ids
	ErrMixedIDSigns = errors.New("mixed positive and negative point ids")
	// ErrImportCanceled is returned when context is done during import
	ErrImportCanceled = errors.New("import canceled")

	ErrPillarInvalidated        = errors.New("pillar slot has been invalidated")
	ErrPillarOutOfRange         = errors.New("pillar index out of range")
	ErrClassificationRegression = errors.New("node classification regressed")
	ErrEdgeIDCollision          = errors.New("edge id collision")
	ErrIndexSealed              = errors.New("node index is sealed")
	ErrUnknownNode              = errors.New("unknown node")
)

// ImportError is a fatal import failure
type ImportError struct {
	Phase     Phase
	ElementID int64
	Err       error
}

func (e *ImportError) Error() string {
	if e.ElementID != 0 {
		return fmt.Sprintf("%s: element %d: %v", e.Phase, e.ElementID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *ImportError) Cause() error {
	return e.Err
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

func importError(phase Phase, elementID int64, err error) error {
	return &ImportError{Phase: phase, ElementID: elementID, Err: err}
}
