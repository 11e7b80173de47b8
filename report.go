package osm2graph

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Phase is an import pass
type Phase uint8

const (
	PHASE_CLASSIFY = Phase(iota + 1)
	PHASE_PLACE_NODES
	PHASE_BUILD_EDGES
	PHASE_RESOLVE_RELATIONS
	PHASE_UNDEFINED = Phase(0)
)

func (iotaIdx Phase) String() string {
	return [...]string{"undefined", "classify", "place_nodes", "build_edges", "resolve_relations"}[iotaIdx]
}

var phasesAll = []Phase{PHASE_CLASSIFY, PHASE_PLACE_NODES, PHASE_BUILD_EDGES, PHASE_RESOLVE_RELATIONS}

// DiagnosticKind is a category of recoverable import problem
type DiagnosticKind uint8

const (
	DIAG_MALFORMED = DiagnosticKind(iota + 1)
	DIAG_DANGLING_REF
	DIAG_OUT_OF_BOUNDS
	DIAG_DUPLICATE_POINT
	DIAG_SHORT_WAY
	DIAG_ZERO_LENGTH
	DIAG_UNSUPPORTED_RESTRICTION
	DIAG_UNRESOLVED_RESTRICTION
	DIAG_MIXED_ID_SIGNS
	DIAG_UNDEFINED = DiagnosticKind(0)
)

func (iotaIdx DiagnosticKind) String() string {
	return [...]string{"undefined", "malformed", "dangling_ref", "out_of_bounds", "duplicate_point", "short_way", "zero_length", "unsupported_restriction", "unresolved_restriction", "mixed_id_signs"}[iotaIdx]
}

// Diagnostic is a recoverable problem met during import
type Diagnostic struct {
	Phase       Phase
	Kind        DiagnosticKind
	ElementKind ElementKind
	ElementID   int64
	Message     string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s %s %d: %s", d.Phase, d.Kind, d.ElementKind, d.ElementID, d.Message)
}

// ElementCounts counts elements of one kind
type ElementCounts struct {
	Seen     int64
	Accepted int64
	Skipped  int64
}

// ImportReport summarizes import. It is produced even when import fails
type ImportReport struct {
	sync.Mutex

	Points    ElementCounts
	Ways      ElementCounts
	Relations ElementCounts

	Towers          int
	Pillars         int
	Promoted        int
	Edges           int
	ZeroLengthEdges int
	DanglingRefs    int
	TotalLength     float64

	Restrictions        int
	RestrictionsApplied int
	RestrictionsDropped int
	TurnCosts           int

	Framing     Framing
	Encoding    Encoding
	NegativeIDs bool
	// Incomplete is set when import stopped before the last pass finished. Sinks must be discarded
	Incomplete bool

	Durations        map[Phase]time.Duration
	Diagnostics      []Diagnostic
	DiagnosticCounts map[DiagnosticKind]int

	maxDiagnostics int
}

func newImportReport(maxDiagnostics int) *ImportReport {
	return &ImportReport{
		Durations:        make(map[Phase]time.Duration, len(phasesAll)),
		DiagnosticCounts: make(map[DiagnosticKind]int),
		maxDiagnostics:   maxDiagnostics,
	}
}

// addDiagnostic counts diagnostic and keeps it while list is not full
func (report *ImportReport) addDiagnostic(d Diagnostic) {
	report.Lock()
	defer report.Unlock()
	report.DiagnosticCounts[d.Kind]++
	if report.maxDiagnostics < 0 || len(report.Diagnostics) < report.maxDiagnostics {
		report.Diagnostics = append(report.Diagnostics, d)
	}
}

// Count returns number of diagnostics of given kind, including dropped ones
func (report *ImportReport) Count(kind DiagnosticKind) int {
	report.Lock()
	defer report.Unlock()
	return report.DiagnosticCounts[kind]
}

func (report *ImportReport) String() string {
	report.Lock()
	defer report.Unlock()
	var b strings.Builder
	fmt.Fprintf(&b, "Import report (%s/%s):\n", report.Framing, report.Encoding)
	fmt.Fprintf(&b, "\tpoints: %s seen, %s accepted, %s skipped\n", humanize.Comma(report.Points.Seen), humanize.Comma(report.Points.Accepted), humanize.Comma(report.Points.Skipped))
	fmt.Fprintf(&b, "\tways: %s seen, %s accepted, %s skipped\n", humanize.Comma(report.Ways.Seen), humanize.Comma(report.Ways.Accepted), humanize.Comma(report.Ways.Skipped))
	fmt.Fprintf(&b, "\trelations: %s seen, %s accepted, %s skipped\n", humanize.Comma(report.Relations.Seen), humanize.Comma(report.Relations.Accepted), humanize.Comma(report.Relations.Skipped))
	fmt.Fprintf(&b, "\ttowers: %s, pillars: %s, promoted: %s\n", humanize.Comma(int64(report.Towers)), humanize.Comma(int64(report.Pillars)), humanize.Comma(int64(report.Promoted)))
	fmt.Fprintf(&b, "\tedges: %s (%s zero length), total length: %s m\n", humanize.Comma(int64(report.Edges)), humanize.Comma(int64(report.ZeroLengthEdges)), humanize.CommafWithDigits(report.TotalLength, 1))
	fmt.Fprintf(&b, "\trestrictions: %s parsed, %s applied, %s dropped, %s turn costs\n", humanize.Comma(int64(report.Restrictions)), humanize.Comma(int64(report.RestrictionsApplied)), humanize.Comma(int64(report.RestrictionsDropped)), humanize.Comma(int64(report.TurnCosts)))
	for _, phase := range phasesAll {
		if d, ok := report.Durations[phase]; ok {
			fmt.Fprintf(&b, "\t%s: %v\n", phase, d)
		}
	}
	for kind := DIAG_MALFORMED; kind <= DIAG_MIXED_ID_SIGNS; kind++ {
		if n := report.DiagnosticCounts[kind]; n > 0 {
			fmt.Fprintf(&b, "\tdiagnostics %s: %s\n", kind, humanize.Comma(int64(n)))
		}
	}
	if report.Incomplete {
		b.WriteString("\tINCOMPLETE: result must be discarded\n")
	}
	return b.String()
}
