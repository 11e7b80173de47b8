package osm2graph

import (
	"math"

	"golang.org/x/exp/slices"
)

// TurnCost is a bounded cost of a turn
type TurnCost uint16

// TURN_COST_FORBIDDEN marks prohibited turn
const TURN_COST_FORBIDDEN = TurnCost(math.MaxUint16)

// IsForbidden checks reserved marker
func (cost TurnCost) IsForbidden() bool {
	return cost == TURN_COST_FORBIDDEN
}

// TurnCostEntry is a cost of moving from edge From to edge To through node Via
type TurnCostEntry struct {
	Via     NodeID
	From    EdgeID
	To      EdgeID
	Cost    TurnCost
	Classes VehicleClassSet
}

type turnKey struct {
	via  NodeID
	from EdgeID
	to   EdgeID
}

// turnCostTable collapses entries sharing (via, from, to)
type turnCostTable struct {
	entries map[turnKey]TurnCostEntry
}

func newTurnCostTable() *turnCostTable {
	return &turnCostTable{
		entries: make(map[turnKey]TurnCostEntry),
	}
}

// add merges entry: the highest cost wins and class sets are joined
func (table *turnCostTable) add(entry TurnCostEntry) {
	key := turnKey{via: entry.Via, from: entry.From, to: entry.To}
	existing, ok := table.entries[key]
	if !ok {
		table.entries[key] = entry
		return
	}
	if entry.Cost > existing.Cost {
		existing.Cost = entry.Cost
	}
	existing.Classes = existing.Classes.Union(entry.Classes)
	table.entries[key] = existing
}

func (table *turnCostTable) len() int {
	return len(table.entries)
}

// sorted returns entries ordered by via, from, to
func (table *turnCostTable) sorted() []TurnCostEntry {
	result := make([]TurnCostEntry, 0, len(table.entries))
	for _, entry := range table.entries {
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b TurnCostEntry) int {
		switch {
		case a.Via != b.Via:
			return compareOrdered(a.Via, b.Via)
		case a.From != b.From:
			return compareOrdered(a.From, b.From)
		default:
			return compareOrdered(a.To, b.To)
		}
	})
	return result
}

func compareOrdered[T NodeID | EdgeID](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
