package osm2graph

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// RestrictionKind is an effect of turn restriction
type RestrictionKind uint8

const (
	RESTRICTION_FORBIDDEN = RestrictionKind(iota + 1)
	RESTRICTION_EXCLUSIVE_ALLOWED
	RESTRICTION_UNSUPPORTED = RestrictionKind(0)
)

func (iotaIdx RestrictionKind) String() string {
	return [...]string{"unsupported", "forbidden", "exclusive_allowed"}[iotaIdx]
}

var restrictionVocabulary = map[string]RestrictionKind{
	"no_left_turn":     RESTRICTION_FORBIDDEN,
	"no_right_turn":    RESTRICTION_FORBIDDEN,
	"no_straight_on":   RESTRICTION_FORBIDDEN,
	"no_u_turn":        RESTRICTION_FORBIDDEN,
	"only_left_turn":   RESTRICTION_EXCLUSIVE_ALLOWED,
	"only_right_turn":  RESTRICTION_EXCLUSIVE_ALLOWED,
	"only_straight_on": RESTRICTION_EXCLUSIVE_ALLOWED,
}

// RestrictionStage is a step of restriction processing
type RestrictionStage uint8

const (
	STAGE_PARSE = RestrictionStage(iota + 1)
	STAGE_VALIDATE
	STAGE_EXPAND
	STAGE_EMIT
)

func (iotaIdx RestrictionStage) String() string {
	return [...]string{"undefined", "parse", "validate", "expand", "emit"}[iotaIdx]
}

// TurnRestriction is a parsed restriction relation. One relation may produce several
// restrictions, one per restriction tag
type TurnRestriction struct {
	RelationID int64
	FromWay    int64
	Via        int64
	ToWay      int64
	Kind       RestrictionKind
	Value      string
	Classes    VehicleClassSet
}

// restrictionMembers extracts from/via/to members. Returns reason when members don't form a node restriction
func restrictionMembers(relation *Relation) (from, via, to int64, reason string) {
	for _, member := range relation.Members {
		switch member.Role {
		case "from":
			if member.Kind != KIND_WAY {
				return 0, 0, 0, "'from' member is not a way"
			}
			if from != 0 {
				return 0, 0, 0, "multiple 'from' members"
			}
			from = member.Ref
		case "to":
			if member.Kind != KIND_WAY {
				return 0, 0, 0, "'to' member is not a way"
			}
			if to != 0 {
				return 0, 0, 0, "multiple 'to' members"
			}
			to = member.Ref
		case "via":
			if member.Kind != KIND_POINT {
				return 0, 0, 0, "'via' member is not a point"
			}
			if via != 0 {
				return 0, 0, 0, "multiple 'via' members"
			}
			via = member.Ref
		case "location_hint":
		default:
			return 0, 0, 0, fmt.Sprintf("unknown role '%s' of member %d", member.Role, member.Ref)
		}
	}
	switch {
	case from == 0:
		return 0, 0, 0, "no 'from' member"
	case to == 0:
		return 0, 0, 0, "no 'to' member"
	case via == 0:
		return 0, 0, 0, "no 'via' member"
	}
	return from, via, to, ""
}

// isRestrictionRelation checks `type` tag. `type=restriction:<class>` scopes whole relation
func isRestrictionRelation(relation *Relation) (bool, VehicleClassSet) {
	if HasTagValue(relation, "type", "restriction") {
		return true, CLASS_SET_ALL
	}
	value := TagValue(relation, "type")
	if strings.HasPrefix(value, "restriction:") {
		class, ok := ParseVehicleClass(strings.TrimPrefix(value, "restriction:"))
		if !ok {
			return false, CLASS_SET_NONE
		}
		return true, NewVehicleClassSet(class)
	}
	return false, CLASS_SET_NONE
}

// ParseRestrictions parses relation into restrictions. Relations which are not restrictions return nothing.
// Returned messages describe skipped parts.
func ParseRestrictions(relation *Relation) ([]TurnRestriction, []string) {
	ok, scope := isRestrictionRelation(relation)
	if !ok {
		return nil, nil
	}
	from, via, to, reason := restrictionMembers(relation)
	if reason != "" {
		return nil, []string{reason}
	}
	var problems []string
	excepted := CLASS_SET_NONE
	if HasTag(relation, "except") {
		var unknown []string
		excepted, unknown = ParseVehicleClassSet(TagValue(relation, "except"))
		for _, name := range unknown {
			problems = append(problems, fmt.Sprintf("unknown class '%s' in 'except'", name))
		}
	}
	var restrictions []TurnRestriction
	for _, tag := range relation.Tags {
		classes := scope
		switch {
		case tag.Key == "restriction":
		case strings.HasPrefix(tag.Key, "restriction:"):
			class, ok := ParseVehicleClass(strings.TrimPrefix(tag.Key, "restriction:"))
			if !ok {
				problems = append(problems, fmt.Sprintf("unsupported tag '%s'", tag.Key))
				continue
			}
			classes = NewVehicleClassSet(class)
		default:
			continue
		}
		kind := restrictionVocabulary[tag.Value]
		if kind == RESTRICTION_UNSUPPORTED {
			problems = append(problems, fmt.Sprintf("unsupported value '%s=%s'", tag.Key, tag.Value))
			continue
		}
		classes = classes.Without(excepted)
		if classes.IsEmpty() {
			problems = append(problems, fmt.Sprintf("every class of '%s' is excepted", tag.Key))
			continue
		}
		restrictions = append(restrictions, TurnRestriction{
			RelationID: relation.ID,
			FromWay:    from,
			Via:        via,
			ToWay:      to,
			Kind:       kind,
			Value:      tag.Value,
			Classes:    classes,
		})
	}
	if len(restrictions) == 0 && len(problems) == 0 {
		problems = append(problems, "no restriction tag")
	}
	return restrictions, problems
}

// restrictionResolver turns restrictions into turn cost entries using edges built for restricted ways
type restrictionResolver struct {
	index      NodeIndex
	sink       GraphSink
	classifier TagClassifier
	wayEdges   map[int64][]EdgeID
	table      *turnCostTable
	report     *ImportReport
}

func newRestrictionResolver(index NodeIndex, sink GraphSink, classifier TagClassifier, wayEdges map[int64][]EdgeID, report *ImportReport) *restrictionResolver {
	return &restrictionResolver{
		index:      index,
		sink:       sink,
		classifier: classifier,
		wayEdges:   wayEdges,
		table:      newTurnCostTable(),
		report:     report,
	}
}

func (resolver *restrictionResolver) diagnose(kind DiagnosticKind, id int64, stage RestrictionStage, message string) {
	resolver.report.addDiagnostic(Diagnostic{
		Phase:       PHASE_RESOLVE_RELATIONS,
		Kind:        kind,
		ElementKind: KIND_RELATION,
		ElementID:   id,
		Message:     fmt.Sprintf("%s: %s", stage, message),
	})
}

// Resolve processes single relation. Returns false when relation produced no restriction
func (resolver *restrictionResolver) Resolve(relation *Relation) (bool, error) {
	restrictions, problems := ParseRestrictions(relation)
	for _, problem := range problems {
		resolver.diagnose(DIAG_UNSUPPORTED_RESTRICTION, relation.ID, STAGE_PARSE, problem)
	}
	applied := false
	for _, restriction := range restrictions {
		resolver.report.Restrictions++
		entries, err := resolver.expand(restriction)
		if err != nil {
			return applied, err
		}
		if entries == nil {
			resolver.report.RestrictionsDropped++
			continue
		}
		for _, entry := range entries {
			resolver.table.add(entry)
		}
		resolver.report.RestrictionsApplied++
		applied = true
	}
	return applied, nil
}

// expand validates restriction and produces its entries. Nil means restriction was dropped
func (resolver *restrictionResolver) expand(restriction TurnRestriction) ([]TurnCostEntry, error) {
	ref, ok, err := resolver.index.Lookup(restriction.Via)
	if err != nil {
		return nil, err
	}
	if !ok || !ref.IsTower() {
		resolver.diagnose(DIAG_UNRESOLVED_RESTRICTION, restriction.RelationID, STAGE_VALIDATE, fmt.Sprintf("via point %d is not a junction", restriction.Via))
		return nil, nil
	}
	via := ref.Tower()
	fromSet := edgeSet(resolver.wayEdges[restriction.FromWay])
	toSet := edgeSet(resolver.wayEdges[restriction.ToWay])
	incoming := resolver.classifier.IncomingFilter(restriction.Classes)
	outgoing := resolver.classifier.OutgoingFilter(restriction.Classes)

	var fromEdges []EdgeID
	var candidates []EdgeState
	toFound := false
	resolver.sink.Incident(via, func(state EdgeState) bool {
		if _, ok := fromSet[state.Edge]; ok && incoming(state) {
			fromEdges = append(fromEdges, state.Edge)
		}
		if _, ok := toSet[state.Edge]; ok {
			toFound = true
		}
		if outgoing(state) {
			candidates = append(candidates, state)
		}
		return true
	})
	if len(fromEdges) == 0 {
		resolver.diagnose(DIAG_UNRESOLVED_RESTRICTION, restriction.RelationID, STAGE_VALIDATE, fmt.Sprintf("way %d has no edge entering point %d", restriction.FromWay, restriction.Via))
		return nil, nil
	}
	if !toFound {
		resolver.diagnose(DIAG_UNRESOLVED_RESTRICTION, restriction.RelationID, STAGE_VALIDATE, fmt.Sprintf("way %d has no edge at point %d", restriction.ToWay, restriction.Via))
		return nil, nil
	}

	// no_u_turn from a way onto itself means turning back onto the very same edge.
	// Other values with from == to name a turn between two edges of that way
	uTurn := restriction.FromWay == restriction.ToWay && restriction.Value == "no_u_turn"
	entries := make([]TurnCostEntry, 0, len(candidates))
	for _, fromEdge := range fromEdges {
		for _, candidate := range candidates {
			_, matchesTo := toSet[candidate.Edge]
			switch {
			case uTurn:
				if candidate.Edge != fromEdge {
					continue
				}
			case candidate.Edge == fromEdge:
				continue
			case restriction.Kind == RESTRICTION_FORBIDDEN && !matchesTo:
				continue
			case restriction.Kind == RESTRICTION_EXCLUSIVE_ALLOWED && matchesTo:
				continue
			}
			entries = append(entries, TurnCostEntry{
				Via:     via,
				From:    fromEdge,
				To:      candidate.Edge,
				Cost:    TURN_COST_FORBIDDEN,
				Classes: restriction.Classes,
			})
		}
	}
	if len(entries) == 0 {
		resolver.diagnose(DIAG_UNRESOLVED_RESTRICTION, restriction.RelationID, STAGE_EXPAND, fmt.Sprintf("no turn at point %d matches restriction", restriction.Via))
		return nil, nil
	}
	return entries, nil
}

// flush writes collapsed entries to sink in stable order
func (resolver *restrictionResolver) flush() error {
	for _, entry := range resolver.table.sorted() {
		if err := resolver.sink.AddTurnCost(entry); err != nil {
			return errors.Wrapf(err, "%s: can't add turn cost %d -> %d at %d", STAGE_EMIT, entry.From, entry.To, entry.Via)
		}
		resolver.report.TurnCosts++
	}
	return nil
}

func edgeSet(edges []EdgeID) map[EdgeID]struct{} {
	set := make(map[EdgeID]struct{}, len(edges))
	for _, edge := range edges {
		set[edge] = struct{}{}
	}
	return set
}
