package osm2graph

import (
	"math"

	"github.com/paulmach/osm"
)

// ElementKind is a kind of source element
type ElementKind uint8

const (
	KIND_POINT = ElementKind(iota + 1)
	KIND_WAY
	KIND_RELATION
	KIND_UNDEFINED = ElementKind(0)
)

func (iotaIdx ElementKind) String() string {
	return [...]string{"undefined", "point", "way", "relation"}[iotaIdx]
}

// Mask returns single-kind mask
func (iotaIdx ElementKind) Mask() KindMask {
	if iotaIdx == KIND_UNDEFINED {
		return 0
	}
	return KindMask(1 << (iotaIdx - 1))
}

// KindMask selects element kinds for a single pass over the stream
type KindMask uint8

const (
	MASK_POINTS    = KindMask(1 << 0)
	MASK_WAYS      = KindMask(1 << 1)
	MASK_RELATIONS = KindMask(1 << 2)
	MASK_ALL       = MASK_POINTS | MASK_WAYS | MASK_RELATIONS
)

// Has reports whether kind is selected
func (mask KindMask) Has(kind ElementKind) bool {
	return mask&kind.Mask() != 0
}

// elementKindFromOSM maps member type onto element kind
func elementKindFromOSM(t osm.Type) ElementKind {
	switch t {
	case osm.TypeNode:
		return KIND_POINT
	case osm.TypeWay:
		return KIND_WAY
	case osm.TypeRelation:
		return KIND_RELATION
	default:
		return KIND_UNDEFINED
	}
}

// Element is one of *Point, *Way, *Relation
type Element interface {
	Kind() ElementKind
	ExternalID() int64
	TagList() osm.Tags
}

// Point is a source node with coordinates
type Point struct {
	ID  int64
	Lat float64
	Lon float64
	// Ele is NaN when the source carries no elevation
	Ele  float64
	Tags osm.Tags
}

func (p *Point) Kind() ElementKind  { return KIND_POINT }
func (p *Point) ExternalID() int64  { return p.ID }
func (p *Point) TagList() osm.Tags  { return p.Tags }
func (p *Point) GeoPoint() GeoPoint { return GeoPoint{Lat: p.Lat, Lon: p.Lon, Ele: p.Ele} }

// Way is an ordered list of point references
type Way struct {
	ID      int64
	NodeIDs []int64
	Tags    osm.Tags
}

func (w *Way) Kind() ElementKind { return KIND_WAY }
func (w *Way) ExternalID() int64 { return w.ID }
func (w *Way) TagList() osm.Tags { return w.Tags }

// Member is a relation member
type Member struct {
	Kind ElementKind
	Ref  int64
	Role string
}

// Relation is an ordered list of members
type Relation struct {
	ID      int64
	Members []Member
	Tags    osm.Tags
}

func (r *Relation) Kind() ElementKind { return KIND_RELATION }
func (r *Relation) ExternalID() int64 { return r.ID }
func (r *Relation) TagList() osm.Tags { return r.Tags }

// TagValue returns value of the tag or empty string
func TagValue(e Element, key string) string {
	return e.TagList().Find(key)
}

// HasTag checks if element carries given key
func HasTag(e Element, key string) bool {
	return e.TagList().HasTag(key)
}

// HasTagValue checks if element carries key with one of given values
func HasTagValue(e Element, key string, values ...string) bool {
	v := e.TagList().Find(key)
	if v == "" {
		return false
	}
	for i := range values {
		if values[i] == v {
			return true
		}
	}
	return false
}

// wayName joins name and ref the way routing engines usually display them
func wayName(tags osm.Tags) string {
	name := tags.Find("name")
	ref := tags.Find("ref")
	switch {
	case name == "":
		return ref
	case ref == "":
		return name
	default:
		return name + ", " + ref
	}
}

// pointFromOSM converts decoded node. Returns reason on malformed node
func pointFromOSM(node *osm.Node) (*Point, string) {
	if node.ID == 0 {
		return nil, "point without id"
	}
	if !validCoordinates(node.Lat, node.Lon) {
		return nil, "point with invalid coordinates"
	}
	ele := math.NaN()
	if v := node.Tags.Find("ele"); v != "" {
		if parsed, ok := parseElevation(v); ok {
			ele = parsed
		}
	}
	return &Point{ID: int64(node.ID), Lat: node.Lat, Lon: node.Lon, Ele: ele, Tags: node.Tags}, ""
}

// wayFromOSM converts decoded way. Returns reason on malformed way
func wayFromOSM(way *osm.Way) (*Way, string) {
	if way.ID == 0 {
		return nil, "way without id"
	}
	if len(way.Nodes) == 0 {
		return nil, "way without node references"
	}
	ids := make([]int64, 0, len(way.Nodes))
	for _, node := range way.Nodes {
		if node.ID == 0 {
			return nil, "way references point without id"
		}
		ids = append(ids, int64(node.ID))
	}
	return &Way{ID: int64(way.ID), NodeIDs: ids, Tags: way.Tags}, ""
}

// relationFromOSM converts decoded relation. Returns reason on malformed relation
func relationFromOSM(relation *osm.Relation) (*Relation, string) {
	if relation.ID == 0 {
		return nil, "relation without id"
	}
	members := make([]Member, 0, len(relation.Members))
	for _, member := range relation.Members {
		kind := elementKindFromOSM(member.Type)
		if kind == KIND_UNDEFINED {
			return nil, "relation member of unknown kind '" + string(member.Type) + "'"
		}
		if member.Ref == 0 {
			return nil, "relation member without reference"
		}
		members = append(members, Member{Kind: kind, Ref: member.Ref, Role: member.Role})
	}
	return &Relation{ID: int64(relation.ID), Members: members, Tags: relation.Tags}, ""
}
