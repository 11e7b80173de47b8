package osm2graph

import (
	"math"

	"github.com/paulmach/osm"
)

// AttributeWord packs per-edge routing attributes.
//
// Layout (low to high): forward access per agent (3 bits), backward access per agent (3 bits),
// roundabout flag, reserved bit, highway type (8 bits), speed in km/h (8 bits).
type AttributeWord uint32

const (
	attrForwardShift  = 0
	attrBackwardShift = 3
	attrRoundabout    = AttributeWord(1 << 6)
	attrHighwayShift  = 8
	attrSpeedShift    = 16
	attrByteMask      = 0xFF
	attrAccessMask    = AttributeWord(0x3F)
)

func agentBit(agent AgentType) AttributeWord {
	if agent == AGENT_UNDEFINED {
		return 0
	}
	return AttributeWord(1 << (agent - 1))
}

// Forward reports whether agent may travel from edge source to edge target
func (attr AttributeWord) Forward(agent AgentType) bool {
	return attr&(agentBit(agent)<<attrForwardShift) != 0
}

// Backward reports whether agent may travel from edge target to edge source
func (attr AttributeWord) Backward(agent AgentType) bool {
	return attr&(agentBit(agent)<<attrBackwardShift) != 0
}

// Roundabout reports `junction=roundabout`
func (attr AttributeWord) Roundabout() bool {
	return attr&attrRoundabout != 0
}

// HighwayType returns encoded highway type
func (attr AttributeWord) HighwayType() HighwayType {
	return HighwayType((attr >> attrHighwayShift) & attrByteMask)
}

// Speed returns encoded speed (km/h)
func (attr AttributeWord) Speed() float64 {
	return float64((attr >> attrSpeedShift) & attrByteMask)
}

func (attr AttributeWord) withAccess(agent AgentType, forward, backward bool) AttributeWord {
	if forward {
		attr |= agentBit(agent) << attrForwardShift
	}
	if backward {
		attr |= agentBit(agent) << attrBackwardShift
	}
	return attr
}

func (attr AttributeWord) withHighwayType(highway HighwayType) AttributeWord {
	attr &^= attrByteMask << attrHighwayShift
	return attr | AttributeWord(highway)<<attrHighwayShift
}

func (attr AttributeWord) withSpeed(speed float64) AttributeWord {
	kmh := math.Round(speed)
	if kmh < 0 {
		kmh = 0
	}
	if kmh > attrByteMask {
		kmh = attrByteMask
	}
	attr &^= attrByteMask << attrSpeedShift
	return attr | AttributeWord(kmh)<<attrSpeedShift
}

// EdgeFilter decides whether an edge, seen from its base node, can be traversed
type EdgeFilter func(EdgeState) bool

// TagClassifier interprets way tags for the importer
type TagClassifier interface {
	// AcceptWay decides if way takes part in routing graph
	AcceptWay(tags osm.Tags) bool
	// WayAttributes encodes the attribute word for edges of the way
	WayAttributes(tags osm.Tags) AttributeWord
	// OutgoingFilter accepts edges leaving base node usable by any of given classes
	OutgoingFilter(classes VehicleClassSet) EdgeFilter
	// IncomingFilter accepts edges entering base node usable by any of given classes
	IncomingFilter(classes VehicleClassSet) EdgeFilter
}

// HighwayClassifier Allows to filter ways by certain tags from OSM data
type HighwayClassifier struct {
	EntityName string // Currrently we support 'highway' only
	Tags       []string
	Agents     []AgentType
}

// NewHighwayClassifier returns classifier accepting given highway values. Empty list means every known highway type
func NewHighwayClassifier(tags ...string) *HighwayClassifier {
	if len(tags) == 0 {
		tags = make([]string, 0, len(highwaysTypes))
		for tag := range highwaysTypes {
			tags = append(tags, tag)
		}
	}
	return &HighwayClassifier{
		EntityName: "highway",
		Tags:       tags,
		Agents:     agentTypesAll,
	}
}

// CheckTag Checks if incoming tag is represented in configuration
func (cfg *HighwayClassifier) CheckTag(tag string) bool {
	for i := range cfg.Tags {
		if cfg.Tags[i] == tag {
			return true
		}
	}
	return false
}

func (cfg *HighwayClassifier) AcceptWay(tags osm.Tags) bool {
	value := tags.Find(cfg.EntityName)
	if value == "" {
		return false
	}
	if _, ok := negligibleHighwayTags[value]; ok {
		return false
	}
	if !cfg.CheckTag(value) {
		return false
	}
	if tags.Find("area") == "yes" {
		return false
	}
	return cfg.WayAttributes(tags)&attrAccessMask != 0
}

func (cfg *HighwayClassifier) WayAttributes(tags osm.Tags) AttributeWord {
	var attr AttributeWord
	forward, backward := onewayDirections(tags)
	roundabout := false
	if _, ok := junctionTypes[tags.Find("junction")]; ok {
		roundabout = true
		attr |= attrRoundabout
	}
	allowed := getAllowableAgentType(tags)
	for _, agent := range allowed {
		if !cfg.hasAgent(agent) {
			continue
		}
		switch agent {
		case AGENT_WALK:
			attr = attr.withAccess(agent, true, true)
		case AGENT_BIKE:
			if tags.Find("oneway:bicycle") == "no" || tags.Find("cycleway") == "opposite" {
				attr = attr.withAccess(agent, true, true)
			} else {
				attr = attr.withAccess(agent, forward, backward)
			}
		default:
			attr = attr.withAccess(agent, forward, backward)
		}
	}
	highway := getHighwayType(tags.Find(cfg.EntityName))
	attr = attr.withHighwayType(highway)
	speed, ok := parseMaxSpeed(tags.Find("maxspeed"))
	if !ok {
		speed = highway.defaultSpeed()
		if roundabout && speed > 40 {
			speed = 40
		}
	}
	return attr.withSpeed(speed)
}

func (cfg *HighwayClassifier) OutgoingFilter(classes VehicleClassSet) EdgeFilter {
	agents := cfg.filterAgents(classes)
	return func(state EdgeState) bool {
		for _, agent := range agents {
			if state.Reversed && state.Attr.Backward(agent) || !state.Reversed && state.Attr.Forward(agent) {
				return true
			}
		}
		return false
	}
}

func (cfg *HighwayClassifier) IncomingFilter(classes VehicleClassSet) EdgeFilter {
	agents := cfg.filterAgents(classes)
	return func(state EdgeState) bool {
		for _, agent := range agents {
			if state.Reversed && state.Attr.Forward(agent) || !state.Reversed && state.Attr.Backward(agent) {
				return true
			}
		}
		return false
	}
}

func (cfg *HighwayClassifier) hasAgent(agent AgentType) bool {
	for _, a := range cfg.Agents {
		if a == agent {
			return true
		}
	}
	return false
}

// filterAgents returns configured agents concerned by the classes. Empty set means every agent
func (cfg *HighwayClassifier) filterAgents(classes VehicleClassSet) []AgentType {
	if classes.IsEmpty() {
		classes = CLASS_SET_ALL
	}
	agents := make([]AgentType, 0, len(cfg.Agents))
	for _, agent := range classes.Agents() {
		if cfg.hasAgent(agent) {
			agents = append(agents, agent)
		}
	}
	return agents
}

// onewayDirections returns allowed directions relative to the order of way nodes
func onewayDirections(tags osm.Tags) (forward, backward bool) {
	onewayText := tags.Find("oneway")
	switch onewayText {
	case "yes", "1", "true":
		return true, false
	case "-1", "reverse":
		return false, true
	case "no", "0", "false":
		return true, true
	case "":
		if _, ok := junctionTypes[tags.Find("junction")]; ok {
			return true, false
		}
		if getHighwayType(tags.Find("highway")) == HIGHWAY_MOTORWAY {
			return true, false
		}
		return true, true
	default:
		// Reversible or alternating ways depend on time conditions, treat them as two-way
		return true, true
	}
}
