package osm2graph

import (
	"github.com/paulmach/osm"
)

// AgentType is a traveller kind the classifier grants access to
type AgentType uint16

const (
	AGENT_AUTO = AgentType(iota + 1)
	AGENT_BIKE
	AGENT_WALK
	AGENT_UNDEFINED = AgentType(0)
)

func (iotaIdx AgentType) String() string {
	return [...]string{"undefined", "auto", "bike", "walk"}[iotaIdx]
}

// AccessType is a tag key taking part in access decision
type AccessType uint16

const (
	ACCESS_HIGHWAY = AccessType(iota + 1)
	ACCESS_MOTOR_VEHICLE
	ACCESS_MOTORCAR
	ACCESS_OSM_ACCESS
	ACCESS_SERVICE
	ACCESS_BICYCLE
	ACCESS_FOOT
	ACCESS_UNDEFINED = AccessType(0)
)

func (iotaIdx AccessType) String() string {
	return [...]string{"undefined", "highway", "motor_vehicle", "motorcar", "access", "service", "bicycle", "foot"}[iotaIdx]
}

var (
	agentTypesAll = []AgentType{AGENT_AUTO, AGENT_BIKE, AGENT_WALK}

	agentsAccessIncludeValues = map[AgentType]map[AccessType]map[string]struct{}{
		AGENT_AUTO: {
			ACCESS_MOTOR_VEHICLE: {
				"yes": struct{}{},
			},
			ACCESS_MOTORCAR: {
				"yes": struct{}{},
			},
		},
		AGENT_BIKE: {
			ACCESS_BICYCLE: {
				"yes": struct{}{},
			},
		},
		AGENT_WALK: {
			ACCESS_FOOT: {
				"yes": struct{}{},
			},
		},
	}

	agentsAccessExcludeValues = map[AgentType]map[AccessType]map[string]struct{}{
		AGENT_AUTO: {
			ACCESS_HIGHWAY: {
				"cycleway":   struct{}{},
				"footway":    struct{}{},
				"pedestrian": struct{}{},
				"steps":      struct{}{},
				"track":      struct{}{},
				"corridor":   struct{}{},
				"elevator":   struct{}{},
				"escalator":  struct{}{},
			},
			ACCESS_MOTOR_VEHICLE: {
				"no": struct{}{},
			},
			ACCESS_MOTORCAR: {
				"no": struct{}{},
			},
			ACCESS_OSM_ACCESS: {
				"private": struct{}{},
				"no":      struct{}{},
			},
			ACCESS_SERVICE: {
				"parking":          struct{}{},
				"parking_aisle":    struct{}{},
				"driveway":         struct{}{},
				"private":          struct{}{},
				"emergency_access": struct{}{},
			},
		},
		AGENT_BIKE: {
			ACCESS_HIGHWAY: {
				"footway":       struct{}{},
				"steps":         struct{}{},
				"corridor":      struct{}{},
				"elevator":      struct{}{},
				"escalator":     struct{}{},
				"motor":         struct{}{},
				"motorway":      struct{}{},
				"motorway_link": struct{}{},
			},
			ACCESS_BICYCLE: {
				"no": struct{}{},
			},
			ACCESS_SERVICE: {
				"private": struct{}{},
			},
			ACCESS_OSM_ACCESS: {
				"private": struct{}{},
				"no":      struct{}{},
			},
		},
		AGENT_WALK: {
			ACCESS_HIGHWAY: {
				"cycleway":      struct{}{},
				"motor":         struct{}{},
				"motorway":      struct{}{},
				"motorway_link": struct{}{},
			},
			ACCESS_FOOT: {
				"no": struct{}{},
			},
			ACCESS_SERVICE: {
				"private": struct{}{},
			},
			ACCESS_OSM_ACCESS: {
				"private": struct{}{},
				"no":      struct{}{},
			},
		},
	}

	// agentAccessKeys lists keys inspected per agent, in priority order
	agentAccessKeys = map[AgentType][]AccessType{
		AGENT_AUTO: {ACCESS_HIGHWAY, ACCESS_MOTOR_VEHICLE, ACCESS_MOTORCAR, ACCESS_OSM_ACCESS, ACCESS_SERVICE},
		AGENT_BIKE: {ACCESS_HIGHWAY, ACCESS_BICYCLE, ACCESS_SERVICE, ACCESS_OSM_ACCESS},
		AGENT_WALK: {ACCESS_HIGHWAY, ACCESS_FOOT, ACCESS_SERVICE, ACCESS_OSM_ACCESS},
	}
)

// findIncludedAgent checks if tags explicitly grant access to agent
func findIncludedAgent(tags osm.Tags, agentType AgentType) bool {
	accessType, ok := agentsAccessIncludeValues[agentType]
	if !ok {
		return false
	}
	for key, values := range accessType {
		if _, ok := values[tags.Find(key.String())]; ok {
			return true
		}
	}
	return false
}

// findExcludedAgent checks if tags deny access to agent
func findExcludedAgent(tags osm.Tags, agentType AgentType) bool {
	accessType, ok := agentsAccessExcludeValues[agentType]
	if !ok {
		return false
	}
	for _, key := range agentAccessKeys[agentType] {
		if _, ok := accessType[key][tags.Find(key.String())]; ok {
			return true
		}
	}
	return false
}

// getAllowableAgentType returns agents which are allowed to use the way
func getAllowableAgentType(tags osm.Tags) []AgentType {
	allowedAgents := make([]AgentType, 0, len(agentTypesAll))
	for _, agentType := range agentTypesAll {
		if findIncludedAgent(tags, agentType) || !findExcludedAgent(tags, agentType) {
			allowedAgents = append(allowedAgents, agentType)
		}
	}
	return allowedAgents
}
