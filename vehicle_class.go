package osm2graph

import (
	"strings"
)

// VehicleClass is a single vehicle category a turn restriction may be scoped to
type VehicleClass uint16

const (
	VEHICLE_MOTORCAR = VehicleClass(1 << iota)
	VEHICLE_MOTOR_VEHICLE
	VEHICLE_VEHICLE
	VEHICLE_HGV
	VEHICLE_PSV
	VEHICLE_BUS
	VEHICLE_BICYCLE
	VEHICLE_MOPED
	VEHICLE_MOTORCYCLE
	VEHICLE_FOOT
)

var (
	vehicleClassNames = []struct {
		class VehicleClass
		name  string
	}{
		{VEHICLE_MOTORCAR, "motorcar"},
		{VEHICLE_MOTOR_VEHICLE, "motor_vehicle"},
		{VEHICLE_VEHICLE, "vehicle"},
		{VEHICLE_HGV, "hgv"},
		{VEHICLE_PSV, "psv"},
		{VEHICLE_BUS, "bus"},
		{VEHICLE_BICYCLE, "bicycle"},
		{VEHICLE_MOPED, "moped"},
		{VEHICLE_MOTORCYCLE, "motorcycle"},
		{VEHICLE_FOOT, "foot"},
	}

	vehicleClassAgents = map[VehicleClass][]AgentType{
		VEHICLE_MOTORCAR:      {AGENT_AUTO},
		VEHICLE_MOTOR_VEHICLE: {AGENT_AUTO},
		VEHICLE_VEHICLE:       {AGENT_AUTO, AGENT_BIKE},
		VEHICLE_HGV:           {AGENT_AUTO},
		VEHICLE_PSV:           {AGENT_AUTO},
		VEHICLE_BUS:           {AGENT_AUTO},
		VEHICLE_BICYCLE:       {AGENT_BIKE},
		VEHICLE_MOPED:         {AGENT_AUTO},
		VEHICLE_MOTORCYCLE:    {AGENT_AUTO},
		VEHICLE_FOOT:          {AGENT_WALK},
	}
)

func (class VehicleClass) String() string {
	for _, entry := range vehicleClassNames {
		if entry.class == class {
			return entry.name
		}
	}
	return "undefined"
}

// ParseVehicleClass returns class by its tag name
func ParseVehicleClass(name string) (VehicleClass, bool) {
	name = strings.TrimSpace(strings.ToLower(name))
	for _, entry := range vehicleClassNames {
		if entry.name == name {
			return entry.class, true
		}
	}
	return 0, false
}

// VehicleClassSet is a bit set of vehicle classes
type VehicleClassSet uint16

const (
	CLASS_SET_NONE = VehicleClassSet(0)
	// CLASS_SET_ALL is every known class. Restrictions without class scope apply to it
	CLASS_SET_ALL = VehicleClassSet(VEHICLE_MOTORCAR | VEHICLE_MOTOR_VEHICLE | VEHICLE_VEHICLE | VEHICLE_HGV | VEHICLE_PSV |
		VEHICLE_BUS | VEHICLE_BICYCLE | VEHICLE_MOPED | VEHICLE_MOTORCYCLE | VEHICLE_FOOT)
)

// NewVehicleClassSet builds set from classes
func NewVehicleClassSet(classes ...VehicleClass) VehicleClassSet {
	set := CLASS_SET_NONE
	for _, class := range classes {
		set |= VehicleClassSet(class)
	}
	return set
}

// ParseVehicleClassSet parses `a;b;c` list. Unknown names are returned separately
func ParseVehicleClassSet(value string) (VehicleClassSet, []string) {
	set := CLASS_SET_NONE
	var unknown []string
	for _, name := range splitTagList(value) {
		class, ok := ParseVehicleClass(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		set |= VehicleClassSet(class)
	}
	return set, unknown
}

func (set VehicleClassSet) Has(class VehicleClass) bool {
	return set&VehicleClassSet(class) != 0
}

func (set VehicleClassSet) Union(other VehicleClassSet) VehicleClassSet {
	return set | other
}

func (set VehicleClassSet) Without(other VehicleClassSet) VehicleClassSet {
	return set &^ other
}

func (set VehicleClassSet) IsEmpty() bool {
	return set == CLASS_SET_NONE
}

// Agents returns agents concerned by any class of the set
func (set VehicleClassSet) Agents() []AgentType {
	seen := make(map[AgentType]struct{}, len(agentTypesAll))
	for _, entry := range vehicleClassNames {
		if !set.Has(entry.class) {
			continue
		}
		for _, agent := range vehicleClassAgents[entry.class] {
			seen[agent] = struct{}{}
		}
	}
	agents := make([]AgentType, 0, len(seen))
	for _, agent := range agentTypesAll {
		if _, ok := seen[agent]; ok {
			agents = append(agents, agent)
		}
	}
	return agents
}

// String returns `a;b;c` in class order
func (set VehicleClassSet) String() string {
	names := make([]string, 0, len(vehicleClassNames))
	for _, entry := range vehicleClassNames {
		if set.Has(entry.class) {
			names = append(names, entry.name)
		}
	}
	return strings.Join(names, ";")
}
