package osm2graph

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	junctionTypes = map[string]struct{}{
		"circular":   {},
		"roundabout": {},
	}

	negligibleHighwayTags = map[string]struct{}{
		"path":         {},
		"construction": {},
		"proposed":     {},
		"raceway":      {},
		"bridleway":    {},
		"rest_area":    {},
		"road":         {},
		"abandoned":    {},
		"planned":      {},
		"trailhead":    {},
		"dismantled":   {},
		"disused":      {},
		"razed":        {},
		"platform":     {},
		"bus_stop":     {},
	}

	speedRegExp  = regexp.MustCompile(`^\s*(\d+\.?\d*)\s*(km/h|kmh|kph|mph|knots)?\s*$`)
	metersRegExp = regexp.MustCompile(`^\s*(-?\d+\.?\d*)\s*m?\s*$`)
)

const mphToKmh = 1.609344

// parseMaxSpeed parses `maxspeed` value into km/h. Non-numeric values ("none", "signals", "RU:urban") are rejected
func parseMaxSpeed(value string) (float64, bool) {
	match := speedRegExp.FindStringSubmatch(strings.ToLower(value))
	if match == nil {
		return -1, false
	}
	speed, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return -1, false
	}
	switch match[2] {
	case "mph":
		speed *= mphToKmh
	case "knots":
		speed *= 1.852
	}
	return speed, true
}

// parseElevation parses `ele` value into meters
func parseElevation(value string) (float64, bool) {
	match := metersRegExp.FindStringSubmatch(strings.Replace(value, ",", ".", 1))
	if match == nil {
		return 0, false
	}
	ele, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return ele, true
}

// splitTagList splits `a;b; c` into trimmed non-empty parts
func splitTagList(value string) []string {
	parts := strings.Split(value, ";")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
