package osm2graph

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strings"

	geojson "github.com/paulmach/go.geojson"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/pkg/errors"
	"github.com/twpayne/go-polyline"
)

// GeomFormat is a text representation of geometry in exported files
type GeomFormat uint8

const (
	GEOM_WKT = GeomFormat(iota + 1)
	GEOM_GEOJSON
	GEOM_POLYLINE
)

func (iotaIdx GeomFormat) String() string {
	return [...]string{"undefined", "wkt", "geojson", "polyline"}[iotaIdx]
}

// ParseGeomFormat parses format name
func ParseGeomFormat(name string) (GeomFormat, error) {
	switch strings.ToLower(name) {
	case "", "wkt":
		return GEOM_WKT, nil
	case "geojson":
		return GEOM_GEOJSON, nil
	case "polyline":
		return GEOM_POLYLINE, nil
	default:
		return 0, errors.Errorf("unknown geometry format '%s'", name)
	}
}

// PrepareWKTLinestring returns WKT representation of LineString
func PrepareWKTLinestring(pts []GeoPoint) string {
	line := make(orb.LineString, len(pts))
	for i := range pts {
		line[i] = orb.Point{pts[i].Lon, pts[i].Lat}
	}
	return wkt.MarshalString(line)
}

// PrepareWKTPoint returns WKT representation of Point
func PrepareWKTPoint(pt GeoPoint) string {
	return wkt.MarshalString(orb.Point{pt.Lon, pt.Lat})
}

// PrepareGeoJSONLinestring returns GeoJSON representation of LineString
func PrepareGeoJSONLinestring(pts []GeoPoint) (string, error) {
	pts2d := make([][]float64, len(pts))
	for i := range pts {
		pts2d[i] = []float64{pts[i].Lon, pts[i].Lat}
	}
	b, err := geojson.NewLineStringGeometry(pts2d).MarshalJSON()
	if err != nil {
		return "", errors.Wrap(err, "Can't convert geometry to geojson format")
	}
	return string(b), nil
}

// PrepareGeoJSONPoint returns GeoJSON representation of Point
func PrepareGeoJSONPoint(pt GeoPoint) (string, error) {
	b, err := geojson.NewPointGeometry([]float64{pt.Lon, pt.Lat}).MarshalJSON()
	if err != nil {
		return "", errors.Wrap(err, "Can't convert geometry to geojson format")
	}
	return string(b), nil
}

// PreparePolyline returns encoded polyline (precision 1e-5)
func PreparePolyline(pts []GeoPoint) string {
	coords := make([][]float64, len(pts))
	for i := range pts {
		coords[i] = []float64{pts[i].Lat, pts[i].Lon}
	}
	return string(polyline.EncodeCoords(coords))
}

// FormatLine renders edge geometry in given format
func FormatLine(pts []GeoPoint, format GeomFormat) (string, error) {
	switch format {
	case GEOM_GEOJSON:
		return PrepareGeoJSONLinestring(pts)
	case GEOM_POLYLINE:
		return PreparePolyline(pts), nil
	default:
		return PrepareWKTLinestring(pts), nil
	}
}

func FormatPoint(pt GeoPoint, format GeomFormat) (string, error) {
	switch format {
	case GEOM_GEOJSON:
		return PrepareGeoJSONPoint(pt)
	case GEOM_POLYLINE:
		return PreparePolyline([]GeoPoint{pt}), nil
	default:
		return PrepareWKTPoint(pt), nil
	}
}

// ExportFileNames returns names of edges, vertices and turn costs files for given name.
// E.g.: 'map.csv' gives 'map.csv', 'map_vertices.csv', 'map_turn_costs.csv'
func ExportFileNames(fname string) (string, string, string) {
	base := strings.TrimSuffix(fname, ".csv")
	return base + ".csv", base + "_vertices.csv", base + "_turn_costs.csv"
}

// ExportToCSV writes edges, vertices and turn costs as semicolon separated files
func (graph *MemoryGraph) ExportToCSV(fname string, format GeomFormat) error {
	fnameEdges, fnameVertices, fnameTurnCosts := ExportFileNames(fname)

	err := graph.exportEdgesToCSV(fnameEdges, format)
	if err != nil {
		return errors.Wrap(err, "Can't export edges")
	}

	err = graph.exportVerticesToCSV(fnameVertices, format)
	if err != nil {
		return errors.Wrap(err, "Can't export vertices")
	}

	err = graph.exportTurnCostsToCSV(fnameTurnCosts)
	if err != nil {
		return errors.Wrap(err, "Can't export turn costs")
	}

	return nil
}

func (graph *MemoryGraph) exportEdgesToCSV(fname string, format GeomFormat) error {
	file, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create file")
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()
	writer.Comma = ';'

	err = writer.Write([]string{"id", "from_vertex_id", "to_vertex_id", "osm_way_id", "length_meters", "highway", "speed", "agents_forward", "agents_backward", "roundabout", "name", "geom"})
	if err != nil {
		return errors.Wrap(err, "Can't write header")
	}

	graph.RLock()
	defer graph.RUnlock()
	for i, edge := range graph.edges {
		geomStr, err := FormatLine(edge.Geometry, format)
		if err != nil {
			return err
		}
		forward := make([]string, 0, len(agentTypesAll))
		backward := make([]string, 0, len(agentTypesAll))
		for _, agent := range agentTypesAll {
			if edge.Attr.Forward(agent) {
				forward = append(forward, agent.String())
			}
			if edge.Attr.Backward(agent) {
				backward = append(backward, agent.String())
			}
		}
		err = writer.Write([]string{
			fmt.Sprintf("%d", i),
			fmt.Sprintf("%d", edge.From),
			fmt.Sprintf("%d", edge.To),
			fmt.Sprintf("%d", edge.WayID),
			fmt.Sprintf("%f", edge.Length),
			edge.Attr.HighwayType().String(),
			fmt.Sprintf("%.0f", edge.Attr.Speed()),
			strings.Join(forward, ","),
			strings.Join(backward, ","),
			fmt.Sprintf("%t", edge.Attr.Roundabout()),
			edge.Name,
			geomStr,
		})
		if err != nil {
			return errors.Wrap(err, "Can't write edge")
		}
	}
	return nil
}

func (graph *MemoryGraph) exportVerticesToCSV(fname string, format GeomFormat) error {
	file, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create file")
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()
	writer.Comma = ';'

	err = writer.Write([]string{"id", "longitude", "latitude", "elevation", "geom"})
	if err != nil {
		return errors.Wrap(err, "Can't write header")
	}

	graph.RLock()
	defer graph.RUnlock()
	for i, node := range graph.nodes {
		if !graph.placed[i] {
			continue
		}
		geomStr, err := FormatPoint(node, format)
		if err != nil {
			return err
		}
		ele := ""
		if !math.IsNaN(node.Ele) {
			ele = fmt.Sprintf("%.2f", node.Ele)
		}
		err = writer.Write([]string{
			fmt.Sprintf("%d", i),
			fmt.Sprintf("%f", node.Lon),
			fmt.Sprintf("%f", node.Lat),
			ele,
			geomStr,
		})
		if err != nil {
			return errors.Wrap(err, "Can't write vertex")
		}
	}
	return nil
}

func (graph *MemoryGraph) exportTurnCostsToCSV(fname string) error {
	file, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create file")
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()
	writer.Comma = ';'

	err = writer.Write([]string{"via_vertex_id", "from_edge_id", "to_edge_id", "cost", "classes"})
	if err != nil {
		return errors.Wrap(err, "Can't write header")
	}

	graph.RLock()
	defer graph.RUnlock()
	for _, entry := range graph.turnCosts {
		cost := fmt.Sprintf("%d", entry.Cost)
		if entry.Cost.IsForbidden() {
			cost = "forbidden"
		}
		err = writer.Write([]string{
			fmt.Sprintf("%d", entry.Via),
			fmt.Sprintf("%d", entry.From),
			fmt.Sprintf("%d", entry.To),
			cost,
			entry.Classes.String(),
		})
		if err != nil {
			return errors.Wrap(err, "Can't write turn cost")
		}
	}
	return nil
}
