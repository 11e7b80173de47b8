package osm2graph

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

type testNode struct {
	id       int64
	lat, lon float64
	tags     map[string]string
}

type testWay struct {
	id   int64
	refs []int64
	tags map[string]string
}

type testMember struct {
	kind string
	ref  int64
	role string
}

type testRelation struct {
	id      int64
	members []testMember
	tags    map[string]string
}

type testExtract struct {
	nodes     []testNode
	ways      []testWay
	relations []testRelation
}

func writeTestTags(b *strings.Builder, tags map[string]string) {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "    <tag k=\"%s\" v=\"%s\"/>\n", k, tags[k])
	}
}

// XML renders extract as OSM XML document
func (extract testExtract) XML() []byte {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<osm version=\"0.6\" generator=\"osm2graph-test\">\n")
	for _, node := range extract.nodes {
		if len(node.tags) == 0 {
			fmt.Fprintf(&b, "  <node id=\"%d\" lat=\"%.7f\" lon=\"%.7f\" version=\"1\"/>\n", node.id, node.lat, node.lon)
			continue
		}
		fmt.Fprintf(&b, "  <node id=\"%d\" lat=\"%.7f\" lon=\"%.7f\" version=\"1\">\n", node.id, node.lat, node.lon)
		writeTestTags(&b, node.tags)
		b.WriteString("  </node>\n")
	}
	for _, way := range extract.ways {
		fmt.Fprintf(&b, "  <way id=\"%d\" version=\"1\">\n", way.id)
		for _, ref := range way.refs {
			fmt.Fprintf(&b, "    <nd ref=\"%d\"/>\n", ref)
		}
		writeTestTags(&b, way.tags)
		b.WriteString("  </way>\n")
	}
	for _, relation := range extract.relations {
		fmt.Fprintf(&b, "  <relation id=\"%d\" version=\"1\">\n", relation.id)
		for _, member := range relation.members {
			fmt.Fprintf(&b, "    <member type=\"%s\" ref=\"%d\" role=\"%s\"/>\n", member.kind, member.ref, member.role)
		}
		writeTestTags(&b, relation.tags)
		b.WriteString("  </relation>\n")
	}
	b.WriteString("</osm>\n")
	return []byte(b.String())
}

func residential() map[string]string {
	return map[string]string{"highway": "residential"}
}

// lineExtract is a single way 1-2-3 where 2 stays a pillar
func lineExtract() testExtract {
	return testExtract{
		nodes: []testNode{
			{id: 1, lat: 55.7500000, lon: 37.6000000},
			{id: 2, lat: 55.7510000, lon: 37.6010000},
			{id: 3, lat: 55.7520000, lon: 37.6000000},
			{id: 4, lat: 55.7600000, lon: 37.7000000},
		},
		ways: []testWay{
			{id: 100, refs: []int64{1, 2, 3}, tags: residential()},
		},
	}
}

// junctionExtract is a T-junction: way 100 a-V, way 101 V-b (left), way 102 V-c (straight)
func junctionExtract(restriction string) testExtract {
	extract := testExtract{
		nodes: []testNode{
			{id: 1, lat: 55.7500000, lon: 37.6000000},
			{id: 2, lat: 55.7510000, lon: 37.6000000},
			{id: 3, lat: 55.7510000, lon: 37.5990000},
			{id: 4, lat: 55.7520000, lon: 37.6000000},
		},
		ways: []testWay{
			{id: 100, refs: []int64{1, 2}, tags: residential()},
			{id: 101, refs: []int64{2, 3}, tags: residential()},
			{id: 102, refs: []int64{2, 4}, tags: residential()},
		},
	}
	if restriction != "" {
		extract.relations = append(extract.relations, testRelation{
			id: 200,
			members: []testMember{
				{kind: "way", ref: 100, role: "from"},
				{kind: "node", ref: 2, role: "via"},
				{kind: "way", ref: 101, role: "to"},
			},
			tags: map[string]string{"type": "restriction", "restriction": restriction},
		})
	}
	return extract
}
