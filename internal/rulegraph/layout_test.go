package rulegraph

import (
	"reflect"
	"testing"

	"racc/pkg/models"
)

func layoutFixture() *models.FilterGraph {
	return &models.FilterGraph{
		Nodes: []models.FilterNode{
			{ID: "n0", Type: models.NodeTrigger, Label: "trig"},
			{ID: "n1", Type: models.NodeRule, Label: "Beta Rule"},
			{ID: "n2", Type: models.NodeRule, Label: "Alpha Rule"},
			{ID: "n3", Type: models.NodeFilterGroup, Label: "AND"},
			{ID: "n4", Type: models.NodeFilterComponent, Label: "EventID EQUALS 4625"},
			{ID: "n5", Type: models.NodeFilterComponent, Label: "SrcIP EQUALS 10.1.1.1"},
			{ID: "n6", Type: models.NodeFilterComponent, Label: "DstPort EQUALS 445"},
		},
		Edges: []models.FilterEdge{{From: "n1", To: "n3"}, {From: "n3", To: "n4"}},
	}
}

func TestLayoutIsDeterministic(t *testing.T) {
	a := Layout(layoutFixture(), LayoutOptions{})
	b := Layout(layoutFixture(), LayoutOptions{})
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("identical input must produce identical layout")
	}
}

func TestLayoutAssignsFixedColumns(t *testing.T) {
	result := Layout(layoutFixture(), LayoutOptions{ColumnGap: 100, RowHeight: 50})

	xByType := map[string]float64{
		models.NodeTrigger:         0,
		models.NodeRule:            100,
		models.NodeFilterGroup:     200,
		models.NodeFilterComponent: 300,
	}
	for _, n := range result.Nodes {
		if n.X != xByType[n.Type] {
			t.Fatalf("node %s type %s at x=%v, want %v", n.ID, n.Type, n.X, xByType[n.Type])
		}
	}
}

func TestLayoutSortsColumnsByLabelAndCentersShortColumns(t *testing.T) {
	result := Layout(layoutFixture(), LayoutOptions{ColumnGap: 100, RowHeight: 50})

	var rules []models.PositionedNode
	for _, n := range result.Nodes {
		if n.Type == models.NodeRule {
			rules = append(rules, n)
		}
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rule nodes, got %d", len(rules))
	}
	if rules[0].Label != "Alpha Rule" || rules[1].Label != "Beta Rule" {
		t.Fatalf("rule column not sorted by label: %q, %q", rules[0].Label, rules[1].Label)
	}

	// Components column is the tallest (3 rows), so the 2-row rule column is
	// centered: offset (3-2)/2 * 50 = 25.
	if rules[0].Y != 25 || rules[1].Y != 75 {
		t.Fatalf("unexpected rule ys: %v, %v", rules[0].Y, rules[1].Y)
	}

	// The single trigger centers against 3 rows: (3-1)/2 * 50 = 50.
	for _, n := range result.Nodes {
		if n.Type == models.NodeTrigger && n.Y != 50 {
			t.Fatalf("unexpected trigger y: %v", n.Y)
		}
	}
}

func TestLayoutKeepsEdgesAndPicksPrimaryRuleNode(t *testing.T) {
	graph := layoutFixture()
	result := Layout(graph, LayoutOptions{})

	if len(result.Edges) != len(graph.Edges) {
		t.Fatalf("edges must pass through unchanged")
	}
	// First rule in column order after the label sort is "Alpha Rule" (n2).
	if result.PrimaryNodeID != "n2" {
		t.Fatalf("unexpected primary node: %q", result.PrimaryNodeID)
	}
}

func TestLayoutEmptyGraph(t *testing.T) {
	result := Layout(&models.FilterGraph{}, LayoutOptions{})
	if len(result.Nodes) != 0 || result.PrimaryNodeID != "" {
		t.Fatalf("expected empty layout, got %+v", result)
	}
}
