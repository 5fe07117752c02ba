package models

// Filter node types, in the column order the layout engine uses.
const (
	NodeTrigger         = "trigger"
	NodeRule            = "rule"
	NodeFilterGroup     = "filterGroup"
	NodeFilterComponent = "filterComponent"
)

// FilterNode is one node in a parsed rule-logic graph.
type FilterNode struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label"`

	// Component attributes, populated by node type.
	FilterType string `json:"filter_type,omitempty"`
	Operator   string `json:"operator,omitempty"`
	Value      string `json:"value,omitempty"`
	Count      string `json:"count,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

// FilterEdge is a directed edge between two filter nodes, by node ID.
type FilterEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// FilterGraph is the node/edge arena for one parsed XML document. It is a
// forest of rule-rooted trees with optional cross-links to trigger nodes,
// rebuilt fresh per request.
type FilterGraph struct {
	Nodes []FilterNode `json:"nodes"`
	Edges []FilterEdge `json:"edges"`
}

// Node returns the node with the given ID, or nil.
func (g *FilterGraph) Node(id string) *FilterNode {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// Adjacency returns outgoing edge targets keyed by source node ID.
func (g *FilterGraph) Adjacency() map[string][]string {
	adj := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	return adj
}

// PositionedNode is a filter node with layout coordinates assigned.
type PositionedNode struct {
	FilterNode
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LayoutResult is a positioned graph plus the identified primary rule node.
type LayoutResult struct {
	Nodes         []PositionedNode `json:"nodes"`
	Edges         []FilterEdge     `json:"edges"`
	PrimaryNodeID string           `json:"primary_node_id,omitempty"`
}
