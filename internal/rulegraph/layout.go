package rulegraph

import (
	"sort"

	"racc/pkg/models"
)

// LayoutOptions controls grid spacing. Zero values take the defaults.
type LayoutOptions struct {
	ColumnGap float64
	RowHeight float64
}

const (
	defaultColumnGap = 250.0
	defaultRowHeight = 120.0
)

// columnIndex maps a node type to its fixed layout column. Unknown types
// (callers may extend the graph with extra nodes, e.g. alarms) share the
// rule column.
func columnIndex(nodeType string) int {
	switch nodeType {
	case models.NodeTrigger:
		return 0
	case models.NodeRule:
		return 1
	case models.NodeFilterGroup:
		return 2
	case models.NodeFilterComponent:
		return 3
	default:
		return 1
	}
}

// Layout assigns deterministic grid positions to a filter graph. Nodes are
// partitioned into fixed columns by type, sorted by label within each column
// (ties keep input order), and vertically centered against the tallest
// column. Identical input always yields identical output.
func Layout(graph *models.FilterGraph, opts LayoutOptions) *models.LayoutResult {
	if opts.ColumnGap <= 0 {
		opts.ColumnGap = defaultColumnGap
	}
	if opts.RowHeight <= 0 {
		opts.RowHeight = defaultRowHeight
	}

	result := &models.LayoutResult{
		Edges: append([]models.FilterEdge(nil), graph.Edges...),
	}
	if len(graph.Nodes) == 0 {
		return result
	}

	var columns [4][]models.FilterNode
	for _, n := range graph.Nodes {
		col := columnIndex(n.Type)
		columns[col] = append(columns[col], n)
	}
	maxRows := 0
	for col := range columns {
		sort.SliceStable(columns[col], func(i, j int) bool {
			return columns[col][i].Label < columns[col][j].Label
		})
		if len(columns[col]) > maxRows {
			maxRows = len(columns[col])
		}
	}

	for col := range columns {
		offset := float64(maxRows-len(columns[col])) / 2 * opts.RowHeight
		for row, n := range columns[col] {
			positioned := models.PositionedNode{
				FilterNode: n,
				X:          float64(col) * opts.ColumnGap,
				Y:          float64(row)*opts.RowHeight + offset,
			}
			result.Nodes = append(result.Nodes, positioned)
			if result.PrimaryNodeID == "" && n.Type == models.NodeRule {
				result.PrimaryNodeID = n.ID
			}
		}
	}

	return result
}
