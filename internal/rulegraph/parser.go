// Package rulegraph compiles a rule's embedded XML filter logic into a typed
// node/edge graph and lays that graph out deterministically for display.
package rulegraph

import (
	"encoding/xml"
	"fmt"
	"strings"

	"racc/pkg/models"
)

// ParseError reports malformed rule-logic XML. A well-formed document with no
// recognized elements is not a ParseError, it yields an empty graph.
type ParseError struct {
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rule logic parse: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("rule logic parse: %s", e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// element is a generic document-order XML tree node.
type element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []element  `xml:",any"`
}

func (e *element) attr(name string) string {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// descendants appends every descendant element with the given local name, in
// document order.
func (e *element) descendants(name string, out []*element) []*element {
	for i := range e.Children {
		c := &e.Children[i]
		if c.XMLName.Local == name {
			out = append(out, c)
		}
		out = c.descendants(name, out)
	}
	return out
}

// childrenNamed returns direct children with the given local name, in
// document order. Rules nest, so filter and action elements must be read
// from the owning rule only.
func (e *element) childrenNamed(name string) []*element {
	var out []*element
	for i := range e.Children {
		if e.Children[i].XMLName.Local == name {
			out = append(out, &e.Children[i])
		}
	}
	return out
}

const labelValueLimit = 30

// rootRuleName is the sentinel container rule every exported ruleset carries;
// it holds no filter logic of its own and is excluded from the graph.
const rootRuleName = "Root Rule"

// Parse compiles one rule's XML fragment into a filter graph. The fragment
// must be a well-formed document rooted at <ruleset>; anything else returns a
// *ParseError. Triggers are optional and a rule without a matchFilter is a
// valid childless node.
func Parse(xmlContent string) (*models.FilterGraph, error) {
	var root element
	if err := xml.Unmarshal([]byte(xmlContent), &root); err != nil {
		return nil, &ParseError{Msg: "malformed XML", Err: err}
	}
	if root.XMLName.Local != "ruleset" {
		return nil, &ParseError{Msg: fmt.Sprintf("expected <ruleset> root, got <%s>", root.XMLName.Local)}
	}

	graph := &models.FilterGraph{}
	next := 0
	addNode := func(n models.FilterNode) string {
		n.ID = fmt.Sprintf("n%d", next)
		next++
		graph.Nodes = append(graph.Nodes, n)
		return n.ID
	}
	addEdge := func(from, to string) {
		graph.Edges = append(graph.Edges, models.FilterEdge{From: from, To: to})
	}

	triggersByName := make(map[string]string)
	for _, t := range root.descendants("trigger", nil) {
		name := t.attr("name")
		id := addNode(models.FilterNode{
			Type:    models.NodeTrigger,
			Label:   name,
			Count:   t.attr("count"),
			Timeout: t.attr("timeout"),
		})
		if name != "" {
			if _, dup := triggersByName[name]; !dup {
				triggersByName[name] = id
			}
		}
	}

	for _, rule := range root.descendants("rule", nil) {
		name := rule.attr("name")
		if name == rootRuleName {
			continue
		}
		ruleID := addNode(models.FilterNode{Type: models.NodeRule, Label: name})

		var groupID string
		for _, mf := range rule.childrenNamed("matchFilter") {
			op := strings.ToUpper(mf.attr("type"))
			if op == "" {
				op = "AND"
			}
			groupID = addNode(models.FilterNode{
				Type:     models.NodeFilterGroup,
				Label:    op,
				Operator: op,
			})
			addEdge(ruleID, groupID)

			for _, comp := range mf.descendants("singleFilterComponent", nil) {
				node := models.FilterNode{
					Type:       models.NodeFilterComponent,
					FilterType: comp.attr("type"),
					Operator:   "EQUALS",
				}
				for _, fd := range comp.descendants("filterData", nil) {
					switch fd.attr("name") {
					case "operator":
						if v := fd.attr("value"); v != "" {
							node.Operator = v
						}
					case "value":
						node.Value = fd.attr("value")
					}
				}
				node.Label = componentLabel(node)
				compID := addNode(node)
				addEdge(groupID, compID)
			}
			break // one filterGroup per rule node
		}

		if groupID == "" {
			continue
		}
		for _, action := range rule.childrenNamed("action") {
			if !strings.EqualFold(actionType(action), "TRIGGER") {
				continue
			}
			if target, ok := triggersByName[triggerRef(action)]; ok {
				addEdge(groupID, target)
			}
		}
	}

	return graph, nil
}

// componentLabel builds the display label for a filter component. The full
// value stays on the node; only the label is truncated.
func componentLabel(n models.FilterNode) string {
	value := n.Value
	if len(value) > labelValueLimit {
		value = value[:labelValueLimit] + "..."
	}
	typ := n.FilterType
	if typ == "" {
		typ = "Unknown"
	}
	return fmt.Sprintf("%s %s %s", typ, n.Operator, value)
}

func actionType(action *element) string {
	if t := action.attr("type"); t != "" {
		return t
	}
	for i := range action.Children {
		if action.Children[i].XMLName.Local == "type" {
			return strings.TrimSpace(action.Children[i].Text)
		}
	}
	return ""
}

func triggerRef(action *element) string {
	if t := action.attr("trigger"); t != "" {
		return t
	}
	for i := range action.Children {
		if action.Children[i].XMLName.Local == "triggerName" {
			return strings.TrimSpace(action.Children[i].Text)
		}
	}
	return strings.TrimSpace(action.Text)
}
