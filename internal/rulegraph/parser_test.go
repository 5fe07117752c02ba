package rulegraph

import (
	"errors"
	"strings"
	"testing"

	"racc/pkg/models"
)

const threeComponentRuleset = `<ruleset name="test">
  <trigger name="trig1" count="5" timeout="60"/>
  <rule name="Suspicious Logon">
    <matchFilter type="OR">
      <singleFilterComponent type="EventID">
        <filterData name="operator" value="IN"/>
        <filterData name="value" value="4624,4625"/>
      </singleFilterComponent>
      <singleFilterComponent type="SrcIP">
        <filterData name="value" value="10.0.0.0/8"/>
      </singleFilterComponent>
      <singleFilterComponent type="DstPort">
        <filterData name="operator" value="EQUALS"/>
        <filterData name="value" value="3389"/>
      </singleFilterComponent>
    </matchFilter>
    <action type="TRIGGER" trigger="trig1"/>
  </rule>
</ruleset>`

func TestParseBuildsOneNodePerFilterComponent(t *testing.T) {
	graph, err := Parse(threeComponentRuleset)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	counts := map[string]int{}
	for _, n := range graph.Nodes {
		counts[n.Type]++
	}
	if counts[models.NodeTrigger] != 1 {
		t.Fatalf("expected 1 trigger node, got %d", counts[models.NodeTrigger])
	}
	if counts[models.NodeRule] != 1 {
		t.Fatalf("expected 1 rule node, got %d", counts[models.NodeRule])
	}
	if counts[models.NodeFilterGroup] != 1 {
		t.Fatalf("expected 1 filter group node, got %d", counts[models.NodeFilterGroup])
	}
	if counts[models.NodeFilterComponent] != 3 {
		t.Fatalf("expected 3 component nodes, got %d", counts[models.NodeFilterComponent])
	}

	// rule->group, group->3 components, group->trigger.
	if len(graph.Edges) != 5 {
		t.Fatalf("expected 5 edges, got %d", len(graph.Edges))
	}
}

func TestParseComponentOperatorAndValue(t *testing.T) {
	graph, err := Parse(threeComponentRuleset)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	var components []models.FilterNode
	for _, n := range graph.Nodes {
		if n.Type == models.NodeFilterComponent {
			components = append(components, n)
		}
	}
	if components[0].Operator != "IN" || components[0].Value != "4624,4625" {
		t.Fatalf("unexpected first component: %+v", components[0])
	}
	// No operator filterData defaults to EQUALS.
	if components[1].Operator != "EQUALS" {
		t.Fatalf("expected default EQUALS operator, got %q", components[1].Operator)
	}
	if !strings.HasPrefix(components[0].Label, "EventID IN ") {
		t.Fatalf("unexpected component label: %q", components[0].Label)
	}
}

func TestParseTruncatesLongValuesInLabelOnly(t *testing.T) {
	long := strings.Repeat("x", 80)
	graph, err := Parse(`<ruleset><rule name="r"><matchFilter>
		<singleFilterComponent type="CommandLine">
			<filterData name="value" value="` + long + `"/>
		</singleFilterComponent>
	</matchFilter></rule></ruleset>`)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	for _, n := range graph.Nodes {
		if n.Type != models.NodeFilterComponent {
			continue
		}
		if n.Value != long {
			t.Fatalf("component value must keep the full string")
		}
		if !strings.Contains(n.Label, "...") || len(n.Label) >= len(long) {
			t.Fatalf("expected truncated label, got %q", n.Label)
		}
		return
	}
	t.Fatalf("no component node found")
}

func TestParseExcludesRootRuleContainer(t *testing.T) {
	graph, err := Parse(`<ruleset>
		<rule name="Root Rule">
			<rule name="Child"><matchFilter>
				<singleFilterComponent type="EventID">
					<filterData name="value" value="4688"/>
				</singleFilterComponent>
			</matchFilter></rule>
		</rule>
	</ruleset>`)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	for _, n := range graph.Nodes {
		if n.Type == models.NodeRule && n.Label == "Root Rule" {
			t.Fatalf("container rule must not become a node")
		}
	}
	rules := 0
	for _, n := range graph.Nodes {
		if n.Type == models.NodeRule {
			rules++
		}
	}
	if rules != 1 {
		t.Fatalf("expected 1 rule node, got %d", rules)
	}
}

func TestParseRootRuleOnlyYieldsEmptyGraphWithoutError(t *testing.T) {
	graph, err := Parse(`<ruleset><rule name="Root Rule"/></ruleset>`)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if len(graph.Nodes) != 0 || len(graph.Edges) != 0 {
		t.Fatalf("expected empty graph, got %d nodes %d edges", len(graph.Nodes), len(graph.Edges))
	}
}

func TestParseMalformedXMLReturnsParseError(t *testing.T) {
	if _, err := Parse(`<ruleset><rule name="broken"`); err == nil {
		t.Fatalf("expected error for malformed XML")
	} else {
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("expected *ParseError, got %T", err)
		}
	}
}

func TestParseRejectsNonRulesetRoot(t *testing.T) {
	var pe *ParseError
	if _, err := Parse(`<alarms/>`); !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError for wrong root, got %v", err)
	}
}

func TestParseActionWithChildElements(t *testing.T) {
	graph, err := Parse(`<ruleset>
		<trigger name="esc"/>
		<rule name="r"><matchFilter>
			<singleFilterComponent type="EventID">
				<filterData name="value" value="1102"/>
			</singleFilterComponent>
		</matchFilter>
		<action><type>TRIGGER</type><triggerName>esc</triggerName></action>
		</rule>
	</ruleset>`)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	var triggerID string
	for _, n := range graph.Nodes {
		if n.Type == models.NodeTrigger {
			triggerID = n.ID
		}
	}
	found := false
	for _, e := range graph.Edges {
		if e.To == triggerID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an edge into the trigger node")
	}
}
