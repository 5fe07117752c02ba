package models

import "testing"

func TestRuleIDPrefix(t *testing.T) {
	cases := map[string]string{
		"47-6000114": "47",
		"43-4625":    "43",
		"6000114":    "47",
		"abc-123":    "47",
		"":           "47",
	}
	for ruleID, want := range cases {
		r := Rule{RuleID: ruleID}
		if got := r.IDPrefix(); got != want {
			t.Fatalf("rule id %q: got prefix %q, want %q", ruleID, got, want)
		}
	}
}

func TestRuleHasSigID(t *testing.T) {
	if (&Rule{SigID: "  "}).HasSigID() {
		t.Fatalf("whitespace sig_id must not count")
	}
	if !(&Rule{SigID: "6000114"}).HasSigID() {
		t.Fatalf("expected sig_id to count")
	}
}

func TestAlarmNormalizedMatchValue(t *testing.T) {
	a := Alarm{MatchValue: "  47|6000114 "}
	if got := a.NormalizedMatchValue(); got != "47|6000114" {
		t.Fatalf("unexpected normalized value: %q", got)
	}
	b := Alarm{MatchValue: "DSIDSigID-Mixed"}
	if got := b.NormalizedMatchValue(); got != "dsidsigid-mixed" {
		t.Fatalf("normalization must lowercase, got %q", got)
	}
}

func TestRelationshipQuality(t *testing.T) {
	tiers := DefaultQualityTiers()
	cases := []struct {
		fields []string
		want   MatchQuality
	}{
		{[]string{"sig_id"}, QualityLow},
		{[]string{"sig_id", "windows_event_ids"}, QualityMedium},
		{[]string{"sig_id", "windows_event_ids", "severity"}, QualityHigh},
	}
	for _, c := range cases {
		r := Relationship{MatchedFields: c.fields}
		if got := r.Quality(tiers); got != c.want {
			t.Fatalf("%d fields: got %q, want %q", len(c.fields), got, c.want)
		}
	}
}

func TestFilterGraphAdjacency(t *testing.T) {
	g := FilterGraph{
		Nodes: []FilterNode{{ID: "n0"}, {ID: "n1"}, {ID: "n2"}},
		Edges: []FilterEdge{{From: "n0", To: "n1"}, {From: "n0", To: "n2"}},
	}
	adj := g.Adjacency()
	if len(adj["n0"]) != 2 {
		t.Fatalf("unexpected adjacency: %v", adj)
	}
	if g.Node("n1") == nil || g.Node("missing") != nil {
		t.Fatalf("node lookup broken")
	}
}
