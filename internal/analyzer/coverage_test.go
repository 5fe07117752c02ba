package analyzer

import (
	"testing"

	"racc/pkg/models"
)

func TestComputeCoveragePercentage(t *testing.T) {
	rules := []models.Rule{
		{ID: 1, SigID: "47-1"},
		{ID: 2, SigID: "47-2"},
		{ID: 3},
		{ID: 4, SigID: "47-4"},
	}
	alarms := []models.Alarm{
		{ID: 10, MatchValue: "47-1"},
		{ID: 11, MatchValue: "47-4"},
	}

	det := DetectRelationships(rules, alarms, nil)
	summary := ComputeCoverage(rules, alarms, det)

	if summary.TotalRules != 4 || summary.MatchedRules != 2 {
		t.Fatalf("unexpected rule counts: %+v", summary)
	}
	if summary.TotalAlarms != 2 || summary.MatchedAlarms != 2 {
		t.Fatalf("unexpected alarm counts: %+v", summary)
	}
	if summary.RulesWithSigID != 3 {
		t.Fatalf("expected 3 rules with sig_id, got %d", summary.RulesWithSigID)
	}
	if summary.CoveragePercentage != 50 {
		t.Fatalf("expected 50%% coverage, got %v", summary.CoveragePercentage)
	}
	if summary.MatchedRules > summary.TotalRules {
		t.Fatalf("matched rules exceed total")
	}
}

func TestComputeCoverageEmptyRuleSetIsZeroNotNaN(t *testing.T) {
	det := DetectRelationships(nil, nil, nil)
	summary := ComputeCoverage(nil, nil, det)
	if summary.CoveragePercentage != 0 {
		t.Fatalf("expected 0 coverage for empty rule set, got %v", summary.CoveragePercentage)
	}
}

func TestComputeCoverageBoundsPercentage(t *testing.T) {
	rules := []models.Rule{{ID: 1, SigID: "47-1"}}
	alarms := []models.Alarm{{ID: 10, MatchValue: "47-1"}}
	det := DetectRelationships(rules, alarms, nil)
	summary := ComputeCoverage(rules, alarms, det)
	if summary.CoveragePercentage < 0 || summary.CoveragePercentage > 100 {
		t.Fatalf("coverage out of bounds: %v", summary.CoveragePercentage)
	}
}

func TestComputeCoverageDropsOverlapsWithRealRelationship(t *testing.T) {
	det := Detection{
		Relationships: []models.Relationship{
			{RuleID: 1, AlarmID: 10, MatchedFields: []string{"sig_id"}},
		},
		EventOverlapOnly: []models.EventOverlap{
			{RuleID: 1, AlarmID: 10, SharedEventIDs: []int{4625}},
			{RuleID: 2, AlarmID: 10, SharedEventIDs: []int{4688}},
		},
	}
	summary := ComputeCoverage([]models.Rule{{ID: 1}, {ID: 2}}, []models.Alarm{{ID: 10}}, det)
	if len(summary.EventOverlapOnly) != 1 || summary.EventOverlapOnly[0].RuleID != 2 {
		t.Fatalf("unexpected advisory overlaps: %+v", summary.EventOverlapOnly)
	}
}
