package analyzer

import (
	"testing"

	"racc/internal/sigmap"
	"racc/pkg/models"
)

func TestComputeEventUsageOrdersByReferencesThenID(t *testing.T) {
	rules := []models.Rule{
		{ID: 1, WindowsEventIDs: []int{4625, 4688}},
		{ID: 2, WindowsEventIDs: []int{4625}},
	}
	alarms := []models.Alarm{
		{ID: 10, WindowsEventIDs: []int{4625, 4624}},
	}

	usage := ComputeEventUsage(rules, alarms, nil, 0)
	if len(usage) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(usage))
	}
	if usage[0].EventID != 4625 || usage[0].TotalReferences != 3 {
		t.Fatalf("unexpected top entry: %+v", usage[0])
	}
	// 4624 and 4688 both have one reference, lower ID first.
	if usage[1].EventID != 4624 || usage[2].EventID != 4688 {
		t.Fatalf("tie not broken by event ID: %+v", usage[1:])
	}
	if usage[0].RuleCount != 2 || usage[0].AlarmCount != 1 {
		t.Fatalf("unexpected counts: %+v", usage[0])
	}
}

func TestComputeEventUsageAppliesLimitAndMetadata(t *testing.T) {
	mapper := sigmap.New([]sigmap.Entry{
		{SignatureID: "4625", EventID: sigmap.FlexInt{Value: 4625, Valid: true}, Description: "Failed logon", AuditPolicy: "Logon"},
	})
	rules := []models.Rule{{ID: 1, WindowsEventIDs: []int{4625, 4688}}}

	usage := ComputeEventUsage(rules, nil, mapper, 1)
	if len(usage) != 1 {
		t.Fatalf("expected limit of 1, got %d", len(usage))
	}
	if usage[0].Description != "Failed logon" || usage[0].AuditPolicy != "Logon" {
		t.Fatalf("expected mapping metadata, got %+v", usage[0])
	}
}
