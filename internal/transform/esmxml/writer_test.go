package esmxml

import (
	"strings"
	"testing"

	"racc/internal/alarmgen"
	"racc/pkg/models"
)

func TestGenerateAlarmsXMLRoundTrips(t *testing.T) {
	alarms := []models.Alarm{
		{
			CustomerID:    7,
			Name:          "Generated Alarm",
			MinVersion:    "11.6.14",
			Severity:      60,
			MatchField:    "DSIDSigID",
			MatchValue:    "47|6000114",
			ConditionType: 14,
			AssigneeID:    8199,
			EscAssigneeID: 57355,
			Note:          "note text",
		},
	}

	doc, err := GenerateAlarmsXML(alarms, alarmgen.DefaultSettings())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed, err := ParseAlarms(doc, 7)
	if err != nil {
		t.Fatalf("generated document must parse: %v", err)
	}
	if len(parsed.Alarms) != 1 {
		t.Fatalf("expected 1 alarm, got %d", len(parsed.Alarms))
	}
	got := parsed.Alarms[0]
	if got.Name != "Generated Alarm" || got.Severity != 60 || got.MatchValue != "47|6000114" {
		t.Fatalf("round trip lost fields: %+v", got)
	}
}

func TestGenerateAlarmsXMLCarriesConsoleSkeleton(t *testing.T) {
	doc, err := GenerateAlarmsXML([]models.Alarm{{Name: "a", MatchField: "DSIDSigID", MatchValue: "47|1"}}, alarmgen.DefaultSettings())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := string(doc)

	for _, want := range []string{
		"<queryID>213</queryID>",
		"<alertRateMin>10</alertRateMin>",
		"<xMin>1</xMin>",
		`mask="40"`,
		`value="144118486627516416"`,
		"<escEnabled>F</escEnabled>",
		"<assigneeType>1</assigneeType>",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in generated document", want)
		}
	}
	if strings.Count(text, "<actionData>") != 3 {
		t.Fatalf("expected 3 action entries")
	}
}

func TestGenerateRulesXMLKeepsCDATA(t *testing.T) {
	rules := []models.Rule{
		{
			RuleID:     "47-6000114",
			Name:       "Suspicious Logon Burst",
			Severity:   75,
			XMLContent: `<ruleset id="6000114"><rule name="Root Rule"/></ruleset>`,
		},
	}
	doc, err := GenerateRulesXML(rules, "11.6")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := string(doc)
	if !strings.Contains(text, "<![CDATA[<ruleset id=\"6000114\">") {
		t.Fatalf("rule logic must travel as CDATA:\n%s", text)
	}

	parsed, err := ParseRules(doc, 1)
	if err != nil {
		t.Fatalf("generated document must parse: %v", err)
	}
	if len(parsed.Rules) != 1 || parsed.Rules[0].SigID != "6000114" {
		t.Fatalf("round trip lost sig_id: %+v", parsed.Rules)
	}
}
