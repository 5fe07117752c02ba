package esmxml

import (
	"testing"
)

const ruleExport = `<?xml version="1.0" encoding="UTF-8"?>
<nitro_policy version="11.6" build="20240101">
  <rules>
    <rule>
      <id>47-6000114</id>
      <message>Suspicious Logon Burst</message>
      <description>Multiple failed logons</description>
      <severity>75</severity>
      <type>3</type>
      <revision>2</revision>
      <text><![CDATA[<ruleset id="6000114" name="Suspicious Logon Burst"><rule name="Root Rule"/></ruleset>]]></text>
    </rule>
    <rule>
      <id></id>
      <message>nameless</message>
    </rule>
    <rule>
      <id>47-6000115</id>
      <message></message>
      <severity>not-a-number</severity>
      <text><![CDATA[<ruleset id="999"><property><n>sigid</n><value>263047320</value></property></ruleset>]]></text>
    </rule>
  </rules>
</nitro_policy>`

func TestParseRulesIsolatesBadRecords(t *testing.T) {
	result, err := ParseRules([]byte(ruleExport), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Version != "11.6" {
		t.Fatalf("unexpected version: %q", result.Version)
	}
	if len(result.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(result.Rules))
	}
	if len(result.Skipped) != 1 {
		t.Fatalf("expected 1 skipped record, got %d", len(result.Skipped))
	}

	first := result.Rules[0]
	if first.CustomerID != 7 || first.RuleID != "47-6000114" || first.Severity != 75 {
		t.Fatalf("unexpected first rule: %+v", first)
	}
	if first.Name != "Suspicious Logon Burst" || first.Revision != 2 {
		t.Fatalf("unexpected first rule fields: %+v", first)
	}
}

func TestParseRulesSigIDFromRuleIDTrailingDigits(t *testing.T) {
	result, err := ParseRules([]byte(ruleExport), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.Rules[0].SigID; got != "6000114" {
		t.Fatalf("unexpected sig_id: %q", got)
	}
}

func TestParseRulesSigIDPropertyOverridesRuleID(t *testing.T) {
	result, err := ParseRules([]byte(ruleExport), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second := result.Rules[1]
	if second.SigID != "263047320" {
		t.Fatalf("sigid property must win over trailing digits, got %q", second.SigID)
	}
	// Blank message falls back to the id, garbage severity to 0.
	if second.Name != "47-6000115" || second.Severity != 0 {
		t.Fatalf("unexpected fallbacks: %+v", second)
	}
}

func TestParseRulesMalformedDocumentFails(t *testing.T) {
	if _, err := ParseRules([]byte("<nitro_policy><rules>"), 7); err == nil {
		t.Fatalf("expected error for truncated document")
	}
}

const alarmExport = `<alarms>
  <alarm name="Failed Logon Alarm" minVersion="11.6.14">
    <alarmData>
      <severity>60</severity>
      <note>watch this</note>
      <assignee>8199</assignee>
      <escAssignee>57355</escAssignee>
    </alarmData>
    <conditionData>
      <conditionType>14</conditionType>
      <matchField>DSIDSigID</matchField>
      <matchValue> 47|6000114 </matchValue>
    </conditionData>
  </alarm>
  <alarm name="">
    <alarmData><severity>10</severity></alarmData>
  </alarm>
</alarms>`

func TestParseAlarms(t *testing.T) {
	result, err := ParseAlarms([]byte(alarmExport), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Alarms) != 1 || len(result.Skipped) != 1 {
		t.Fatalf("unexpected counts: %d alarms, %d skipped", len(result.Alarms), len(result.Skipped))
	}

	a := result.Alarms[0]
	if a.Name != "Failed Logon Alarm" || a.Severity != 60 || a.ConditionType != 14 {
		t.Fatalf("unexpected alarm: %+v", a)
	}
	if a.MatchField != "DSIDSigID" || a.MatchValue != "47|6000114" {
		t.Fatalf("condition fields not trimmed: %+v", a)
	}
	if a.AssigneeID != 8199 || a.EscAssigneeID != 57355 {
		t.Fatalf("unexpected assignees: %+v", a)
	}
}
