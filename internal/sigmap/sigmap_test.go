package sigmap

import (
	"encoding/json"
	"reflect"
	"testing"

	"racc/pkg/models"
)

func testMapper() *Mapper {
	return New([]Entry{
		{SignatureID: "4625", EventID: FlexInt{Value: 4625, Valid: true}, Description: "An account failed to log on", AuditPolicy: "Audit Logon"},
		{SignatureID: "43-263047320", EventID: FlexInt{Value: 4688, Valid: true}, Description: "A new process has been created"},
		{SignatureID: "1102, 517", EventID: FlexInt{Value: 1102, Valid: true}, Description: "The audit log was cleared"},
	})
}

func TestVariantsCoverPrefixedAndBareForms(t *testing.T) {
	got := Variants("4625")
	want := []string{"43-4625", "4625"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected variants: %v", got)
	}

	got = Variants("43-263047320")
	want = []string{"263047320", "43-263047320"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected variants: %v", got)
	}
}

func TestEventIDsForSignatureResolvesAllSpellings(t *testing.T) {
	m := testMapper()
	for _, sig := range []string{"4625", "43-4625", "47|4625"} {
		if got := m.EventIDsForSignature(sig); !reflect.DeepEqual(got, []int{4625}) {
			t.Fatalf("signature %q resolved to %v", sig, got)
		}
	}
	if got := m.EventIDsForSignature("no-such-sig"); got != nil {
		t.Fatalf("unknown signature must resolve to nothing, got %v", got)
	}
}

func TestCommaSeparatedSignatureCellIndexesEachValue(t *testing.T) {
	m := testMapper()
	if got := m.EventIDsForSignature("517"); !reflect.DeepEqual(got, []int{1102}) {
		t.Fatalf("expected 517 to map to 1102, got %v", got)
	}
}

func TestExtractEventIDsScansEmbeddedTokens(t *testing.T) {
	m := testMapper()
	text := `<ruleset><property name="sigid" value="43-263047320"/></ruleset>`
	if got := m.ExtractEventIDs(text); !reflect.DeepEqual(got, []int{4688}) {
		t.Fatalf("unexpected extraction: %v", got)
	}
}

func TestRuleEventIDsMergesStoredAndDerived(t *testing.T) {
	m := testMapper()
	rule := models.Rule{
		SigID:           "4625",
		WindowsEventIDs: []int{5145},
	}
	if got := m.RuleEventIDs(rule); !reflect.DeepEqual(got, []int{4625, 5145}) {
		t.Fatalf("unexpected rule event IDs: %v", got)
	}
}

func TestAlarmEventIDsFromMatchValue(t *testing.T) {
	m := testMapper()
	alarm := models.Alarm{MatchField: "DSIDSigID", MatchValue: "47|4625"}
	if got := m.AlarmEventIDs(alarm); !reflect.DeepEqual(got, []int{4625}) {
		t.Fatalf("unexpected alarm event IDs: %v", got)
	}
}

func TestFlexIntAcceptsNumbersAndQuotedStrings(t *testing.T) {
	var e Entry
	if err := json.Unmarshal([]byte(`{"Signature ID":"1","Event ID":4625}`), &e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.EventID.Valid || e.EventID.Value != 4625 {
		t.Fatalf("number not decoded: %+v", e.EventID)
	}

	if err := json.Unmarshal([]byte(`{"Signature ID":"1","Event ID":" 4688 "}`), &e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.EventID.Valid || e.EventID.Value != 4688 {
		t.Fatalf("quoted string not decoded: %+v", e.EventID)
	}

	e = Entry{}
	if err := json.Unmarshal([]byte(`{"Signature ID":"1","Event ID":"n/a"}`), &e); err != nil {
		t.Fatalf("malformed event ID must not fail the row: %v", err)
	}
	if e.EventID.Valid {
		t.Fatalf("malformed event ID must stay invalid")
	}
}

func TestEventDetailsKeepsUnknownIDs(t *testing.T) {
	m := testMapper()
	details := m.EventDetails([]int{9999, 4625, 4625})
	if len(details) != 2 {
		t.Fatalf("expected deduped details, got %d", len(details))
	}
	if details[0].ID != 4625 || details[0].Description == "" {
		t.Fatalf("unexpected first detail: %+v", details[0])
	}
	if details[1].ID != 9999 || details[1].Description != "" {
		t.Fatalf("unknown IDs must come back with empty metadata: %+v", details[1])
	}
}
