// Package sigmap maps ESM signature identifiers to Windows event IDs.
//
// The mapping source is a JSON array of entries keyed by "Signature ID" and
// "Event ID" (the stock esm_signature_id.json export). Signatures are indexed
// under several spelling variants so that "4625", "43-4625" and
// vendor-prefixed forms all resolve to the same events.
package sigmap

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"racc/internal/logger"
	"racc/pkg/models"
)

// Entry is one row of the signature mapping file.
type Entry struct {
	SignatureID string  `json:"Signature ID"`
	EventID     FlexInt `json:"Event ID"`
	Description string  `json:"Description"`
	AuditPolicy string  `json:"Audit Policy"`
}

// FlexInt decodes a JSON number or a numeric string. Malformed values leave
// Valid false so the row can be skipped instead of failing the load.
type FlexInt struct {
	Value int
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	s = strings.Trim(s, `"`)
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	f.Value = n
	f.Valid = true
	return nil
}

// EventDetail is per-event metadata from the mapping file.
type EventDetail struct {
	ID          int    `json:"id"`
	Description string `json:"description,omitempty"`
	AuditPolicy string `json:"audit_policy,omitempty"`
}

// Mapper resolves signatures to Windows event IDs.
type Mapper struct {
	sigToEvents map[string]map[int]struct{}
	eventMeta   map[int]EventDetail
}

var eventTokenRe = regexp.MustCompile(`43-\d+`)
var tokenSplitRe = regexp.MustCompile(`[|,\s]+`)

// Load reads the mapping file. A missing file yields an empty mapper rather
// than an error so analysis can run without event-ID enrichment.
func Load(path string) (*Mapper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warnf("signature mapping file %s not found, event-ID enrichment disabled", path)
			return New(nil), nil
		}
		return nil, fmt.Errorf("read signature mapping: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse signature mapping: %w", err)
	}

	return New(entries), nil
}

// New builds a mapper from in-memory entries.
func New(entries []Entry) *Mapper {
	m := &Mapper{
		sigToEvents: make(map[string]map[int]struct{}),
		eventMeta:   make(map[int]EventDetail),
	}

	skipped := 0
	for _, e := range entries {
		if !e.EventID.Valid {
			skipped++
			continue
		}
		id := e.EventID.Value
		if _, ok := m.eventMeta[id]; !ok {
			m.eventMeta[id] = EventDetail{ID: id, Description: e.Description, AuditPolicy: e.AuditPolicy}
		}
		// A "Signature ID" cell may carry a comma-separated list.
		for _, raw := range strings.Split(e.SignatureID, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			for _, variant := range Variants(raw) {
				set, ok := m.sigToEvents[variant]
				if !ok {
					set = make(map[int]struct{})
					m.sigToEvents[variant] = set
				}
				set[id] = struct{}{}
			}
		}
	}
	if skipped > 0 {
		logger.Warnf("signature mapping: skipped %d entries with malformed event IDs", skipped)
	}
	return m
}

// Variants returns the spelling variants a signature is indexed under:
// the literal form, the suffix past the first dash, and the form with the
// "43-" Windows data-source prefix added or removed.
func Variants(signature string) []string {
	sig := strings.TrimSpace(signature)
	if sig == "" {
		return nil
	}
	seen := map[string]struct{}{sig: {}}
	if i := strings.Index(sig, "-"); i >= 0 {
		if suffix := strings.TrimSpace(sig[i+1:]); suffix != "" {
			seen[suffix] = struct{}{}
		}
	}
	if strings.HasPrefix(sig, "43-") {
		if rest := strings.TrimSpace(sig[3:]); rest != "" {
			seen[rest] = struct{}{}
		}
	} else {
		seen["43-"+sig] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// EventIDsForSignature resolves one signature. Lookups fall back through the
// pipe-suffix and dash-suffix forms and the "43-" prefixed form before
// giving up.
func (m *Mapper) EventIDsForSignature(signature string) []int {
	sig := strings.TrimSpace(signature)
	if sig == "" {
		return nil
	}
	ids := m.sigToEvents[sig]
	if len(ids) == 0 {
		if i := strings.Index(sig, "|"); i >= 0 {
			sig = sig[i+1:]
			ids = m.sigToEvents[sig]
		}
	}
	if len(ids) == 0 {
		if i := strings.Index(sig, "-"); i >= 0 {
			sig = sig[i+1:]
			ids = m.sigToEvents[sig]
		}
	}
	if len(ids) == 0 {
		ids = m.sigToEvents["43-"+sig]
	}
	return sortedIDs(ids)
}

// ExtractEventIDs scans free text or XML for "43-<digits>" signature tokens
// and resolves each through the mapping.
func (m *Mapper) ExtractEventIDs(text string) []int {
	if text == "" {
		return nil
	}
	found := make(map[int]struct{})
	for _, token := range eventTokenRe.FindAllString(text, -1) {
		for _, id := range m.EventIDsForSignature(token) {
			found[id] = struct{}{}
		}
	}
	return sortedIDs(found)
}

// collectFromValues resolves event IDs referenced by a set of free-form
// values: embedded 43-prefixed tokens plus whole tokens split on pipes,
// commas and whitespace.
func (m *Mapper) collectFromValues(values ...string) map[int]struct{} {
	found := make(map[int]struct{})
	for _, value := range values {
		text := strings.TrimSpace(value)
		if text == "" {
			continue
		}
		for _, id := range m.ExtractEventIDs(text) {
			found[id] = struct{}{}
		}
		for _, token := range tokenSplitRe.Split(text, -1) {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			for _, id := range m.EventIDsForSignature(token) {
				found[id] = struct{}{}
			}
		}
	}
	return found
}

// RuleEventIDs returns the Windows event IDs a rule references: its stored
// set plus IDs derived from sig_id, rule_id, description and XML content.
func (m *Mapper) RuleEventIDs(rule models.Rule) []int {
	found := m.collectFromValues(rule.SigID, rule.RuleID, rule.Description)
	for _, id := range m.ExtractEventIDs(rule.XMLContent) {
		found[id] = struct{}{}
	}
	for _, id := range rule.WindowsEventIDs {
		found[id] = struct{}{}
	}
	return sortedIDs(found)
}

// AlarmEventIDs returns the Windows event IDs an alarm references: its stored
// set plus IDs derived from match_value, match_field, note and XML content.
func (m *Mapper) AlarmEventIDs(alarm models.Alarm) []int {
	found := m.collectFromValues(alarm.MatchValue, alarm.MatchField, alarm.Note)
	for _, id := range m.ExtractEventIDs(alarm.XMLContent) {
		found[id] = struct{}{}
	}
	for _, id := range alarm.WindowsEventIDs {
		found[id] = struct{}{}
	}
	return sortedIDs(found)
}

// EventDetails returns metadata for the given event IDs, sorted by ID.
// Unknown IDs are returned with empty metadata rather than dropped.
func (m *Mapper) EventDetails(ids []int) []EventDetail {
	seen := make(map[int]struct{}, len(ids))
	out := make([]EventDetail, 0, len(ids))
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	for _, id := range sorted {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if detail, ok := m.eventMeta[id]; ok {
			out = append(out, detail)
		} else {
			out = append(out, EventDetail{ID: id})
		}
	}
	return out
}

func sortedIDs(set map[int]struct{}) []int {
	if len(set) == 0 {
		return nil
	}
	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
