package models

import "strings"

// Rule is one ESM correlation rule owned by a single customer.
type Rule struct {
	ID          int64  `json:"id"`
	CustomerID  int64  `json:"customer_id"`
	RuleID      string `json:"rule_id"` // vendor identifier, e.g. "47-6000114"
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Severity    int    `json:"severity"`
	SigID       string `json:"sig_id,omitempty"`
	RuleType    int    `json:"rule_type,omitempty"`
	Revision    int    `json:"revision,omitempty"`
	Origin      int    `json:"origin,omitempty"`
	Action      int    `json:"action,omitempty"`
	NormID      string `json:"normid,omitempty"`
	XMLContent  string `json:"xml_content,omitempty"`

	WindowsEventIDs []int `json:"windows_event_ids,omitempty"`
}

// HasSigID reports whether the rule carries a usable signature ID.
func (r *Rule) HasSigID() bool {
	return r != nil && strings.TrimSpace(r.SigID) != ""
}

// IDPrefix returns the numeric prefix of the vendor rule ID ("47-6000114"
// yields "47"). Rules without a recognizable prefix default to "47", the
// prefix every observed export uses.
func (r *Rule) IDPrefix() string {
	if r == nil {
		return "47"
	}
	if i := strings.IndexByte(r.RuleID, '-'); i > 0 {
		prefix := r.RuleID[:i]
		if isDigits(prefix) {
			return prefix
		}
	}
	return "47"
}

// EventIDSet returns the rule's Windows event IDs as a set.
func (r *Rule) EventIDSet() map[int]struct{} {
	if r == nil || len(r.WindowsEventIDs) == 0 {
		return nil
	}
	set := make(map[int]struct{}, len(r.WindowsEventIDs))
	for _, id := range r.WindowsEventIDs {
		set[id] = struct{}{}
	}
	return set
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
