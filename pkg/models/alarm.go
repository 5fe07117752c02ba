package models

import "strings"

// Alarm is one alert action keyed by a match field/value pair.
type Alarm struct {
	ID            int64  `json:"id"`
	CustomerID    int64  `json:"customer_id"`
	Name          string `json:"name"`
	MinVersion    string `json:"min_version,omitempty"`
	Severity      int    `json:"severity"`
	MatchField    string `json:"match_field"`
	MatchValue    string `json:"match_value"` // e.g. "47|6000114"
	ConditionType int    `json:"condition_type,omitempty"`
	AssigneeID    int    `json:"assignee_id,omitempty"`
	EscAssigneeID int    `json:"esc_assignee_id,omitempty"`
	Note          string `json:"note,omitempty"`
	XMLContent    string `json:"xml_content,omitempty"`

	WindowsEventIDs []int `json:"windows_event_ids,omitempty"`
}

// NormalizedMatchValue returns the match value trimmed and lowercased for
// comparison. Vendor-prefixed forms like "47-1" stay literal strings.
func (a *Alarm) NormalizedMatchValue() string {
	if a == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(a.MatchValue))
}

// EventIDSet returns the alarm's Windows event IDs as a set.
func (a *Alarm) EventIDSet() map[int]struct{} {
	if a == nil || len(a.WindowsEventIDs) == 0 {
		return nil
	}
	set := make(map[int]struct{}, len(a.WindowsEventIDs))
	for _, id := range a.WindowsEventIDs {
		set[id] = struct{}{}
	}
	return set
}
