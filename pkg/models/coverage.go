package models

// CoverageSummary aggregates rule/alarm relationship coverage for one
// customer.
type CoverageSummary struct {
	TotalRules         int     `json:"total_rules"`
	MatchedRules       int     `json:"matched_rules"`
	TotalAlarms        int     `json:"total_alarms"`
	MatchedAlarms      int     `json:"matched_alarms"`
	RulesWithSigID     int     `json:"rules_with_sig_id"`
	CoveragePercentage float64 `json:"coverage_percentage"`

	UnmatchedRules   []Rule         `json:"unmatched_rules"`
	UnmatchedAlarms  []Alarm        `json:"unmatched_alarms"`
	EventOverlapOnly []EventOverlap `json:"event_overlap_only,omitempty"`
}

// EventUsage counts how often one Windows event ID is referenced across a
// customer's rules and alarms.
type EventUsage struct {
	EventID         int    `json:"event_id"`
	RuleCount       int    `json:"rule_count"`
	AlarmCount      int    `json:"alarm_count"`
	TotalReferences int    `json:"total_references"`
	Description     string `json:"description,omitempty"`
	AuditPolicy     string `json:"audit_policy,omitempty"`
}
