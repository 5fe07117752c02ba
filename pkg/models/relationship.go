package models

// Relationship links one rule to one alarm through matched evidence fields.
// Relationships are derived per call and never treated as ground truth.
type Relationship struct {
	RuleID        int64    `json:"rule_id"`
	AlarmID       int64    `json:"alarm_id"`
	SigID         string   `json:"sig_id"`
	MatchValue    string   `json:"match_value"`
	MatchedFields []string `json:"matched_fields"`
}

// EventOverlap is an advisory rule/alarm association backed only by shared
// Windows event IDs. It never counts toward coverage.
type EventOverlap struct {
	RuleID         int64 `json:"rule_id"`
	AlarmID        int64 `json:"alarm_id"`
	SharedEventIDs []int `json:"shared_event_ids"`
}

// MatchQuality buckets a relationship by how many fields contributed.
type MatchQuality string

const (
	QualityLow    MatchQuality = "low"
	QualityMedium MatchQuality = "medium"
	QualityHigh   MatchQuality = "high"
)

// QualityTiers maps matched-field counts to quality labels. The thresholds
// are policy, not algorithm, so they travel with configuration.
type QualityTiers struct {
	Medium int `json:"medium" yaml:"medium"`
	High   int `json:"high" yaml:"high"`
}

// DefaultQualityTiers mirrors the UI defaults: two fields rate medium,
// three or more rate high.
func DefaultQualityTiers() QualityTiers {
	return QualityTiers{Medium: 2, High: 3}
}

// Quality grades a relationship against the configured tiers.
func (r *Relationship) Quality(tiers QualityTiers) MatchQuality {
	n := len(r.MatchedFields)
	switch {
	case tiers.High > 0 && n >= tiers.High:
		return QualityHigh
	case tiers.Medium > 0 && n >= tiers.Medium:
		return QualityMedium
	default:
		return QualityLow
	}
}
