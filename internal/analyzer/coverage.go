package analyzer

import (
	"racc/pkg/models"
)

// ComputeCoverage aggregates a detection pass into coverage statistics.
// coverage_percentage is matched rules over total rules, defined as 0 when
// the rule set is empty, and always within [0, 100].
func ComputeCoverage(rules []models.Rule, alarms []models.Alarm, det Detection) models.CoverageSummary {
	matchedRules := make(map[int64]struct{}, len(det.Relationships))
	matchedAlarms := make(map[int64]struct{}, len(det.Relationships))
	related := make(map[[2]int64]struct{}, len(det.Relationships))
	for _, rel := range det.Relationships {
		matchedRules[rel.RuleID] = struct{}{}
		matchedAlarms[rel.AlarmID] = struct{}{}
		related[[2]int64{rel.RuleID, rel.AlarmID}] = struct{}{}
	}

	summary := models.CoverageSummary{
		TotalRules:      len(rules),
		MatchedRules:    len(matchedRules),
		TotalAlarms:     len(alarms),
		MatchedAlarms:   len(matchedAlarms),
		UnmatchedRules:  append([]models.Rule(nil), det.UnmatchedRules...),
		UnmatchedAlarms: append([]models.Alarm(nil), det.UnmatchedAlarms...),
	}
	for i := range rules {
		if rules[i].HasSigID() {
			summary.RulesWithSigID++
		}
	}

	if summary.TotalRules > 0 {
		pct := float64(summary.MatchedRules) / float64(summary.TotalRules) * 100
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		summary.CoveragePercentage = pct
	}

	// Advisory overlaps drop any pair already backed by a relationship.
	for _, ov := range det.EventOverlapOnly {
		if _, ok := related[[2]int64{ov.RuleID, ov.AlarmID}]; ok {
			continue
		}
		summary.EventOverlapOnly = append(summary.EventOverlapOnly, ov)
	}

	return summary
}
