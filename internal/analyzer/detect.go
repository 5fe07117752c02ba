// Package analyzer derives rule/alarm relationships, coverage statistics and
// Windows-event usage for one customer's rule and alarm sets. Every function
// is a pure computation over its inputs: identical inputs always produce
// identical output and nothing is cached between calls.
package analyzer

import (
	"sort"
	"strings"

	"racc/internal/sigmap"
	"racc/pkg/models"
)

// Detection is the full output of one relationship-detection pass.
type Detection struct {
	Relationships    []models.Relationship `json:"relationships"`
	UnmatchedRules   []models.Rule         `json:"unmatched_rules"`
	UnmatchedAlarms  []models.Alarm        `json:"unmatched_alarms"`
	EventOverlapOnly []models.EventOverlap `json:"event_overlap_only"`
}

// DetectRelationships matches rules to alarms for one customer. A
// relationship requires the primary sig_id/match_value equality, where the
// alarm side may carry either the bare signature or the vendor-prefixed
// export form ("47|6000114"); shared Windows event IDs alone produce an
// advisory event-overlap entry instead. The mapper may be nil, in which
// case only the stored event-ID sets are compared. Inputs must already be
// scoped to a single customer.
func DetectRelationships(rules []models.Rule, alarms []models.Alarm, mapper *sigmap.Mapper) Detection {
	var det Detection

	alarmEvents := make([]map[int]struct{}, len(alarms))
	for i := range alarms {
		alarmEvents[i] = eventSet(mapper, alarms[i].WindowsEventIDs, func(m *sigmap.Mapper) []int {
			return m.AlarmEventIDs(alarms[i])
		})
	}

	matchedRules := make(map[int64]struct{}, len(rules))
	matchedAlarms := make(map[int64]struct{}, len(alarms))

	for ri := range rules {
		rule := &rules[ri]
		ruleEvents := eventSet(mapper, rule.WindowsEventIDs, func(m *sigmap.Mapper) []int {
			return m.RuleEventIDs(*rule)
		})
		sig := strings.ToLower(strings.TrimSpace(rule.SigID))
		prefixed := ""
		if sig != "" {
			prefixed = strings.ToLower(rule.IDPrefix()) + "|" + sig
		}

		for ai := range alarms {
			alarm := &alarms[ai]
			shared := intersect(ruleEvents, alarmEvents[ai])

			mv := alarm.NormalizedMatchValue()
			if sig != "" && (sig == mv || prefixed == mv) {
				fields := []string{"sig_id"}
				if len(shared) > 0 {
					fields = append(fields, "windows_event_ids")
				}
				if rule.Severity != 0 && rule.Severity == alarm.Severity {
					fields = append(fields, "severity")
				}
				det.Relationships = append(det.Relationships, models.Relationship{
					RuleID:        rule.ID,
					AlarmID:       alarm.ID,
					SigID:         rule.SigID,
					MatchValue:    alarm.MatchValue,
					MatchedFields: fields,
				})
				matchedRules[rule.ID] = struct{}{}
				matchedAlarms[alarm.ID] = struct{}{}
				continue
			}

			if len(shared) > 0 {
				det.EventOverlapOnly = append(det.EventOverlapOnly, models.EventOverlap{
					RuleID:         rule.ID,
					AlarmID:        alarm.ID,
					SharedEventIDs: shared,
				})
			}
		}
	}

	for _, rule := range rules {
		if _, ok := matchedRules[rule.ID]; !ok {
			det.UnmatchedRules = append(det.UnmatchedRules, rule)
		}
	}
	for _, alarm := range alarms {
		if _, ok := matchedAlarms[alarm.ID]; !ok {
			det.UnmatchedAlarms = append(det.UnmatchedAlarms, alarm)
		}
	}

	return det
}

// eventSet builds the effective event-ID set for a record: the stored set,
// enriched through the signature mapper when one is provided.
func eventSet(mapper *sigmap.Mapper, stored []int, derive func(*sigmap.Mapper) []int) map[int]struct{} {
	set := make(map[int]struct{}, len(stored))
	for _, id := range stored {
		set[id] = struct{}{}
	}
	if mapper != nil {
		for _, id := range derive(mapper) {
			set[id] = struct{}{}
		}
	}
	return set
}

func intersect(a, b map[int]struct{}) []int {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	var shared []int
	for id := range a {
		if _, ok := b[id]; ok {
			shared = append(shared, id)
		}
	}
	sort.Ints(shared)
	return shared
}
