package analyzer

import (
	"sort"

	"racc/internal/sigmap"
	"racc/pkg/models"
)

// ComputeEventUsage counts, per Windows event ID, how many of the customer's
// rules and alarms reference it. Results sort by total references descending,
// then event ID ascending; limit <= 0 means unlimited.
func ComputeEventUsage(rules []models.Rule, alarms []models.Alarm, mapper *sigmap.Mapper, limit int) []models.EventUsage {
	ruleCounts := make(map[int]int)
	alarmCounts := make(map[int]int)

	for i := range rules {
		set := eventSet(mapper, rules[i].WindowsEventIDs, func(m *sigmap.Mapper) []int {
			return m.RuleEventIDs(rules[i])
		})
		for id := range set {
			ruleCounts[id]++
		}
	}
	for i := range alarms {
		set := eventSet(mapper, alarms[i].WindowsEventIDs, func(m *sigmap.Mapper) []int {
			return m.AlarmEventIDs(alarms[i])
		})
		for id := range set {
			alarmCounts[id]++
		}
	}

	ids := make(map[int]struct{}, len(ruleCounts)+len(alarmCounts))
	for id := range ruleCounts {
		ids[id] = struct{}{}
	}
	for id := range alarmCounts {
		ids[id] = struct{}{}
	}

	usage := make([]models.EventUsage, 0, len(ids))
	for id := range ids {
		u := models.EventUsage{
			EventID:    id,
			RuleCount:  ruleCounts[id],
			AlarmCount: alarmCounts[id],
		}
		u.TotalReferences = u.RuleCount + u.AlarmCount
		usage = append(usage, u)
	}
	sort.Slice(usage, func(i, j int) bool {
		if usage[i].TotalReferences != usage[j].TotalReferences {
			return usage[i].TotalReferences > usage[j].TotalReferences
		}
		return usage[i].EventID < usage[j].EventID
	})
	if limit > 0 && len(usage) > limit {
		usage = usage[:limit]
	}

	if mapper != nil {
		allIDs := make([]int, len(usage))
		for i := range usage {
			allIDs[i] = usage[i].EventID
		}
		details := mapper.EventDetails(allIDs)
		byID := make(map[int]sigmap.EventDetail, len(details))
		for _, d := range details {
			byID[d.ID] = d
		}
		for i := range usage {
			if d, ok := byID[usage[i].EventID]; ok {
				usage[i].Description = d.Description
				usage[i].AuditPolicy = d.AuditPolicy
			}
		}
	}

	return usage
}
