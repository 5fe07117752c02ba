// Package rules imports third-party Sigma detections as draft rule records.
package rules

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	sigma "github.com/bradleyjkemp/sigma-go"

	"racc/pkg/models"
)

// SigmaLoadStats tracks the number of imported and skipped detections.
type SigmaLoadStats struct {
	TotalFiles         int
	Imported           int
	SkippedInvalid     int
	SkippedUnsupported int
}

// severityForLevel maps a Sigma level to the 0-100 severity scale.
func severityForLevel(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "informational":
		return 20
	case "low":
		return 35
	case "medium", "":
		return 50
	case "high":
		return 75
	case "critical":
		return 95
	default:
		return 50
	}
}

// ImportSigma loads Sigma YAML detections from a file or directory and
// converts each into a draft rule for the given customer. Draft rules carry
// no sig_id and stay unmatched until one is assigned. Unparseable files are
// counted and skipped, never fatal.
func ImportSigma(path string, customerID int64) ([]models.Rule, SigmaLoadStats, error) {
	var stats SigmaLoadStats

	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, stats, fmt.Errorf("resolve sigma path: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, stats, fmt.Errorf("stat sigma path: %w", err)
	}

	files := make([]string, 0, 256)
	if info.IsDir() {
		err = filepath.WalkDir(resolved, func(filePath string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if entry.IsDir() {
				return nil
			}
			if isYAMLFile(filePath) {
				files = append(files, filePath)
			}
			return nil
		})
		if err != nil {
			return nil, stats, fmt.Errorf("walk sigma directory: %w", err)
		}
	} else {
		if !isYAMLFile(resolved) {
			return nil, stats, fmt.Errorf("sigma file must end with .yml or .yaml: %s", resolved)
		}
		files = append(files, resolved)
	}

	stats.TotalFiles = len(files)
	out := make([]models.Rule, 0, len(files))
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}
		rule, err := sigma.ParseRule(raw)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}
		if !isWindowsSource(rule) {
			stats.SkippedUnsupported++
			continue
		}

		out = append(out, draftFromSigma(rule, customerID))
		stats.Imported++
	}

	return out, stats, nil
}

// DraftFromSigma converts one parsed Sigma detection into a draft rule.
func draftFromSigma(rule sigma.Rule, customerID int64) models.Rule {
	name := strings.TrimSpace(rule.Title)
	id := strings.TrimSpace(rule.ID)
	if name == "" {
		name = id
	}

	return models.Rule{
		CustomerID:      customerID,
		RuleID:          id,
		Name:            name,
		Description:     strings.TrimSpace(rule.Description),
		Severity:        severityForLevel(rule.Level),
		WindowsEventIDs: eventIDsFromDetection(rule),
	}
}

// eventIDsFromDetection collects literal EventID matcher values so drafts
// participate in event-overlap analysis immediately.
func eventIDsFromDetection(rule sigma.Rule) []int {
	seen := make(map[int]struct{})
	for _, search := range rule.Detection.Searches {
		for _, matcher := range search.EventMatchers {
			for _, fm := range matcher {
				if !strings.EqualFold(fm.Field, "EventID") {
					continue
				}
				for _, v := range fm.Values {
					switch val := v.(type) {
					case int:
						seen[val] = struct{}{}
					case float64:
						seen[int(val)] = struct{}{}
					case string:
						if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
							seen[n] = struct{}{}
						}
					}
				}
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]int, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func isYAMLFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}

func isWindowsSource(rule sigma.Rule) bool {
	product := strings.ToLower(strings.TrimSpace(rule.Logsource.Product))
	return product == "" || product == "windows"
}
