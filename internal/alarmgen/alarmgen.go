// Package alarmgen synthesizes alarm records from rule selections under a
// configurable generation policy. Synthesis is a pure batch computation:
// partial success is normal and reported per rule, and regeneration over the
// same inputs never creates duplicate alarms.
package alarmgen

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"racc/pkg/models"
)

// Skip reasons reported per rule.
const (
	ReasonSeverityOutOfRange = "severity out of range"
	ReasonNoSignatureID      = "no signature id"
	ReasonDuplicateSignature = "duplicate signature"
)

// DefaultSummaryTemplate is the stock ESM alarm summary. Bracketed tokens
// are substituted at trigger time by the SIEM itself, so unresolved tokens
// must stay literal in the generated alarm.
const DefaultSummaryTemplate = "Destination IP: [$Destination IP]\n" +
	"Source IP: [$Source IP]\n" +
	"Source Port: [$Source Port]\n" +
	"Destination Port: [$Destination Port]\n" +
	"Alarm Name: [$Alarm Name]\n" +
	"Condition Type: [$Condition Type]\n" +
	"Alarm Note: [$Alarm Note]\n" +
	"Trigger Date: [$Trigger Date]\n" +
	"Alarm Severity: [$Alarm Severity]\n" +
	"Traffic Type: L2L / R2L"

// Settings is the effective generation policy for one synthesis call.
type Settings struct {
	DefaultSeverity      int    `json:"default_severity" validate:"min=0,max=100"`
	DefaultConditionType int    `json:"default_condition_type" validate:"min=0"`
	MatchField           string `json:"match_field" validate:"required"`
	MaxAlarmNameLength   int    `json:"max_alarm_name_length" validate:"min=16,max=512"`
	SummaryTemplate      string `json:"summary_template"`
	DefaultAssignee      int    `json:"default_assignee"`
	DefaultEscAssignee   int    `json:"default_esc_assignee"`
	DefaultMinVersion    string `json:"default_min_version" validate:"required"`
}

// DefaultSettings returns the stock generation policy.
func DefaultSettings() Settings {
	return Settings{
		DefaultSeverity:      50,
		DefaultConditionType: 14,
		MatchField:           "DSIDSigID",
		MaxAlarmNameLength:   128,
		SummaryTemplate:      DefaultSummaryTemplate,
		DefaultAssignee:      8199,
		DefaultEscAssignee:   57355,
		DefaultMinVersion:    "11.6.14",
	}
}

// SeverityRange filters rules by severity before synthesis. Bounds are
// inclusive.
type SeverityRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// ConfigurationError reports an unusable Settings object or severity range.
// It fails the whole call, unlike per-rule skips.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("alarm generation config: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("alarm generation config: %s", e.Msg)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// SkippedRule is one rule excluded from a synthesis batch, with the reason.
type SkippedRule struct {
	RuleID int64  `json:"rule_id"`
	Reason string `json:"reason"`
}

// Result is the outcome of one synthesis batch.
type Result struct {
	Created []models.Alarm `json:"created"`
	Skipped []SkippedRule  `json:"skipped"`
}

var validate = validator.New()

// Validate checks the policy against the same constraints Synthesize
// enforces, so callers can reject bad settings before storing them.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return &ConfigurationError{Msg: "invalid settings", Err: err}
	}
	return nil
}

// Synthesize generates one alarm per eligible rule. Rules outside the
// severity range, without a sig_id, or whose match key already exists (in
// the existing alarms or earlier in the batch) are skipped with a reason.
func Synthesize(rules []models.Rule, existing []models.Alarm, settings Settings, rng *SeverityRange) (Result, error) {
	var result Result

	if err := settings.Validate(); err != nil {
		return result, err
	}
	if rng != nil && rng.Min > rng.Max {
		return result, &ConfigurationError{Msg: fmt.Sprintf("severity range min %d > max %d", rng.Min, rng.Max)}
	}

	seen := make(map[string]struct{}, len(existing))
	for i := range existing {
		seen[dedupKey(existing[i].CustomerID, existing[i].MatchField, existing[i].MatchValue)] = struct{}{}
	}

	for i := range rules {
		rule := &rules[i]

		if rng != nil && (rule.Severity < rng.Min || rule.Severity > rng.Max) {
			result.Skipped = append(result.Skipped, SkippedRule{RuleID: rule.ID, Reason: ReasonSeverityOutOfRange})
			continue
		}
		if !rule.HasSigID() {
			result.Skipped = append(result.Skipped, SkippedRule{RuleID: rule.ID, Reason: ReasonNoSignatureID})
			continue
		}

		matchValue := rule.IDPrefix() + "|" + strings.TrimSpace(rule.SigID)
		key := dedupKey(rule.CustomerID, settings.MatchField, matchValue)
		if _, dup := seen[key]; dup {
			result.Skipped = append(result.Skipped, SkippedRule{RuleID: rule.ID, Reason: ReasonDuplicateSignature})
			continue
		}
		seen[key] = struct{}{}

		severity := rule.Severity
		if severity == 0 {
			severity = settings.DefaultSeverity
		}
		name := TruncateName(rule.Name, settings.MaxAlarmNameLength)

		alarm := models.Alarm{
			CustomerID:      rule.CustomerID,
			Name:            name,
			MinVersion:      settings.DefaultMinVersion,
			Severity:        severity,
			MatchField:      settings.MatchField,
			MatchValue:      matchValue,
			ConditionType:   settings.DefaultConditionType,
			AssigneeID:      settings.DefaultAssignee,
			EscAssigneeID:   settings.DefaultEscAssignee,
			WindowsEventIDs: append([]int(nil), rule.WindowsEventIDs...),
		}
		alarm.Note = ExpandTemplate(settings.SummaryTemplate, map[string]string{
			"[$Alarm Name]":     name,
			"[$Alarm Severity]": fmt.Sprintf("%d", severity),
			"[$Condition Type]": fmt.Sprintf("%d", settings.DefaultConditionType),
			"[$Alarm Note]":     rule.Description,
		})

		result.Created = append(result.Created, alarm)
	}

	return result, nil
}

// TruncateName shortens a name to maxLen without losing uniqueness: names
// over the limit are cut to at most maxLen-9 bytes and suffixed with an
// underscore plus the first 8 hex digits of the name's SHA-1. The cut never
// splits a multi-byte rune, so the result is valid UTF-8 whenever the input
// is.
func TruncateName(name string, maxLen int) string {
	if len(name) <= maxLen {
		return name
	}
	sum := sha1.Sum([]byte(name))
	cut := maxLen - 9
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut] + "_" + hex.EncodeToString(sum[:])[:8]
}

// ExpandTemplate substitutes every known bracketed token exactly once per
// occurrence. Matching is case-sensitive and substituted values are never
// rescanned, so unresolved tokens stay literal.
func ExpandTemplate(template string, tokens map[string]string) string {
	if template == "" || len(tokens) == 0 {
		return template
	}
	pairs := make([]string, 0, len(tokens)*2)
	for token, value := range tokens {
		pairs = append(pairs, token, value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

func dedupKey(customerID int64, matchField, matchValue string) string {
	return fmt.Sprintf("%d|%s|%s",
		customerID,
		strings.ToLower(strings.TrimSpace(matchField)),
		strings.ToLower(strings.TrimSpace(matchValue)))
}
