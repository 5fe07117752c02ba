// Package esmxml reads and writes ESM nitro-policy rule and alarm export
// files. Parsing is tolerant per record: a malformed rule or alarm is
// reported and skipped while its siblings continue.
package esmxml

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"racc/internal/logger"
	"racc/pkg/models"
)

var trailingDigitsRe = regexp.MustCompile(`(\d+)$`)

// ruleFile mirrors the outer structure of a nitro_policy rule export.
type ruleFile struct {
	XMLName xml.Name  `xml:"nitro_policy"`
	Version string    `xml:"version,attr"`
	Build   string    `xml:"build,attr"`
	Rules   []ruleRec `xml:"rules>rule"`
}

type ruleRec struct {
	ID          string `xml:"id"`
	Message     string `xml:"message"`
	Description string `xml:"description"`
	Severity    string `xml:"severity"`
	Type        string `xml:"type"`
	Revision    string `xml:"revision"`
	Origin      string `xml:"origin"`
	Action      string `xml:"action"`
	NormID      string `xml:"normid"`
	Text        string `xml:"text"`
}

// RuleParseResult reports a parsed rule export: the rules that survived plus
// per-record failures.
type RuleParseResult struct {
	Version string
	Rules   []models.Rule
	Skipped []string
}

// ParseRules parses a full rule export document. The document itself must be
// well-formed; individual records that cannot be extracted are isolated into
// Skipped.
func ParseRules(data []byte, customerID int64) (*RuleParseResult, error) {
	var file ruleFile
	if err := xml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rule export: %w", err)
	}

	version := strings.Fields(file.Version + " " + file.Build)
	result := &RuleParseResult{}
	if len(version) > 0 {
		result.Version = version[0]
	}

	for i, rec := range file.Rules {
		id := strings.TrimSpace(rec.ID)
		if id == "" {
			result.Skipped = append(result.Skipped, fmt.Sprintf("rule %d: missing id", i+1))
			continue
		}
		rule := models.Rule{
			CustomerID:  customerID,
			RuleID:      id,
			Name:        strings.TrimSpace(rec.Message),
			Description: strings.TrimSpace(rec.Description),
			Severity:    atoi(rec.Severity),
			RuleType:    atoi(rec.Type),
			Revision:    atoi(rec.Revision),
			Origin:      atoi(rec.Origin),
			Action:      atoi(rec.Action),
			NormID:      strings.TrimSpace(rec.NormID),
			XMLContent:  rec.Text,
		}
		if rule.Name == "" {
			rule.Name = id
		}
		rule.SigID = extractSigID(id, rec.Text)
		result.Rules = append(result.Rules, rule)
	}
	if n := len(result.Skipped); n > 0 {
		logger.Warnf("rule export: skipped %d of %d records", n, len(file.Rules))
	}
	return result, nil
}

// extractSigID derives a rule's signature ID. The trailing digits of the
// vendor rule id are the base; a sigid property inside the CDATA ruleset
// overrides them, falling back to the ruleset id attribute. Event-ID tokens
// like "43-263047320" inside the CDATA describe trigger events, not the
// rule's own identity, and are never used here.
func extractSigID(ruleID, cdata string) string {
	sig := ""
	if m := trailingDigitsRe.FindString(strings.TrimSpace(ruleID)); m != "" {
		sig = m
	}
	if fromCDATA := sigIDFromCDATA(cdata); fromCDATA != "" {
		sig = fromCDATA
	}
	return sig
}

type cdataProperty struct {
	Name  string `xml:"name"`
	N     string `xml:"n"`
	Value string `xml:"value"`
}

type cdataRuleset struct {
	XMLName    xml.Name
	ID         string          `xml:"id,attr"`
	Properties []cdataProperty `xml:"properties>property"`
	AnyProps   []cdataProperty `xml:"property"`
}

func sigIDFromCDATA(cdata string) string {
	cdata = strings.TrimSpace(cdata)
	if cdata == "" {
		return ""
	}
	var rs cdataRuleset
	if err := xml.Unmarshal([]byte(cdata), &rs); err != nil {
		return ""
	}

	props := append(append([]cdataProperty(nil), rs.Properties...), rs.AnyProps...)
	for _, p := range props {
		name := p.Name
		if name == "" {
			name = p.N
		}
		if name == "sigid" && strings.TrimSpace(p.Value) != "" {
			return strings.TrimSpace(p.Value)
		}
	}

	if rs.XMLName.Local == "ruleset" && rs.ID != "" {
		if m := trailingDigitsRe.FindString(rs.ID); m != "" {
			return m
		}
	}
	return ""
}

// alarmFile mirrors an <alarms> export.
type alarmFile struct {
	XMLName xml.Name   `xml:"alarms"`
	Alarms  []alarmRec `xml:"alarm"`
}

type alarmRec struct {
	Name       string `xml:"name,attr"`
	MinVersion string `xml:"minVersion,attr"`
	AlarmData  struct {
		Severity    string `xml:"severity"`
		Note        string `xml:"note"`
		Assignee    string `xml:"assignee"`
		EscAssignee string `xml:"escAssignee"`
	} `xml:"alarmData"`
	ConditionData struct {
		ConditionType string `xml:"conditionType"`
		MatchField    string `xml:"matchField"`
		MatchValue    string `xml:"matchValue"`
	} `xml:"conditionData"`
	Inner string `xml:",innerxml"`
}

// AlarmParseResult reports a parsed alarm export.
type AlarmParseResult struct {
	Alarms  []models.Alarm
	Skipped []string
}

// ParseAlarms parses an <alarms> export document.
func ParseAlarms(data []byte, customerID int64) (*AlarmParseResult, error) {
	var file alarmFile
	if err := xml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse alarm export: %w", err)
	}

	result := &AlarmParseResult{}
	for i, rec := range file.Alarms {
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			result.Skipped = append(result.Skipped, fmt.Sprintf("alarm %d: missing name", i+1))
			continue
		}
		result.Alarms = append(result.Alarms, models.Alarm{
			CustomerID:    customerID,
			Name:          name,
			MinVersion:    strings.TrimSpace(rec.MinVersion),
			Severity:      atoi(rec.AlarmData.Severity),
			Note:          strings.TrimSpace(rec.AlarmData.Note),
			AssigneeID:    atoi(rec.AlarmData.Assignee),
			EscAssigneeID: atoi(rec.AlarmData.EscAssignee),
			ConditionType: atoi(rec.ConditionData.ConditionType),
			MatchField:    strings.TrimSpace(rec.ConditionData.MatchField),
			MatchValue:    strings.TrimSpace(rec.ConditionData.MatchValue),
			XMLContent:    "<alarm name=" + strconv.Quote(rec.Name) + ">" + rec.Inner + "</alarm>",
		})
	}
	if n := len(result.Skipped); n > 0 {
		logger.Warnf("alarm export: skipped %d of %d records", n, len(file.Alarms))
	}
	return result, nil
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
