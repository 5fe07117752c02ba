package esmxml

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"racc/internal/alarmgen"
	"racc/pkg/models"
)

// Fixed skeleton values every exported alarm carries. These match the stock
// console export and are not configurable.
const (
	deviceFilterMask   = "40"
	deviceConstraintID = "144118486627516416"
	queryID            = 213
	alertRateMin       = 10
	pctAbove           = 10
	pctBelow           = 10
	xMin               = 1
)

type xmlAlarms struct {
	XMLName xml.Name   `xml:"alarms"`
	Alarms  []xmlAlarm `xml:"alarm"`
}

type xmlAlarm struct {
	Name       string `xml:"name,attr"`
	MinVersion string `xml:"minVersion,attr"`

	AlarmData     xmlAlarmData     `xml:"alarmData"`
	ConditionData xmlConditionData `xml:"conditionData"`
	Actions       xmlActions       `xml:"actions"`
}

type xmlAlarmData struct {
	Filters          string       `xml:"filters"`
	Note             string       `xml:"note"`
	NotificationType int          `xml:"notificationType"`
	Severity         int          `xml:"severity"`
	EscEnabled       string       `xml:"escEnabled"`
	EscSeverity      int          `xml:"escSeverity"`
	EscMin           int          `xml:"escMin"`
	SummaryTemplate  string       `xml:"summaryTemplate"`
	Assignee         int          `xml:"assignee"`
	AssigneeType     int          `xml:"assigneeType"`
	EscAssignee      int          `xml:"escAssignee"`
	EscAssigneeType  int          `xml:"escAssigneeType"`
	DeviceIDs        xmlDeviceIDs `xml:"deviceIDs"`
}

type xmlDeviceIDs struct {
	DeviceFilter xmlDeviceFilter `xml:"deviceFilter"`
}

type xmlDeviceFilter struct {
	Mask       string        `xml:"mask,attr"`
	Constraint xmlConstraint `xml:"constraintFilter"`
}

type xmlConstraint struct {
	Type  string `xml:"type,attr"`
	Value string `xml:"value,attr"`
}

type xmlConditionData struct {
	ConditionType  int    `xml:"conditionType"`
	QueryID        int    `xml:"queryID"`
	AlertRateMin   int    `xml:"alertRateMin"`
	AlertRateCount int    `xml:"alertRateCount"`
	PctAbove       int    `xml:"pctAbove"`
	PctBelow       int    `xml:"pctBelow"`
	OffsetMin      int    `xml:"offsetMin"`
	TimeFilter     string `xml:"timeFilter"`
	XMin           int    `xml:"xMin"`
	UseWatchlist   string `xml:"useWatchlist"`
	MatchField     string `xml:"matchField"`
	MatchValue     string `xml:"matchValue"`
	MatchNot       string `xml:"matchNot"`
}

type xmlActions struct {
	ActionData []xmlActionData `xml:"actionData"`
}

type xmlActionData struct {
	ActionType       int    `xml:"actionType"`
	ActionProcess    int    `xml:"actionProcess"`
	ActionAttributes string `xml:"actionAttributes"`
}

// GenerateAlarmsXML renders synthesized alarms as a full <alarms> export
// document ready for console import.
func GenerateAlarmsXML(alarms []models.Alarm, settings alarmgen.Settings) ([]byte, error) {
	doc := xmlAlarms{Alarms: make([]xmlAlarm, 0, len(alarms))}
	for i := range alarms {
		doc.Alarms = append(doc.Alarms, buildAlarm(&alarms[i], settings))
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render alarm export: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

func buildAlarm(a *models.Alarm, settings alarmgen.Settings) xmlAlarm {
	minVersion := a.MinVersion
	if minVersion == "" {
		minVersion = settings.DefaultMinVersion
	}
	template := settings.SummaryTemplate
	if template == "" {
		template = alarmgen.DefaultSummaryTemplate
	}

	return xmlAlarm{
		Name:       a.Name,
		MinVersion: minVersion,
		AlarmData: xmlAlarmData{
			Note:             a.Note,
			NotificationType: 0,
			Severity:         a.Severity,
			EscEnabled:       "F",
			EscSeverity:      50,
			EscMin:           0,
			SummaryTemplate:  template,
			Assignee:         a.AssigneeID,
			AssigneeType:     1,
			EscAssignee:      a.EscAssigneeID,
			EscAssigneeType:  0,
			DeviceIDs: xmlDeviceIDs{
				DeviceFilter: xmlDeviceFilter{
					Mask:       deviceFilterMask,
					Constraint: xmlConstraint{Type: "ID", Value: deviceConstraintID},
				},
			},
		},
		ConditionData: xmlConditionData{
			ConditionType: a.ConditionType,
			QueryID:       queryID,
			AlertRateMin:  alertRateMin,
			PctAbove:      pctAbove,
			PctBelow:      pctBelow,
			XMin:          xMin,
			UseWatchlist:  "F",
			MatchField:    a.MatchField,
			MatchValue:    a.MatchValue,
			MatchNot:      "F",
		},
		Actions: xmlActions{
			ActionData: []xmlActionData{
				{ActionType: 0, ActionProcess: 6},
				{ActionType: 0, ActionProcess: 1},
				{ActionType: 1, ActionProcess: 1},
			},
		},
	}
}

// GenerateRulesXML renders rules back to a nitro_policy export: the stored
// CDATA ruleset travels unchanged inside <text>, with the outer envelope
// rebuilt from the record fields.
func GenerateRulesXML(rules []models.Rule, version string) ([]byte, error) {
	type xmlRule struct {
		ID          string `xml:"id"`
		Message     string `xml:"message"`
		Description string `xml:"description,omitempty"`
		Severity    int    `xml:"severity"`
		Type        int    `xml:"type,omitempty"`
		Revision    int    `xml:"revision,omitempty"`
		Origin      int    `xml:"origin,omitempty"`
		Action      int    `xml:"action,omitempty"`
		NormID      string `xml:"normid,omitempty"`
		Text        cdata  `xml:"text"`
	}
	type xmlPolicy struct {
		XMLName xml.Name  `xml:"nitro_policy"`
		Version string    `xml:"version,attr"`
		Rules   []xmlRule `xml:"rules>rule"`
	}

	doc := xmlPolicy{Version: version}
	for i := range rules {
		r := &rules[i]
		text := r.XMLContent
		if text == "" {
			text = "<ruleset id=" + strconv.Quote(r.RuleID) + " name=" + strconv.Quote(r.Name) + "></ruleset>"
		}
		doc.Rules = append(doc.Rules, xmlRule{
			ID:          r.RuleID,
			Message:     r.Name,
			Description: r.Description,
			Severity:    r.Severity,
			Type:        r.RuleType,
			Revision:    r.Revision,
			Origin:      r.Origin,
			Action:      r.Action,
			NormID:      r.NormID,
			Text:        cdata{Value: text},
		})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render rule export: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

type cdata struct {
	Value string `xml:",cdata"`
}
