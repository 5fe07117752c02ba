// racc-analyze runs the correlation analysis offline, straight from ESM
// export files, without a database. Results go to a JSONL report and
// optionally to a webhook; generated alarms can be written back out as a
// console-importable XML document.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"racc/internal/alarmgen"
	"racc/internal/analyzer"
	"racc/internal/output/reporthttp"
	"racc/internal/output/reportjson"
	"racc/internal/sigmap"
	"racc/internal/transform/esmxml"
	"racc/pkg/models"
)

func main() {
	rulesFile := flag.String("rules", "", "ESM rule export XML path")
	alarmsFile := flag.String("alarms", "", "ESM alarm export XML path (optional)")
	sigmapFile := flag.String("sigmap", "esm_signature_id.json", "Signature to event-ID mapping JSON path")
	customerID := flag.Int64("customer", 1, "Customer ID to stamp on parsed records")
	output := flag.String("output", "output/analysis.jsonl", "Analysis JSONL output path")
	reportURL := flag.String("report-url", "", "Optional webhook to POST the analysis report to")
	generate := flag.Bool("generate", false, "Synthesize alarms for unmatched rules")
	minSeverity := flag.Int("min-severity", -1, "Minimum rule severity for generation (with -generate)")
	maxSeverity := flag.Int("max-severity", -1, "Maximum rule severity for generation (with -generate)")
	alarmsOut := flag.String("alarms-out", "", "Path for the generated alarms XML (with -generate)")
	usageLimit := flag.Int("usage-limit", 25, "Maximum event-usage entries to report")
	flag.Parse()

	if strings.TrimSpace(*rulesFile) == "" {
		fmt.Fprintln(os.Stderr, "racc-analyze requires -rules")
		os.Exit(2)
	}

	mapper, err := sigmap.Load(*sigmapFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load signature mapping: %v\n", err)
		os.Exit(1)
	}

	ruleData, err := os.ReadFile(*rulesFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read rule export: %v\n", err)
		os.Exit(1)
	}
	parsedRules, err := esmxml.ParseRules(ruleData, *customerID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse rule export: %v\n", err)
		os.Exit(1)
	}
	assignIDs(parsedRules.Rules)

	var alarms []models.Alarm
	if strings.TrimSpace(*alarmsFile) != "" {
		alarmData, err := os.ReadFile(*alarmsFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read alarm export: %v\n", err)
			os.Exit(1)
		}
		parsedAlarms, err := esmxml.ParseAlarms(alarmData, *customerID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to parse alarm export: %v\n", err)
			os.Exit(1)
		}
		alarms = parsedAlarms.Alarms
		for i := range alarms {
			alarms[i].ID = int64(i + 1)
		}
	}

	det := analyzer.DetectRelationships(parsedRules.Rules, alarms, mapper)
	summary := analyzer.ComputeCoverage(parsedRules.Rules, alarms, det)
	usage := analyzer.ComputeEventUsage(parsedRules.Rules, alarms, mapper, *usageLimit)

	writer, err := reportjson.NewWriter(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create report writer: %v\n", err)
		os.Exit(1)
	}
	defer writer.Close()

	// One summary line followed by one line per relationship, so the JSONL
	// output streams into line-oriented tooling without loading the whole
	// report.
	records := make([]interface{}, 0, len(det.Relationships)+1)
	records = append(records, map[string]interface{}{
		"coverage":    summary,
		"event_usage": usage,
	})
	for i := range det.Relationships {
		records = append(records, det.Relationships[i])
	}
	if err := writer.WriteRecords(records); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
		os.Exit(1)
	}

	if strings.TrimSpace(*reportURL) != "" {
		httpWriter, err := reporthttp.NewWriter(reporthttp.Config{URL: *reportURL})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create report webhook: %v\n", err)
			os.Exit(1)
		}
		report := map[string]interface{}{
			"coverage":      summary,
			"relationships": det.Relationships,
			"event_usage":   usage,
		}
		if err := httpWriter.WriteReport(report); err != nil {
			fmt.Fprintf(os.Stderr, "failed to push report: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("analyzed rules=%d alarms=%d relationships=%d coverage=%.1f%% output=%s\n",
		summary.TotalRules, summary.TotalAlarms, len(det.Relationships), summary.CoveragePercentage, *output)

	if !*generate {
		return
	}

	settings := alarmgen.DefaultSettings()
	var rng *alarmgen.SeverityRange
	if *minSeverity >= 0 || *maxSeverity >= 0 {
		rng = &alarmgen.SeverityRange{Min: 0, Max: 100}
		if *minSeverity >= 0 {
			rng.Min = *minSeverity
		}
		if *maxSeverity >= 0 {
			rng.Max = *maxSeverity
		}
	}

	result, err := alarmgen.Synthesize(det.UnmatchedRules, alarms, settings, rng)
	if err != nil {
		fmt.Fprintf(os.Stderr, "alarm generation failed: %v\n", err)
		os.Exit(1)
	}
	if err := writer.WriteRecord(result); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write generation result: %v\n", err)
		os.Exit(1)
	}

	if strings.TrimSpace(*alarmsOut) != "" && len(result.Created) > 0 {
		doc, err := esmxml.GenerateAlarmsXML(result.Created, settings)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to render alarm export: %v\n", err)
			os.Exit(1)
		}
		dir := filepath.Dir(*alarmsOut)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				fmt.Fprintf(os.Stderr, "failed to create output directory: %v\n", err)
				os.Exit(1)
			}
		}
		if err := os.WriteFile(*alarmsOut, doc, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write alarm export: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("generated alarms=%d skipped=%d\n", len(result.Created), len(result.Skipped))
}

// assignIDs gives parsed records stable in-memory IDs so relationships can
// reference them without a database.
func assignIDs(rules []models.Rule) {
	for i := range rules {
		rules[i].ID = int64(i + 1)
	}
}
