package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/yairfalse/vartija/orchestrator"
)

// printOutcomes renders a batch in the chosen format.
func printOutcomes(w io.Writer, batch orchestrator.BatchResult, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(batch)
	case "text":
		printText(w, batch)
		return nil
	default:
		return fmt.Errorf("invalid output format: %s (must be one of: text, json)", format)
	}
}

func printText(w io.Writer, batch orchestrator.BatchResult) {
	for _, outcome := range batch.Outcomes {
		result := outcome.Result

		if !result.Valid {
			fmt.Fprintf(w, "%s: invalid (%s)\n", outcome.Name, result.Error)
			continue
		}

		fmt.Fprintf(w, "%s [%s] risk=%s score=%d account=%s\n",
			outcome.Name, result.Service, result.OverallRisk, result.RiskScore,
			result.AccountInfo.AccountType)

		for _, f := range result.Findings {
			marker := riskMarker(string(f.Severity))
			if f.Positive {
				marker = "+"
			}
			suffix := ""
			if f.Suppressed {
				suffix = " (suppressed)"
			}
			fmt.Fprintf(w, "  %s %-8s %s%s\n", marker, f.Severity, f.Description, suffix)
		}

		if outcome.SaveError != "" {
			fmt.Fprintf(w, "  ! analyzed but not saved: %s\n", outcome.SaveError)
		}
	}

	if len(batch.Outcomes) > 1 {
		fmt.Fprintf(w, "\nbatch: %d policies, risk=%s score=%d (%s)\n",
			len(batch.Outcomes), batch.Risk, batch.RiskScore, batch.Duration.Round(time.Millisecond))
	}
}

func riskMarker(severity string) string {
	switch strings.ToLower(severity) {
	case "critical", "high":
		return "!"
	default:
		return "-"
	}
}
