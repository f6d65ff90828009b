package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a human-readable text timeline.
func FormatTimeline(result *ReplayResult) string {
	label := replayLabel(result)
	if len(result.Entries) == 0 {
		return fmt.Sprintf("%s | No entries found.\n", label)
	}

	var b strings.Builder

	first := formatDateRange(result.Summary.FirstTimestamp)
	last := formatTimeOnly(result.Summary.LastTimestamp)
	b.WriteString(fmt.Sprintf("%s | %s–%s UTC\n", label, first, last))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		ts := formatTimeOnly(e.Timestamp)
		decision := strings.ToUpper(e.Decision)
		code := e.Code
		if code == "" && e.Decision == DecisionAllow {
			code = "-"
		}
		spend := e.SpendWei
		if spend == "" {
			spend = "-"
		}

		tag := ""
		if e.ValidateOnly {
			tag = "  [validate-only]"
		} else if e.TxHash != "" {
			tag = "  " + truncate(e.TxHash, 14)
		}

		b.WriteString(fmt.Sprintf("%-10s %-6s %-26s %-14s %-24s%s\n",
			ts, decision, code, truncate(e.DraftID, 12), spend, tag))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))

	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

func replayLabel(result *ReplayResult) string {
	switch {
	case result.SessionID != "":
		return "Session: " + result.SessionID
	case result.User != "":
		return "User: " + result.User
	default:
		return "All verdicts"
	}
}

func formatDateRange(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s ReplaySummary) string {
	parts := []string{}
	if s.AllowCount > 0 {
		parts = append(parts, fmt.Sprintf("%d allow", s.AllowCount))
	}
	if s.SubmittedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d submitted", s.SubmittedCount))
	}
	if s.DenyCount > 0 {
		parts = append(parts, fmt.Sprintf("%d deny", s.DenyCount))
	}

	codes := make([]string, 0, len(s.DenyByCode))
	for code := range s.DenyByCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		parts = append(parts, fmt.Sprintf("%d %s", s.DenyByCode[code], code))
	}

	if len(parts) == 0 {
		parts = append(parts, "no verdicts")
	}
	return fmt.Sprintf("Summary: %s\n", strings.Join(parts, ", "))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
