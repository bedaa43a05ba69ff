package report

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
)

const rule = "=========================================="

// RenderText writes the human-readable report.
func RenderText(w io.Writer, r *Report) error {
	var buf bytes.Buffer

	buf.WriteString("🤖 KUBERNETES CLUSTER INVESTIGATION REPORT\n")
	fmt.Fprintf(&buf, "Generated: %s\n", r.FinalizedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&buf, "Run ID: %s\n", r.RunID)
	if r.Metadata.Initiator != nil {
		fmt.Fprintf(&buf, "Initiated by: %s\n", r.Metadata.Initiator.String())
	}
	if r.Metadata.Namespace != "" {
		fmt.Fprintf(&buf, "Namespace: %s\n", r.Metadata.Namespace)
	}
	buf.WriteString(rule + "\n")

	if len(r.Metadata.TriggerIssues) > 0 {
		section(&buf, "TRIGGER ISSUES DETECTED")
		for _, issue := range r.Metadata.TriggerIssues {
			fmt.Fprintf(&buf, "%s %s: %s\n", issue.Severity.Icon(), issue.Severity.Upper(), issue.Reason)
			fmt.Fprintf(&buf, "   Resource: %s\n", issue.Resource)
			if issue.Message != "" {
				fmt.Fprintf(&buf, "   Details: %s\n", issue.Message)
			}
			buf.WriteString("\n")
		}
	}

	section(&buf, "EXECUTIVE SUMMARY")
	buf.WriteString(r.ExecutiveSummary)
	buf.WriteString("\n")

	section(&buf, "INVESTIGATION FINDINGS")
	if len(r.Findings) == 0 {
		buf.WriteString("No findings.\n")
	}
	for _, category := range sortedCategories(r) {
		fmt.Fprintf(&buf, "%s (%d):\n", strings.ToUpper(category), r.CategoryCounts[category])
		for _, f := range r.Findings {
			if f.Category != category {
				continue
			}
			fmt.Fprintf(&buf, "• [%s] %s\n", f.Severity.Upper(), f.Title)
			if f.Description != "" {
				fmt.Fprintf(&buf, "  %s\n", f.Description)
			}
			if len(f.AffectedResources) > 0 {
				fmt.Fprintf(&buf, "  Affected: %s\n", strings.Join(f.AffectedResources, ", "))
			}
		}
		buf.WriteString("\n")
	}

	if len(r.Steps) > 0 {
		section(&buf, "INVESTIGATION STEPS")
		table := tablewriter.NewWriter(&buf)
		table.Header([]string{"#", "Action", "Tool", "Status", "Duration", "Summary"})
		for _, s := range r.Steps {
			summary := s.OutputSummary
			if s.ErrorMessage != "" {
				summary = s.ErrorMessage
			}
			table.Append([]string{
				fmt.Sprintf("%d", s.StepNumber),
				s.Action,
				s.ToolUsed,
				s.Status.Icon() + " " + string(s.Status),
				fmt.Sprintf("%.2fs", s.DurationSeconds),
				summary,
			})
		}
		table.Render()
	}

	if len(r.Recommendations) > 0 {
		section(&buf, "RECOMMENDATIONS")
		for i, rec := range r.Recommendations {
			fmt.Fprintf(&buf, "%d. %s\n", i+1, rec)
		}
	}

	if len(r.NextActions) > 0 {
		section(&buf, "NEXT ACTIONS")
		for _, a := range r.NextActions {
			fmt.Fprintf(&buf, "• %s\n", a)
		}
	}

	buf.WriteString("\n" + rule + "\nEnd of Report\n")

	_, err := w.Write(buf.Bytes())
	return err
}

// Text renders the report to a string.
func Text(r *Report) string {
	var sb strings.Builder
	_ = RenderText(&sb, r)
	return sb.String()
}

func section(buf *bytes.Buffer, title string) {
	fmt.Fprintf(buf, "\n%s:\n%s\n", title, strings.Repeat("-", len(title)+1))
}

// sortedCategories orders categories by their most severe finding, then name.
func sortedCategories(r *Report) []string {
	best := make(map[string]int)
	for _, f := range r.Findings {
		rank := f.Severity.Rank()
		if cur, ok := best[f.Category]; !ok || rank < cur {
			best[f.Category] = rank
		}
	}
	cats := make([]string, 0, len(best))
	for c := range best {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		if best[cats[i]] != best[cats[j]] {
			return best[cats[i]] < best[cats[j]]
		}
		return cats[i] < cats[j]
	})
	return cats
}
