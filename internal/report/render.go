// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	pgerr "github.com/postgate-dev/postgate/pkg/errors"
	"github.com/postgate-dev/postgate/pkg/health"
)

// Output formats.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	goodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

// Render writes r to w in the given format.
func Render(w io.Writer, r Report, format string) error {
	var err error
	switch strings.ToLower(format) {
	case "", FormatText:
		_, err = io.WriteString(w, Text(r))
	case FormatMarkdown, "md":
		_, err = io.WriteString(w, Markdown(r))
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		err = enc.Encode(r)
		if err == nil {
			err = enc.Close()
		}
	default:
		return pgerr.New(pgerr.CodeReportFormatInvalid, "unsupported report format: "+format,
			pgerr.Field("format", format))
	}
	if err != nil {
		return pgerr.Wrap(err, pgerr.CodeReportRenderFailure, "rendering report", pgerr.Field("format", format))
	}
	return nil
}

func rateStyle(rate float64) lipgloss.Style {
	if rate < inspectionRate {
		return badStyle
	}
	return goodStyle
}

// Text renders the human-readable form.
func Text(r Report) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(r.Title()))
	b.WriteString("\n\n")

	if r.InsufficientData {
		b.WriteString(badStyle.Render("Insufficient data: no executions recorded in the last " + fmt.Sprint(r.Long.Days) + " days."))
		b.WriteString("\n\n")
	}

	row := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-22s", label)), value)
	}
	for _, w := range []WindowSummary{r.Short, r.Long} {
		row(fmt.Sprintf("Last %d days", w.Days),
			fmt.Sprintf("%d runs, %d ok, %s success, %d posted",
				w.Total, w.Successful, rateStyle(w.Rate).Render(fmt.Sprintf("%.1f%%", w.Rate*100)), w.Posted))
	}

	trend := string(r.Trend)
	if r.Trend == health.TrendDegrading {
		trend = badStyle.Render(trend)
	}
	row("Trend", trend)
	row("Avg execution", fmt.Sprintf("%.1fs", r.AverageExecutionSeconds))

	if len(r.Modes) > 0 {
		parts := make([]string, 0, len(r.Modes))
		for _, m := range r.Modes {
			parts = append(parts, fmt.Sprintf("%s=%d", m.Mode, m.Count))
		}
		row("Modes", strings.Join(parts, " "))
	}

	recs := make([]string, 0, len(r.Recommendations))
	for _, rec := range r.Recommendations {
		recs = append(recs, "• "+rec)
	}
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(strings.Join(recs, "\n")))
	b.WriteString("\n")
	return b.String()
}

// Markdown renders r for an issue body. It carries no terminal styling.
func Markdown(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", r.Title())
	if r.InsufficientData {
		fmt.Fprintf(&b, "> Insufficient data: no executions recorded in the last %d days.\n\n", r.Long.Days)
	}

	b.WriteString("| Window | Executions | Successful | Rate | Posted |\n")
	b.WriteString("|---|---:|---:|---:|---:|\n")
	for _, w := range []WindowSummary{r.Short, r.Long} {
		fmt.Fprintf(&b, "| %d days | %d | %d | %.1f%% | %d |\n", w.Days, w.Total, w.Successful, w.Rate*100, w.Posted)
	}

	fmt.Fprintf(&b, "\n- **Trend:** %s\n", r.Trend)
	fmt.Fprintf(&b, "- **Average execution:** %.1fs\n", r.AverageExecutionSeconds)
	for _, m := range r.Modes {
		fmt.Fprintf(&b, "- **%s runs:** %d\n", m.Mode, m.Count)
	}

	b.WriteString("\n### Recommendations\n\n")
	for _, rec := range r.Recommendations {
		fmt.Fprintf(&b, "- %s\n", rec)
	}
	return b.String()
}
