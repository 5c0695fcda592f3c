// Package ui renders the final report of a validation run for the terminal
// or as JSON or YAML.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/neuronbridge/nbvalidate/pkg/validator"
	"github.com/neuronbridge/nbvalidate/pkg/validator/tally"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	failureStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// Render writes report to w in the requested format.
func Render(w io.Writer, report validator.Report, format validator.OutputFormat) error {
	switch format {
	case validator.OutputFormatJSON:
		return RenderJSON(w, report)
	case validator.OutputFormatYAML:
		return RenderYAML(w, report)
	case validator.OutputFormatText, "":
		return RenderText(w, report)
	default:
		return fmt.Errorf("%w: unknown output format '%s'", validator.ErrConfigValidation, format)
	}
}

// RenderJSON writes the report as indented JSON.
func RenderJSON(w io.Writer, report validator.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// RenderYAML writes the report as a YAML document.
func RenderYAML(w io.Writer, report validator.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}

// RenderText writes the run overview, the per-directory table, the finding
// counts and a final status line.
func RenderText(w io.Writer, report validator.Report) error {
	var b strings.Builder

	b.WriteString(titleStyle.Render("NeuronBridge validation summary"))
	b.WriteString("\n")
	b.WriteString(overviewTable(report.Summary))
	b.WriteString("\n\n")

	if len(report.Directories) > 0 {
		b.WriteString(titleStyle.Render("Directories"))
		b.WriteString("\n")
		b.WriteString(directoryTable(report.Directories, report.Counts))
		b.WriteString("\n\n")
	}

	if len(report.Counts.Errors)+len(report.Counts.Warnings) > 0 {
		b.WriteString(titleStyle.Render("Findings"))
		b.WriteString("\n")
		b.WriteString(findingsTable(report.Counts))
		b.WriteString("\n\n")
	}

	b.WriteString(StatusLine(report))
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// StatusLine is the closing PASS/FAIL line of a run.
func StatusLine(report validator.Report) string {
	switch {
	case report.Summary.Aborted:
		return failureStyle.Render(fmt.Sprintf("ABORTED during %s after %s", report.Summary.FinalPhase, formatSeconds(report.Summary.DurationSeconds)))
	case report.Summary.HasErrors:
		return failureStyle.Render(fmt.Sprintf("FAIL: %s errors in %s items", humanize.Comma(int64(report.Counts.TotalErrors)), humanize.Comma(int64(report.Counts.Items))))
	default:
		return successStyle.Render(fmt.Sprintf("PASS: %s items, no errors", humanize.Comma(int64(report.Counts.Items))))
	}
}

func overviewTable(s validator.ReportSummary) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	target := s.DataPath
	if s.MatchFile != "" {
		target = s.MatchFile
	}
	t.AppendRow(table.Row{"Data", target})
	if s.ConfigFilePath != "" {
		t.AppendRow(table.Row{"Config", s.ConfigFilePath})
	}
	if s.ClusterAddress != "" {
		t.AppendRow(table.Row{"Cluster", s.ClusterAddress})
	} else {
		t.AppendRow(table.Row{"Cores", s.Concurrency})
	}
	batch := humanize.Comma(int64(s.BatchSize))
	if s.OneBatch {
		batch += " (one batch)"
	}
	t.AppendRow(table.Row{"Batch size", batch})
	t.AppendRow(table.Row{"Published names", fmt.Sprintf("%s (%s)", humanize.Comma(int64(s.IndexedNames)), s.IndexSource)})
	t.AppendRow(table.Row{"Started", s.Timestamp.Format(time.RFC3339)})
	t.AppendRow(table.Row{"Duration", formatSeconds(s.DurationSeconds)})
	return t.Render()
}

func directoryTable(dirs []validator.DirectoryReport, total tally.Summary) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Phase", "Directory", "Tasks", "Items", "Matches", "Errors", "Warnings", "Exceptions", "Avg/item"})

	tasks := 0
	for _, d := range dirs {
		tasks += d.Tasks
		t.AppendRow(table.Row{
			d.Phase,
			d.Path,
			humanize.Comma(int64(d.Tasks)),
			humanize.Comma(int64(d.Counts.Items)),
			humanize.Comma(int64(d.Counts.Matches)),
			humanize.Comma(int64(d.Counts.TotalErrors)),
			humanize.Comma(int64(d.Counts.TotalWarnings)),
			humanize.Comma(int64(d.Counts.Exceptions)),
			formatElapsed(d.Counts.MeanElapsed),
		})
	}
	t.AppendFooter(table.Row{
		"", "Total",
		humanize.Comma(int64(tasks)),
		humanize.Comma(int64(total.Items)),
		humanize.Comma(int64(total.Matches)),
		humanize.Comma(int64(total.TotalErrors)),
		humanize.Comma(int64(total.TotalWarnings)),
		humanize.Comma(int64(total.Exceptions)),
		formatElapsed(total.MeanElapsed),
	})

	right := make([]table.ColumnConfig, 0, 7)
	for n := 3; n <= 9; n++ {
		right = append(right, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignFooter: text.AlignRight})
	}
	t.SetColumnConfigs(right)
	return t.Render()
}

func findingsTable(s tally.Summary) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Severity", "Finding", "Count"})
	for _, c := range s.Errors {
		t.AppendRow(table.Row{tally.SeverityError, c.Code, humanize.Comma(int64(c.Count))})
	}
	for _, c := range s.Warnings {
		t.AppendRow(table.Row{tally.SeverityWarning, c.Code, humanize.Comma(int64(c.Count))})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 3, Align: text.AlignRight}})
	return t.Render()
}

func formatSeconds(sec float64) string {
	return time.Duration(sec * float64(time.Second)).Round(time.Millisecond).String()
}

// formatElapsed shows per-item times, which are usually well under a second.
func formatElapsed(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return fmt.Sprintf("%.4fs", d.Seconds())
}
