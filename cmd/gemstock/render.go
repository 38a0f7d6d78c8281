package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/JonMunkholm/gemstock/internal/core"
	"github.com/JonMunkholm/gemstock/internal/ingest"
)

var (
	colorGreen = lipgloss.Color("#00FF87")
	colorRed   = lipgloss.Color("#FF5F5F")
	colorGray  = lipgloss.Color("#626262")
	colorCyan  = lipgloss.Color("#00D7FF")

	styleHeader  = lipgloss.NewStyle().Foreground(colorCyan).Bold(true).Padding(0, 1)
	styleCell    = lipgloss.NewStyle().Padding(0, 1)
	styleSuccess = styleCell.Foreground(colorGreen)
	styleFailed  = styleCell.Foreground(colorRed)
	stylePending = styleCell.Foreground(colorGray)
	styleError   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	styleTitle   = lipgloss.NewStyle().Bold(true)
)

// maxErrorWidth keeps long validation messages from blowing up the table.
const maxErrorWidth = 60

// renderRows prints one table line per record: line, display columns,
// status and error.
func renderRows(w io.Writer, columns []string, records []ingest.IngestRecord) {
	headers := append([]string{"Line"}, columns...)
	headers = append(headers, "Status", "Error")
	statusCol := len(headers) - 2

	rows := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, 0, len(headers))
		row = append(row, strconv.Itoa(rec.Row.LineNumber))
		for _, col := range columns {
			row = append(row, rec.Row.Get(col))
		}
		row = append(row, string(rec.Status), truncate(rec.Error, maxErrorWidth))
		rows[i] = row
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorGray)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			if col != statusCol || row < 0 || row >= len(records) {
				return styleCell
			}
			switch records[row].Status {
			case ingest.StatusSuccess:
				return styleSuccess
			case ingest.StatusFailed:
				return styleFailed
			default:
				return stylePending
			}
		})
	fmt.Fprintln(w, t.Render())
}

// renderSummary prints the totals line. Size and duration are left out
// when zero.
func renderSummary(w io.Writer, name string, size int64, sum ingest.Summary, took time.Duration) {
	title := styleTitle.Render(name)
	if size > 0 {
		title += " (" + humanize.Bytes(uint64(size)) + ")"
	}
	line := fmt.Sprintf("%s: %s rows, %s saved, %s failed",
		title,
		humanize.Comma(int64(sum.TotalRows)),
		styleSuccess.UnsetPadding().Render(humanize.Comma(int64(sum.SuccessCount))),
		styleFailed.UnsetPadding().Render(humanize.Comma(int64(sum.ErrorCount))),
	)
	if took > 0 {
		line += " in " + took.Round(time.Millisecond).String()
	}
	fmt.Fprintln(w, line)
}

// renderHistory prints recent batches, newest first.
func renderHistory(w io.Writer, logs []core.BatchLog) {
	rows := make([][]string, len(logs))
	for i, b := range logs {
		state := "complete"
		if b.Cancelled {
			state = "cancelled"
		}
		rows[i] = []string{
			b.FinishedAt.Local().Format("2006-01-02 15:04"),
			humanize.Time(b.FinishedAt),
			b.FileName,
			b.Origin,
			strconv.Itoa(b.Attempt),
			humanize.Comma(int64(b.Summary.TotalRows)),
			humanize.Comma(int64(b.Summary.SuccessCount)),
			humanize.Comma(int64(b.Summary.ErrorCount)),
			state,
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorGray)).
		Headers("Finished", "", "File", "Origin", "Attempt", "Rows", "Saved", "Failed", "State").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			return styleCell
		})
	fmt.Fprintln(w, t.Render())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
