package output

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/tanq16/hlsget/internal/types"
	"github.com/tanq16/hlsget/internal/utils"
)

type Table struct {
	Headers []string
	Rows    [][]string
	table   *table.Table
}

func NewTable(headers []string) *Table {
	t := &Table{
		Headers: headers,
		Rows:    [][]string{},
	}
	t.table = table.New().Headers(headers...)
	t.table = t.table.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return lipgloss.NewStyle().Bold(true).Align(lipgloss.Center).Padding(0, 1)
		}
		return lipgloss.NewStyle().Padding(0, 1)
	})
	return t
}

func (t *Table) FormatTable(useMarkdown bool) string {
	for _, row := range t.Rows {
		t.table.Row(row...)
	}
	t.Rows = nil
	if useMarkdown {
		return t.table.Border(lipgloss.MarkdownBorder()).String()
	}
	return t.table.String()
}

// RenderJobs writes one row per job, newest first as given.
func RenderJobs(w io.Writer, jobs []types.Job, useMarkdown bool) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, FDebug("no jobs"))
		return
	}
	t := NewTable([]string{"ID", "Status", "Progress", "Size", "File", "Kind"})
	for _, job := range jobs {
		size := utils.FormatBytes(job.DownloadedBytes)
		if job.TotalBytes > 0 {
			size += " / " + utils.FormatBytes(job.TotalBytes)
		}
		t.Rows = append(t.Rows, []string{
			strconv.FormatInt(job.ID, 10),
			StatusIndicator(job.Status) + " " + job.Status.String(),
			fmt.Sprintf("%d%%", job.Percent()),
			size,
			truncate(job.FileName, 48),
			string(job.Kind),
		})
	}
	fmt.Fprintln(w, t.FormatTable(useMarkdown))
}
