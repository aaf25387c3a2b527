package formatting

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	dbupdatev1 "dbupdater/pkg/apis/dbupdate/v1"
)

const maxErrorWidth = 60

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

func (f *TableFormatter) FormatDatabaseUpdates(w io.Writer, items []dbupdatev1.DatabaseUpdate) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, f.colorize(text.FgYellow, "No DatabaseUpdates found"))
		return err
	}

	t := f.createTable(w)
	t.AppendHeader(table.Row{
		f.colorize(text.FgHiCyan, "NAMESPACE"),
		f.colorize(text.FgHiCyan, "NAME"),
		f.colorize(text.FgHiCyan, "DESIRED"),
		f.colorize(text.FgHiCyan, "CURRENT"),
		f.colorize(text.FgHiCyan, "PHASE"),
		f.colorize(text.FgHiCyan, "TASK"),
		f.colorize(text.FgHiCyan, "LAST ERROR"),
	})

	for _, row := range Rows(items) {
		current := row.Current
		if current == "" {
			current = "-"
		}
		t.AppendRow(table.Row{
			row.Namespace,
			row.Name,
			row.Desired,
			current,
			f.phase(row.Phase),
			row.Task,
			truncate(row.LastError, maxErrorWidth),
		})
	}

	t.Render()
	return nil
}

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) phase(phase string) string {
	switch dbupdatev1.DatabaseUpdatePhase(phase) {
	case dbupdatev1.PhaseConverged:
		return f.colorize(text.FgGreen, phase)
	case dbupdatev1.PhaseFailed:
		return f.colorize(text.FgRed, phase)
	case dbupdatev1.PhaseMigrating, dbupdatev1.PhaseUpdatingDownstream:
		return f.colorize(text.FgYellow, phase)
	case "":
		return "-"
	default:
		return phase
	}
}

func (f *TableFormatter) colorize(c text.Color, s string) string {
	if !f.options.Color {
		return s
	}
	return c.Sprint(s)
}
