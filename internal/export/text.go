package export

import (
	"io"
	"strconv"

	"agridash/internal/engine"

	"github.com/olekukonko/tablewriter"
)

// WriteText renders the frame as an aligned text table for terminals.
func WriteText(w io.Writer, f *engine.Frame) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)

	header := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		header[i] = c.Name
	}
	table.SetHeader(header)

	for _, row := range f.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = FormatCell(v)
		}
		table.Append(cells)
	}
	table.Render()
}

// FormatCell prints a frame cell without exponent notation; nil is "".
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}
