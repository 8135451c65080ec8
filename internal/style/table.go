package style

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Alignment positions a cell inside its column.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
	AlignCenter
)

// Column describes one table column. Width 0 sizes it to its content.
type Column struct {
	Name  string
	Width int
	Align Alignment
	Style lipgloss.Style
}

// Table renders fixed-width rows for terminal output.
type Table struct {
	columns   []Column
	rows      [][]string
	indent    string
	headerSep bool
}

// NewTable creates a table with a header separator and a two-space indent.
func NewTable(columns ...Column) *Table {
	return &Table{columns: columns, indent: "  ", headerSep: true}
}

// SetIndent sets the prefix of every rendered line.
func (t *Table) SetIndent(indent string) *Table {
	t.indent = indent
	return t
}

// SetHeaderSeparator toggles the rule under the header.
func (t *Table) SetHeaderSeparator(on bool) *Table {
	t.headerSep = on
	return t
}

// AddRow appends a row, padding missing cells with "".
func (t *Table) AddRow(values ...string) *Table {
	row := make([]string, len(t.columns))
	copy(row, values)
	t.rows = append(t.rows, row)
	return t
}

// Render returns the table, one line per row, each ending in a newline.
func (t *Table) Render() string {
	if len(t.columns) == 0 {
		return ""
	}

	widths := make([]int, len(t.columns))
	for i, c := range t.columns {
		widths[i] = c.Width
		if widths[i] > 0 {
			continue
		}
		widths[i] = lipgloss.Width(c.Name)
		for _, row := range t.rows {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	var sb strings.Builder
	cells := make([]string, len(t.columns))
	for i, c := range t.columns {
		name := truncate(c.Name, widths[i])
		cells[i] = t.pad(Bold.Render(name), name, widths[i], c.Align)
	}
	t.writeLine(&sb, cells)

	if t.headerSep {
		for i := range t.columns {
			cells[i] = Dim.Render(strings.Repeat("─", widths[i]))
		}
		t.writeLine(&sb, cells)
	}

	for _, row := range t.rows {
		for i, c := range t.columns {
			plain := truncate(row[i], widths[i])
			cells[i] = t.pad(c.Style.Render(plain), plain, widths[i], c.Align)
		}
		t.writeLine(&sb, cells)
	}
	return sb.String()
}

func (t *Table) writeLine(sb *strings.Builder, cells []string) {
	sb.WriteString(t.indent)
	sb.WriteString(strings.TrimRight(strings.Join(cells, "  "), " "))
	sb.WriteByte('\n')
}

// pad widens styled to width using the visible length of plain.
func (t *Table) pad(styled, plain string, width int, align Alignment) string {
	gap := width - lipgloss.Width(plain)
	if gap <= 0 {
		return styled
	}
	switch align {
	case AlignRight:
		return strings.Repeat(" ", gap) + styled
	case AlignCenter:
		left := gap / 2
		return strings.Repeat(" ", left) + styled + strings.Repeat(" ", gap-left)
	default:
		return styled + strings.Repeat(" ", gap)
	}
}

func truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	if width <= 3 {
		return string([]rune(s)[:width])
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+3 > width {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripAnsi(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}
