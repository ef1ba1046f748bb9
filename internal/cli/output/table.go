package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by results that can be shown as a table.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// PrintTable writes data as a borderless, left aligned table.
func PrintTable(w io.Writer, data TableRenderer) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader(data.Headers())

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	table.AppendBulk(data.Rows())
	table.Render()
	return nil
}

// Table is an ad-hoc TableRenderer. The JSON and YAML forms are a list of
// objects keyed by lower-cased header.
type Table struct {
	headers []string
	rows    [][]string
}

// NewTable creates an empty table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// AddRow appends a row. Missing cells render empty.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

func (t *Table) Headers() []string { return t.headers }
func (t *Table) Rows() [][]string  { return t.rows }

// Records returns the rows as header-keyed maps.
func (t *Table) Records() []map[string]string {
	out := make([]map[string]string, 0, len(t.rows))
	for _, row := range t.rows {
		rec := make(map[string]string, len(t.headers))
		for i, h := range t.headers {
			rec[toKey(h)] = row[i]
		}
		out = append(out, rec)
	}
	return out
}

func (t *Table) MarshalJSON() ([]byte, error) { return marshalJSON(t.Records()) }
func (t *Table) MarshalYAML() (any, error)    { return t.Records(), nil }

// SimpleTable prints key: value pairs.
func SimpleTable(w io.Writer, pairs [][2]string) error {
	table := tablewriter.NewWriter(w)

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator(":")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, p := range pairs {
		table.Append([]string{p[0], p[1]})
	}
	table.Render()
	return nil
}
