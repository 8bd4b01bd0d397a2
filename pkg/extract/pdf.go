package extract

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// cellGap is the minimum horizontal gap, in points, between two text
// fragments on the same row before they are treated as separate cells.
const cellGap = 14.0

var whitespaceRun = regexp.MustCompile(`\s+`)

// extractPDF extracts page text with embedded tables rendered as
// markdown. If the table-aware pass yields nothing, it falls back to
// the plain text stream so a layout-odd PDF still ingests.
func extractPDF(ctx context.Context, path string) (string, error) {
	text, err := extractPDFWithTables(ctx, path)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	return extractPDFPlain(path)
}

// extractPDFWithTables walks each page row by row, detecting runs of
// multi-cell rows as tables. Detected tables are rendered as markdown
// and spliced in after the page's prose with a page-referenced marker,
// so downstream chunking treats them as ordinary text.
func extractPDFWithTables(ctx context.Context, path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	total := reader.NumPage()
	var out strings.Builder

	for pageNum := 1; pageNum <= total; pageNum++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("page %d: %w", pageNum, err)
		}

		prose, tables := splitRows(rows)

		fmt.Fprintf(&out, "\n\n[Page %d of %d]\n", pageNum, total)
		out.WriteString(prose)

		for i, table := range tables {
			md := renderMarkdownTable(table)
			if md == "" {
				continue
			}
			fmt.Fprintf(&out, "\n\n### Extracted Table %d from Page %d\n\n%s\n", i+1, pageNum, md)
		}
	}

	return strings.TrimSpace(out.String()), nil
}

// splitRows partitions a page's rows into prose text and table regions.
// A table is a run of two or more consecutive rows that each split into
// two or more cells with a consistent column count.
func splitRows(rows pdf.Rows) (string, [][][]string) {
	type rowData struct {
		cells []string
	}

	parsed := make([]rowData, 0, len(rows))
	for _, row := range rows {
		parsed = append(parsed, rowData{cells: rowCells(row)})
	}

	var prose []string
	var tables [][][]string
	var current [][]string

	flush := func() {
		if len(current) >= 2 {
			tables = append(tables, current)
		} else {
			// Too short to be a table; keep as prose.
			for _, cells := range current {
				prose = append(prose, strings.Join(cells, " "))
			}
		}
		current = nil
	}

	for _, row := range parsed {
		if len(row.cells) >= 2 && (len(current) == 0 || len(row.cells) == len(current[len(current)-1])) {
			current = append(current, row.cells)
			continue
		}
		flush()
		if len(row.cells) >= 2 {
			current = append(current, row.cells)
		} else if len(row.cells) == 1 {
			prose = append(prose, row.cells[0])
		}
	}
	flush()

	return strings.Join(prose, "\n"), tables
}

// rowCells joins a row's positioned text fragments into cells, starting
// a new cell wherever the horizontal gap exceeds cellGap.
func rowCells(row *pdf.Row) []string {
	var cells []string
	var cell strings.Builder
	lastEnd := -1.0

	for _, t := range row.Content {
		if t.S == "" {
			continue
		}
		if lastEnd >= 0 && t.X-lastEnd > cellGap {
			if s := cleanCell(cell.String()); s != "" {
				cells = append(cells, s)
			}
			cell.Reset()
		} else if lastEnd >= 0 && t.X-lastEnd > 1.0 {
			cell.WriteByte(' ')
		}
		cell.WriteString(t.S)
		lastEnd = t.X + t.W
	}
	if s := cleanCell(cell.String()); s != "" {
		cells = append(cells, s)
	}
	return cells
}

// cleanCell collapses internal whitespace so markdown cells stay on one line.
func cleanCell(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// renderMarkdownTable renders rows as a markdown table, first row as
// header, padding short rows to the header's column count.
func renderMarkdownTable(rows [][]string) string {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return ""
	}

	cols := len(rows[0])
	var b strings.Builder

	writeRow := func(cells []string) {
		b.WriteString("|")
		for i := 0; i < cols; i++ {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString(" " + cell + " |")
		}
		b.WriteByte('\n')
	}

	writeRow(rows[0])
	b.WriteString("|")
	for i := 0; i < cols; i++ {
		b.WriteString(" --- |")
	}
	b.WriteByte('\n')
	for _, row := range rows[1:] {
		writeRow(row)
	}

	return strings.TrimRight(b.String(), "\n")
}

// extractPDFPlain reads the document's full text stream without table
// detection.
func extractPDFPlain(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
