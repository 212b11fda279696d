package extracthtml

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"tablesql/internal/table"
)

// TableSelector matches the elements treated as tables: real tables plus
// ARIA grids and DataTables-styled containers.
const TableSelector = "table, [role='grid'], .dataTable"

// ErrNoTables is returned when a page holds no extractable table.
var ErrNoTables = errors.New("extracthtml: no table found")

// ExtractTables parses src and returns every table in document order.
//
// Header rule:
//   - Rows with at least one <th> are header rows. Header j is the text of
//     the j-th <th> of each header row, joined with " / "; blank cells add
//     nothing.
//   - Without header rows, the cells of the first <td> row supply the
//     headers. That row is still a data row.
//
// Rows with at least one <td> are data rows. Cell i is keyed under header i,
// or "col<i>" when header i is missing or blank. Rows of a nested table
// belong to the nested table only. Elements that yield no header are
// skipped.
func ExtractTables(src string) ([]table.RawTable, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var out []table.RawTable
	doc.Find(TableSelector).Each(func(_ int, root *goquery.Selection) {
		if t, ok := parseTable(root); ok {
			out = append(out, t)
		}
	})
	return out, nil
}

func parseTable(root *goquery.Selection) (table.RawTable, bool) {
	rows := root.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Closest(TableSelector).IsSelection(root)
	})

	var headers []string
	var records [][]string
	headerRows := 0
	rows.Each(func(_ int, tr *goquery.Selection) {
		if ths := tr.ChildrenFiltered("th"); ths.Length() > 0 {
			headerRows++
			ths.Each(func(j int, th *goquery.Selection) {
				text := InnerText(th)
				switch {
				case j >= len(headers):
					headers = append(headers, text)
				case text == "":
				case headers[j] == "":
					headers[j] = text
				default:
					headers[j] += " / " + text
				}
			})
		}
		if tds := tr.ChildrenFiltered("td"); tds.Length() > 0 {
			records = append(records, tds.Map(func(_ int, td *goquery.Selection) string {
				return InnerText(td)
			}))
		}
	})

	if headerRows == 0 && len(records) > 0 {
		headers = append([]string(nil), records[0]...)
	}
	if len(headers) == 0 {
		return table.RawTable{}, false
	}
	return table.FromRecords(headers, records), true
}

// SelectTable returns tables[index].
func SelectTable(tables []table.RawTable, index int) (table.RawTable, error) {
	if len(tables) == 0 {
		return table.RawTable{}, ErrNoTables
	}
	if index < 0 || index >= len(tables) {
		return table.RawTable{}, fmt.Errorf("extracthtml: table index %d out of range (page has %d tables)", index, len(tables))
	}
	return tables[index], nil
}

// InnerText approximates the rendered text of sel: script and style content
// is dropped, <br> and block boundaries become spaces and whitespace runs
// collapse to one space.
func InnerText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		writeText(&b, n)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Template, atom.Noscript:
			return
		case atom.Br:
			b.WriteByte(' ')
			return
		case atom.P, atom.Div, atom.Li, atom.Ul, atom.Ol:
			b.WriteByte(' ')
			defer b.WriteByte(' ')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
}
