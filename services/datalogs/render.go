package datalogs

import "strings"

// Renderer turns a header and rows into file content.
type Renderer func(header []string, rows []Row) string

// RenderCSV joins the header and rows with the delimiter, one line each,
// without quoting and without a trailing newline. Values are written as-is,
// so a value containing a line break spans several physical lines.
func RenderCSV(header []string, rows []Row) string {
	var b strings.Builder
	b.WriteString(strings.Join(header, Delimiter))
	for _, row := range rows {
		b.WriteByte('\n')
		b.WriteString(strings.Join(row, Delimiter))
	}
	return b.String()
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// RenderCSVEscaped is RenderCSV with line breaks inside values replaced by
// a space, so every record occupies exactly one line.
func RenderCSVEscaped(header []string, rows []Row) string {
	escaped := make([]Row, len(rows))
	for i, row := range rows {
		out := make(Row, len(row))
		for j, v := range row {
			out[j] = lineBreaks.Replace(v)
		}
		escaped[i] = out
	}
	return RenderCSV(header, escaped)
}

// RendererFor picks the renderer for the escape-newlines setting.
func RendererFor(escapeNewlines bool) Renderer {
	if escapeNewlines {
		return RenderCSVEscaped
	}
	return RenderCSV
}
