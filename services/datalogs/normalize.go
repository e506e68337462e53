package datalogs

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	fieldDatafile = "datafile"
	fieldKey      = "key"
	fieldSource   = "source"

	// Placeholder fills a column whose value is missing or null.
	Placeholder = "-"
	// Delimiter separates fields within a rendered row.
	Delimiter = ","
)

// LogRecord is one raw access-log entry as decoded from the API. Nested
// "datafile" and "key" entries are themselves maps.
type LogRecord map[string]any

func (r LogRecord) nested(field string) map[string]any {
	switch v := r[field].(type) {
	case map[string]any:
		return v
	case LogRecord:
		return v
	}
	return nil
}

// Datafile returns the nested datafile entry, or nil when the record has
// none or it is null.
func (r LogRecord) Datafile() map[string]any {
	return r.nested(fieldDatafile)
}

// Row is a normalized record: one string per schema column, with the
// delimiter already removed from every value.
type Row []string

// Normalized is a row plus the project it belongs to.
type Normalized struct {
	Project string
	Row     Row
}

// nullProject groups records whose datafile source is present but null.
const nullProject = "None"

// Normalize flattens a record into a row for this schema. ok is false when
// the record has no datafile, an empty one, or one without a source key.
// The file was usually deleted between the access and the retrieval, so
// such records are skipped and never attributed to a project.
func (s *Schema) Normalize(rec LogRecord) (n Normalized, ok bool) {
	df := rec.Datafile()
	if len(df) == 0 {
		return Normalized{}, false
	}
	src, present := df[fieldSource]
	if !present {
		return Normalized{}, false
	}

	row := make(Row, len(s.Columns))
	for i, col := range s.Columns {
		row[i] = resolve(col, rec)
	}

	project := nullProject
	if src != nil {
		project = stringify(src)
	}
	return Normalized{Project: project, Row: row}, true
}

// NormalizeAll normalizes a batch in input order and reports how many
// records were skipped.
func (s *Schema) NormalizeAll(recs []LogRecord) (out []Normalized, skipped int) {
	out = make([]Normalized, 0, len(recs))
	for _, rec := range recs {
		n, ok := s.Normalize(rec)
		if !ok {
			skipped++
			continue
		}
		out = append(out, n)
	}
	return out, skipped
}

func resolve(col Column, rec LogRecord) string {
	for _, r := range col.Resolvers {
		v, found := r.Lookup(rec)
		if !found {
			continue
		}
		if v == nil {
			return Placeholder
		}
		return sanitize(stringify(v))
	}
	return Placeholder
}

func sanitize(s string) string {
	return strings.ReplaceAll(s, Delimiter, "")
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any, []any, LogRecord:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
