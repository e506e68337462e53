// Package datalogs turns raw Open Humans access-log records into per-project
// CSV exports.
//
// The pipeline is fetch → normalize → group → render → upload, run once per
// LogType. Every stage is usable on its own; Retriever wires them together.
package datalogs

import "fmt"

// LogType identifies one of the two access-log sources exposed by the
// Open Humans data-management API.
type LogType int

const (
	// LogTypeOpenHumans is the platform-native file access log.
	LogTypeOpenHumans LogType = iota
	// LogTypeAWS is the storage-backend (S3 server access) log.
	LogTypeAWS
)

// LogTypes lists every known log type in the order a retrieval runs them.
var LogTypes = []LogType{LogTypeOpenHumans, LogTypeAWS}

func (t LogType) String() string {
	switch t {
	case LogTypeOpenHumans:
		return "open-humans"
	case LogTypeAWS:
		return "aws"
	default:
		return fmt.Sprintf("LogType(%d)", int(t))
	}
}

// Source says where a Resolver looks for a value inside a LogRecord.
type Source int

const (
	SourceTopLevel Source = iota
	SourceDatafile
	SourceKey
)

// Resolver reads one field from one part of a record.
type Resolver struct {
	Source Source
	Field  string
}

// Lookup returns the raw value and whether the field is present at all.
// A present field may still hold nil.
func (r Resolver) Lookup(rec LogRecord) (any, bool) {
	var scope map[string]any
	switch r.Source {
	case SourceTopLevel:
		scope = rec
	case SourceDatafile:
		scope = rec.nested(fieldDatafile)
	case SourceKey:
		scope = rec.nested(fieldKey)
	}
	if scope == nil {
		return nil, false
	}
	v, ok := scope[r.Field]
	return v, ok
}

// Column is one output column and the ordered resolvers that fill it. The
// first resolver that finds its field wins; if none does the column gets
// the placeholder.
type Column struct {
	Name      string
	Resolvers []Resolver
}

// TopLevel is a column read straight from the record.
func TopLevel(name string) Column {
	return Column{Name: name, Resolvers: []Resolver{{SourceTopLevel, name}}}
}

// DatafileField is a "datafile_<field>" column. A top-level field of the same
// name takes precedence over the nested datafile value.
func DatafileField(field string) Column {
	name := "datafile_" + field
	return Column{Name: name, Resolvers: []Resolver{{SourceTopLevel, name}, {SourceDatafile, field}}}
}

// KeyField is a "key_<field>" column, resolved like DatafileField but from
// the nested key record.
func KeyField(field string) Column {
	name := "key_" + field
	return Column{Name: name, Resolvers: []Resolver{{SourceTopLevel, name}, {SourceKey, field}}}
}

// Metadata describes an uploaded export file.
type Metadata struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Schema describes how one log type is fetched and flattened.
type Schema struct {
	Type     LogType
	Endpoint string // data-management endpoint name
	Columns  []Column
	Metadata Metadata
}

// Header returns the column names in order.
func (s *Schema) Header() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

var datafileColumns = []Column{
	DatafileField("id"),
	DatafileField("source"),
	DatafileField("created"),
	DatafileField("user_id"),
	DatafileField("basename"),
	DatafileField("download_url"),
}

func concat(groups ...[]Column) []Column {
	var out []Column
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// OpenHumansSchema covers newdatafileaccesslog records.
var OpenHumansSchema = &Schema{
	Type:     LogTypeOpenHumans,
	Endpoint: "newdatafileaccesslog",
	Columns: concat(
		[]Column{TopLevel("date"), TopLevel("ip_address"), TopLevel("user")},
		datafileColumns,
		[]Column{
			KeyField("id"),
			KeyField("key"),
			KeyField("created"),
			KeyField("project_id"),
			KeyField("datafile_id"),
			KeyField("access_token"),
			KeyField("key_creation_ip_address"),
		},
	),
	Metadata: Metadata{
		Description: "Open Humans access logs:  Open Humans side",
		Tags:        []string{"logs", "access logs", "Open Humans access logs"},
	},
}

// AWSSchema covers awsdatafileaccesslog records.
var AWSSchema = &Schema{
	Type:     LogTypeAWS,
	Endpoint: "awsdatafileaccesslog",
	Columns: concat(
		[]Column{
			TopLevel("time"),
			TopLevel("remote_ip"),
			TopLevel("request_id"),
			TopLevel("operation"),
			TopLevel("bucket_key"),
			TopLevel("request_uri"),
			TopLevel("status"),
			TopLevel("bytes_sent"),
			TopLevel("object_size"),
			TopLevel("total_time"),
			TopLevel("turn_around_time"),
			TopLevel("referrer"),
			TopLevel("user_agent"),
			TopLevel("cipher_suite"),
			TopLevel("host_header"),
		},
		datafileColumns,
	),
	Metadata: Metadata{
		Description: "Open Humans access logs:  AWS side",
		Tags:        []string{"logs", "access logs", "AWS access logs"},
	},
}

// SchemaFor returns the schema of a log type.
func SchemaFor(t LogType) (*Schema, error) {
	switch t {
	case LogTypeOpenHumans:
		return OpenHumansSchema, nil
	case LogTypeAWS:
		return AWSSchema, nil
	}
	return nil, fmt.Errorf("unknown log type: %s", t)
}
