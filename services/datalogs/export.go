package datalogs

import (
	"fmt"
	"time"
)

// TimestampLayout matches an ISO-8601 timestamp with microseconds and a
// numeric UTC offset, e.g. 2024-03-01T12:00:00.000000+00:00.
const TimestampLayout = "2006-01-02T15:04:05.000000-07:00"

// absentDate is written into filenames for an unset range bound.
const absentDate = "None"

// DateRange bounds a retrieval. Either side may be empty, meaning
// unbounded on that side. Values are YYYY-MM-DD strings.
type DateRange struct {
	Start string
	End   string
}

func (r DateRange) startOrAbsent() string {
	if r.Start == "" {
		return absentDate
	}
	return r.Start
}

func (r DateRange) endOrAbsent() string {
	if r.End == "" {
		return absentDate
	}
	return r.End
}

// ExportFile is one rendered per-project file ready for upload.
type ExportFile struct {
	Name     string
	Project  string
	Content  []byte
	Metadata Metadata
}

// FileName builds datalogs_<source>_<project>_<start>_<end>_<timestamp>.csv.
func FileName(t LogType, project string, dr DateRange, generated time.Time) string {
	return fmt.Sprintf("datalogs_%s_%s_%s_%s_%s.csv",
		t, project, dr.startOrAbsent(), dr.endOrAbsent(),
		generated.UTC().Format(TimestampLayout))
}

// BuildExports renders one file per project. Every file of a batch shares
// the same generation timestamp.
func (s *Schema) BuildExports(groups *ProjectGroups, dr DateRange, generated time.Time, render Renderer) []ExportFile {
	if render == nil {
		render = RenderCSV
	}
	header := s.Header()
	files := make([]ExportFile, 0, groups.Len())
	for _, project := range groups.Projects() {
		files = append(files, ExportFile{
			Name:     FileName(s.Type, project, dr, generated),
			Project:  project,
			Content:  []byte(render(header, groups.Rows(project))),
			Metadata: s.Metadata,
		})
	}
	return files
}
