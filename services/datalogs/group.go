package datalogs

// ProjectGroups partitions rows by project. Projects keep the order in
// which they were first seen and rows keep their input order.
type ProjectGroups struct {
	order []string
	rows  map[string][]Row
}

func NewProjectGroups() *ProjectGroups {
	return &ProjectGroups{rows: make(map[string][]Row)}
}

// GroupByProject builds groups from normalized rows.
func GroupByProject(items []Normalized) *ProjectGroups {
	g := NewProjectGroups()
	for _, n := range items {
		g.Add(n.Project, n.Row)
	}
	return g
}

func (g *ProjectGroups) Add(project string, row Row) {
	if _, seen := g.rows[project]; !seen {
		g.order = append(g.order, project)
	}
	g.rows[project] = append(g.rows[project], row)
}

// Projects returns project ids in first-seen order.
func (g *ProjectGroups) Projects() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

func (g *ProjectGroups) Rows(project string) []Row {
	return g.rows[project]
}

// Len is the number of distinct projects.
func (g *ProjectGroups) Len() int {
	return len(g.order)
}

// Total is the number of rows across all projects.
func (g *ProjectGroups) Total() int {
	n := 0
	for _, rows := range g.rows {
		n += len(rows)
	}
	return n
}
