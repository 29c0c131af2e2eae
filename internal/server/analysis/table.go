// Package analysis implements the input loader and the tracer-apportionment
// runner consumed by the execution orchestrator.
package analysis

// RequiredColumns are the non-chemistry columns every input table must carry.
var RequiredColumns = []string{"Sample_id", "timestamp", "Long", "Lat"}

// Table is a validated rectangular dataset: an ordered column list and rows
// of string cells aligned with it.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ColumnIndex returns the position of name in Columns, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns all cells of the named column in row order.
func (t *Table) Column(name string) []string {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}
	return values
}

// ChemistryColumns returns the columns that are not in RequiredColumns.
func (t *Table) ChemistryColumns() []string {
	required := make(map[string]struct{}, len(RequiredColumns))
	for _, c := range RequiredColumns {
		required[c] = struct{}{}
	}
	var chem []string
	for _, c := range t.Columns {
		if _, ok := required[c]; !ok {
			chem = append(chem, c)
		}
	}
	return chem
}
