package model

// Row is one line of the aggregate table.
type Row struct {
	ID     SubhaloID
	Status Status
	Values []float64
}

// Table is the merged, id-sorted result of a run.
type Table struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Lookup returns the row for id, if present. Rows must be sorted.
func (t *Table) Lookup(id SubhaloID) (Row, bool) {
	lo, hi := 0, len(t.Rows)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.Rows[mid].ID < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(t.Rows) && t.Rows[lo].ID == id {
		return t.Rows[lo], true
	}
	return Row{}, false
}

// Column returns the index of the named column or -1.
func (t *Table) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}
