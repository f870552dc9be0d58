package compositor

// GridEntry maps item counts up to MaxItems onto a Columns × Rows grid.
type GridEntry struct {
	MaxItems int
	Columns  int
	Rows     int
}

// GridTable is ordered by MaxItems ascending. The last entry caps the item
// count.
type GridTable []GridEntry

// DefaultGrid mirrors the layouts the app ships with.
var DefaultGrid = GridTable{
	{MaxItems: 1, Columns: 1, Rows: 1},
	{MaxItems: 2, Columns: 1, Rows: 2},
	{MaxItems: 4, Columns: 2, Rows: 2},
	{MaxItems: 6, Columns: 3, Rows: 2},
	{MaxItems: 9, Columns: 3, Rows: 3},
	{MaxItems: 12, Columns: 4, Rows: 3},
}

// Cap is the largest item count the table lays out.
func (t GridTable) Cap() int {
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].MaxItems
}

// Lookup returns the grid for n items. n above Cap uses the last entry and
// n below 1 yields 0×0.
func (t GridTable) Lookup(n int) (cols, rows int) {
	if n < 1 || len(t) == 0 {
		return 0, 0
	}
	for _, e := range t {
		if n <= e.MaxItems {
			return e.Columns, e.Rows
		}
	}
	last := t[len(t)-1]
	return last.Columns, last.Rows
}

// Valid reports whether every entry can hold its MaxItems.
func (t GridTable) Valid() bool {
	prev := 0
	for _, e := range t {
		if e.MaxItems <= prev || e.Columns < 1 || e.Rows < 1 || e.Columns*e.Rows < e.MaxItems {
			return false
		}
		prev = e.MaxItems
	}
	return len(t) > 0
}
