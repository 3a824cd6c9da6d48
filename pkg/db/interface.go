package db

import (
	"fmt"
)

var (
	ErrNoEntryFound = fmt.Errorf("no entry found")
	ErrNoNextEntry  = fmt.Errorf("no next entry found")
	ErrNoPrevEntry  = fmt.Errorf("no previous entry found")
)

// DataSource is the authoritative shape of the data behind a table. It must
// already reflect an edit by the time the edit is submitted.
type DataSource interface {
	NumberOfSections() int
	NumberOfRows(section int) int
}

// Counts snapshots the row count of every section.
func Counts(ds DataSource) []int {
	n := ds.NumberOfSections()
	if n < 0 {
		n = 0
	}
	counts := make([]int, n)
	for i := range counts {
		counts[i] = ds.NumberOfRows(i)
	}
	return counts
}
