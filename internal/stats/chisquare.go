package stats

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// SignificanceLevel is the fixed threshold below which an association is
// reported as significant.
const SignificanceLevel = 0.05

var ErrEmptyTable = errors.New("contingency table is empty")

// Table is an r x c contingency table of observed frequencies.
type Table struct {
	Rows   []string
	Cols   []string
	Counts [][]int
}

func NewTable(rows, cols []string) *Table {
	counts := make([][]int, len(rows))
	for i := range counts {
		counts[i] = make([]int, len(cols))
	}
	return &Table{Rows: rows, Cols: cols, Counts: counts}
}

func (t *Table) Add(row, col, n int) {
	if row < 0 || col < 0 || row >= len(t.Rows) || col >= len(t.Cols) {
		return
	}
	t.Counts[row][col] += n
}

func (t *Table) RowTotals() []int {
	out := make([]int, len(t.Rows))
	for i, row := range t.Counts {
		for _, n := range row {
			out[i] += n
		}
	}
	return out
}

func (t *Table) ColTotals() []int {
	out := make([]int, len(t.Cols))
	for _, row := range t.Counts {
		for j, n := range row {
			out[j] += n
		}
	}
	return out
}

func (t *Table) Total() int {
	total := 0
	for _, n := range t.RowTotals() {
		total += n
	}
	return total
}

// Test is the outcome of Pearson's chi-square test of independence.
type Test struct {
	ChiSquared float64
	DOF        int
	PValue     float64
}

func (t Test) Significant() bool { return t.PValue < SignificanceLevel }

// ChiSquare runs Pearson's test over the non-empty rows and columns of t.
// Tables with fewer than two non-empty rows or columns have no degrees of
// freedom and report chi 0, p 1.
func ChiSquare(t *Table) (Test, error) {
	if t == nil || len(t.Rows) == 0 || len(t.Cols) == 0 {
		return Test{}, ErrEmptyTable
	}
	rowTotals := t.RowTotals()
	colTotals := t.ColTotals()
	total := 0
	for _, n := range rowTotals {
		total += n
	}
	if total == 0 {
		return Test{ChiSquared: 0, DOF: 0, PValue: 1}, nil
	}

	nonEmptyRows, nonEmptyCols := 0, 0
	for _, n := range rowTotals {
		if n > 0 {
			nonEmptyRows++
		}
	}
	for _, n := range colTotals {
		if n > 0 {
			nonEmptyCols++
		}
	}
	dof := (nonEmptyRows - 1) * (nonEmptyCols - 1)
	if dof <= 0 {
		return Test{ChiSquared: 0, DOF: 0, PValue: 1}, nil
	}

	chi := 0.0
	n := float64(total)
	for i, row := range t.Counts {
		if rowTotals[i] == 0 {
			continue
		}
		for j, observed := range row {
			if colTotals[j] == 0 {
				continue
			}
			expected := float64(rowTotals[i]) * float64(colTotals[j]) / n
			d := float64(observed) - expected
			chi += d * d / expected
		}
	}
	return Test{ChiSquared: chi, DOF: dof, PValue: PValue(chi, dof)}, nil
}

// PValue is the upper tail probability of the chi-square distribution.
func PValue(chi float64, dof int) float64 {
	if dof <= 0 || math.IsNaN(chi) {
		return 1
	}
	if chi <= 0 {
		return 1
	}
	p := distuv.ChiSquared{K: float64(dof)}.Survival(chi)
	switch {
	case math.IsNaN(p):
		return 1
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
