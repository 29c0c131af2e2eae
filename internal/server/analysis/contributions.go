package analysis

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/oasis-water/oasis-backend/internal/filex"
)

// BuildContributions writes the per-sample contributions table to path and
// returns the detected model type and the number of data rows written.
//
// The output carries the identifying columns, a nitrate_contribution column
// when nitrate tracers are present (the row mean over all nitrate columns),
// and one conservative_contribution_<tracer> column per conservative tracer.
func BuildContributions(t *Table, path string) (string, int, error) {
	nitrateCols := nitrateColumns(t)
	conservativeCols := conservativeTracerColumns(t)

	if len(nitrateCols) == 0 && len(conservativeCols) == 0 {
		return "", 0, fmt.Errorf("no tracer columns to build contributions from")
	}

	modelType := "conservative"
	switch {
	case len(nitrateCols) > 0 && len(conservativeCols) > 0:
		modelType = "combined"
	case len(nitrateCols) > 0:
		modelType = "nitrate"
	}

	header := make([]string, 0, len(RequiredColumns)+1+len(conservativeCols))
	header = append(header, RequiredColumns...)
	if len(nitrateCols) > 0 {
		header = append(header, "nitrate_contribution")
	}
	for _, col := range conservativeCols {
		header = append(header, "conservative_contribution_"+col)
	}

	if err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return "", 0, err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("creating contributions file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return "", 0, err
	}

	baseIdx := make([]int, 0, len(RequiredColumns))
	for _, col := range RequiredColumns {
		baseIdx = append(baseIdx, t.ColumnIndex(col))
	}

	nitrateIdx := columnIndexes(t, nitrateCols)
	conservativeIdx := columnIndexes(t, conservativeCols)

	for _, row := range t.Rows {
		record := make([]string, 0, len(header))
		for _, i := range baseIdx {
			record = append(record, cell(row, i))
		}

		if len(nitrateIdx) > 0 {
			values := make([]string, 0, len(nitrateIdx))
			for _, i := range nitrateIdx {
				values = append(values, cell(row, i))
			}
			if mean, ok := meanOf(values); ok {
				record = append(record, formatFloat(mean))
			} else {
				record = append(record, "")
			}
		}

		for _, i := range conservativeIdx {
			record = append(record, cell(row, i))
		}

		if err := w.Write(record); err != nil {
			return "", 0, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", 0, err
	}
	if err := f.Close(); err != nil {
		return "", 0, err
	}

	return modelType, len(t.Rows), nil
}

// conservativeTracerColumns returns the chemistry columns matching a
// conservative tracer keyword, in table order.
func conservativeTracerColumns(t *Table) []string {
	var cols []string
	for _, col := range t.ChemistryColumns() {
		if isNitrateColumn(col) {
			continue
		}
		for _, word := range strings.Fields(normalizeColumn(col)) {
			if _, ok := conservativeTracerKeywords[word]; ok {
				cols = append(cols, col)
				break
			}
		}
	}
	return cols
}

func columnIndexes(t *Table, cols []string) []int {
	idx := make([]int, 0, len(cols))
	for _, col := range cols {
		idx = append(idx, t.ColumnIndex(col))
	}
	return idx
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
