package analysis

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oasis-water/oasis-backend/internal/common"
)

// columnAliases maps normalized header names onto the canonical required
// column names so minor header variations still validate.
var columnAliases = map[string]string{
	"longitude":  "Long",
	"long":       "Long",
	"lon":        "Long",
	"lng":        "Long",
	"latitude":   "Lat",
	"lat":        "Lat",
	"time_stamp": "timestamp",
	"datetime":   "timestamp",
	"time":       "timestamp",
	"timestamp":  "timestamp",
	"sampleid":   "Sample_id",
	"sample id":  "Sample_id",
	"sample_id":  "Sample_id",
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
	"01/02/2006 15:04",
}

// Loader reads sample tables from CSV, TXT (sniffed separator), and JSON
// files and validates them. All failures wrap common.ErrValidation.
type Loader struct {
	// MaxFileBytes caps the input size; zero means 50 MB.
	MaxFileBytes int64
}

const defaultMaxFileBytes = 50 * 1024 * 1024

// SupportedExtension reports whether the filename carries a loadable
// extension. A missing extension counts as CSV, matching the default
// applied when the upload is stored.
func SupportedExtension(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case "", ".csv", ".txt", ".json":
		return true
	}
	return false
}

// Load parses the file at path and validates the resulting table.
func (l *Loader) Load(path string) (*Table, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: file not found: %s", common.ErrValidation, path)
	}

	maxBytes := l.MaxFileBytes
	if maxBytes == 0 {
		maxBytes = defaultMaxFileBytes
	}
	if info.Size() > maxBytes {
		return nil, fmt.Errorf("%w: file too large: %d bytes (max %d)", common.ErrValidation, info.Size(), maxBytes)
	}

	var table *Table
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		table, err = readSeparated(path, ',')
	case ".txt":
		table, err = readSniffed(path)
	case ".json":
		table, err = readJSON(path)
	default:
		return nil, fmt.Errorf("%w: unsupported file format: %s", common.ErrValidation, ext)
	}
	if err != nil {
		return nil, err
	}

	return l.Validate(table)
}

// Validate normalizes column names and checks required columns, coordinate
// ranges, timestamps, and chemistry values. It returns the validated table.
func (l *Loader) Validate(table *Table) (*Table, error) {
	if table == nil || len(table.Rows) == 0 {
		return nil, fmt.Errorf("%w: file contains no data", common.ErrValidation)
	}

	normalizeColumns(table)

	var missing []string
	for _, c := range RequiredColumns {
		if table.ColumnIndex(c) < 0 {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s (required: %s)",
			common.ErrValidation, strings.Join(missing, ", "), strings.Join(RequiredColumns, ", "))
	}

	if err := validateCoordinates(table); err != nil {
		return nil, err
	}
	if err := validateTimestamps(table); err != nil {
		return nil, err
	}
	if err := validateChemistry(table); err != nil {
		return nil, err
	}

	return table, nil
}

func normalizeColumns(table *Table) {
	for i, col := range table.Columns {
		normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(col), "-", "_"))
		if canonical, ok := columnAliases[normalized]; ok {
			table.Columns[i] = canonical
		}
	}
}

func validateCoordinates(table *Table) error {
	longIdx := table.ColumnIndex("Long")
	latIdx := table.ColumnIndex("Lat")

	for i, row := range table.Rows {
		lon, err := strconv.ParseFloat(strings.TrimSpace(row[longIdx]), 64)
		if err != nil {
			return fmt.Errorf("%w: row %d has a missing or non-numeric longitude", common.ErrValidation, i+1)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(row[latIdx]), 64)
		if err != nil {
			return fmt.Errorf("%w: row %d has a missing or non-numeric latitude", common.ErrValidation, i+1)
		}
		if lon < -180 || lon > 180 {
			return fmt.Errorf("%w: row %d has longitude %v outside [-180, 180]", common.ErrValidation, i+1, lon)
		}
		if lat < -90 || lat > 90 {
			return fmt.Errorf("%w: row %d has latitude %v outside [-90, 90]", common.ErrValidation, i+1, lat)
		}
	}
	return nil
}

func validateTimestamps(table *Table) error {
	idx := table.ColumnIndex("timestamp")
	for i, row := range table.Rows {
		value := strings.TrimSpace(row[idx])
		if value == "" {
			return fmt.Errorf("%w: row %d has a missing timestamp", common.ErrValidation, i+1)
		}
		if !parseableTimestamp(value) {
			return fmt.Errorf("%w: row %d has invalid timestamp %q", common.ErrValidation, i+1, value)
		}
	}
	return nil
}

func parseableTimestamp(value string) bool {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return true
		}
	}
	return false
}

func validateChemistry(table *Table) error {
	chem := table.ChemistryColumns()
	if len(chem) == 0 {
		return fmt.Errorf("%w: no chemical concentration columns found; provide at least one chemical column in addition to required fields", common.ErrValidation)
	}

	for _, col := range chem {
		idx := table.ColumnIndex(col)
		negatives := 0
		for _, row := range table.Rows {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
			if err != nil {
				continue // non-numeric cells are ignored, matching loader semantics for mixed columns
			}
			if v < 0 {
				negatives++
			}
		}
		if negatives > 0 {
			return fmt.Errorf("%w: found %d negative values in %q (concentrations must be >= 0)", common.ErrValidation, negatives, col)
		}
	}
	return nil
}

func readSeparated(path string, sep rune) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open file: %v", common.ErrValidation, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = sep
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse file: %v", common.ErrValidation, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: file contains no data", common.ErrValidation)
	}

	return &Table{Columns: records[0], Rows: records[1:]}, nil
}

func readSniffed(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open file: %v", common.ErrValidation, err)
	}

	firstLine, _, _ := strings.Cut(string(raw), "\n")
	sep := ','
	for _, candidate := range []rune{'\t', ';'} {
		if strings.ContainsRune(firstLine, candidate) {
			sep = candidate
			break
		}
	}
	return readSeparatedBytes(raw, sep)
}

func readSeparatedBytes(raw []byte, sep rune) (*Table, error) {
	r := csv.NewReader(strings.NewReader(string(raw)))
	r.Comma = sep
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse file: %v", common.ErrValidation, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: file contains no data", common.ErrValidation)
	}
	return &Table{Columns: records[0], Rows: records[1:]}, nil
}

func readJSON(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open file: %v", common.ErrValidation, err)
	}

	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: failed to parse file: %v", common.ErrValidation, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: file contains no data", common.ErrValidation)
	}

	columns := make([]string, 0, len(records[0]))
	for k := range records[0] {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	rows := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(columns))
		for j, col := range columns {
			if v, ok := rec[col]; ok && v != nil {
				row[j] = fmt.Sprintf("%v", v)
			}
		}
		rows[i] = row
	}
	return &Table{Columns: columns, Rows: rows}, nil
}
