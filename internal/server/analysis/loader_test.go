package analysis

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oasis-water/oasis-backend/internal/common"
)

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o660))
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeTestFile(t, "input.csv",
		"Sample_id,timestamp,Long,Lat,NO3\n"+
			"S1,2024-01-01,10.5,45.2,3.1\n"+
			"S2,2024-01-02,10.6,45.3,2.8\n")

	l := &Loader{}
	table, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sample_id", "timestamp", "Long", "Lat", "NO3"}, table.Columns)
	assert.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"3.1", "2.8"}, table.Column("NO3"))
}

func TestLoadTXTTabSeparated(t *testing.T) {
	path := writeTestFile(t, "input.txt",
		"Sample_id\ttimestamp\tLong\tLat\tChloride\n"+
			"S1\t2024-01-01\t10.5\t45.2\t12.0\n")

	l := &Loader{}
	table, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"12.0"}, table.Column("Chloride"))
}

func TestLoadJSON(t *testing.T) {
	path := writeTestFile(t, "input.json",
		`[{"Sample_id":"S1","timestamp":"2024-01-01","Long":10.5,"Lat":45.2,"NO3":3.1}]`)

	l := &Loader{}
	table, err := l.Load(path)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, []string{"3.1"}, table.Column("NO3"))
}

func TestLoadNormalizesColumnAliases(t *testing.T) {
	path := writeTestFile(t, "input.csv",
		"sample id,datetime,longitude,latitude,NO3\n"+
			"S1,2024-01-01,10.5,45.2,3.1\n")

	l := &Loader{}
	table, err := l.Load(path)
	require.NoError(t, err)
	for _, col := range RequiredColumns {
		assert.GreaterOrEqual(t, table.ColumnIndex(col), 0, "missing column %s", col)
	}
}

func TestLoadValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantMsg string
	}{
		{
			name:    "missing required column",
			file:    "input.csv",
			content: "Sample_id,timestamp,Long,NO3\nS1,2024-01-01,10.5,3.1\n",
			wantMsg: "missing required columns",
		},
		{
			name:    "longitude out of range",
			file:    "input.csv",
			content: "Sample_id,timestamp,Long,Lat,NO3\nS1,2024-01-01,200,45.2,3.1\n",
			wantMsg: "longitude",
		},
		{
			name:    "latitude out of range",
			file:    "input.csv",
			content: "Sample_id,timestamp,Long,Lat,NO3\nS1,2024-01-01,10.5,97,3.1\n",
			wantMsg: "latitude",
		},
		{
			name:    "bad timestamp",
			file:    "input.csv",
			content: "Sample_id,timestamp,Long,Lat,NO3\nS1,not-a-date,10.5,45.2,3.1\n",
			wantMsg: "timestamp",
		},
		{
			name:    "no chemistry columns",
			file:    "input.csv",
			content: "Sample_id,timestamp,Long,Lat\nS1,2024-01-01,10.5,45.2\n",
			wantMsg: "chemical concentration",
		},
		{
			name:    "negative concentration",
			file:    "input.csv",
			content: "Sample_id,timestamp,Long,Lat,NO3\nS1,2024-01-01,10.5,45.2,-3.1\n",
			wantMsg: "negative values",
		},
		{
			name:    "empty file",
			file:    "input.csv",
			content: "Sample_id,timestamp,Long,Lat,NO3\n",
			wantMsg: "no data",
		},
		{
			name:    "unsupported extension",
			file:    "input.xlsx",
			content: "whatever",
			wantMsg: "unsupported file format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTestFile(t, tt.file, tt.content)
			l := &Loader{}
			_, err := l.Load(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrValidation), "expected validation error, got %v", err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadRejectsOversizedFile(t *testing.T) {
	path := writeTestFile(t, "input.csv",
		"Sample_id,timestamp,Long,Lat,NO3\nS1,2024-01-01,10.5,45.2,3.1\n")

	l := &Loader{MaxFileBytes: 10}
	_, err := l.Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrValidation))
	assert.Contains(t, err.Error(), "too large")
}

func TestLoadMissingFile(t *testing.T) {
	l := &Loader{}
	_, err := l.Load(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrValidation))
}
