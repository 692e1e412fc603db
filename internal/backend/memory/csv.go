package memory

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/roach88/tally/internal/table"
)

// ReadCSV builds a row table from CSV data. The first record is the header;
// cell types are inferred per cell: integers, then floats, then booleans,
// then strings. Empty cells load as null.
func ReadCSV(r io.Reader) (*table.Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("memory: csv input has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("memory: reading csv header: %w", err)
	}
	t, err := table.New(header...)
	if err != nil {
		return nil, fmt.Errorf("memory: csv header: %w", err)
	}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			return nil, fmt.Errorf("memory: reading csv row: %w", err)
		}
		vals := make([]table.Value, len(record))
		for i, cell := range record {
			vals[i] = inferCell(cell)
		}
		if err := t.Append(vals...); err != nil {
			return nil, err
		}
	}
}

// LoadCSVFile is ReadCSV over a file path.
func LoadCSVFile(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

func inferCell(cell string) table.Value {
	if cell == "" {
		return table.Null{}
	}
	if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return table.Int(n)
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return table.Float(f)
	}
	if cell == "true" || cell == "false" {
		return table.Bool(cell == "true")
	}
	return table.String(cell)
}
