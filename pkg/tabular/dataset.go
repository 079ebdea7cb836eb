// Package tabular answers questions over an uploaded CSV or XLSX dataset.
// Datasets are loaded into an in-memory SQLite table that the LLM queries
// with read-only SQL.
package tabular

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xuri/excelize/v2"
)

// TableName is the name of the SQL table holding the dataset.
const TableName = "data"

// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("unsupported dataset format")

// Dataset is a loaded table. It is safe for sequential use by one session.
type Dataset struct {
	Name    string
	Columns []string
	Types   []string
	Rows    [][]string

	db *sql.DB
}

// LoadFile loads a dataset from disk, choosing the format by extension.
func LoadFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	return Load(filepath.Base(path), data)
}

// Load parses data named name (.csv or .xlsx).
func Load(name string, data []byte) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return LoadCSV(name, bytes.NewReader(data))
	case ".xlsx", ".xlsm":
		return LoadXLSX(name, bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

func LoadCSV(name string, r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV %s: %w", name, err)
	}
	return newDataset(name, records)
}

func LoadXLSX(name string, r io.Reader) (*Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", name, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", name)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return newDataset(name, rows)
}

func newDataset(name string, records [][]string) (*Dataset, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset %s is empty", name)
	}

	columns := normalizeHeader(records[0])
	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		row := make([]string, len(columns))
		copy(row, rec)
		rows = append(rows, row)
	}

	ds := &Dataset{
		Name:    name,
		Columns: columns,
		Types:   inferTypes(columns, rows),
		Rows:    rows,
	}
	if err := ds.materialize(); err != nil {
		return nil, err
	}
	return ds, nil
}

// materialize creates the SQLite table and switches the connection to read-only.
func (d *Dataset) materialize() error {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return fmt.Errorf("failed to open sqlite: %w", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(d.Schema()); err != nil {
		db.Close()
		return fmt.Errorf("failed to create table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(d.Columns)), ",")
	tx, err := db.Begin()
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to begin load: %w", err)
	}
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s VALUES (%s)", TableName, placeholders))
	if err != nil {
		tx.Rollback()
		db.Close()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	for _, row := range d.Rows {
		args := make([]any, len(row))
		for i, v := range row {
			args[i] = typedValue(d.Types[i], v)
		}
		if _, err := stmt.Exec(args...); err != nil {
			stmt.Close()
			tx.Rollback()
			db.Close()
			return fmt.Errorf("failed to load row: %w", err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		db.Close()
		return fmt.Errorf("failed to commit load: %w", err)
	}

	if _, err := db.Exec("PRAGMA query_only = ON"); err != nil {
		db.Close()
		return fmt.Errorf("failed to make dataset read-only: %w", err)
	}

	d.db = db
	return nil
}

// Schema returns the CREATE TABLE statement of the dataset.
func (d *Dataset) Schema() string {
	cols := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		cols[i] = fmt.Sprintf("%s %s", quoteIdent(c), d.Types[i])
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", TableName, strings.Join(cols, ", "))
}

// Sample returns up to n leading rows.
func (d *Dataset) Sample(n int) [][]string {
	return d.Rows[:min(n, len(d.Rows))]
}

// Query runs a read-only statement and returns at most maxRows rows.
func (d *Dataset) Query(ctx context.Context, statement string, maxRows int) ([]string, [][]string, error) {
	statement, err := ValidateSelect(statement)
	if err != nil {
		return nil, nil, err
	}

	rows, err := d.db.QueryContext(ctx, statement)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]string
	for rows.Next() {
		if maxRows > 0 && len(out) == maxRows {
			break
		}
		values := make([]sql.NullString, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make([]string, len(columns))
		for i, v := range values {
			if v.Valid {
				row[i] = v.String
			}
		}
		out = append(out, row)
	}
	return columns, out, rows.Err()
}

func (d *Dataset) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// ValidateSelect accepts a single SELECT (or WITH ... SELECT) statement.
func ValidateSelect(statement string) (string, error) {
	s := strings.TrimSpace(statement)
	s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	if s == "" {
		return "", fmt.Errorf("empty SQL statement")
	}
	if strings.Contains(s, ";") {
		return "", fmt.Errorf("only a single statement is allowed")
	}
	first := strings.ToUpper(strings.Fields(s)[0])
	if first != "SELECT" && first != "WITH" {
		return "", fmt.Errorf("only SELECT statements are allowed, got %s", first)
	}
	return s, nil
}

func normalizeHeader(header []string) []string {
	seen := map[string]int{}
	columns := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		key := strings.ToLower(name)
		base := name
		for n := seen[key]; n > 0; n = seen[key] {
			seen[strings.ToLower(base)]++
			name = fmt.Sprintf("%s_%d", base, seen[strings.ToLower(base)])
			key = strings.ToLower(name)
		}
		seen[key]++
		columns[i] = name
	}
	return columns
}

func inferTypes(columns []string, rows [][]string) []string {
	types := make([]string, len(columns))
	for i := range columns {
		isInt, isReal, seen := true, true, false
		for _, row := range rows {
			v := strings.TrimSpace(row[i])
			if v == "" {
				continue
			}
			seen = true
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isReal = false
			}
		}
		switch {
		case seen && isInt:
			types[i] = "INTEGER"
		case seen && isReal:
			types[i] = "REAL"
		default:
			types[i] = "TEXT"
		}
	}
	return types
}

func typedValue(typ, v string) any {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	switch typ {
	case "INTEGER":
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case "REAL":
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return v
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
