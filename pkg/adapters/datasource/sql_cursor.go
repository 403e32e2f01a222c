package datasource

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// SQLCursor adapts *sql.Rows to RowCursor for adapters built on database/sql.
type SQLCursor struct {
	rows    *sql.Rows
	columns []models.ColumnDescriptor
	binary  []bool
}

// NewSQLCursor takes ownership of rows. Rows are closed when column metadata
// cannot be read.
func NewSQLCursor(rows *sql.Rows) (*SQLCursor, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("read column types: %w", err)
	}

	c := &SQLCursor{
		rows:    rows,
		columns: make([]models.ColumnDescriptor, len(types)),
		binary:  make([]bool, len(types)),
	}
	for i, ct := range types {
		typeName := strings.ToUpper(ct.DatabaseTypeName())
		c.columns[i] = models.ColumnDescriptor{Name: ct.Name(), Type: typeName}
		c.binary[i] = strings.Contains(typeName, "BINARY") || strings.Contains(typeName, "BLOB")
	}
	return c, nil
}

func (c *SQLCursor) Columns() []models.ColumnDescriptor {
	return c.columns
}

func (c *SQLCursor) Next() bool {
	return c.rows.Next()
}

// Row scans the current row. Character data some drivers return as []byte is
// converted to string; binary columns keep their bytes.
func (c *SQLCursor) Row() (models.Row, error) {
	values := make([]any, len(c.columns))
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := c.rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}

	row := make(models.Row, len(values))
	for i, col := range c.columns {
		if b, ok := values[i].([]byte); ok && !c.binary[i] {
			row[col.Name] = string(b)
			continue
		}
		row[col.Name] = values[i]
	}
	return row, nil
}

func (c *SQLCursor) Err() error {
	return c.rows.Err()
}

func (c *SQLCursor) Close() error {
	return c.rows.Close()
}

var _ RowCursor = (*SQLCursor)(nil)
