package postgres

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ekaya-inc/ekaya-nlq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// typeMap is only read after construction.
var typeMap = pgtype.NewMap()

type cursor struct {
	rows    pgx.Rows
	columns []models.ColumnDescriptor
}

func newCursor(rows pgx.Rows) *cursor {
	fieldDescs := rows.FieldDescriptions()
	columns := make([]models.ColumnDescriptor, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = models.ColumnDescriptor{
			Name: fd.Name,
			Type: typeNameFromOID(fd.DataTypeOID),
		}
	}
	return &cursor{rows: rows, columns: columns}
}

func typeNameFromOID(oid uint32) string {
	if t, ok := typeMap.TypeForOID(oid); ok {
		return strings.ToUpper(t.Name)
	}
	return fmt.Sprintf("OID(%d)", oid)
}

func (c *cursor) Columns() []models.ColumnDescriptor {
	return c.columns
}

func (c *cursor) Next() bool {
	return c.rows.Next()
}

func (c *cursor) Row() (models.Row, error) {
	values, err := c.rows.Values()
	if err != nil {
		return nil, fmt.Errorf("failed to read row values: %w", err)
	}

	row := make(models.Row, len(c.columns))
	for i, col := range c.columns {
		row[col.Name] = plainValue(values[i])
	}
	return row, nil
}

// plainValue converts pgx wire types without a natural Go form into values
// that serialize cleanly.
func plainValue(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(val).String()
	}
	return v
}

func (c *cursor) Err() error {
	return c.rows.Err()
}

func (c *cursor) Close() error {
	c.rows.Close()
	return nil
}

var _ datasource.RowCursor = (*cursor)(nil)
