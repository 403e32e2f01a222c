package datasource

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// ForeignKeyColumn is one column pair of a foreign key constraint as returned
// by catalog queries. Composite keys produce one row per column.
type ForeignKeyColumn struct {
	ConstraintName string
	SourceSchema   string
	SourceTable    string
	SourceColumn   string
	TargetTable    string
	TargetColumn   string
}

// AttachForeignKeys groups catalog rows by source table and constraint and
// appends the resulting keys to the tables of schema. Rows naming a table
// that is not part of schema are ignored.
func AttachForeignKeys(schema *models.Schema, cols []ForeignKeyColumn) {
	type fkKey struct{ schema, table, name string }
	index := make(map[fkKey]int)

	for _, c := range cols {
		table := findTable(schema, c.SourceSchema, c.SourceTable)
		if table == nil {
			continue
		}
		key := fkKey{c.SourceSchema, c.SourceTable, c.ConstraintName}
		i, ok := index[key]
		if !ok {
			table.ForeignKeys = append(table.ForeignKeys, models.SchemaForeignKey{
				Name:            c.ConstraintName,
				ReferencedTable: c.TargetTable,
			})
			i = len(table.ForeignKeys) - 1
			index[key] = i
		}
		fk := &table.ForeignKeys[i]
		fk.Columns = append(fk.Columns, c.SourceColumn)
		fk.ReferencedColumns = append(fk.ReferencedColumns, c.TargetColumn)
	}
}

func findTable(schema *models.Schema, schemaName, tableName string) *models.SchemaTable {
	for i := range schema.Tables {
		t := &schema.Tables[i]
		if t.Name == tableName && (schemaName == "" || t.SchemaName == schemaName) {
			return t
		}
	}
	return nil
}

// IsTextType reports whether a database type name denotes character data.
func IsTextType(dataType string) bool {
	t := strings.ToLower(dataType)
	return strings.Contains(t, "char") ||
		strings.Contains(t, "text") ||
		strings.Contains(t, "string") ||
		t == "enum" || strings.HasPrefix(t, "enum(")
}

// DistinctValuesFunc returns up to limit distinct non-null values of a column.
type DistinctValuesFunc func(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]string, error)

// CollectSampleValues fills SampleValues of every text column holding at most
// SampleValueLimit distinct values. A column whose values cannot be read is
// logged and left without samples.
func CollectSampleValues(ctx context.Context, schema *models.Schema, fetch DistinctValuesFunc, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for ti := range schema.Tables {
		table := &schema.Tables[ti]
		for ci := range table.Columns {
			col := &table.Columns[ci]
			if !IsTextType(col.DataType) || col.IsPrimaryKey {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			values, err := fetch(ctx, table.SchemaName, table.Name, col.Name, SampleValueLimit+1)
			if err != nil {
				logger.Warn("Failed to read sample values",
					zap.String("table", table.Name),
					zap.String("column", col.Name),
					zap.Error(err))
				continue
			}
			if len(values) == 0 || len(values) > SampleValueLimit {
				continue
			}
			col.SampleValues = values
		}
	}
	return nil
}
