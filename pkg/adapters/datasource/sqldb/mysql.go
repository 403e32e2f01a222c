package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-nlq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

type mysqlCatalog struct{}

func (mysqlCatalog) dialect() string { return "mysql" }

func quoteBacktick(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}

func (mysqlCatalog) tables(ctx context.Context, db *sql.DB) ([]models.SchemaTable, error) {
	const query = `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []models.SchemaTable
	for rows.Next() {
		var t models.SchemaTable
		if err := rows.Scan(&t.SchemaName, &t.Name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

func (mysqlCatalog) columns(ctx context.Context, db *sql.DB, table models.SchemaTable) ([]models.SchemaColumn, error) {
	const query = `
		SELECT column_name, data_type, is_nullable = 'YES', column_key = 'PRI'
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`

	rows, err := db.QueryContext(ctx, query, table.SchemaName, table.Name)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []models.SchemaColumn
	for rows.Next() {
		var c models.SchemaColumn
		if err := rows.Scan(&c.Name, &c.DataType, &c.IsNullable, &c.IsPrimaryKey); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		c.DataType = strings.ToUpper(c.DataType)
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}

func (mysqlCatalog) foreignKeys(ctx context.Context, db *sql.DB, _ []models.SchemaTable) ([]datasource.ForeignKeyColumn, error) {
	const query = `
		SELECT constraint_name, table_schema, table_name, column_name,
		       referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE() AND referenced_table_name IS NOT NULL
		ORDER BY table_name, constraint_name, ordinal_position`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []datasource.ForeignKeyColumn
	for rows.Next() {
		var fk datasource.ForeignKeyColumn
		if err := rows.Scan(&fk.ConstraintName, &fk.SourceSchema, &fk.SourceTable, &fk.SourceColumn,
			&fk.TargetTable, &fk.TargetColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}
	return fks, nil
}

func (mysqlCatalog) distinctValues(ctx context.Context, db *sql.DB, schemaName, tableName, columnName string, limit int) ([]string, error) {
	col := quoteBacktick(columnName)
	query := fmt.Sprintf(
		"SELECT DISTINCT CAST(%s AS CHAR) FROM %s.%s WHERE %s IS NOT NULL ORDER BY 1 LIMIT ?",
		col, quoteBacktick(schemaName), quoteBacktick(tableName), col)

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get distinct values for %s.%s: %w", tableName, columnName, err)
	}
	return scanStrings(rows)
}
