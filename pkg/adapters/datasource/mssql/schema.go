package mssql

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

func discoverSchema(ctx context.Context, db *sql.DB, logger *zap.Logger) (*models.Schema, error) {
	tables, err := discoverTables(ctx, db)
	if err != nil {
		return nil, err
	}
	for i := range tables {
		cols, err := discoverColumns(ctx, db, tables[i].SchemaName, tables[i].Name)
		if err != nil {
			return nil, err
		}
		tables[i].Columns = cols
	}

	schema := &models.Schema{Tables: tables}

	fks, err := discoverForeignKeys(ctx, db)
	if err != nil {
		return nil, err
	}
	datasource.AttachForeignKeys(schema, fks)

	distinct := func(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]string, error) {
		return distinctValues(ctx, db, schemaName, tableName, columnName, limit)
	}
	if err := datasource.CollectSampleValues(ctx, schema, distinct, logger); err != nil {
		return nil, err
	}
	return schema, nil
}

// discoverTables returns all user tables.
func discoverTables(ctx context.Context, db *sql.DB) ([]models.SchemaTable, error) {
	const query = `
	SET NOCOUNT ON;
	SELECT SCHEMA_NAME(t.schema_id) AS table_schema, t.name AS table_name
	FROM sys.tables t
	WHERE t.is_ms_shipped = 0
	ORDER BY table_schema, table_name
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []models.SchemaTable
	for rows.Next() {
		var table models.SchemaTable
		if err := rows.Scan(&table.SchemaName, &table.Name); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		tables = append(tables, table)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}

	return tables, nil
}

// discoverColumns returns columns for a specific table.
func discoverColumns(ctx context.Context, db *sql.DB, schemaName, tableName string) ([]models.SchemaColumn, error) {
	const query = `
	SET NOCOUNT ON;
	SELECT
	    c.name AS column_name,
	    tp.name AS data_type,
	    CASE WHEN c.is_nullable = 1 THEN 1 ELSE 0 END AS is_nullable,
	    CASE WHEN pk.column_id IS NOT NULL THEN 1 ELSE 0 END AS is_primary_key
	FROM sys.columns c
	INNER JOIN sys.types tp ON c.user_type_id = tp.user_type_id
	LEFT JOIN (
	    SELECT ic.object_id, ic.column_id
	    FROM sys.index_columns ic
	    INNER JOIN sys.indexes i ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	    WHERE i.is_primary_key = 1
	) pk ON c.object_id = pk.object_id AND c.column_id = pk.column_id
	WHERE c.object_id = OBJECT_ID(QUOTENAME(@schema) + N'.' + QUOTENAME(@table))
	ORDER BY c.column_id
	`

	rows, err := db.QueryContext(ctx, query,
		sql.Named("schema", schemaName),
		sql.Named("table", tableName),
	)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []models.SchemaColumn
	for rows.Next() {
		var col models.SchemaColumn
		var isNullable, isPrimary int
		if err := rows.Scan(&col.Name, &col.DataType, &isNullable, &isPrimary); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		col.IsNullable = isNullable == 1
		col.IsPrimaryKey = isPrimary == 1
		col.DataType = mapSQLServerType(col.DataType)
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}

	return columns, nil
}

// discoverForeignKeys returns one row per foreign key column pair.
func discoverForeignKeys(ctx context.Context, db *sql.DB) ([]datasource.ForeignKeyColumn, error) {
	const query = `
	SET NOCOUNT ON;
	SELECT
	    fk.name AS constraint_name,
	    SCHEMA_NAME(fk.schema_id) AS source_schema,
	    OBJECT_NAME(fk.parent_object_id) AS source_table,
	    COL_NAME(fkc.parent_object_id, fkc.parent_column_id) AS source_column,
	    OBJECT_NAME(fk.referenced_object_id) AS target_table,
	    COL_NAME(fkc.referenced_object_id, fkc.referenced_column_id) AS target_column
	FROM sys.foreign_keys fk
	INNER JOIN sys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
	WHERE fk.is_ms_shipped = 0
	ORDER BY source_schema, source_table, fk.name, fkc.constraint_column_id
	`

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
			return nil, fmt.Errorf("scan foreign key row: %w", err)
		}
		fks = append(fks, fk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign key rows: %w", err)
	}

	return fks, nil
}

// distinctValues returns up to limit distinct non-null values of a column as
// strings, sorted alphabetically.
func distinctValues(ctx context.Context, db *sql.DB, schemaName, tableName, columnName string, limit int) ([]string, error) {
	query := fmt.Sprintf(`
	SET NOCOUNT ON;
	SELECT DISTINCT TOP (%d) CAST(%s AS NVARCHAR(MAX)) AS val
	FROM %s WITH (NOLOCK)
	WHERE %s IS NOT NULL
	ORDER BY 1
	`,
		limit,
		quoteName(columnName),
		buildFullyQualifiedName(schemaName, tableName),
		quoteName(columnName),
	)

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get distinct values for %s.%s.%s: %w", schemaName, tableName, columnName, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var val string
		if err := rows.Scan(&val); err != nil {
			return nil, fmt.Errorf("scan distinct value: %w", err)
		}
		values = append(values, val)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distinct values: %w", err)
	}

	return values, nil
}
