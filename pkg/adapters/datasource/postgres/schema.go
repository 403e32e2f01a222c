package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// qualifiedTableName returns a properly quoted table reference.
// If schemaName is empty, returns just the quoted table name.
// Otherwise returns "schema"."table".
func qualifiedTableName(schemaName, tableName string) string {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	if schemaName == "" {
		return quotedTable
	}
	return pgx.Identifier{schemaName}.Sanitize() + "." + quotedTable
}

func discoverSchema(ctx context.Context, pool *pgxpool.Pool, schemas []string, logger *zap.Logger) (*models.Schema, error) {
	tables, err := discoverTables(ctx, pool, schemas)
	if err != nil {
		return nil, err
	}

	for i := range tables {
		cols, err := discoverColumns(ctx, pool, tables[i].SchemaName, tables[i].Name)
		if err != nil {
			return nil, err
		}
		tables[i].Columns = cols
	}

	schema := &models.Schema{Tables: tables}

	fks, err := discoverForeignKeys(ctx, pool)
	if err != nil {
		return nil, err
	}
	datasource.AttachForeignKeys(schema, fks)

	distinct := func(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]string, error) {
		return distinctValues(ctx, pool, schemaName, tableName, columnName, limit)
	}
	if err := datasource.CollectSampleValues(ctx, schema, distinct, logger); err != nil {
		return nil, err
	}

	logger.Debug("Discovered schema", zap.Int("tables", len(schema.Tables)))
	return schema, nil
}

// discoverTables returns user tables, excluding system schemas.
func discoverTables(ctx context.Context, pool *pgxpool.Pool, schemas []string) ([]models.SchemaTable, error) {
	const query = `
		SELECT t.table_schema, t.table_name
		FROM information_schema.tables t
		WHERE t.table_type = 'BASE TABLE'
		  AND t.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		  AND (cardinality($1::text[]) = 0 OR t.table_schema = ANY($1::text[]))
		ORDER BY t.table_schema, t.table_name
	`

	if schemas == nil {
		schemas = []string{}
	}
	rows, err := pool.Query(ctx, query, schemas)
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

// discoverColumns returns the columns of a table. pg_index.indisprimary
// detects primary keys even when they were created as unique indexes.
func discoverColumns(ctx context.Context, pool *pgxpool.Pool, schemaName, tableName string) ([]models.SchemaColumn, error) {
	const query = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' AS is_nullable,
			COALESCE(pk.is_pk, false) AS is_primary_key
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT a.attname AS column_name, true AS is_pk
			FROM pg_index ix
			JOIN pg_class t ON t.oid = ix.indrelid
			JOIN pg_namespace n ON n.oid = t.relnamespace
			JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
			WHERE ix.indisprimary = true
			  AND n.nspname = $1
			  AND t.relname = $2
		) pk ON c.column_name = pk.column_name
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	rows, err := pool.Query(ctx, query, schemaName, tableName)
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
		columns = append(columns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return columns, nil
}

// discoverForeignKeys returns one row per foreign key column pair.
func discoverForeignKeys(ctx context.Context, pool *pgxpool.Pool) ([]datasource.ForeignKeyColumn, error) {
	const query = `
		SELECT
			tc.constraint_name,
			kcu.table_schema AS source_schema,
			kcu.table_name AS source_table,
			kcu.column_name AS source_column,
			ccu.table_name AS target_table,
			ccu.column_name AS target_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY kcu.table_schema, kcu.table_name, tc.constraint_name, kcu.ordinal_position
	`

	rows, err := pool.Query(ctx, query)
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

// distinctValues returns up to limit distinct non-null values from a column.
func distinctValues(ctx context.Context, pool *pgxpool.Pool, schemaName, tableName, columnName string, limit int) ([]string, error) {
	tableRef := qualifiedTableName(schemaName, tableName)
	quotedCol := pgx.Identifier{columnName}.Sanitize()

	query := fmt.Sprintf(`
		SELECT DISTINCT %s::text
		FROM %s
		WHERE %s IS NOT NULL
		ORDER BY 1
		LIMIT $1
	`, quotedCol, tableRef, quotedCol)

	rows, err := pool.Query(ctx, query, limit)
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
