package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-nlq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

const sqliteSchema = "main"

type sqliteCatalog struct{}

func (sqliteCatalog) dialect() string { return "sqlite" }

func quoteDouble(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func (sqliteCatalog) tables(ctx context.Context, db *sql.DB) ([]models.SchemaTable, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	names, err := scanStrings(rows)
	if err != nil {
		return nil, err
	}

	tables := make([]models.SchemaTable, len(names))
	for i, name := range names {
		tables[i] = models.SchemaTable{SchemaName: sqliteSchema, Name: name}
	}
	return tables, nil
}

func (sqliteCatalog) columns(ctx context.Context, db *sql.DB, table models.SchemaTable) ([]models.SchemaColumn, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+quoteDouble(table.Name)+")")
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []models.SchemaColumn
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, dataType   string
			dflt             any
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, models.SchemaColumn{
			Name:         name,
			DataType:     strings.ToUpper(dataType),
			IsNullable:   notNull == 0 && pk == 0,
			IsPrimaryKey: pk > 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}

// foreignKeys reads PRAGMA foreign_key_list per table. SQLite does not name
// constraints, so names are derived from the table and key id.
func (c sqliteCatalog) foreignKeys(ctx context.Context, db *sql.DB, tables []models.SchemaTable) ([]datasource.ForeignKeyColumn, error) {
	var fks []datasource.ForeignKeyColumn
	for _, t := range tables {
		rows, err := db.QueryContext(ctx, "PRAGMA foreign_key_list("+quoteDouble(t.Name)+")")
		if err != nil {
			return nil, fmt.Errorf("query foreign keys of %s: %w", t.Name, err)
		}

		for rows.Next() {
			var (
				id, seq                         int
				target, from                    string
				to                              sql.NullString
				onUpdate, onDelete, matchClause string
			)
			if err := rows.Scan(&id, &seq, &target, &from, &to, &onUpdate, &onDelete, &matchClause); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan foreign key: %w", err)
			}
			targetColumn := to.String
			if !to.Valid || targetColumn == "" {
				targetColumn = c.primaryKeyColumn(tables, target, seq)
			}
			fks = append(fks, datasource.ForeignKeyColumn{
				ConstraintName: fmt.Sprintf("fk_%s_%d", t.Name, id),
				SourceSchema:   sqliteSchema,
				SourceTable:    t.Name,
				SourceColumn:   from,
				TargetTable:    target,
				TargetColumn:   targetColumn,
			})
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate foreign keys of %s: %w", t.Name, err)
		}
	}
	return fks, nil
}

// primaryKeyColumn resolves the implicit target of "REFERENCES t" clauses.
func (sqliteCatalog) primaryKeyColumn(tables []models.SchemaTable, table string, seq int) string {
	for _, t := range tables {
		if !strings.EqualFold(t.Name, table) {
			continue
		}
		n := 0
		for _, col := range t.Columns {
			if !col.IsPrimaryKey {
				continue
			}
			if n == seq {
				return col.Name
			}
			n++
		}
	}
	return "rowid"
}

func (sqliteCatalog) distinctValues(ctx context.Context, db *sql.DB, schemaName, tableName, columnName string, limit int) ([]string, error) {
	col := quoteDouble(columnName)
	query := fmt.Sprintf(
		"SELECT DISTINCT CAST(%s AS TEXT) FROM %s.%s WHERE %s IS NOT NULL ORDER BY 1 LIMIT ?",
		col, quoteDouble(schemaName), quoteDouble(tableName), col)

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get distinct values for %s.%s: %w", tableName, columnName, err)
	}
	return scanStrings(rows)
}
