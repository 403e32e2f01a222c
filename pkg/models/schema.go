package models

import "strings"

// SchemaColumn describes a table column known to the pipeline.
// SampleValues holds distinct values of low-cardinality text columns and is
// used to recognise literal values in questions.
type SchemaColumn struct {
	Name         string   `json:"name"`
	DataType     string   `json:"data_type"`
	IsNullable   bool     `json:"is_nullable"`
	IsPrimaryKey bool     `json:"is_primary_key"`
	SampleValues []string `json:"sample_values,omitempty"`
}

// SchemaForeignKey is a foreign key constraint declared on a table.
type SchemaForeignKey struct {
	Name              string   `json:"name"`
	Columns           []string `json:"columns"`
	ReferencedTable   string   `json:"referenced_table"`
	ReferencedColumns []string `json:"referenced_columns"`
}

// SchemaTable is a table with its columns and outgoing foreign keys.
type SchemaTable struct {
	SchemaName  string             `json:"schema_name"`
	Name        string             `json:"name"`
	Columns     []SchemaColumn     `json:"columns"`
	ForeignKeys []SchemaForeignKey `json:"foreign_keys,omitempty"`
}

// Column returns the column with the given name (case-insensitive).
func (t *SchemaTable) Column(name string) (*SchemaColumn, bool) {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// Schema is the candidate schema of a data source: the tables and columns
// entity extraction may match against.
type Schema struct {
	DatasourceID string        `json:"datasource_id"`
	Tables       []SchemaTable `json:"tables"`
}

// Table returns the table with the given name (case-insensitive).
func (s *Schema) Table(name string) (*SchemaTable, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Tables {
		if strings.EqualFold(s.Tables[i].Name, name) {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// TablesWithColumn returns the names of every table holding column name.
func (s *Schema) TablesWithColumn(name string) []string {
	if s == nil {
		return nil
	}
	var out []string
	for i := range s.Tables {
		if _, ok := s.Tables[i].Column(name); ok {
			out = append(out, s.Tables[i].Name)
		}
	}
	return out
}

// Relationships converts the declared foreign keys into relationships with
// full confidence.
func (s *Schema) Relationships() []TableRelationship {
	if s == nil {
		return nil
	}
	var out []TableRelationship
	for _, t := range s.Tables {
		for _, fk := range t.ForeignKeys {
			if strings.EqualFold(t.Name, fk.ReferencedTable) {
				continue
			}
			out = append(out, TableRelationship{
				SourceTable:   t.Name,
				SourceColumns: append([]string(nil), fk.Columns...),
				TargetTable:   fk.ReferencedTable,
				TargetColumns: append([]string(nil), fk.ReferencedColumns...),
				RelationType:  RelationForeignKey,
				Weight:        1.0,
				Frequency:     1,
			})
		}
	}
	return out
}
