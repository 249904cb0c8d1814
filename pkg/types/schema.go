package types

// Schema defines the structure of a session table.
type Schema struct {
	// Version tracks schema evolution for downstream readers
	Version int `json:"version"`

	// Columns defines the columns in output order
	Columns []ColumnDef `json:"columns"`

	// Indexes defines the indexes to create on columnar exports
	Indexes []IndexDef `json:"indexes"`
}

// ColumnDef defines a single column in the schema.
type ColumnDef struct {
	// Name is the column name, also used as the CSV header
	Name string `json:"name"`

	// Type is the SQLite type: TEXT, INTEGER, REAL
	Type string `json:"type"`

	// Nullable indicates whether the column can contain NULL values
	Nullable bool `json:"nullable"`

	// PrimaryKey indicates whether this column is part of the primary key
	PrimaryKey bool `json:"primary_key"`
}

// IndexDef defines an index on a columnar export.
type IndexDef struct {
	// Name is the index name
	Name string `json:"name"`

	// Columns lists the columns included in the index
	Columns []string `json:"columns"`

	// Unique indicates whether the index enforces uniqueness
	Unique bool `json:"unique"`
}

// SessionSchema returns the schema of the generated experiment table.
func SessionSchema() Schema {
	return Schema{
		Version: 1,
		Columns: []ColumnDef{
			{Name: "session_id", Type: "TEXT", Nullable: false, PrimaryKey: true},
			{Name: "user_id", Type: "TEXT", Nullable: false},
			{Name: "timestamp", Type: "TEXT", Nullable: false},
			{Name: "group", Type: "TEXT", Nullable: false},
			{Name: "landing_page", Type: "TEXT", Nullable: false},
			{Name: "device", Type: "TEXT", Nullable: true},
			{Name: "converted", Type: "INTEGER", Nullable: false},
			{Name: "order_value", Type: "REAL", Nullable: true},
		},
		Indexes: []IndexDef{
			{Name: "idx_sessions_group_time", Columns: []string{"group", "timestamp"}},
			{Name: "idx_sessions_user", Columns: []string{"user_id"}},
		},
	}
}

// ColumnNames returns the column names in order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}
