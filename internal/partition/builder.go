// Package partition writes generated sessions as SQLite micro-partitions with
// JSON metadata sidecars.
package partition

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	generrors "github.com/arkilian/abgen/internal/errors"
	"github.com/arkilian/abgen/pkg/types"
	_ "github.com/mattn/go-sqlite3"
)

const (
	tableName       = "sessions"
	statsTableName  = "_abgen_stats"
	timestampLayout = "2006-01-02 15:04:05"
)

// PartitionBuilder creates SQLite micro-partitions from rows.
type PartitionBuilder interface {
	// Build creates a partition from rows, returns partition info and file paths
	Build(ctx context.Context, rows []types.SessionEvent, key string) (*PartitionInfo, error)
}

// PartitionInfo contains metadata about a created partition.
type PartitionInfo struct {
	PartitionID   string
	PartitionKey  string
	SQLitePath    string
	MetadataPath  string
	RowCount      int64
	SizeBytes     int64
	MinMaxStats   map[string]MinMax
	NullCounts    map[string]int64
	Groups        map[string]GroupStats
	SchemaVersion int
	CreatedAt     time.Time
}

// MinMax holds min/max values for a column.
type MinMax struct {
	Min interface{}
	Max interface{}
}

// Builder implements PartitionBuilder.
type Builder struct {
	outputDir string
	runID     string
	schema    types.Schema
}

// NewBuilder creates a new partition builder. Partition ids embed a prefix of
// runID so a rerun with the same inputs overwrites the same files.
func NewBuilder(outputDir, runID string) *Builder {
	return &Builder{
		outputDir: outputDir,
		runID:     runID,
		schema:    types.SessionSchema(),
	}
}

// PartitionID returns the id of the partition holding key.
func (b *Builder) PartitionID(key string) string {
	prefix := b.runID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("%s:%s:%s", tableName, key, prefix)
}

// Build creates a partition from rows.
func (b *Builder) Build(ctx context.Context, rows []types.SessionEvent, key string) (*PartitionInfo, error) {
	if len(rows) == 0 {
		return nil, generrors.NewPartitionError("cannot build partition with empty rows", nil)
	}

	partitionID := b.PartitionID(key)
	createdAt := time.Now()

	if err := os.MkdirAll(b.outputDir, 0755); err != nil {
		return nil, generrors.NewPartitionError("failed to create output directory", err)
	}

	sqlitePath := filepath.Clean(filepath.Join(b.outputDir, partitionID+".sqlite"))
	for _, p := range []string{sqlitePath, sqlitePath + "-wal", sqlitePath + "-shm", sqlitePath + "-journal"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return nil, generrors.NewPartitionError("failed to remove stale partition file", err)
		}
	}

	stats, err := b.write(ctx, sqlitePath, rows)
	if err != nil {
		os.Remove(sqlitePath)
		return nil, err
	}

	fileInfo, err := os.Stat(sqlitePath)
	if err != nil {
		return nil, generrors.NewPartitionError("failed to stat SQLite file", err)
	}

	return &PartitionInfo{
		PartitionID:   partitionID,
		PartitionKey:  key,
		SQLitePath:    sqlitePath,
		RowCount:      int64(len(rows)),
		SizeBytes:     fileInfo.Size(),
		MinMaxStats:   stats.GetMinMaxStats(),
		NullCounts:    stats.NullCounts(),
		Groups:        stats.GroupCounts(),
		SchemaVersion: b.schema.Version,
		CreatedAt:     createdAt,
	}, nil
}

// write creates the database, inserts rows and returns their statistics.
func (b *Builder) write(ctx context.Context, path string, rows []types.SessionEvent) (*StatsTracker, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, generrors.NewPartitionError("failed to create SQLite database", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	// WAL while building, DELETE once the file is immutable
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return nil, generrors.NewPartitionError("failed to set journal mode", err)
	}

	if _, err := db.ExecContext(ctx, CreateTableSQL(b.schema)); err != nil {
		return nil, generrors.NewPartitionError("failed to create sessions table", err)
	}
	for _, idx := range CreateIndexSQL(b.schema) {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			return nil, generrors.NewPartitionError("failed to create index", err)
		}
	}

	stats, err := b.insertRows(ctx, db, rows)
	if err != nil {
		return nil, err
	}

	if err := b.writeStats(ctx, db, stats); err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return nil, generrors.NewPartitionError("failed to checkpoint WAL", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=DELETE"); err != nil {
		return nil, generrors.NewPartitionError("failed to set journal mode to DELETE", err)
	}

	if err := db.Close(); err != nil {
		return nil, generrors.NewPartitionError("failed to close database", err)
	}
	return stats, nil
}

func (b *Builder) insertRows(ctx context.Context, db *sql.DB, rows []types.SessionEvent) (*StatsTracker, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, generrors.NewPartitionError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, InsertSQL(b.schema))
	if err != nil {
		return nil, generrors.NewPartitionError("failed to prepare insert statement", err)
	}
	defer stmt.Close()

	stats := NewStatsTracker()
	for i := range rows {
		row := &rows[i]
		if _, err := stmt.ExecContext(ctx, rowValues(row)...); err != nil {
			return nil, generrors.NewPartitionError(fmt.Sprintf("failed to insert session %s", row.SessionID), err)
		}
		stats.Update(row)
	}

	if err := tx.Commit(); err != nil {
		return nil, generrors.NewPartitionError("failed to commit rows", err)
	}
	return stats, nil
}

// writeStats fills the internal statistics table, one row per column.
func (b *Builder) writeStats(ctx context.Context, db *sql.DB, stats *StatsTracker) error {
	ddl := `
		CREATE TABLE ` + statsTableName + ` (
			table_name TEXT NOT NULL,
			column_name TEXT NOT NULL,
			null_count INTEGER,
			min_value TEXT,
			max_value TEXT,
			PRIMARY KEY (table_name, column_name)
		) WITHOUT ROWID
	`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return generrors.NewPartitionError("failed to create stats table", err)
	}

	minMax := stats.GetMinMaxStats()
	nulls := stats.NullCounts()
	insert := `INSERT INTO ` + statsTableName + ` (table_name, column_name, null_count, min_value, max_value) VALUES (?, ?, ?, ?, ?)`
	for _, col := range b.schema.Columns {
		var minValue, maxValue interface{}
		if mm, ok := minMax[col.Name]; ok {
			minValue = fmt.Sprint(mm.Min)
			maxValue = fmt.Sprint(mm.Max)
		}
		if _, err := db.ExecContext(ctx, insert, tableName, col.Name, nulls[col.Name], minValue, maxValue); err != nil {
			return generrors.NewPartitionError("failed to write column stats", err)
		}
	}
	return nil
}

// rowValues returns the insert arguments of row in schema column order.
func rowValues(row *types.SessionEvent) []interface{} {
	var device, orderValue interface{}
	if !row.Device.IsMissing() {
		device = string(row.Device)
	}
	if row.HasOrderValue() {
		orderValue = *row.OrderValue
	}
	converted := 0
	if row.Converted {
		converted = 1
	}
	return []interface{}{
		row.SessionID,
		row.UserID,
		row.Timestamp.UTC().Format(timestampLayout),
		string(row.Group),
		row.LandingPage,
		device,
		converted,
		orderValue,
	}
}

// CreateTableSQL renders the sessions table DDL for schema.
func CreateTableSQL(schema types.Schema) string {
	cols := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		def := quoteIdent(c.Name) + " " + c.Type
		if !c.Nullable {
			def += " NOT NULL"
		}
		if c.PrimaryKey {
			def += " PRIMARY KEY"
		}
		cols[i] = def
	}
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n) WITHOUT ROWID", tableName, strings.Join(cols, ",\n\t"))
}

// CreateIndexSQL renders one CREATE INDEX statement per schema index.
func CreateIndexSQL(schema types.Schema) []string {
	stmts := make([]string, len(schema.Indexes))
	for i, idx := range schema.Indexes {
		cols := make([]string, len(idx.Columns))
		for j, c := range idx.Columns {
			cols[j] = quoteIdent(c)
		}
		unique := ""
		if idx.Unique {
			unique = "UNIQUE "
		}
		stmts[i] = fmt.Sprintf("CREATE %sINDEX %s ON %s(%s)", unique, idx.Name, tableName, strings.Join(cols, ", "))
	}
	return stmts
}

// InsertSQL renders the parameterized insert for schema.
func InsertSQL(schema types.Schema) string {
	names := make([]string, len(schema.Columns))
	marks := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		names[i] = quoteIdent(c.Name)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", tableName, strings.Join(names, ", "), strings.Join(marks, ", "))
}

// quoteIdent quotes a column name; "group" is a reserved word.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
