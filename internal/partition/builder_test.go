package partition

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arkilian/abgen/pkg/types"
	_ "github.com/mattn/go-sqlite3"
)

func floatPtr(v float64) *float64 { return &v }

func testRows() []types.SessionEvent {
	day := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)
	return []types.SessionEvent{
		{
			SessionID:   "S000001",
			UserID:      "U000002",
			Timestamp:   day.Add(1 * time.Hour),
			Group:       types.GroupControl,
			LandingPage: types.GroupControl.LandingPage(),
			Device:      types.DeviceDesktop,
			Converted:   true,
			OrderValue:  floatPtr(71.25),
		},
		{
			SessionID:   "S000002",
			UserID:      "U000001",
			Timestamp:   day.Add(2 * time.Hour),
			Group:       types.GroupTreatment,
			LandingPage: types.GroupTreatment.LandingPage(),
			Device:      types.DeviceMissing,
		},
		{
			SessionID:   "S000003",
			UserID:      "U000009",
			Timestamp:   day.Add(3 * time.Hour),
			Group:       types.GroupTreatment,
			LandingPage: types.GroupTreatment.LandingPage(),
			Device:      types.DeviceTablet,
			Converted:   true,
			OrderValue:  floatPtr(12.5),
		},
	}
}

func TestBuilder_Build(t *testing.T) {
	tmpDir := t.TempDir()
	builder := NewBuilder(tmpDir, "0123456789abcdef")

	info, err := builder.Build(context.Background(), testRows(), "20260209")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if info.PartitionID != "sessions:20260209:01234567" {
		t.Errorf("unexpected PartitionID %s", info.PartitionID)
	}
	if info.RowCount != 3 {
		t.Errorf("expected RowCount=3, got %d", info.RowCount)
	}
	if info.SizeBytes == 0 {
		t.Error("expected SizeBytes > 0")
	}
	if _, err := os.Stat(info.SQLitePath); os.IsNotExist(err) {
		t.Errorf("SQLite file does not exist: %s", info.SQLitePath)
	}

	if stat, ok := info.MinMaxStats["user_id"]; ok {
		if stat.Min.(string) != "U000001" || stat.Max.(string) != "U000009" {
			t.Errorf("unexpected user_id range %v..%v", stat.Min, stat.Max)
		}
	} else {
		t.Error("missing user_id stats")
	}
	if stat, ok := info.MinMaxStats["order_value"]; ok {
		if stat.Min.(float64) != 12.5 || stat.Max.(float64) != 71.25 {
			t.Errorf("unexpected order_value range %v..%v", stat.Min, stat.Max)
		}
	} else {
		t.Error("missing order_value stats")
	}
	if info.NullCounts["device"] != 1 || info.NullCounts["order_value"] != 1 {
		t.Errorf("unexpected null counts %v", info.NullCounts)
	}
	if g := info.Groups["treatment"]; g.Rows != 2 || g.Conversions != 1 {
		t.Errorf("unexpected treatment stats %+v", g)
	}

	db, err := sql.Open("sqlite3", info.SQLitePath)
	if err != nil {
		t.Fatalf("failed to open SQLite: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 rows in SQLite, got %d", count)
	}

	var device sql.NullString
	var orderValue sql.NullFloat64
	var ts string
	var converted int
	err = db.QueryRow(`SELECT device, order_value, "timestamp", converted FROM sessions WHERE session_id = ?`, "S000002").
		Scan(&device, &orderValue, &ts, &converted)
	if err != nil {
		t.Fatalf("failed to read row: %v", err)
	}
	if device.Valid || orderValue.Valid {
		t.Errorf("expected NULL device and order_value, got %v %v", device, orderValue)
	}
	if ts != "2026-02-09 02:00:00" || converted != 0 {
		t.Errorf("unexpected timestamp/converted %s/%d", ts, converted)
	}

	var conversions int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE "group" = 'treatment' AND converted = 1`).Scan(&conversions); err != nil {
		t.Fatalf("failed to query group: %v", err)
	}
	if conversions != 1 {
		t.Errorf("expected 1 treatment conversion, got %d", conversions)
	}

	var nullCount int
	if err := db.QueryRow(`SELECT null_count FROM _abgen_stats WHERE column_name = 'device'`).Scan(&nullCount); err != nil {
		t.Fatalf("failed to read stats table: %v", err)
	}
	if nullCount != 1 {
		t.Errorf("expected device null_count=1, got %d", nullCount)
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("failed to read journal mode: %v", err)
	}
	if mode != "delete" {
		t.Errorf("expected delete journal mode, got %s", mode)
	}
}

func TestBuilder_Rebuild(t *testing.T) {
	tmpDir := t.TempDir()
	builder := NewBuilder(tmpDir, "run")

	first, err := builder.Build(context.Background(), testRows(), "all")
	if err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	second, err := builder.Build(context.Background(), testRows()[:1], "all")
	if err != nil {
		t.Fatalf("second Build failed: %v", err)
	}
	if first.SQLitePath != second.SQLitePath {
		t.Errorf("rebuild should reuse path: %s vs %s", first.SQLitePath, second.SQLitePath)
	}
	if second.RowCount != 1 {
		t.Errorf("expected 1 row after rebuild, got %d", second.RowCount)
	}
}

func TestBuilder_EmptyRows(t *testing.T) {
	builder := NewBuilder(t.TempDir(), "run")
	if _, err := builder.Build(context.Background(), nil, "20260209"); err == nil {
		t.Error("expected error for empty rows")
	}
}

func TestCreateTableSQL(t *testing.T) {
	ddl := CreateTableSQL(types.SessionSchema())
	want := "CREATE TABLE sessions (\n" +
		"\t\"session_id\" TEXT NOT NULL PRIMARY KEY,\n" +
		"\t\"user_id\" TEXT NOT NULL,\n" +
		"\t\"timestamp\" TEXT NOT NULL,\n" +
		"\t\"group\" TEXT NOT NULL,\n" +
		"\t\"landing_page\" TEXT NOT NULL,\n" +
		"\t\"device\" TEXT,\n" +
		"\t\"converted\" INTEGER NOT NULL,\n" +
		"\t\"order_value\" REAL\n" +
		") WITHOUT ROWID"
	if ddl != want {
		t.Errorf("unexpected DDL:\n%s", ddl)
	}

	idx := CreateIndexSQL(types.SessionSchema())
	if len(idx) != 2 || idx[0] != `CREATE INDEX idx_sessions_group_time ON sessions("group", "timestamp")` {
		t.Errorf("unexpected index DDL %v", idx)
	}
}

func TestMetadataGenerator_Generate(t *testing.T) {
	tmpDir := t.TempDir()
	builder := NewBuilder(tmpDir, "run")
	metaGen := NewMetadataGenerator()

	rows := testRows()
	info, err := builder.Build(context.Background(), rows, "20260209")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	sidecar := metaGen.Generate(info, rows)
	if sidecar.PartitionID != info.PartitionID {
		t.Errorf("partition_id mismatch")
	}
	if sidecar.Stats.RowCount != 3 {
		t.Errorf("expected row_count=3, got %d", sidecar.Stats.RowCount)
	}
	if sidecar.Stats.MinTimestamp == nil || *sidecar.Stats.MinTimestamp != "2026-02-09 01:00:00" {
		t.Errorf("unexpected min_timestamp %v", sidecar.Stats.MinTimestamp)
	}
	if sidecar.Stats.MinUserID == nil || *sidecar.Stats.MinUserID != "U000001" {
		t.Errorf("expected min_user_id=U000001")
	}

	for _, id := range []string{"U000001", "U000002", "U000009"} {
		ok, err := sidecar.MayContainUser(id)
		if err != nil {
			t.Fatalf("MayContainUser failed: %v", err)
		}
		if !ok {
			t.Errorf("bloom filter lost %s", id)
		}
	}
	userFilter := sidecar.BloomFilters["user_id"]
	if userFilter.Count != 3 {
		t.Errorf("expected 3 distinct users in filter, got %d", userFilter.Count)
	}
	if userFilter.EstimatedFPR <= 0 || userFilter.EstimatedFPR > 0.02 {
		t.Errorf("estimated_fpr %v outside (0, 0.02]", userFilter.EstimatedFPR)
	}

	path, err := metaGen.GenerateAndWrite(info, rows)
	if err != nil {
		t.Fatalf("GenerateAndWrite failed: %v", err)
	}
	if path != info.MetadataPath || filepath.Ext(path) != ".json" {
		t.Errorf("unexpected metadata path %s", path)
	}

	readBack, err := ReadMetadataFromFile(path)
	if err != nil {
		t.Fatalf("ReadMetadataFromFile failed: %v", err)
	}
	if readBack.PartitionID != sidecar.PartitionID {
		t.Error("round-trip partition_id mismatch")
	}
	if readBack.BloomFilters["user_id"].EstimatedFPR != userFilter.EstimatedFPR {
		t.Error("round-trip estimated_fpr mismatch")
	}
	if readBack.Stats.Groups["control"].Conversions != 1 {
		t.Errorf("round-trip group stats mismatch: %+v", readBack.Stats.Groups)
	}
}

func TestGenerateMetadataPath(t *testing.T) {
	got := GenerateMetadataPath(filepath.Join("out", "sessions:all:abcd.sqlite"))
	if want := filepath.Join("out", "sessions:all:abcd.meta.json"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
