package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestCompressFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "data.csv")
	if err := WriteCSV(src, generateTable(t, 2000)); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	dst := src + CompressedExt
	size, err := CompressFile(src, dst)
	if err != nil {
		t.Fatalf("CompressFile failed: %v", err)
	}

	original, _ := os.ReadFile(src)
	if size <= 0 || size >= int64(len(original)) {
		t.Errorf("expected compressed size below %d, got %d", len(original), size)
	}

	restored := filepath.Join(dir, "restored.csv")
	if err := DecompressFile(dst, restored); err != nil {
		t.Fatalf("DecompressFile failed: %v", err)
	}
	got, _ := os.ReadFile(restored)
	if !bytes.Equal(original, got) {
		t.Error("decompressed content does not match original")
	}
}

func TestCompressFile_MissingSource(t *testing.T) {
	dir := t.TempDir()
	if _, err := CompressFile(filepath.Join(dir, "nope.csv"), filepath.Join(dir, "nope.csv.sz")); err == nil {
		t.Error("expected error for missing source")
	}
}

func TestDecompressFile_Corrupt(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.sz")
	if err := os.WriteFile(src, []byte("not a snappy stream"), 0644); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if err := DecompressFile(src, filepath.Join(dir, "out")); err == nil {
		t.Error("expected error for corrupt stream")
	}
}
