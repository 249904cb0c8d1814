// Package export serializes generated tables to their on-disk formats.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	generrors "github.com/arkilian/abgen/internal/errors"
	"github.com/arkilian/abgen/internal/generator"
	"github.com/arkilian/abgen/pkg/types"
)

// TimestampLayout is the CSV rendering of session timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// EncodeCSV writes the header and every row of table to w.
func EncodeCSV(w io.Writer, table *generator.Table) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(types.SessionSchema().ColumnNames()); err != nil {
		return err
	}

	record := make([]string, 8)
	for i := range table.Rows {
		encodeRow(record, &table.Rows[i])
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func encodeRow(record []string, r *types.SessionEvent) {
	record[0] = r.SessionID
	record[1] = r.UserID
	record[2] = r.Timestamp.UTC().Format(TimestampLayout)
	record[3] = string(r.Group)
	record[4] = r.LandingPage
	record[5] = string(r.Device)
	if r.Converted {
		record[6] = "1"
	} else {
		record[6] = "0"
	}
	if r.HasOrderValue() {
		record[7] = FormatOrderValue(*r.OrderValue)
	} else {
		record[7] = ""
	}
}

// FormatOrderValue renders an order value in its shortest round-trip form.
func FormatOrderValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCSV writes table to path atomically. The file is written to a temp
// file in the destination directory, synced, then renamed into place.
func WriteCSV(path string, table *generator.Table) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return generrors.NewExportError(generrors.CodeWriteFailed,
			fmt.Sprintf("failed to create temp file in %s", dir), err)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	bw := bufio.NewWriterSize(tmp, 1<<20)
	if err := EncodeCSV(bw, table); err != nil {
		return generrors.NewExportError(generrors.CodeWriteFailed, "failed to encode csv", err)
	}
	if err := bw.Flush(); err != nil {
		return generrors.NewExportError(generrors.CodeWriteFailed, "failed to flush csv", err)
	}
	if err := tmp.Sync(); err != nil {
		return generrors.NewExportError(generrors.CodeWriteFailed, "failed to sync csv", err)
	}
	if err := tmp.Close(); err != nil {
		return generrors.NewExportError(generrors.CodeWriteFailed, "failed to close csv", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return generrors.NewExportError(generrors.CodeWriteFailed, "failed to set csv permissions", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return generrors.NewExportError(generrors.CodeCommitFailed,
			fmt.Sprintf("failed to move csv into place at %s", path), err)
	}
	committed = true
	return nil
}
