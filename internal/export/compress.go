package export

import (
	"fmt"
	"io"
	"os"

	"github.com/golang/snappy"

	generrors "github.com/arkilian/abgen/internal/errors"
)

// CompressedExt is appended to files compressed with CompressFile.
const CompressedExt = ".sz"

// CompressFile writes src to dst as a snappy framed stream and returns the
// number of compressed bytes written.
func CompressFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, generrors.NewExportError(generrors.CodeWriteFailed, fmt.Sprintf("failed to open %s", src), err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, generrors.NewExportError(generrors.CodeWriteFailed, fmt.Sprintf("failed to create %s", dst), err)
	}

	sw := snappy.NewBufferedWriter(out)
	if _, err := io.Copy(sw, in); err != nil {
		out.Close()
		os.Remove(dst)
		return 0, generrors.NewExportError(generrors.CodeWriteFailed, "failed to compress", err)
	}
	if err := sw.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return 0, generrors.NewExportError(generrors.CodeWriteFailed, "failed to flush compressed stream", err)
	}

	info, err := out.Stat()
	if err != nil {
		out.Close()
		return 0, generrors.NewExportError(generrors.CodeWriteFailed, "failed to stat compressed file", err)
	}
	if err := out.Close(); err != nil {
		return 0, generrors.NewExportError(generrors.CodeWriteFailed, "failed to close compressed file", err)
	}
	return info.Size(), nil
}

// DecompressFile expands a snappy framed stream written by CompressFile.
func DecompressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return generrors.NewExportError(generrors.CodeWriteFailed, fmt.Sprintf("failed to open %s", src), err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return generrors.NewExportError(generrors.CodeWriteFailed, fmt.Sprintf("failed to create %s", dst), err)
	}
	defer out.Close()

	if _, err := io.Copy(out, snappy.NewReader(in)); err != nil {
		return generrors.NewExportError(generrors.CodeWriteFailed, "failed to decompress", err)
	}
	return nil
}
