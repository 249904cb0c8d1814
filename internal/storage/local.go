package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"

	generrors "github.com/arkilian/abgen/internal/errors"
)

// LocalStorage implements ObjectStorage on the local filesystem. Object keys
// use forward slashes and map to paths below basePath. ETags are the hex MD5 of
// the content, as S3 reports for single-part uploads.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local filesystem storage.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, generrors.NewStorageError(generrors.CodeUploadFailed, "failed to create base directory", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Upload copies localPath into storage. The object is written to a temp file
// and renamed so readers never see partial content.
func (l *LocalStorage) Upload(ctx context.Context, localPath, objectPath string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	destPath := l.fullPath(objectPath)
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return Object{}, generrors.NewStorageError(generrors.CodeUploadFailed, "failed to create object directory", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return Object{}, generrors.NewStorageError(generrors.CodeUploadFailed, "failed to open "+localPath, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".upload-*")
	if err != nil {
		return Object{}, generrors.NewStorageError(generrors.CodeUploadFailed, "failed to create temp object", err)
	}
	defer os.Remove(tmp.Name())

	hash := md5.New()
	n, err := io.Copy(io.MultiWriter(tmp, hash), src)
	if err != nil {
		tmp.Close()
		return Object{}, generrors.NewStorageError(generrors.CodeUploadFailed, "failed to copy "+localPath, err)
	}
	if err := tmp.Close(); err != nil {
		return Object{}, generrors.NewStorageError(generrors.CodeUploadFailed, "failed to close temp object", err)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return Object{}, generrors.NewStorageError(generrors.CodeUploadFailed, "failed to commit "+objectPath, err)
	}

	return Object{Key: objectPath, ETag: hex.EncodeToString(hash.Sum(nil)), Size: n}, nil
}

// Download copies an object to localPath.
func (l *LocalStorage) Download(ctx context.Context, objectPath, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := os.Open(l.fullPath(objectPath))
	if err != nil {
		if os.IsNotExist(err) {
			return notFound(objectPath)
		}
		return generrors.NewStorageError(generrors.CodeDownloadFailed, "failed to open "+objectPath, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return generrors.NewStorageError(generrors.CodeDownloadFailed, "failed to create destination directory", err)
	}

	dst, err := os.Create(localPath)
	if err != nil {
		return generrors.NewStorageError(generrors.CodeDownloadFailed, "failed to create "+localPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return generrors.NewStorageError(generrors.CodeDownloadFailed, "failed to copy "+objectPath, err)
	}
	return nil
}

// Delete removes an object from local storage.
func (l *LocalStorage) Delete(ctx context.Context, objectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(l.fullPath(objectPath)); err != nil && !os.IsNotExist(err) {
		return generrors.NewStorageError(generrors.CodeDeleteFailed, "failed to delete "+objectPath, err)
	}
	return nil
}

// Exists checks if an object exists in local storage.
func (l *LocalStorage) Exists(ctx context.Context, objectPath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(l.fullPath(objectPath))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListObjects returns all object keys under the given prefix.
func (l *LocalStorage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var objects []string
	err := filepath.WalkDir(l.fullPath(prefix), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.basePath, path)
		if err != nil {
			return err
		}
		objects = append(objects, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, generrors.NewStorageError(generrors.CodeListFailed, "failed to list "+prefix, err)
	}

	sort.Strings(objects)
	return objects, nil
}

// fullPath returns the full filesystem path for an object.
func (l *LocalStorage) fullPath(objectPath string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(objectPath))
}
