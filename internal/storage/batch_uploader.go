package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sync"

	"golang.org/x/sync/semaphore"
)

// UploadItem pairs a local file with its destination key.
type UploadItem struct {
	LocalPath  string
	ObjectPath string
}

// BatchResult contains the outcome of a batch upload.
type BatchResult struct {
	// Objects holds the uploaded objects in request order; entries for failed
	// or skipped items are zero.
	Objects []Object
	Errors  map[string]error
	Skipped int
}

// BatchUploader coordinates parallel uploads to object storage.
type BatchUploader struct {
	storage      ObjectStorage
	concurrency  int
	skipExisting bool
}

// NewBatchUploader creates a new batch uploader running at most concurrency
// uploads at once. With skipExisting, keys that already exist are left alone.
func NewBatchUploader(storage ObjectStorage, concurrency int, skipExisting bool) *BatchUploader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchUploader{
		storage:      storage,
		concurrency:  concurrency,
		skipExisting: skipExisting,
	}
}

// Upload uploads every item and collects per-key errors. The returned error is
// only set when ctx ends before all uploads were scheduled.
func (b *BatchUploader) Upload(ctx context.Context, items []UploadItem) (*BatchResult, error) {
	result := &BatchResult{
		Objects: make([]Object, len(items)),
		Errors:  make(map[string]error),
	}

	sem := semaphore.NewWeighted(int64(b.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, item := range items {
		i, item := i, item
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return result, fmt.Errorf("upload cancelled: %w", err)
		}

		wg.Add(1)
		go func() {
			defer sem.Release(1)
			defer wg.Done()

			if b.skipExisting {
				exists, err := b.storage.Exists(ctx, item.ObjectPath)
				if err == nil && exists {
					mu.Lock()
					result.Skipped++
					mu.Unlock()
					return
				}
			}

			obj, err := b.storage.Upload(ctx, item.LocalPath, item.ObjectPath)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[item.ObjectPath] = err
				return
			}
			result.Objects[i] = obj
		}()
	}

	wg.Wait()
	return result, nil
}

// Err returns the first failure in request order, or nil.
func (r *BatchResult) Err(items []UploadItem) error {
	for _, item := range items {
		if err, ok := r.Errors[item.ObjectPath]; ok {
			return err
		}
	}
	return nil
}

// ObjectKey builds the key of a published file: prefix/runID/basename.
func ObjectKey(prefix, runID, localPath string) string {
	return path.Join(prefix, runID, filepath.Base(localPath))
}
