// Package app runs one dataset generation from configuration to published
// artifacts.
package app

import (
	"context"
	"log"
	"path"
	"path/filepath"

	"github.com/arkilian/abgen/internal/config"
	generrors "github.com/arkilian/abgen/internal/errors"
	"github.com/arkilian/abgen/internal/export"
	"github.com/arkilian/abgen/internal/generator"
	"github.com/arkilian/abgen/internal/partition"
	"github.com/arkilian/abgen/internal/scenario"
	"github.com/arkilian/abgen/internal/storage"
	"github.com/arkilian/abgen/pkg/types"
)

// uploadConcurrency bounds parallel object uploads during publish.
const uploadConcurrency = 4

// Result describes what a run produced.
type Result struct {
	RunID          string
	Summary        generator.Summary
	OutputPath     string
	CompressedPath string
	Partitions     []*partition.PartitionInfo

	// Uploaded lists the objects written by this run; Skipped counts objects
	// left in place because they already existed.
	Uploaded []storage.Object
	Skipped  int

	// Removed lists stale keys deleted from the run prefix; Published is the
	// run prefix listing after publishing.
	Removed   []string
	Published []string
}

// App owns the configuration and collaborators of a generation run.
type App struct {
	cfg       *config.Config
	generator *generator.Generator
	storage   storage.ObjectStorage
}

// Option configures an App.
type Option func(*App)

// WithStorage publishes to s instead of the storage named in the configuration.
func WithStorage(s storage.ObjectStorage) Option {
	return func(a *App) {
		a.storage = s
	}
}

// New creates a new App with the given configuration.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if err := generator.ValidateRecordCount(cfg.NumRecords); err != nil {
		return nil, err
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, generrors.Wrap(generrors.ErrCategoryValidation, generrors.CodeInvalidConfig, "invalid configuration", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, generrors.NewExportError(generrors.CodeWriteFailed, "failed to create directories", err)
	}

	a := &App{
		cfg:       cfg,
		generator: generator.New(scenario.Checkout(), generator.WithWorkers(cfg.Workers)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Run generates the table, writes the CSV, then builds partitions and
// publishes when configured.
func (a *App) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:      a.RunID(),
		OutputPath: a.cfg.OutputPath,
	}

	log.Printf("Generating %d records...", a.cfg.NumRecords)
	streams := generator.NewStreams(a.cfg.Seeds.General, a.cfg.Seeds.Distribution)
	table, err := a.generator.Generate(ctx, a.cfg.NumRecords, streams)
	if err != nil {
		return nil, err
	}

	res.Summary = table.Summary()
	log.Printf("Data generation complete. Control: %d, Treatment: %d", res.Summary.Control, res.Summary.Treatment)
	log.Printf("Overall CR: %.4f", res.Summary.ConversionRate)
	for _, g := range types.Groups {
		log.Printf("  %-9s CR: %.4f, mean order value: %.2f",
			g, res.Summary.GroupConversionRate[g], res.Summary.MeanOrderValue[g])
	}
	if res.Summary.MissingDevices > 0 {
		log.Printf("Missing devices injected: %d", res.Summary.MissingDevices)
	}

	if err := export.WriteCSV(a.cfg.OutputPath, table); err != nil {
		return nil, err
	}
	log.Printf("Saved to '%s'", a.cfg.OutputPath)

	if a.cfg.Partition.Enabled {
		if res.Partitions, err = a.buildPartitions(ctx, table, res.RunID); err != nil {
			return nil, err
		}
	}

	if a.cfg.Publish.Enabled {
		if err := a.publish(ctx, res); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// RunID returns the id of the dataset described by the configured seeds and
// record count.
func (a *App) RunID() string {
	return partition.RunID(a.cfg.Seeds.General, a.cfg.Seeds.Distribution, a.cfg.NumRecords)
}

// runPrefix is the key prefix holding every object of a run.
func (a *App) runPrefix(runID string) string {
	return path.Join(a.cfg.Publish.Prefix, runID) + "/"
}

func (a *App) buildPartitions(ctx context.Context, table *generator.Table, runID string) ([]*partition.PartitionInfo, error) {
	router, err := partition.NewRouter(a.cfg.Partition.Strategy)
	if err != nil {
		return nil, generrors.NewPartitionError("failed to create router", err)
	}

	batches := router.RouteRows(table.Rows)
	log.Printf("Building %d partitions by %s in %s", len(batches), router.Strategy(), a.cfg.Partition.Dir)

	writer := partition.NewConcurrentWriter(partition.NewBuilder(a.cfg.Partition.Dir, runID), a.cfg.Partition.Concurrency)
	infos, err := writer.BuildAll(ctx, batches)
	if err != nil {
		return nil, err
	}
	return infos, nil
}

func (a *App) publish(ctx context.Context, res *Result) error {
	store, err := a.objectStorage(ctx)
	if err != nil {
		return err
	}

	csvPath := res.OutputPath
	if a.cfg.Publish.Compress {
		res.CompressedPath = res.OutputPath + export.CompressedExt
		size, err := export.CompressFile(res.OutputPath, res.CompressedPath)
		if err != nil {
			return err
		}
		log.Printf("Compressed CSV: %s (%d bytes)", res.CompressedPath, size)
		csvPath = res.CompressedPath
	}

	items := []storage.UploadItem{{LocalPath: csvPath, ObjectPath: storage.ObjectKey(a.cfg.Publish.Prefix, res.RunID, csvPath)}}
	for _, p := range res.Partitions {
		items = append(items,
			storage.UploadItem{LocalPath: p.SQLitePath, ObjectPath: storage.ObjectKey(a.cfg.Publish.Prefix, res.RunID, p.SQLitePath)},
			storage.UploadItem{LocalPath: p.MetadataPath, ObjectPath: storage.ObjectKey(a.cfg.Publish.Prefix, res.RunID, p.MetadataPath)},
		)
	}

	result, err := storage.NewBatchUploader(store, uploadConcurrency, a.cfg.Publish.SkipExisting).Upload(ctx, items)
	if err != nil {
		return generrors.NewStorageError(generrors.CodeUploadFailed, "publish interrupted", err)
	}
	if err := result.Err(items); err != nil {
		return err
	}
	for _, obj := range result.Objects {
		if obj.Key != "" {
			res.Uploaded = append(res.Uploaded, obj)
		}
	}
	res.Skipped = result.Skipped

	prefix := a.runPrefix(res.RunID)
	if res.Removed, err = prune(ctx, store, prefix, items); err != nil {
		return err
	}
	if res.Published, err = store.ListObjects(ctx, prefix); err != nil {
		return err
	}

	log.Printf("Published %d objects under %s (%d uploaded, %d unchanged, %d stale removed)",
		len(res.Published), prefix, len(res.Uploaded), res.Skipped, len(res.Removed))
	return nil
}

// prune deletes objects under prefix that are not part of items, such as
// partitions left by an earlier publish with another strategy.
func prune(ctx context.Context, store storage.ObjectStorage, prefix string, items []storage.UploadItem) ([]string, error) {
	keep := make(map[string]bool, len(items))
	for _, item := range items {
		keep[item.ObjectPath] = true
	}

	keys, err := store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, key := range keys {
		if keep[key] {
			continue
		}
		if err := store.Delete(ctx, key); err != nil {
			return removed, err
		}
		removed = append(removed, key)
	}
	return removed, nil
}

// Fetch downloads every object published for runID into dir and returns the
// local paths in key order. An empty runID selects RunID().
func (a *App) Fetch(ctx context.Context, runID, dir string) ([]string, error) {
	if runID == "" {
		runID = a.RunID()
	}

	store, err := a.objectStorage(ctx)
	if err != nil {
		return nil, err
	}

	prefix := a.runPrefix(runID)
	keys, err := store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, generrors.NewStorageError(generrors.CodeObjectNotFound, "nothing published under "+prefix, nil)
	}

	paths := make([]string, 0, len(keys))
	for _, key := range keys {
		local := filepath.Join(dir, path.Base(key))
		if err := store.Download(ctx, key, local); err != nil {
			return paths, err
		}
		paths = append(paths, local)
	}

	log.Printf("Fetched %d objects from %s into %s", len(paths), prefix, dir)
	return paths, nil
}

// objectStorage returns the injected storage or opens the configured one.
func (a *App) objectStorage(ctx context.Context) (storage.ObjectStorage, error) {
	if a.storage != nil {
		return a.storage, nil
	}

	var err error
	switch a.cfg.Storage.Type {
	case config.StorageLocal:
		a.storage, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case config.StorageS3:
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		s3Cfg.UsePathStyle = a.cfg.Storage.S3.UsePathStyle
		a.storage, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3Cfg)
	default:
		return nil, generrors.NewInternalError("unsupported storage type "+a.cfg.Storage.Type, nil)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("Storage initialized: type=%s", a.cfg.Storage.Type)
	if a.cfg.Storage.Type == config.StorageS3 {
		log.Printf("S3 Config: Bucket=%s, Region=%s, Endpoint=%s",
			a.cfg.Storage.S3.Bucket, a.cfg.Storage.S3.Region, a.cfg.Storage.S3.Endpoint)
	}
	return a.storage, nil
}
