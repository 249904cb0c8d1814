package partition

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	generrors "github.com/arkilian/abgen/internal/errors"
)

// ConcurrentWriter builds one partition per batch with bounded parallelism.
// Each batch owns a distinct key, so builds never touch the same file.
type ConcurrentWriter struct {
	builder  PartitionBuilder
	metadata *MetadataGenerator
	limit    int
}

// NewConcurrentWriter creates a writer running at most limit builds at once.
func NewConcurrentWriter(builder PartitionBuilder, limit int) *ConcurrentWriter {
	if limit < 1 {
		limit = 1
	}
	return &ConcurrentWriter{
		builder:  builder,
		metadata: NewMetadataGenerator(),
		limit:    limit,
	}
}

// BuildAll builds every batch and writes its sidecar. Results are returned in
// batch order. The first failure cancels the remaining builds.
func (cw *ConcurrentWriter) BuildAll(ctx context.Context, batches []Batch) ([]*PartitionInfo, error) {
	results := make([]*PartitionInfo, len(batches))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(cw.limit)

	for i, batch := range batches {
		i, batch := i, batch
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			info, err := cw.builder.Build(ctx, batch.Rows, batch.Key)
			if err != nil {
				return err
			}
			if _, err := cw.metadata.GenerateAndWrite(info, batch.Rows); err != nil {
				return generrors.NewPartitionError("failed to write sidecar for "+info.PartitionID, err)
			}

			log.Printf("partition: built %s (%d rows, %d bytes)", info.PartitionID, info.RowCount, info.SizeBytes)
			results[i] = info
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
