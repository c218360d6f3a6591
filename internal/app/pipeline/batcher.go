package pipeline

import (
	"github.com/auditflow/api/internal/metrics"
	"github.com/auditflow/api/pkg/logger"
)

// BuildBatches packs files greedily, in input order, into batches whose
// cumulative content size never exceeds budget. A file larger than budget on
// its own is dropped with a warning. No empty batch is produced.
func BuildBatches(files []SourceFile, budget int, log *logger.Logger) []Batch {
	if budget <= 0 {
		budget = DefaultBatchBudget
	}

	var (
		batches []Batch
		current Batch
	)
	for _, f := range files {
		size := f.Size()
		if size > budget {
			log.Warn("file exceeds batch budget, dropped",
				"path", f.Path,
				"size", size,
				"budget", budget,
			)
			metrics.FilesSkippedTotal.WithLabelValues(metrics.SkipReasonOversized).Inc()
			continue
		}
		if current.TotalBytes+size > budget && len(current.Files) > 0 {
			batches = append(batches, current)
			current = Batch{}
		}
		current.Files = append(current.Files, f)
		current.TotalBytes += size
	}
	if len(current.Files) > 0 {
		batches = append(batches, current)
	}
	return batches
}
