// Package pipeline implements the incremental scan pipeline: change
// detection, batch packing, analysis dispatch, finding enrichment and scoring.
package pipeline

// DefaultBatchBudget is the default cumulative content size of one batch, in bytes.
const DefaultBatchBudget = 100_000

// SourceFile is a file selected for analysis. Path is slash separated and
// relative to the repository root.
type SourceFile struct {
	Path    string
	Content string
}

// Size returns the content size in bytes.
func (f SourceFile) Size() int {
	return len(f.Content)
}

// Batch is an ordered group of files submitted in one analysis request.
type Batch struct {
	Files      []SourceFile
	TotalBytes int
}

// FileCount returns the number of files across batches.
func FileCount(batches []Batch) int {
	n := 0
	for _, b := range batches {
		n += len(b.Files)
	}
	return n
}
