package pipeline

import (
	"context"
	"sync"
)

// DefaultBatchConcurrency caps parallel extractions per batch request.
const DefaultBatchConcurrency = 3

// BatchItem is the outcome for one text in a batch, in input order.
type BatchItem struct {
	Index  int          `json:"index"`
	Result *ParseResult `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// ParseBatch runs ParseEvents over texts with bounded concurrency.
// Item failures are recorded per item; only full-context cancellation
// aborts the batch early.
func (o *Orchestrator) ParseBatch(ctx context.Context, texts []string, concurrency int) []BatchItem {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}

	items := make([]BatchItem, len(texts))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, text := range texts {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				items[i] = BatchItem{Index: i, Error: ctx.Err().Error()}
				return
			}

			result, err := o.ParseEvents(ctx, text)
			if err != nil {
				items[i] = BatchItem{Index: i, Error: err.Error()}
				return
			}
			items[i] = BatchItem{Index: i, Result: result}
		}(i, text)
	}
	wg.Wait()
	return items
}
