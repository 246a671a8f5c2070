package index

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/Aman-CERP/amanindex/internal/collector"
	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
	"github.com/Aman-CERP/amanindex/internal/store"
)

// apply drains segments into idx in order. Within a segment deletes are
// applied before adds; a rebuild skips deletes because the index is empty.
// The first failure stops the loop.
func (o *Orchestrator) apply(
	ctx context.Context,
	logger *slog.Logger,
	scope string,
	mode Mode,
	segments iter.Seq2[collector.Segment, error],
	idx store.Index,
	stats *buildStats,
) error {
	for seg, err := range segments {
		if err != nil {
			if isContextErr(err) {
				return cancelled(scope, err)
			}
			return amerrors.New(amerrors.ErrCodeCollectFailed,
				fmt.Sprintf("collector for %q failed after %d segments", scope, stats.segments), err).
				WithDetail("scope", scope)
		}
		if err := ctx.Err(); err != nil {
			return cancelled(scope, err)
		}

		deletes, adds := seg.Split()
		applied := 0

		if mode == ModeUpdate && len(deletes) > 0 {
			if err := idx.DeleteDocuments(ctx, deletes); err != nil {
				return storeFailed(scope, err).
					WithDetail("segment", fmt.Sprint(stats.segments+1))
			}
			stats.deleted += len(deletes)
			applied += len(deletes)
		}
		if len(adds) > 0 {
			if err := idx.SaveDocuments(ctx, adds); err != nil {
				return storeFailed(scope, err).
					WithDetail("segment", fmt.Sprint(stats.segments+1))
			}
			stats.indexed += len(adds)
			applied += len(adds)
		}

		stats.segments++
		logger.Debug("index_segment_applied",
			slog.Int("segment", stats.segments),
			slog.Int("deleted", len(deletes)),
			slog.Int("indexed", len(adds)))

		if o.onSegment != nil {
			o.onSegment(scope, stats.segments, applied)
		}
	}
	return nil
}
