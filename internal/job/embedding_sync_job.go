package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// PendingEmbedder is satisfied by *service.AIService.
type PendingEmbedder interface {
	ProcessPendingEmbeddings(ctx context.Context) (int, error)
}

// EmbeddingSyncJob re-embeds notes whose stored vector is missing or older
// than the note.
type EmbeddingSyncJob struct {
	ai PendingEmbedder
}

func NewEmbeddingSyncJob(ai PendingEmbedder) *EmbeddingSyncJob {
	return &EmbeddingSyncJob{ai: ai}
}

func (j *EmbeddingSyncJob) Name() string {
	return "embedding_sync"
}

func (j *EmbeddingSyncJob) Run(ctx context.Context) error {
	if j.ai == nil {
		return nil
	}
	synced, err := j.ai.ProcessPendingEmbeddings(ctx)
	if synced > 0 {
		logutil.GetLogger(ctx).Info("embeddings synced", zap.Int("count", synced))
	}
	return err
}
