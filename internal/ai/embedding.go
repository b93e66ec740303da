package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	appErr "github.com/xxxsen/notegraph/internal/pkg/errors"
)

// EmbeddingClient turns text into a fixed-length vector. It neither retries
// nor caches; callers decide both.
type EmbeddingClient struct {
	embedder IEmbedder
	dim      int
	taskType string
}

// NewEmbeddingClient wraps embedder. A dim of 0 accepts whatever length the
// hosted model returns.
func NewEmbeddingClient(embedder IEmbedder, dim int, taskType string) *EmbeddingClient {
	return &EmbeddingClient{embedder: embedder, dim: dim, taskType: taskType}
}

func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.EmbedTask(ctx, text, c.taskType)
}

func (c *EmbeddingClient) EmbedTask(ctx context.Context, text string, taskType string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, appErr.ErrInvalid
	}
	if c == nil || c.embedder == nil {
		return nil, fmt.Errorf("%w: embedder not configured", ErrUnavailable)
	}
	vec, err := c.embedder.Embed(ctx, trimmed, taskType)
	if err != nil {
		if errors.Is(err, ErrUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrUnavailable)
	}
	if c.dim > 0 && len(vec) != c.dim {
		return nil, fmt.Errorf("%w: embedding dimension %d, want %d", ErrUnavailable, len(vec), c.dim)
	}
	return vec, nil
}

func (c *EmbeddingClient) Dimension() int {
	return c.dim
}

func (c *EmbeddingClient) ModelName() string {
	if c == nil || c.embedder == nil {
		return ""
	}
	return c.embedder.ModelName()
}
