package relevance

import "context"

// Item is a vector tagged with the id of the note it belongs to.
type Item struct {
	ID     string
	Vector []float32
}

// PairFinder enumerates item pairs whose similarity exceeds a threshold.
// Implementations must report each unordered pair at most once, with A
// preceding B in the input order, and must return pairs sorted by the input
// position of A, then of B.
type PairFinder interface {
	Name() string
	FindPairs(ctx context.Context, items []Item, threshold float64) ([]Pair, error)
}

// ExactPairFinder compares every pair. Cost grows with the square of the
// item count.
type ExactPairFinder struct{}

func (ExactPairFinder) Name() string {
	return "exact"
}

func (ExactPairFinder) FindPairs(ctx context.Context, items []Item, threshold float64) ([]Pair, error) {
	out := make([]Pair, 0)
	for i := 0; i < len(items); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i + 1; j < len(items); j++ {
			score := Cosine(items[i].Vector, items[j].Vector)
			if score > threshold {
				out = append(out, Pair{A: items[i].ID, B: items[j].ID, Score: score})
			}
		}
	}
	return out, nil
}
