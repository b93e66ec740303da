package relevance

import (
	"context"
	"sort"

	"github.com/fogfish/hnsw"
	"github.com/fogfish/hnsw/vector"
	kvector "github.com/kshard/vector"
)

const (
	defaultHNSWNeighbors = 16
	minHNSWEfSearch      = 100
)

// HNSWPairFinder approximates all-pairs search with a navigable small-world
// index: each item is only compared with its nearest Neighbors. Pairs that
// the index misses are dropped, so recall is below ExactPairFinder for the
// same threshold.
type HNSWPairFinder struct {
	Neighbors int
}

func (f HNSWPairFinder) Name() string {
	return "hnsw"
}

func (f HNSWPairFinder) FindPairs(ctx context.Context, items []Item, threshold float64) ([]Pair, error) {
	if len(items) < 2 {
		return []Pair{}, nil
	}
	k := f.Neighbors
	if k <= 0 {
		k = defaultHNSWNeighbors
	}
	ef := 2 * (k + 1)
	if ef < minHNSWEfSearch {
		ef = minHNSWEfSearch
	}

	dim := len(items[0].Vector)
	padded := make([][]float32, len(items))
	index := hnsw.New[vector.VF32](vector.SurfaceVF32(kvector.Cosine()))
	for i, it := range items {
		if len(it.Vector) != dim {
			continue
		}
		padded[i] = padVector(it.Vector)
		index.Insert(vector.VF32{Key: uint32(i), Vec: padded[i]})
	}

	type key struct{ a, b int }
	seen := make(map[key]struct{})
	var keys []key
	for i, it := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(it.Vector) != dim {
			continue
		}
		for _, hit := range index.Search(vector.VF32{Vec: padded[i]}, k+1, ef) {
			j := int(hit.Key)
			if j == i || j >= len(items) {
				continue
			}
			kk := key{a: i, b: j}
			if j < i {
				kk = key{a: j, b: i}
			}
			if _, dup := seen[kk]; dup {
				continue
			}
			seen[kk] = struct{}{}
			keys = append(keys, kk)
		}
	}
	sort.Slice(keys, func(x, y int) bool {
		if keys[x].a != keys[y].a {
			return keys[x].a < keys[y].a
		}
		return keys[x].b < keys[y].b
	})
	out := make([]Pair, 0, len(keys))
	for _, kk := range keys {
		score := Cosine(items[kk.a].Vector, items[kk.b].Vector)
		if score > threshold {
			out = append(out, Pair{A: items[kk.a].ID, B: items[kk.b].ID, Score: score})
		}
	}
	return out, nil
}

// padVector zero-fills v up to a multiple of four, the lane width the cosine
// kernel requires. Trailing zeros change neither dot products nor norms.
func padVector(v []float32) []float32 {
	rem := len(v) % 4
	if rem == 0 {
		return v
	}
	out := make([]float32, len(v)+4-rem)
	copy(out, v)
	return out
}

// NewPairFinder maps a configured finder name to an implementation.
func NewPairFinder(name string, neighbors int) PairFinder {
	if name == "hnsw" {
		return HNSWPairFinder{Neighbors: neighbors}
	}
	return ExactPairFinder{}
}
