package graph

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/notegraph/internal/model"
	"github.com/xxxsen/notegraph/internal/relevance"
)

type NodeKind string

const (
	NodePage NodeKind = "page"
	NodeTag  NodeKind = "tag"
)

type EdgeKind string

const (
	EdgeParentChild EdgeKind = "parent_child"
	EdgeSharedTag   EdgeKind = "shared_tag"
	EdgeSemantic    EdgeKind = "semantic"
)

const (
	WeightPage     = 8
	WeightSelected = 10
	WeightOpen     = 12
	WeightTag      = 6

	DefaultSemanticThreshold = 0.75

	tagNodePrefix = "tag:"
)

type Node struct {
	ID     string   `json:"id"`
	Kind   NodeKind `json:"kind"`
	Label  string   `json:"label"`
	Weight int      `json:"weight"`
}

// Edge is stored in creation direction. Score is only set on semantic edges.
type Edge struct {
	ID     string   `json:"id"`
	Kind   EdgeKind `json:"kind"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Score  float64  `json:"score,omitempty"`
	Label  string   `json:"label,omitempty"`
}

type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	nodeIndex map[string]int
	incident  map[string][]int
}

type Options struct {
	OpenNoteID        string
	SelectedNodeID    string
	SemanticThreshold float64
}

// Pairer is satisfied by *relevance.Engine.
type Pairer interface {
	PairwiseAboveThreshold(ctx context.Context, notes []model.Note, threshold float64) ([]relevance.Pair, error)
}

// TagNodeID is the node id shared by every note carrying tag.
func TagNodeID(tag string) string {
	return tagNodePrefix + tag
}

// Build produces the graph for notes in one pass. Node and edge order follow
// the input order, so an unchanged collection always yields the same graph.
// A nil pairer skips semantic edges.
func Build(ctx context.Context, notes []model.Note, opts Options, pairer Pairer) (*Graph, error) {
	if opts.SemanticThreshold <= 0 {
		opts.SemanticThreshold = DefaultSemanticThreshold
	}
	b := newBuilder(len(notes))
	pages := make([]model.Note, 0, len(notes))
	for _, n := range notes {
		if n.ID == "" || b.hasNode(n.ID) {
			continue
		}
		b.addNode(Node{ID: n.ID, Kind: NodePage, Label: pageLabel(n), Weight: pageWeight(n.ID, opts)})
		pages = append(pages, n)
	}
	for _, n := range pages {
		if n.ParentID == "" || n.ParentID == n.ID || !b.hasNode(n.ParentID) {
			continue
		}
		b.addEdge(Edge{Kind: EdgeParentChild, Source: n.ParentID, Target: n.ID})
	}
	for _, n := range pages {
		for _, tag := range n.Tags {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			tagID := TagNodeID(tag)
			if !b.hasNode(tagID) {
				b.addNode(Node{ID: tagID, Kind: NodeTag, Label: tag, Weight: WeightTag})
			}
			b.addEdge(Edge{Kind: EdgeSharedTag, Source: n.ID, Target: tagID})
		}
	}
	if pairer != nil {
		pairs, err := pairer.PairwiseAboveThreshold(ctx, pages, opts.SemanticThreshold)
		if err != nil {
			return nil, fmt.Errorf("semantic pairs: %w", err)
		}
		for _, p := range pairs {
			if p.A == p.B || !b.hasNode(p.A) || !b.hasNode(p.B) {
				continue
			}
			b.addEdge(Edge{Kind: EdgeSemantic, Source: p.A, Target: p.B, Score: p.Score, Label: SimilarityLabel(p.Score)})
		}
	}
	logutil.GetLogger(ctx).Debug("graph built",
		zap.Int("nodes", len(b.g.Nodes)), zap.Int("edges", len(b.g.Edges)))
	return b.g, nil
}

// SimilarityLabel renders a score as "NN% similar".
func SimilarityLabel(score float64) string {
	return fmt.Sprintf("%d%% similar", int(math.Round(score*100)))
}

func pageWeight(id string, opts Options) int {
	switch id {
	case opts.OpenNoteID:
		return WeightOpen
	case opts.SelectedNodeID:
		return WeightSelected
	default:
		return WeightPage
	}
}

func pageLabel(n model.Note) string {
	if t := strings.TrimSpace(n.Title); t != "" {
		return t
	}
	return "Untitled"
}

type edgeKey struct {
	kind EdgeKind
	a, b string
}

type builder struct {
	g    *Graph
	keys map[edgeKey]struct{}
}

func newBuilder(capacity int) *builder {
	return &builder{
		g: &Graph{
			Nodes:     make([]Node, 0, capacity),
			Edges:     make([]Edge, 0, capacity),
			nodeIndex: make(map[string]int, capacity),
			incident:  make(map[string][]int, capacity),
		},
		keys: make(map[edgeKey]struct{}),
	}
}

func (b *builder) hasNode(id string) bool {
	_, ok := b.g.nodeIndex[id]
	return ok
}

func (b *builder) addNode(n Node) {
	b.g.nodeIndex[n.ID] = len(b.g.Nodes)
	b.g.Nodes = append(b.g.Nodes, n)
}

// addEdge drops an edge whose kind and unordered endpoints already exist.
func (b *builder) addEdge(e Edge) {
	k := edgeKey{kind: e.Kind, a: e.Source, b: e.Target}
	if k.a > k.b {
		k.a, k.b = k.b, k.a
	}
	if _, dup := b.keys[k]; dup {
		return
	}
	b.keys[k] = struct{}{}
	e.ID = string(e.Kind) + "|" + e.Source + "|" + e.Target
	idx := len(b.g.Edges)
	b.g.Edges = append(b.g.Edges, e)
	b.g.incident[e.Source] = append(b.g.incident[e.Source], idx)
	b.g.incident[e.Target] = append(b.g.incident[e.Target], idx)
}

func (g *Graph) Node(id string) (Node, bool) {
	idx, ok := g.nodeIndex[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[idx], true
}

// EdgesOf returns the edges touching id in creation order.
func (g *Graph) EdgesOf(id string) []Edge {
	idxs := g.incident[id]
	out := make([]Edge, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, g.Edges[i])
	}
	return out
}

// Neighbors returns the ids of nodes sharing an edge with id, in graph node
// order, without id itself.
func (g *Graph) Neighbors(id string) []string {
	adj := make(map[string]struct{})
	for _, i := range g.incident[id] {
		e := g.Edges[i]
		if e.Source != id {
			adj[e.Source] = struct{}{}
		}
		if e.Target != id {
			adj[e.Target] = struct{}{}
		}
	}
	out := make([]string, 0, len(adj))
	for _, n := range g.Nodes {
		if _, ok := adj[n.ID]; ok {
			out = append(out, n.ID)
		}
	}
	return out
}
