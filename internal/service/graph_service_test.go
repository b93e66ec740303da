package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/notegraph/internal/graph"
	appErr "github.com/xxxsen/notegraph/internal/pkg/errors"
)

func weightOf(t *testing.T, r graph.Render, id string) int {
	t.Helper()
	for _, n := range r.Nodes {
		if n.ID == id {
			return n.Weight
		}
	}
	t.Fatalf("node %s not rendered", id)
	return 0
}

func TestGraphServiceEnterAndInteract(t *testing.T) {
	ctx := context.Background()
	f := newAIFixture(t, nil)
	a := f.add(t, "a", "Golang basics", "types", "go")
	b := f.add(t, "b", "Golang advanced", "generics", "go")
	c := f.add(t, "c", "Recipe", "soup")
	require.NoError(t, f.svc.SyncEmbedding(ctx, a))
	require.NoError(t, f.svc.SyncEmbedding(ctx, b))
	require.NoError(t, f.svc.SyncEmbedding(ctx, c))
	svc := NewGraphService(f.svc, f.engine, GraphServiceConfig{})

	_, err := svc.Interact(ctx, "u1", graph.Event{Type: graph.EventClick, NodeID: "a"})
	require.ErrorIs(t, err, appErr.ErrNotFound)

	view, err := svc.Enter(ctx, "u1", "a")
	require.NoError(t, err)
	require.True(t, view.State.Idle())
	require.Equal(t, graph.WeightOpen, weightOf(t, view.Render, "a"))

	var semantic int
	for _, e := range view.Graph.Edges {
		if e.Kind == graph.EdgeSemantic {
			semantic++
		}
	}
	require.Equal(t, 1, semantic)

	res, err := svc.Interact(ctx, "u1", graph.Event{Type: graph.EventClick, NodeID: "b"})
	require.NoError(t, err)
	require.NotNil(t, res.Recenter)
	require.Equal(t, "b", res.State.Selected)
	require.Equal(t, graph.WeightSelected, weightOf(t, res.Render, "b"))
	require.True(t, res.Highlight.HasNode("a"))
	require.False(t, res.Highlight.HasNode("c"))

	res, err = svc.Interact(ctx, "u1", graph.Event{Type: graph.EventBackgroundClick})
	require.NoError(t, err)
	require.True(t, res.State.Idle())
	require.Equal(t, graph.WeightPage, weightOf(t, res.Render, "b"))

	_, err = svc.Interact(ctx, "u1", graph.Event{Type: "drag"})
	require.ErrorIs(t, err, appErr.ErrInvalid)

	svc.Leave("u1")
	_, err = svc.Interact(ctx, "u1", graph.Event{Type: graph.EventPointerLeave})
	require.ErrorIs(t, err, appErr.ErrNotFound)
}
