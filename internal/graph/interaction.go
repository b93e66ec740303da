package graph

const (
	RecenterZoom = 2

	hoverScale       = 1.5
	edgeOpacityOn    = 0.8
	edgeOpacityOff   = 0.2
	edgeParticles    = 3
	semanticWidth    = 2.5
	defaultEdgeWidth = 1
)

// State is the pointer state of a graph view. The focus is the hovered node,
// or the clicked one when nothing is hovered. No focus means Idle.
type State struct {
	Hovered  string `json:"hovered,omitempty"`
	Selected string `json:"selected,omitempty"`
}

func (s State) Focus() string {
	if s.Hovered != "" {
		return s.Hovered
	}
	return s.Selected
}

func (s State) Idle() bool {
	return s.Focus() == ""
}

type EventType string

const (
	EventPointerEnter    EventType = "pointer_enter"
	EventPointerLeave    EventType = "pointer_leave"
	EventClick           EventType = "click"
	EventBackgroundClick EventType = "background_click"
)

type Event struct {
	Type   EventType `json:"type"`
	NodeID string    `json:"node_id,omitempty"`
}

// Highlight is the focused node's one-hop neighbourhood. Nodes includes the
// focus itself; both slices follow graph order.
type Highlight struct {
	Focus string   `json:"focus,omitempty"`
	Nodes []string `json:"nodes"`
	Edges []string `json:"edges"`
}

func (h Highlight) Empty() bool {
	return h.Focus == ""
}

func (h Highlight) HasNode(id string) bool {
	for _, n := range h.Nodes {
		if n == id {
			return true
		}
	}
	return false
}

func (h Highlight) HasEdge(id string) bool {
	for _, e := range h.Edges {
		if e == id {
			return true
		}
	}
	return false
}

// Recenter asks the view to centre on a node. It is a presentation effect
// only.
type Recenter struct {
	NodeID string  `json:"node_id"`
	Zoom   float64 `json:"zoom"`
}

// Apply is the interaction state machine. Events naming unknown nodes leave
// the state unchanged.
func Apply(g *Graph, s State, ev Event) (State, Highlight, *Recenter) {
	var effect *Recenter
	switch ev.Type {
	case EventPointerEnter:
		if _, ok := g.Node(ev.NodeID); ok {
			s.Hovered = ev.NodeID
		}
	case EventPointerLeave:
		s.Hovered = ""
	case EventClick:
		if _, ok := g.Node(ev.NodeID); ok {
			s = State{Hovered: ev.NodeID, Selected: ev.NodeID}
			effect = &Recenter{NodeID: ev.NodeID, Zoom: RecenterZoom}
		}
	case EventBackgroundClick:
		s = State{}
	}
	return s, Neighborhood(g, s.Focus()), effect
}

// Neighborhood computes the highlight around id. An empty or unknown id
// yields an empty highlight.
func Neighborhood(g *Graph, id string) Highlight {
	hl := Highlight{Nodes: []string{}, Edges: []string{}}
	if _, ok := g.Node(id); !ok {
		return hl
	}
	hl.Focus = id
	adj := make(map[string]struct{})
	adj[id] = struct{}{}
	for _, e := range g.EdgesOf(id) {
		hl.Edges = append(hl.Edges, e.ID)
		adj[e.Source] = struct{}{}
		adj[e.Target] = struct{}{}
	}
	for _, n := range g.Nodes {
		if _, ok := adj[n.ID]; ok {
			hl.Nodes = append(hl.Nodes, n.ID)
		}
	}
	return hl
}

type NodeStyle struct {
	ID        string  `json:"id"`
	Weight    int     `json:"weight"`
	Scale     float64 `json:"scale"`
	Dimmed    bool    `json:"dimmed"`
	ShowLabel bool    `json:"show_label"`
	Selected  bool    `json:"selected"`
}

type EdgeStyle struct {
	ID        string  `json:"id"`
	Opacity   float64 `json:"opacity"`
	Particles int     `json:"particles"`
	Width     float64 `json:"width"`
	Label     string  `json:"label,omitempty"`
}

type Render struct {
	Nodes []NodeStyle `json:"nodes"`
	Edges []EdgeStyle `json:"edges"`
}

// Style maps graph, state and highlight to render parameters. With an empty
// highlight nothing is dimmed.
func Style(g *Graph, s State, hl Highlight) Render {
	focus := s.Focus()
	nodes := make(map[string]struct{}, len(hl.Nodes))
	for _, id := range hl.Nodes {
		nodes[id] = struct{}{}
	}
	edges := make(map[string]struct{}, len(hl.Edges))
	for _, id := range hl.Edges {
		edges[id] = struct{}{}
	}
	out := Render{
		Nodes: make([]NodeStyle, 0, len(g.Nodes)),
		Edges: make([]EdgeStyle, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		_, lit := nodes[n.ID]
		st := NodeStyle{
			ID:        n.ID,
			Weight:    n.Weight,
			Scale:     1,
			Dimmed:    !hl.Empty() && !lit,
			ShowLabel: lit,
			Selected:  n.ID == s.Selected,
		}
		if n.ID == focus {
			st.Scale = hoverScale
			st.ShowLabel = true
		}
		out.Nodes = append(out.Nodes, st)
	}
	for _, e := range g.Edges {
		_, lit := edges[e.ID]
		st := EdgeStyle{
			ID:      e.ID,
			Opacity: edgeOpacityOn,
			Width:   defaultEdgeWidth,
			Label:   e.Label,
		}
		if !hl.Empty() && !lit {
			st.Opacity = edgeOpacityOff
		}
		if lit {
			st.Particles = edgeParticles
		}
		if e.Kind == EdgeSemantic {
			st.Width = semanticWidth
		}
		out.Edges = append(out.Edges, st)
	}
	return out
}
