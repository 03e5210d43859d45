package diagram

// Index provides id lookup and adjacency over one Graph snapshot. Edges
// whose endpoints do not resolve to a known node id are dropped at build
// time, so every traversal and per-edge rule sees only resolvable edges.
// The index never mutates the graph and is safe for concurrent readers.
type Index struct {
	nodes []*Node
	edges []*Edge
	byID  map[string]*Node
	out   map[string][]*Edge
	in    map[string][]*Edge

	skippedEdges   []string
	duplicateNodes []string
}

// NewIndex builds an Index over g. A nil graph yields an empty index.
// Duplicate node ids keep the first occurrence; later ones are recorded as
// duplicates and otherwise ignored.
func NewIndex(g *Graph) *Index {
	idx := &Index{
		byID: make(map[string]*Node),
		out:  make(map[string][]*Edge),
		in:   make(map[string][]*Edge),
	}
	if g == nil {
		return idx
	}

	for i := range g.Nodes {
		n := &g.Nodes[i]
		if _, dup := idx.byID[n.ID]; dup {
			idx.duplicateNodes = append(idx.duplicateNodes, n.ID)
			continue
		}
		idx.byID[n.ID] = n
		idx.nodes = append(idx.nodes, n)
	}

	for i := range g.Edges {
		e := &g.Edges[i]
		if _, ok := idx.byID[e.Source]; !ok {
			idx.skippedEdges = append(idx.skippedEdges, e.ID)
			continue
		}
		if _, ok := idx.byID[e.Target]; !ok {
			idx.skippedEdges = append(idx.skippedEdges, e.ID)
			continue
		}
		idx.edges = append(idx.edges, e)
		idx.out[e.Source] = append(idx.out[e.Source], e)
		idx.in[e.Target] = append(idx.in[e.Target], e)
	}

	return idx
}

// Node returns the node with the given id.
func (idx *Index) Node(id string) (*Node, bool) {
	n, ok := idx.byID[id]
	return n, ok
}

// Nodes returns all indexed nodes in authoring order.
func (idx *Index) Nodes() []*Node { return idx.nodes }

// Edges returns all resolvable edges in authoring order.
func (idx *Index) Edges() []*Edge { return idx.edges }

// Outgoing returns the resolvable edges leaving the node, in authoring order.
func (idx *Index) Outgoing(id string) []*Edge { return idx.out[id] }

// Incoming returns the resolvable edges entering the node, in authoring order.
func (idx *Index) Incoming(id string) []*Edge { return idx.in[id] }

// NodesOfType returns the indexed nodes of the given type in authoring order.
func (idx *Index) NodesOfType(t NodeType) []*Node {
	var out []*Node
	for _, n := range idx.nodes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// Generators returns the generator nodes in authoring order.
func (idx *Index) Generators() []*Node { return idx.NodesOfType(NodeGenerator) }

// Activities returns the activity nodes in authoring order.
func (idx *Index) Activities() []*Node { return idx.NodesOfType(NodeActivity) }

// SkippedEdges returns ids of edges dropped for dangling endpoints.
func (idx *Index) SkippedEdges() []string { return idx.skippedEdges }

// DuplicateNodes returns ids that appeared more than once in the input.
func (idx *Index) DuplicateNodes() []string { return idx.duplicateNodes }

// IsType reports whether the node id resolves to a node of type t. Missing
// ids report false, which lets rule code treat dangling references and
// type mismatches the same way.
func (idx *Index) IsType(id string, t NodeType) bool {
	n, ok := idx.byID[id]
	return ok && n.Type == t
}
