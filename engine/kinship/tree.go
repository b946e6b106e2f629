package kinship

import "github.com/heritagehub/heritage/engine/domain"

// TreeNode is one member in a built tree. With couple pairing, Spouse holds
// the member's partner and Children holds the couple's children.
type TreeNode struct {
	Member   domain.Member
	Spouse   *domain.Member
	Children []*TreeNode
	// NoData marks the placeholder returned when there is nothing to build.
	NoData bool
}

// NoDataNode returns the placeholder leaf for an empty or rootless member set.
func NoDataNode() *TreeNode { return &TreeNode{NoData: true} }

// Option configures tree building.
type Option func(*treeOptions)

type treeOptions struct {
	couples  bool
	maxDepth int
}

// WithCouples pairs every node with its spouse.
func WithCouples() Option {
	return func(o *treeOptions) { o.couples = true }
}

// WithMaxDepth stops expansion below n levels; the root is level 1.
// n <= 0 means unlimited.
func WithMaxDepth(n int) Option {
	return func(o *treeOptions) { o.maxDepth = n }
}

func buildOptions(opts []Option) treeOptions {
	var o treeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// visitSet holds the ids already placed in a tree. It only grows, which
// bounds recursion depth by the number of distinct members.
type visitSet map[string]struct{}

// claim marks id as placed and reports whether it was free.
func (v visitSet) claim(id string) bool {
	if _, ok := v[id]; ok {
		return false
	}
	v[id] = struct{}{}
	return true
}

// BuildTree expands the descendants of rootID depth-first. No member appears
// twice: a member reachable from two parents stays under the first one
// reached. An unknown rootID yields NoDataNode.
func BuildTree(idx *Index, rootID string, opts ...Option) *TreeNode {
	root, ok := idx.Member(rootID)
	if !ok {
		return NoDataNode()
	}
	visited := make(visitSet)
	visited.claim(root.ID)
	return expand(idx, root, visited, buildOptions(opts), 1)
}

// BuildFamilyTree selects the root with SelectRoot and builds its tree.
func BuildFamilyTree(idx *Index, opts ...Option) *TreeNode {
	rootID, ok := SelectRoot(idx.Members())
	if !ok {
		return NoDataNode()
	}
	return BuildTree(idx, rootID, opts...)
}

// BuildForest builds one tree per root sharing a single visited set, so every
// indexed member appears exactly once across the forest (spouses included
// when couples are paired). Roots are taken in this order: the SelectRoot
// choice, members whose father does not resolve, then any member still
// unplaced, which only happens inside father cycles. WithMaxDepth is ignored.
func BuildForest(idx *Index, opts ...Option) []*TreeNode {
	o := buildOptions(opts)
	o.maxDepth = 0
	visited := make(visitSet)
	members := idx.Members()

	var forest []*TreeNode
	plant := func(m domain.Member) {
		if visited.claim(m.ID) {
			forest = append(forest, expand(idx, m, visited, o, 1))
		}
	}
	if rootID, ok := SelectRoot(members); ok {
		root, _ := idx.Member(rootID)
		plant(root)
	}
	for _, m := range members {
		if _, hasFather := idx.Father(m); !hasFather {
			plant(m)
		}
	}
	for _, m := range members {
		plant(m)
	}
	return forest
}

func expand(idx *Index, m domain.Member, visited visitSet, o treeOptions, depth int) *TreeNode {
	node := &TreeNode{Member: m}
	parents := []domain.Member{m}
	if o.couples {
		if sp, ok := idx.Spouse(m); ok && visited.claim(sp.ID) {
			node.Spouse = &sp
			parents = append(parents, sp)
		}
	}
	if o.maxDepth > 0 && depth >= o.maxDepth {
		return node
	}
	for _, id := range childIDs(idx, parents) {
		// Claimed here, not when listed: an earlier sibling's subtree may
		// already have taken this child.
		if !visited.claim(id) {
			continue
		}
		child, _ := idx.Member(id)
		node.Children = append(node.Children, expand(idx, child, visited, o, depth+1))
	}
	return node
}

// childIDs unions father back-references and explicit children lists of the
// given parents, de-duplicated, dropping ids missing from the index.
func childIDs(idx *Index, parents []domain.Member) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		if _, ok := idx.Member(id); !ok {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, p := range parents {
		for _, c := range idx.ChildrenOf(p.ID) {
			add(c.ID)
		}
		for _, id := range p.ChildrenIDs {
			add(id)
		}
	}
	return out
}

// SelectRoot picks the tree root: the member with id "1" when present,
// otherwise the first member in list order without a father.
func SelectRoot(members []domain.Member) (string, bool) {
	for _, m := range members {
		if m.ID == CanonicalRootID {
			return m.ID, true
		}
	}
	for _, m := range members {
		if m.HasID() && m.FatherID == "" {
			return m.ID, true
		}
	}
	return "", false
}

// CanonicalRootID is the identifier conventionally given to the clan founder.
const CanonicalRootID = "1"

// Walk visits n and its descendants in pre-order.
func (n *TreeNode) Walk(fn func(node *TreeNode, depth int)) {
	n.walk(fn, 1)
}

func (n *TreeNode) walk(fn func(*TreeNode, int), depth int) {
	fn(n, depth)
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

// IDs returns every member id in the tree in pre-order, each node's spouse
// directly after the node.
func (n *TreeNode) IDs() []string {
	var out []string
	n.Walk(func(node *TreeNode, _ int) {
		if node.NoData {
			return
		}
		out = append(out, node.Member.ID)
		if node.Spouse != nil {
			out = append(out, node.Spouse.ID)
		}
	})
	return out
}

// Size returns the number of members in the tree, spouses included.
func (n *TreeNode) Size() int { return len(n.IDs()) }

// Depth returns the number of levels, 0 for a NoData node.
func (n *TreeNode) Depth() int {
	if n.NoData {
		return 0
	}
	max := 0
	n.Walk(func(_ *TreeNode, d int) {
		if d > max {
			max = d
		}
	})
	return max
}
