package kinship

import (
	"sort"

	"github.com/heritagehub/heritage/engine/domain"
)

// lineageRoots are treated as attached to the paternal line even though they
// have no father.
var lineageRoots = map[string]bool{"1": true, "2": true}

// Cluster is one display group inside a generation: a member, the spouse,
// then same-father siblings of that generation each followed by a spouse.
type Cluster []domain.Member

// IDs returns the member ids of the cluster in order.
func (c Cluster) IDs() []string {
	out := make([]string, len(c))
	for i, m := range c {
		out[i] = m.ID
	}
	return out
}

// Generations is the result of GroupByGeneration.
type Generations struct {
	levels map[int][]Cluster
	// Unassigned holds clusters where neither partner has a generation.
	Unassigned []Cluster
}

// GroupByGeneration partitions members into generation buckets. Each member
// with an ID lands in exactly one cluster; records without an ID are ignored.
//
// A couple shares one bucket. When exactly one partner hangs off the paternal
// line (has a father, or is a lineage root) that partner's generation wins;
// otherwise the first defined of member then spouse is used. If the winning
// partner has no generation the other partner's is used.
func GroupByGeneration(members []domain.Member) Generations {
	idx := NewIndex(members)
	g := Generations{levels: make(map[int][]Cluster)}
	processed := make(visitSet)

	for _, m := range idx.Members() {
		if !processed.claim(m.ID) {
			continue
		}
		cluster := Cluster{m}
		sp := freeSpouse(idx, m, processed)
		if sp != nil {
			processed.claim(sp.ID)
			cluster = append(cluster, *sp)
		}
		gen, ok := coupleGeneration(m, sp)

		if m.FatherID != "" {
			for _, s := range idx.ChildrenOf(m.FatherID) {
				if _, done := processed[s.ID]; done {
					continue
				}
				ssp := freeSpouse(idx, s, processed)
				sg, sok := coupleGeneration(s, ssp)
				if sok != ok || sg != gen {
					continue
				}
				processed.claim(s.ID)
				cluster = append(cluster, s)
				if ssp != nil && processed.claim(ssp.ID) {
					cluster = append(cluster, *ssp)
				}
			}
		}

		if ok {
			g.levels[gen] = append(g.levels[gen], cluster)
		} else {
			g.Unassigned = append(g.Unassigned, cluster)
		}
	}
	return g
}

func freeSpouse(idx *Index, m domain.Member, processed visitSet) *domain.Member {
	sp, ok := idx.Spouse(m)
	if !ok {
		return nil
	}
	if _, done := processed[sp.ID]; done {
		return nil
	}
	return &sp
}

func onLine(m domain.Member) bool {
	return m.FatherID != "" || lineageRoots[m.ID]
}

func coupleGeneration(m domain.Member, sp *domain.Member) (int, bool) {
	if sp == nil {
		return firstGeneration(m)
	}
	if onLine(*sp) && !onLine(m) {
		return firstGeneration(*sp, m)
	}
	return firstGeneration(m, *sp)
}

func firstGeneration(ms ...domain.Member) (int, bool) {
	for _, m := range ms {
		if m.Generation != nil {
			return *m.Generation, true
		}
	}
	return 0, false
}

// Levels returns the generations present, ascending.
func (g Generations) Levels() []int {
	out := make([]int, 0, len(g.levels))
	for gen := range g.levels {
		out = append(out, gen)
	}
	sort.Ints(out)
	return out
}

// Clusters returns the display groups of one generation.
func (g Generations) Clusters(gen int) []Cluster {
	return g.levels[gen]
}

// Members returns the members of one generation, cluster by cluster.
func (g Generations) Members(gen int) []domain.Member {
	var out []domain.Member
	for _, c := range g.levels[gen] {
		out = append(out, c...)
	}
	return out
}

// Buckets returns every generation's members keyed by generation.
func (g Generations) Buckets() map[int][]domain.Member {
	out := make(map[int][]domain.Member, len(g.levels))
	for gen := range g.levels {
		out[gen] = g.Members(gen)
	}
	return out
}

// Assignments maps each grouped member id to its generation. Members in
// Unassigned are absent.
func (g Generations) Assignments() map[string]int {
	out := make(map[string]int)
	for gen, clusters := range g.levels {
		for _, c := range clusters {
			for _, m := range c {
				out[m.ID] = gen
			}
		}
	}
	return out
}
