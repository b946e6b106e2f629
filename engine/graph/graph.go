package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/heritagehub/heritage/engine/domain"
	"github.com/heritagehub/heritage/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// ErrNoPath is returned by LineagePath when the members are not connected.
var ErrNoPath = errors.New("graph: no lineage path")

// listPage is the page size ListMembers reads the store with.
const listPage = 500

// maxPathHops bounds the shortestPath expansion.
const maxPathHops = 64

// MemberStore persists members as nodes with derived kinship edges.
type MemberStore struct {
	opener  repo.Opener
	members *repo.Neo4jRepo[domain.Member, string]
	now     func() time.Time
}

// New creates a MemberStore on a neo4j driver using the default database.
func New(driver neo4j.DriverWithContext) *MemberStore {
	return NewWithOpener(repo.DriverOpener(driver, ""))
}

// NewWithOpener creates a MemberStore that opens sessions through o.
func NewWithOpener(o repo.Opener) *MemberStore {
	return &MemberStore{
		opener:  o,
		members: repo.NewNeo4jRepo[domain.Member, string](o, MemberLabel, memberProps, memberFromRecord),
		now:     time.Now,
	}
}

// GetMember returns a member by ID.
func (g *MemberStore) GetMember(ctx context.Context, id string) (domain.Member, error) {
	m, err := g.members.Get(ctx, id)
	if err != nil {
		return domain.Member{}, notFound(id, err)
	}
	return m, nil
}

// SaveMember creates or updates one member and refreshes its edges.
func (g *MemberStore) SaveMember(ctx context.Context, m domain.Member) error {
	return g.SaveBatch(ctx, []domain.Member{m})
}

// SaveBatch writes members and their edges in one transaction. Nodes are
// written before edges so links inside the batch resolve. New nodes get an
// ordinal that preserves batch order; existing nodes keep theirs. Node
// properties are replaced, so fields and attributes absent from m are removed.
func (g *MemberStore) SaveBatch(ctx context.Context, members []domain.Member) error {
	if len(members) == 0 {
		return nil
	}
	for _, m := range members {
		if !m.HasID() {
			return fmt.Errorf("graph: save: %w", domain.ErrMissingID)
		}
	}
	base := g.now().UnixNano()

	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	err := sess.ExecuteWrite(ctx, func(tx repo.Runner) error {
		for i, m := range members {
			cypher := `MERGE (n:Member {id: $id})
				WITH n, coalesce(n.ordinal, $ordinal) AS ordinal
				SET n = $props
				SET n.ordinal = ordinal`
			if _, err := tx.Run(ctx, cypher, map[string]any{
				"id":      m.ID,
				"ordinal": base + int64(i),
				"props":   memberProps(m),
			}); err != nil {
				return err
			}
		}
		for _, m := range members {
			if err := writeEdges(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("graph: save batch: %w", err)
	}
	return nil
}

// edge is one derived relationship, always written from -> to.
type edge struct {
	rel      string
	from, to string
}

// memberEdges derives the outgoing and incoming edges a member record owns.
func memberEdges(m domain.Member) []edge {
	var out []edge
	if m.FatherID != "" && m.FatherID != m.ID {
		out = append(out, edge{RelFatherOf, m.FatherID, m.ID})
	}
	if m.MotherID != "" && m.MotherID != m.ID {
		out = append(out, edge{RelMotherOf, m.MotherID, m.ID})
	}
	if m.SpouseID != "" && m.SpouseID != m.ID {
		out = append(out, edge{RelSpouseOf, m.ID, m.SpouseID})
	}
	for _, c := range m.ChildrenIDs {
		if c != "" && c != m.ID {
			out = append(out, edge{RelParentOf, m.ID, c})
		}
	}
	return out
}

// writeEdges replaces the edges owned by m. Edges to members that do not
// exist are skipped by the MATCH.
func writeEdges(ctx context.Context, tx repo.Runner, m domain.Member) error {
	drop := `MATCH (n:Member {id: $id})
		OPTIONAL MATCH (n)<-[p:FATHER_OF|MOTHER_OF]-()
		OPTIONAL MATCH (n)-[o:SPOUSE_OF|PARENT_OF]->()
		DELETE p, o`
	if _, err := tx.Run(ctx, drop, map[string]any{"id": m.ID}); err != nil {
		return err
	}
	for _, e := range memberEdges(m) {
		cypher := fmt.Sprintf(
			`MATCH (a:Member {id: $from}), (b:Member {id: $to})
			 MERGE (a)-[:%s]->(b)`, e.rel)
		if _, err := tx.Run(ctx, cypher, map[string]any{"from": e.from, "to": e.to}); err != nil {
			return err
		}
	}
	return nil
}

// DeleteMember removes a member and its edges. Links stored on other
// members are left as they are and resolve to nothing.
func (g *MemberStore) DeleteMember(ctx context.Context, id string) error {
	if err := g.members.Delete(ctx, id); err != nil {
		return notFound(id, err)
	}
	return nil
}

// ListMembers returns every stored member in insertion order.
func (g *MemberStore) ListMembers(ctx context.Context) ([]domain.Member, error) {
	var out []domain.Member
	for offset := 0; ; offset += listPage {
		page, err := g.members.List(ctx, repo.ListOpts{
			Offset:  offset,
			Limit:   listPage,
			OrderBy: []string{"ordinal", "id"},
		})
		if err != nil {
			return nil, fmt.Errorf("graph: list members: %w", err)
		}
		out = append(out, page...)
		if len(page) < listPage {
			return out, nil
		}
	}
}

// LineagePath finds the shortest chain of kinship edges between two members,
// both endpoints included.
func (g *MemberStore) LineagePath(ctx context.Context, fromID, toID string) ([]domain.Member, error) {
	if fromID == toID {
		m, err := g.GetMember(ctx, fromID)
		if err != nil {
			return nil, err
		}
		return []domain.Member{m}, nil
	}

	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		`MATCH (a:Member {id: $from}), (b:Member {id: $to})
		 MATCH p = shortestPath((a)-[:FATHER_OF|MOTHER_OF|PARENT_OF|SPOUSE_OF*..%d]-(b))
		 RETURN nodes(p) AS nodes`, maxPathHops)
	result, err := sess.Run(ctx, cypher, map[string]any{"from": fromID, "to": toID})
	if err != nil {
		return nil, fmt.Errorf("graph: lineage path: %w", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("graph: lineage path: %w", err)
		}
		return nil, fmt.Errorf("%w from %s to %s", ErrNoPath, fromID, toID)
	}

	nodesVal, ok := result.Record().Get("nodes")
	if !ok {
		return nil, fmt.Errorf("graph: no nodes in path result")
	}
	nodeList, ok := nodesVal.([]any)
	if !ok {
		return nil, fmt.Errorf("graph: unexpected nodes type %T", nodesVal)
	}

	members := make([]domain.Member, 0, len(nodeList))
	for _, raw := range nodeList {
		node, ok := raw.(dbtype.Node)
		if !ok {
			continue
		}
		members = append(members, memberFromProps(node.Props))
	}
	return members, nil
}

func notFound(id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("graph: member %s: %w", id, domain.ErrMemberNotFound)
	}
	return fmt.Errorf("graph: member %s: %w", id, err)
}
