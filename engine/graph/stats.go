package graph

import (
	"context"
	"fmt"
)

// Stats summarizes the stored family graph.
type Stats struct {
	Members int64            `json:"members"`
	Edges   map[string]int64 `json:"edges"`
}

// Stats returns the member count and edge counts grouped by relationship type.
func (g *MemberStore) Stats(ctx context.Context) (Stats, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	stats := Stats{Edges: make(map[string]int64)}

	result, err := sess.Run(ctx, `MATCH (n:Member) RETURN count(n) AS count`, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("graph: stats: %w", err)
	}
	if result.Next(ctx) {
		if c, ok := result.Record().Get("count"); ok {
			stats.Members, _ = c.(int64)
		}
	}
	if err := result.Err(); err != nil {
		return Stats{}, fmt.Errorf("graph: stats: %w", err)
	}

	cypher := `MATCH (:Member)-[r]->(:Member) RETURN type(r) AS type, count(*) AS count`
	result, err = sess.Run(ctx, cypher, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("graph: stats: %w", err)
	}
	for result.Next(ctx) {
		rec := result.Record()
		typ, _ := rec.Get("type")
		cnt, _ := rec.Get("count")
		if t, ok := typ.(string); ok {
			if c, ok := cnt.(int64); ok {
				stats.Edges[t] = c
			}
		}
	}
	if err := result.Err(); err != nil {
		return Stats{}, fmt.Errorf("graph: stats: %w", err)
	}
	return stats, nil
}
