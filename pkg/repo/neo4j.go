package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Result is the part of a neo4j result the repositories read.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// Runner runs a single Cypher statement.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
}

// Session is a Runner that can also execute transactional work.
type Session interface {
	Runner
	ExecuteWrite(ctx context.Context, work func(tx Runner) error) error
	Close(ctx context.Context) error
}

// Opener opens sessions. Tests swap in fakes here.
type Opener interface {
	OpenSession(ctx context.Context) Session
}

// DriverOpener opens sessions on a neo4j driver against the given database
// ("" selects the server default).
func DriverOpener(driver neo4j.DriverWithContext, database string) Opener {
	return &driverOpener{driver: driver, database: database}
}

type driverOpener struct {
	driver   neo4j.DriverWithContext
	database string
}

func (o *driverOpener) OpenSession(ctx context.Context) Session {
	return &sessionAdapter{sess: o.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: o.database})}
}

// sessionAdapter adapts neo4j.SessionWithContext to Session.
type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	res, err := a.sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (a *sessionAdapter) ExecuteWrite(ctx context.Context, work func(tx Runner) error) error {
	_, err := a.sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, work(txAdapter{tx: tx})
	})
	return err
}

func (a *sessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

type txAdapter struct {
	tx neo4j.ManagedTransaction
}

func (t txAdapter) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	res, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Neo4jRepo is a generic Neo4j-backed repository.
type Neo4jRepo[T any, ID comparable] struct {
	opener     Opener
	label      string
	idKey      string
	toMap      func(T) map[string]any
	fromRecord func(*neo4j.Record) (T, error)
}

// Neo4jOption configures a Neo4jRepo.
type Neo4jOption[T any, ID comparable] func(*Neo4jRepo[T, ID])

// WithIDKey sets the property name used as the ID (default "id").
func WithIDKey[T any, ID comparable](key string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.idKey = key }
}

// NewNeo4jRepo creates a new Neo4j-backed repository.
func NewNeo4jRepo[T any, ID comparable](
	opener Opener,
	label string,
	toMap func(T) map[string]any,
	fromRecord func(*neo4j.Record) (T, error),
	opts ...Neo4jOption[T, ID],
) *Neo4jRepo[T, ID] {
	r := &Neo4jRepo[T, ID]{
		opener:     opener,
		label:      label,
		idKey:      "id",
		toMap:      toMap,
		fromRecord: fromRecord,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Compile-time interface check.
var _ Repository[any, string] = (*Neo4jRepo[any, string])(nil)

// Label returns the node label the repository manages.
func (r *Neo4jRepo[T, ID]) Label() string { return r.label }

func (r *Neo4jRepo[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	sess := r.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN n", r.label, r.idKey)
	return r.single(ctx, sess, cypher, map[string]any{"id": id})
}

func (r *Neo4jRepo[T, ID]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	where, params, err := filterClause(opts.Filter)
	if err != nil {
		return nil, err
	}
	order, err := orderClause(opts.OrderBy)
	if err != nil {
		return nil, err
	}
	params["offset"] = int64(opts.Offset)
	params["limit"] = int64(limit)

	sess := r.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s)%s RETURN n%s SKIP $offset LIMIT $limit", r.label, where, order)
	result, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}

	var items []T
	for result.Next(ctx) {
		item, err := r.fromRecord(result.Record())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, result.Err()
}

func (r *Neo4jRepo[T, ID]) Create(ctx context.Context, entity T) (T, error) {
	sess := r.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("CREATE (n:%s $props) RETURN n", r.label)
	item, err := r.single(ctx, sess, cypher, map[string]any{"props": r.toMap(entity)})
	if errors.Is(err, ErrNotFound) {
		return item, fmt.Errorf("failed to create %s", r.label)
	}
	return item, err
}

func (r *Neo4jRepo[T, ID]) Update(ctx context.Context, entity T) (T, error) {
	sess := r.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	props := r.toMap(entity)
	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) SET n += $props RETURN n", r.label, r.idKey)
	return r.single(ctx, sess, cypher, map[string]any{"id": props[r.idKey], "props": props})
}

// Upsert merges the node on its id and overwrites the given properties.
func (r *Neo4jRepo[T, ID]) Upsert(ctx context.Context, entity T) (T, error) {
	sess := r.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	props := r.toMap(entity)
	cypher := fmt.Sprintf("MERGE (n:%s {%s: $id}) SET n += $props RETURN n", r.label, r.idKey)
	return r.single(ctx, sess, cypher, map[string]any{"id": props[r.idKey], "props": props})
}

// Delete removes the node and its relationships. Deleting a missing node
// returns ErrNotFound.
func (r *Neo4jRepo[T, ID]) Delete(ctx context.Context, id ID) error {
	sess := r.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) DETACH DELETE n RETURN count(*) AS deleted", r.label, r.idKey)
	result, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return err
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%s %v: %w", r.label, id, ErrNotFound)
	}
	if n, _ := result.Record().Get("deleted"); n == int64(0) {
		return fmt.Errorf("%s %v: %w", r.label, id, ErrNotFound)
	}
	return nil
}

func (r *Neo4jRepo[T, ID]) single(ctx context.Context, sess Runner, cypher string, params map[string]any) (T, error) {
	var zero T
	result, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return zero, err
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return zero, err
		}
		return zero, ErrNotFound
	}
	return r.fromRecord(result.Record())
}

func filterClause(filter map[string]any) (string, map[string]any, error) {
	params := make(map[string]any)
	if len(filter) == 0 {
		return "", params, nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		if !validProperty(k) {
			return "", nil, fmt.Errorf("repo: invalid filter property %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	conds := make([]string, len(keys))
	for i, k := range keys {
		conds[i] = fmt.Sprintf("n.%s = $f_%s", k, k)
		params["f_"+k] = filter[k]
	}
	return " WHERE " + strings.Join(conds, " AND "), params, nil
}

func orderClause(props []string) (string, error) {
	if len(props) == 0 {
		return "", nil
	}
	terms := make([]string, len(props))
	for i, p := range props {
		if !validProperty(p) {
			return "", fmt.Errorf("repo: invalid order property %q", p)
		}
		terms[i] = "n." + p
	}
	return " ORDER BY " + strings.Join(terms, ", "), nil
}

// validProperty accepts plain Cypher identifiers, which are safe to splice
// into a statement.
func validProperty(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || (i > 0 && c >= '0' && c <= '9') {
			continue
		}
		return false
	}
	return true
}
