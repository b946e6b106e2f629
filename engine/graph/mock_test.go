package graph

import (
	"context"

	"github.com/heritagehub/heritage/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

type mockResult struct {
	records []*neo4j.Record
	idx     int
	err     error
}

func newMockResult(recs ...*neo4j.Record) *mockResult {
	return &mockResult{records: recs}
}

func (m *mockResult) Next(context.Context) bool {
	if m.idx < len(m.records) {
		m.idx++
		return true
	}
	return false
}

func (m *mockResult) Record() *neo4j.Record { return m.records[m.idx-1] }
func (m *mockResult) Err() error            { return m.err }

type call struct {
	cypher string
	params map[string]any
}

// mockSession hands out queued results in order; once the queue is empty
// every statement gets an empty result.
type mockSession struct {
	results []*mockResult
	runErr  error
	// failAt makes the n-th statement (1-based) fail with runErr.
	failAt  int
	calls   []call
	inWrite int
	closed  bool
}

func (m *mockSession) Run(_ context.Context, cypher string, params map[string]any) (repo.Result, error) {
	m.calls = append(m.calls, call{cypher, params})
	if m.runErr != nil && (m.failAt == 0 || m.failAt == len(m.calls)) {
		return nil, m.runErr
	}
	if len(m.results) == 0 {
		return newMockResult(), nil
	}
	r := m.results[0]
	m.results = m.results[1:]
	return r, nil
}

func (m *mockSession) ExecuteWrite(ctx context.Context, work func(repo.Runner) error) error {
	m.inWrite++
	return work(m)
}

func (m *mockSession) Close(context.Context) error {
	m.closed = true
	return nil
}

type mockOpener struct{ session *mockSession }

func (o *mockOpener) OpenSession(context.Context) repo.Session { return o.session }

func makeNodeRecord(props map[string]any) *neo4j.Record {
	return &neo4j.Record{
		Keys:   []string{"n"},
		Values: []any{dbtype.Node{Labels: []string{MemberLabel}, Props: props}},
	}
}

func makeRecord(keys []string, values ...any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}
