package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/heritagehub/heritage/engine/domain"
	"github.com/heritagehub/heritage/engine/graph"
	"github.com/heritagehub/heritage/engine/kinship"
	"github.com/heritagehub/heritage/engine/semantic"
	"github.com/heritagehub/heritage/engine/snapshot"
	"github.com/heritagehub/heritage/pkg/metrics"
	"github.com/heritagehub/heritage/pkg/mid"
	"github.com/heritagehub/heritage/pkg/natsutil"
	"github.com/heritagehub/heritage/pkg/resilience"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
	maxUpsertBody      = 8 << 20
)

var (
	errBadRequest  = errors.New("bad request")
	errUnavailable = errors.New("unavailable")
)

// Snapshots yields the current member snapshot.
type Snapshots interface {
	Current(ctx context.Context) (*snapshot.Snapshot, error)
}

// Store is the part of the member repository the API reads directly.
type Store interface {
	LineagePath(ctx context.Context, fromID, toID string) ([]domain.Member, error)
	Stats(ctx context.Context) (graph.Stats, error)
}

// Finder searches members by name.
type Finder interface {
	Find(ctx context.Context, query string, topK int, filters map[string]string) ([]semantic.SearchResult, error)
}

type server struct {
	snaps   Snapshots
	store   Store
	finder  Finder             // nil when search is disabled
	pub     natsutil.Publisher // nil disables writes
	metrics *metrics.Registry
	log     *slog.Logger
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/tree", s.handleTree)
	mux.HandleFunc("GET /api/forest", s.handleForest)
	mux.HandleFunc("GET /api/relationship", s.handleRelationship)
	mux.HandleFunc("GET /api/generations", s.handleGenerations)
	mux.HandleFunc("GET /api/lineage", s.handleLineage)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/members/search", s.handleSearch)
	mux.HandleFunc("GET /api/members/{id}", s.handleMember)
	mux.HandleFunc("GET /api/members/{id}/relatives", s.handleRelatives)
	mux.HandleFunc("POST /api/members", s.handleUpsert)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// --- Response shapes ---

type memberRef struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Gender     string `json:"gender,omitempty"`
	Generation *int   `json:"generation,omitempty"`
}

func refOf(m domain.Member) memberRef {
	return memberRef{ID: m.ID, Name: m.DisplayName(), Gender: string(m.Gender), Generation: m.Generation}
}

func refsOf(ms []domain.Member) []memberRef {
	out := make([]memberRef, len(ms))
	for i, m := range ms {
		out[i] = refOf(m)
	}
	return out
}

type treeJSON struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Spouse   *memberRef  `json:"spouse,omitempty"`
	Children []*treeJSON `json:"children"`
}

var noDataJSON = map[string]string{"name": "no data"}

func treeOf(n *kinship.TreeNode) any {
	if n == nil || n.NoData {
		return noDataJSON
	}
	return toTreeJSON(n)
}

func toTreeJSON(n *kinship.TreeNode) *treeJSON {
	out := &treeJSON{
		ID:       n.Member.ID,
		Name:     n.Member.DisplayName(),
		Children: make([]*treeJSON, 0, len(n.Children)),
	}
	if n.Spouse != nil {
		sp := refOf(*n.Spouse)
		out.Spouse = &sp
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, toTreeJSON(c))
	}
	return out
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func treeOptions(r *http.Request) ([]kinship.Option, error) {
	var opts []kinship.Option
	q := r.URL.Query()
	if v := q.Get("couples"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: couples must be a boolean", errBadRequest)
		}
		if on {
			opts = append(opts, kinship.WithCouples())
		}
	}
	if v := q.Get("depth"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("%w: depth must be a non-negative integer", errBadRequest)
		}
		opts = append(opts, kinship.WithMaxDepth(d))
	}
	return opts, nil
}

func (s *server) handleTree(w http.ResponseWriter, r *http.Request) {
	opts, err := treeOptions(r)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	snap, err := s.snaps.Current(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}

	var tree *kinship.TreeNode
	if root := domain.CanonicalID(r.URL.Query().Get("root")); root != "" {
		tree = kinship.BuildTree(snap.Index, root, opts...)
	} else {
		tree = kinship.BuildFamilyTree(snap.Index, opts...)
	}
	writeJSON(w, http.StatusOK, treeOf(tree))
}

func (s *server) handleForest(w http.ResponseWriter, r *http.Request) {
	opts, err := treeOptions(r)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	snap, err := s.snaps.Current(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	forest := kinship.BuildForest(snap.Index, opts...)
	out := make([]any, len(forest))
	for i, t := range forest {
		out[i] = treeOf(t)
	}
	writeJSON(w, http.StatusOK, out)
}

type relationshipResponse struct {
	A memberRef `json:"a"`
	B memberRef `json:"b"`
	kinship.Description
}

func (s *server) handleRelationship(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	aID, bID := domain.CanonicalID(q.Get("a")), domain.CanonicalID(q.Get("b"))
	switch {
	case aID == "" || bID == "":
		s.writeErr(w, fmt.Errorf("%w: a and b are required", errBadRequest))
		return
	case aID == bID:
		s.writeErr(w, fmt.Errorf("%w: a and b must be different members", errBadRequest))
		return
	}

	snap, err := s.snaps.Current(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	a, err := lookup(snap, aID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	b, err := lookup(snap, bID)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	desc := kinship.DescribePair(snap.Index, a, b)
	if s.metrics != nil {
		s.metrics.Relationships.WithLabelValues(desc.Kind.String()).Inc()
	}
	writeJSON(w, http.StatusOK, relationshipResponse{A: refOf(a), B: refOf(b), Description: desc})
}

func (s *server) handleMember(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snaps.Current(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	m, err := lookup(snap, domain.CanonicalID(r.PathValue("id")))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type relativeJSON struct {
	Member memberRef    `json:"member"`
	Kind   kinship.Kind `json:"kind"`
	Label  string       `json:"label"`
}

func (s *server) handleRelatives(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snaps.Current(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	id := domain.CanonicalID(r.PathValue("id"))
	if _, err := lookup(snap, id); err != nil {
		s.writeErr(w, err)
		return
	}
	rels := kinship.Relatives(snap.Index, id)
	out := make([]relativeJSON, len(rels))
	for i, rel := range rels {
		out[i] = relativeJSON{
			Member: refOf(rel.Member),
			Kind:   rel.Kind,
			Label:  kinship.Label(rel.Kind, rel.Member.Gender),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type generationJSON struct {
	Generation int           `json:"generation"`
	Clusters   [][]memberRef `json:"clusters"`
}

type generationsResponse struct {
	Levels     []generationJSON `json:"levels"`
	Unassigned [][]memberRef    `json:"unassigned"`
}

func clustersJSON(cs []kinship.Cluster) [][]memberRef {
	out := make([][]memberRef, len(cs))
	for i, c := range cs {
		out[i] = refsOf(c)
	}
	return out
}

func (s *server) handleGenerations(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snaps.Current(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	g := kinship.GroupByGeneration(snap.Members)
	resp := generationsResponse{
		Levels:     make([]generationJSON, 0, len(g.Levels())),
		Unassigned: clustersJSON(g.Unassigned),
	}
	for _, lvl := range g.Levels() {
		resp.Levels = append(resp.Levels, generationJSON{Generation: lvl, Clusters: clustersJSON(g.Clusters(lvl))})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleLineage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := domain.CanonicalID(q.Get("from")), domain.CanonicalID(q.Get("to"))
	if from == "" || to == "" {
		s.writeErr(w, fmt.Errorf("%w: from and to are required", errBadRequest))
		return
	}
	path, err := s.store.LineagePath(r.Context(), from, to)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path": refsOf(path),
		"hops": len(path) - 1,
	})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.finder == nil {
		s.writeErr(w, fmt.Errorf("%w: member search is disabled", errUnavailable))
		return
	}
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		s.writeErr(w, fmt.Errorf("%w: q is required", errBadRequest))
		return
	}
	limit := defaultSearchLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeErr(w, fmt.Errorf("%w: limit must be a positive integer", errBadRequest))
			return
		}
		limit = min(n, maxSearchLimit)
	}
	filters := make(map[string]string)
	for _, key := range []string{semantic.KeyFamilyName, semantic.KeyGender} {
		if v := q.Get(key); v != "" {
			filters[key] = v
		}
	}

	results, err := s.finder.Find(r.Context(), query, limit, filters)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleUpsert accepts either a JSON array of raw records or an object with
// a "records" array and queues them for the ingest worker.
func (s *server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	if s.pub == nil {
		s.writeErr(w, fmt.Errorf("%w: writes are disabled", errUnavailable))
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpsertBody)).Decode(&raw); err != nil {
		s.writeErr(w, fmt.Errorf("%w: invalid request body", errBadRequest))
		return
	}
	var req domain.UpsertRequest
	if err := unmarshalNumbers(raw, &req.Records); err != nil {
		if err := unmarshalNumbers(raw, &req); err != nil {
			s.writeErr(w, fmt.Errorf("%w: expected an array of records or {\"records\": [...]}", errBadRequest))
			return
		}
	}
	if len(req.Records) == 0 {
		s.writeErr(w, fmt.Errorf("%w: no records", errBadRequest))
		return
	}
	req.RequestID = r.Header.Get(mid.HeaderRequestID)
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	if err := natsutil.Publish(r.Context(), s.pub, domain.SubjectMembersUpsert, req); err != nil {
		s.writeErr(w, fmt.Errorf("publish upsert: %w", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"request_id": req.RequestID,
		"records":    len(req.Records),
	})
}

// --- Helpers ---

func lookup(snap *snapshot.Snapshot, id string) (domain.Member, error) {
	m, ok := snap.Index.Member(id)
	if !ok {
		return domain.Member{}, fmt.Errorf("member %q: %w", id, domain.ErrMemberNotFound)
	}
	return m, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *server) writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrMemberNotFound), errors.Is(err, graph.ErrNoPath):
		status = http.StatusNotFound
	case errors.Is(err, errBadRequest), domain.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, errUnavailable), errors.Is(err, resilience.ErrCircuitOpen):
		status = http.StatusServiceUnavailable
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "err", err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// unmarshalNumbers keeps JSON numbers as json.Number so numeric ids above
// 2^53 survive decoding.
func unmarshalNumbers(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
