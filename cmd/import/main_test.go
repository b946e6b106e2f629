package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/heritagehub/heritage/engine/domain"
	"github.com/heritagehub/heritage/pkg/fn"
)

func TestReadRecords(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantIDs []string
		wantErr bool
	}{
		{"array", `[{"id":"1"},{"id":"2"}]`, []string{"1", "2"}, false},
		{"ndjson", "{\"id\":\"1\"}\n{\"id\":\"2\"}\n", []string{"1", "2"}, false},
		{"concatenated arrays", `[{"id":"1"}] [{"id":"2"},{"id":"3"}]`, []string{"1", "2", "3"}, false},
		{"empty", "", nil, false},
		{"malformed", `[{"id":"1"`, nil, true},
		{"scalar", `42`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readRecords(strings.NewReader(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %d records, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i]["id"] != id {
					t.Errorf("record %d id = %v, want %s", i, got[i]["id"], id)
				}
			}
		})
	}
}

func TestReadRecordsKeepsNumbers(t *testing.T) {
	got, err := readRecords(strings.NewReader(`{"id":12345678901234567,"generation":3}`))
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := got[0]["id"].(json.Number); !ok || n.String() != "12345678901234567" {
		t.Fatalf("id = %#v, want json.Number", got[0]["id"])
	}
	if m := domain.NormalizeRecord(got[0]); m.ID != "12345678901234567" {
		t.Fatalf("normalized id = %q", m.ID)
	}
}

func TestRequests(t *testing.T) {
	recs := make([]map[string]any, 5)
	for i := range recs {
		recs[i] = map[string]any{"id": i}
	}
	reqs := requests(recs, 2)
	if len(reqs) != 3 {
		t.Fatalf("got %d requests, want 3", len(reqs))
	}
	seen := map[string]bool{}
	for _, r := range reqs {
		if r.RequestID == "" || seen[r.RequestID] {
			t.Fatalf("request ids must be set and unique, got %q", r.RequestID)
		}
		seen[r.RequestID] = true
	}
	if len(reqs[2].Records) != 1 {
		t.Fatalf("last request has %d records, want 1", len(reqs[2].Records))
	}
}

type capturePublisher struct {
	msgs []*nats.Msg
	err  error
}

func (c *capturePublisher) PublishMsg(m *nats.Msg) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func TestPublishAll(t *testing.T) {
	pub := &capturePublisher{}
	reqs := []domain.UpsertRequest{
		{RequestID: "a", Records: []map[string]any{{"id": "1"}}},
		{RequestID: "b", Records: []map[string]any{{"id": "2"}}},
	}
	if err := publishAll(context.Background(), pub, reqs); err != nil {
		t.Fatal(err)
	}
	if len(pub.msgs) != 2 {
		t.Fatalf("published %d, want 2", len(pub.msgs))
	}
	for _, m := range pub.msgs {
		if m.Subject != domain.SubjectMembersUpsert {
			t.Errorf("subject = %s", m.Subject)
		}
	}
	var got domain.UpsertRequest
	if err := json.Unmarshal(pub.msgs[1].Data, &got); err != nil || got.RequestID != "b" {
		t.Fatalf("decoded %+v, err %v", got, err)
	}

	if err := publishAll(context.Background(), &capturePublisher{err: errors.New("closed")}, reqs); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestImportAll(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	pipeline := func(_ context.Context, req domain.UpsertRequest) fn.Result[domain.MembersChanged] {
		if req.RequestID == "bad" {
			return fn.Err[domain.MembersChanged](errors.New("invalid"))
		}
		ids := make([]string, len(req.Records))
		return fn.Ok(domain.MembersChanged{IDs: ids})
	}
	reqs := []domain.UpsertRequest{
		{RequestID: "a", Records: make([]map[string]any, 3)},
		{RequestID: "bad", Records: make([]map[string]any, 2)},
		{RequestID: "c", Records: make([]map[string]any, 1)},
	}
	stored, failed := importAll(context.Background(), pipeline, reqs, log)
	if stored != 4 || failed != 1 {
		t.Fatalf("stored=%d failed=%d, want 4 and 1", stored, failed)
	}
}
