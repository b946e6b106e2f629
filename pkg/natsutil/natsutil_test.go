package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
)

type testMsg struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type capturePublisher struct {
	msgs []*nats.Msg
	err  error
}

func (c *capturePublisher) PublishMsg(msg *nats.Msg) error {
	c.msgs = append(c.msgs, msg)
	return c.err
}

type captureSubscriber struct {
	subject, queue string
	handler        nats.MsgHandler
}

func (c *captureSubscriber) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	c.subject, c.handler = subject, cb
	return &nats.Subscription{}, nil
}

func (c *captureSubscriber) QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error) {
	c.subject, c.queue, c.handler = subject, queue, cb
	return &nats.Subscription{}, nil
}

func TestNatsHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*natsHeaderCarrier)(msg)
	if got := carrier.Get("missing"); got != "" || carrier.Keys() != nil {
		t.Fatal("empty carrier should report nothing")
	}

	carrier.Set("traceparent", "00-abc-def-01")
	carrier.Set("traceparent", "00-abc-def-02")
	if got := carrier.Get("traceparent"); got != "00-abc-def-02" {
		t.Fatalf("expected overwritten traceparent, got %q", got)
	}
	if keys := carrier.Keys(); len(keys) != 1 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestPublishSetsMessageID(t *testing.T) {
	pub := &capturePublisher{}
	if err := Publish(context.Background(), pub, "genealogy.test", testMsg{Name: "a", Value: 1}); err != nil {
		t.Fatal(err)
	}
	if err := Publish(context.Background(), pub, "genealogy.test", testMsg{Name: "b", Value: 2}); err != nil {
		t.Fatal(err)
	}
	first, second := pub.msgs[0], pub.msgs[1]
	if first.Subject != "genealogy.test" || string(first.Data) != `{"name":"a","value":1}` {
		t.Fatalf("unexpected message %s %s", first.Subject, first.Data)
	}
	id := first.Header.Get(nats.MsgIdHdr)
	if len(id) != 36 || id == second.Header.Get(nats.MsgIdHdr) {
		t.Fatalf("expected distinct uuids, got %q and %q", id, second.Header.Get(nats.MsgIdHdr))
	}
}

func TestPublishErrors(t *testing.T) {
	pub := &capturePublisher{err: errors.New("closed")}
	if err := Publish(context.Background(), pub, "s", testMsg{}); err == nil {
		t.Fatal("expected publish error")
	}
	if err := Publish(context.Background(), &capturePublisher{}, "s", func() {}); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestSubscribeDecodesAndDropsMalformed(t *testing.T) {
	sub := &captureSubscriber{}
	var got []testMsg
	if _, err := QueueSubscribe(sub, "genealogy.test", "workers", func(_ context.Context, m testMsg) {
		got = append(got, m)
	}); err != nil {
		t.Fatal(err)
	}
	if sub.subject != "genealogy.test" || sub.queue != "workers" {
		t.Fatalf("unexpected subscription %s/%s", sub.subject, sub.queue)
	}
	sub.handler(&nats.Msg{Data: []byte(`{"name":"x","value":3}`)})
	sub.handler(&nats.Msg{Data: []byte(`not json`)})
	if len(got) != 1 || got[0].Value != 3 {
		t.Fatalf("unexpected deliveries %v", got)
	}

	plain := &captureSubscriber{}
	if _, err := Subscribe(plain, "genealogy.other", func(context.Context, testMsg) {}); err != nil || plain.queue != "" {
		t.Fatalf("plain subscribe: %v queue=%q", err, plain.queue)
	}
}

func TestDecodeKeepsNumbers(t *testing.T) {
	msg := &nats.Msg{Data: []byte(`{"records":[{"id":12345678901234567891}]}`)}
	_, v, err := Decode[map[string][]map[string]any](msg)
	if err != nil {
		t.Fatal(err)
	}
	n, ok := v["records"][0]["id"].(json.Number)
	if !ok || n.String() != "12345678901234567891" {
		t.Fatalf("id = %#v, want json.Number", v["records"][0]["id"])
	}

	if _, _, err := Decode[testMsg](&nats.Msg{Data: []byte(`{"value":`)}); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestRetryCountAndRedeliver(t *testing.T) {
	msg := &nats.Msg{Data: []byte("payload")}
	if RetryCount(msg) != 0 {
		t.Fatal("expected zero without headers")
	}
	msg.Header = nats.Header{}
	msg.Header.Set(HeaderRetryCount, "bogus")
	msg.Header.Set("traceparent", "00-abc-def-01")
	if RetryCount(msg) != 0 {
		t.Fatal("expected zero for malformed header")
	}

	pub := &capturePublisher{}
	if err := Redeliver(pub, "genealogy.retry", msg, 2); err != nil {
		t.Fatal(err)
	}
	out := pub.msgs[0]
	if out.Subject != "genealogy.retry" || string(out.Data) != "payload" {
		t.Fatalf("unexpected redelivery %+v", out)
	}
	if RetryCount(out) != 2 || out.Header.Get("traceparent") != "00-abc-def-01" {
		t.Fatalf("headers not carried: %v", out.Header)
	}
	if msg.Header.Get(HeaderRetryCount) != "bogus" {
		t.Fatal("original message must not change")
	}
}
