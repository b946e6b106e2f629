// Package natsutil provides typed NATS publish/subscribe/request helpers
// with OpenTelemetry trace propagation.
package natsutil

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// HeaderRetryCount records how many times a message has been redelivered by
// its consumer.
const HeaderRetryCount = "X-Retry-Count"

// Publisher is the publishing half of *nats.Conn.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// Subscriber is the subscribing half of *nats.Conn.
type Subscriber interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// NewMsg serializes v as JSON into a message for subject, with the trace
// context from ctx and a fresh message id in the headers.
func NewMsg[T any](ctx context.Context, subject string, v T) (*nats.Msg, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, uuid.NewString())
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return msg, nil
}

// Publish serializes v as JSON and publishes to the given subject.
// Trace context from ctx is injected into NATS message headers.
func Publish[T any](ctx context.Context, nc Publisher, subject string, v T) error {
	msg, err := NewMsg(ctx, subject, v)
	if err != nil {
		return err
	}
	return nc.PublishMsg(msg)
}

// Decode unmarshals a JSON message and returns the trace context carried in
// its headers. Numbers inside untyped fields decode as json.Number.
func Decode[T any](msg *nats.Msg) (context.Context, T, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(msg.Data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return context.Background(), v, err
	}
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
	return ctx, v, nil
}

// Subscribe registers a handler that deserializes JSON messages of type T.
// Trace context is extracted from NATS message headers and passed to the handler.
// Malformed messages are silently dropped.
func Subscribe[T any](nc Subscriber, subject string, handler func(context.Context, T)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, jsonHandler(handler))
}

// QueueSubscribe is Subscribe within a queue group, so each message reaches
// one member of the group.
func QueueSubscribe[T any](nc Subscriber, subject, queue string, handler func(context.Context, T)) (*nats.Subscription, error) {
	return nc.QueueSubscribe(subject, queue, jsonHandler(handler))
}

func jsonHandler[T any](handler func(context.Context, T)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		ctx, v, err := Decode[T](msg)
		if err != nil {
			return // drop malformed messages
		}
		handler(ctx, v)
	}
}

// RetryCount reads HeaderRetryCount, 0 when absent or malformed.
func RetryCount(msg *nats.Msg) int {
	if msg.Header == nil {
		return 0
	}
	n, err := strconv.Atoi(msg.Header.Get(HeaderRetryCount))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Redeliver republishes msg's payload and headers on subject with the retry
// count set to retries.
func Redeliver(nc Publisher, subject string, msg *nats.Msg, retries int) error {
	out := nats.NewMsg(subject)
	out.Data = msg.Data
	for k, v := range msg.Header {
		out.Header[k] = append([]string(nil), v...)
	}
	out.Header.Set(HeaderRetryCount, strconv.Itoa(retries))
	return nc.PublishMsg(out)
}
