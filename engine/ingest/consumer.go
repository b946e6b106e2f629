package ingest

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/heritagehub/heritage/engine/domain"
	"github.com/heritagehub/heritage/pkg/fn"
	"github.com/heritagehub/heritage/pkg/metrics"
	"github.com/heritagehub/heritage/pkg/natsutil"
)

// DefaultMaxRetries is the number of failed attempts before a request is sent
// to the DLQ.
const DefaultMaxRetries = 3

// Consumer runs upsert requests from NATS through the pipeline, redelivering
// failed requests with an incremented X-Retry-Count and parking them on the
// DLQ once MaxRetries is reached.
type Consumer struct {
	pub        natsutil.Publisher
	pipeline   fn.Stage[domain.UpsertRequest, domain.MembersChanged]
	maxRetries int
	metrics    *metrics.Registry
	log        *slog.Logger
}

// NewConsumer creates a Consumer publishing retries and DLQ entries on pub.
func NewConsumer(pub natsutil.Publisher, deps Deps, maxRetries int) *Consumer {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Consumer{
		pub:        pub,
		pipeline:   NewPipeline(deps),
		maxRetries: maxRetries,
		metrics:    deps.Metrics,
		log:        deps.logger(),
	}
}

// Start subscribes the consumer within queue group queue.
func (c *Consumer) Start(sub natsutil.Subscriber, queue string) (*nats.Subscription, error) {
	return sub.QueueSubscribe(domain.SubjectMembersUpsert, queue, c.HandleMsg)
}

// StartConsumer wires a pipeline to nc and starts consuming.
func StartConsumer(nc Conn, deps Deps, queue string, maxRetries int) (*nats.Subscription, error) {
	if deps.Publisher == nil {
		deps.Publisher = nc
	}
	return NewConsumer(nc, deps, maxRetries).Start(nc, queue)
}

// HandleMsg processes one upsert message.
func (c *Consumer) HandleMsg(msg *nats.Msg) {
	ctx, req, err := natsutil.Decode[domain.UpsertRequest](msg)
	if err != nil {
		c.log.Error("ingest: unmarshal failed", "err", err)
		c.count("malformed", 1)
		return
	}
	c.Process(ctx, req, msg)

	// Ack if JetStream.
	if msg.Reply != "" {
		_ = msg.Ack()
	}
}

// Process runs req through the pipeline. msg is the delivery it came from,
// used for retry bookkeeping; it may be nil for direct calls.
func (c *Consumer) Process(ctx context.Context, req domain.UpsertRequest, msg *nats.Msg) fn.Result[domain.MembersChanged] {
	result := c.pipeline(ctx, req)
	if result.IsOk() {
		ev, _ := result.Unwrap()
		c.log.Info("ingest: success", "request_id", req.RequestID, "members", len(ev.IDs), "event_id", ev.EventID)
		c.count("stored", len(ev.IDs))
		return result
	}

	_, pipeErr := result.Unwrap()
	retries := 1
	if msg != nil {
		retries = natsutil.RetryCount(msg) + 1
	}
	log := c.log.With("request_id", req.RequestID, "records", len(req.Records), "retry", retries, "err", pipeErr)

	switch {
	case fn.IsPermanent(pipeErr):
		log.Warn("ingest: request rejected")
		c.count("rejected", len(req.Records))
		c.deadLetter(ctx, req, pipeErr, retries)
	case msg == nil:
		log.Error("ingest: pipeline failed")
		c.count("failed", len(req.Records))
	case retries >= c.maxRetries:
		log.Error("ingest: retries exhausted")
		c.count("failed", len(req.Records))
		c.deadLetter(ctx, req, pipeErr, retries)
	default:
		log.Warn("ingest: pipeline failed, redelivering")
		if err := natsutil.Redeliver(c.pub, domain.SubjectMembersUpsert, msg, retries); err != nil {
			c.log.Error("ingest: retry publish failed", "err", err)
		}
	}
	return result
}

func (c *Consumer) deadLetter(ctx context.Context, req domain.UpsertRequest, cause error, retries int) {
	dlq := dlqMessage{Request: req, Error: cause.Error(), Retries: retries}
	if err := natsutil.Publish(ctx, c.pub, domain.SubjectMembersUpsertDLQ, dlq); err != nil {
		c.log.Error("ingest: DLQ publish failed", "err", err)
		return
	}
	if c.metrics != nil {
		c.metrics.IngestDLQ.Inc()
	}
}

func (c *Consumer) count(result string, n int) {
	if c.metrics != nil && n > 0 {
		c.metrics.IngestRecords.WithLabelValues(result).Add(float64(n))
	}
}
