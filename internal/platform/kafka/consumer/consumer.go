// Package consumer wraps a franz-go consumer group that commits offsets only
// after the handler has seen each record.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is a consumed record, detached from the client library.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
}

// Handler processes one message. A non-nil error leaves the record
// uncommitted and rewinds its partition so the record is fetched again after
// the retry backoff.
type Handler func(ctx context.Context, msg Message) error

// Config selects the brokers, topic and group.
type Config struct {
	Brokers []string
	Topic   string
	Group   string
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("brokers are required")
	}
	if strings.TrimSpace(c.Topic) == "" {
		return errors.New("topic is required")
	}
	if strings.TrimSpace(c.Group) == "" {
		return errors.New("group is required")
	}
	return nil
}

const defaultRetryBackoff = time.Second

// Consumer delivers records of one topic to a Handler and commits what the
// handler accepted.
type Consumer struct {
	client       *kgo.Client
	topic        string
	logger       *slog.Logger
	retryBackoff time.Duration
}

type Option func(*Consumer)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// WithRetryBackoff sets the pause before a rewound partition is fetched again.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Consumer) {
		c.retryBackoff = d
	}
}

// New connects a group consumer. Offsets start at the beginning of the topic
// for a group that has never committed.
func New(cfg Config, opts ...Option) (*Consumer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	c := &Consumer{client: client, topic: cfg.Topic, retryBackoff: defaultRetryBackoff}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// EnsureTopic creates the topic when missing.
func (c *Consumer) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	adm := kadm.NewClient(c.client)
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, c.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", c.topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Ping checks broker reachability.
func (c *Consumer) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

// Run polls until ctx is cancelled. Records of a fetch are handled in order;
// the ones the handler accepted are committed before the next poll. A failed
// record stops its partition for the rest of the fetch and the partition is
// rewound to it, so it is retried after the backoff.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.WarnContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		handled, rewind := c.process(ctx, fetches.Records(), handle)
		if len(handled) > 0 {
			if err := c.client.CommitRecords(context.WithoutCancel(ctx), handled...); err != nil {
				c.logger.WarnContext(ctx, "kafka commit failed", "error", err)
			}
		}
		if len(rewind) > 0 {
			c.client.SetOffsets(rewind)
			select {
			case <-ctx.Done():
			case <-time.After(c.retryBackoff):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// process hands records to handle in fetch order. It returns the accepted
// records and, per failed partition, the offset of the first failure.
func (c *Consumer) process(ctx context.Context, records []*kgo.Record, handle Handler) ([]*kgo.Record, map[string]map[int32]kgo.EpochOffset) {
	var handled []*kgo.Record
	rewind := make(map[string]map[int32]kgo.EpochOffset)
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		if _, failed := rewind[rec.Topic][rec.Partition]; failed {
			continue
		}
		msg := Message{
			Topic:     rec.Topic,
			Partition: rec.Partition,
			Offset:    rec.Offset,
			Key:       rec.Key,
			Value:     rec.Value,
		}
		if err := handle(ctx, msg); err != nil {
			c.logger.ErrorContext(ctx, "kafka record handler failed",
				"topic", rec.Topic,
				"partition", rec.Partition,
				"offset", rec.Offset,
				"error", err,
			)
			if rewind[rec.Topic] == nil {
				rewind[rec.Topic] = make(map[int32]kgo.EpochOffset)
			}
			rewind[rec.Topic][rec.Partition] = kgo.EpochOffset{Epoch: rec.LeaderEpoch, Offset: rec.Offset}
			continue
		}
		handled = append(handled, rec)
	}
	return handled, rewind
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() {
	c.client.Close()
}
