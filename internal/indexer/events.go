//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package indexer builds retrieval indexes for uploaded files in the
// background. Upload events travel over a watermill pub/sub topic, and an
// optional watcher turns changes made directly in the upload directory
// into the same events.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// TopicUploaded carries one Event per stored or changed file.
const TopicUploaded = "documents.uploaded"

// Event asks for path to be indexed for each embedder.
type Event struct {
	Path      string   `json:"path"`
	Embedders []string `json:"embedders"`
}

// Indexer is the part of the retrieval service the indexer drives.
type Indexer interface {
	Index(ctx context.Context, embedder, path string) error
	Invalidate(ctx context.Context, path string) error
}

// NewPubSub returns an in-process pub/sub whose log output goes to
// logger.
func NewPubSub(logger *slog.Logger) *gochannel.GoChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NewSlogLogger(logger.With("component", "watermill")),
	)
}

// Publisher announces files to index.
type Publisher struct {
	pub       message.Publisher
	embedders []string
}

// NewPublisher creates a publisher that requests indexing for the given
// embedders.
func NewPublisher(pub message.Publisher, embedders []string) *Publisher {
	return &Publisher{pub: pub, embedders: embedders}
}

// Publish schedules path for indexing. It does nothing on a nil
// publisher or when no embedders are configured.
func (p *Publisher) Publish(ctx context.Context, path string) error {
	if p == nil || len(p.embedders) == 0 {
		return nil
	}
	payload, err := json.Marshal(Event{Path: path, Embedders: p.embedders})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := p.pub.Publish(TopicUploaded, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", TopicUploaded, err)
	}
	return nil
}

// Consumer indexes files announced on TopicUploaded.
type Consumer struct {
	sub     message.Subscriber
	indexer Indexer
	logger  *slog.Logger
	done    chan struct{}
}

// NewConsumer creates a consumer.
func NewConsumer(sub message.Subscriber, indexer Indexer, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		sub:     sub,
		indexer: indexer,
		logger:  logger.With("component", "indexer"),
		done:    make(chan struct{}),
	}
}

// Start subscribes and processes messages in the background until ctx is
// cancelled or the subscriber closes.
func (c *Consumer) Start(ctx context.Context) error {
	messages, err := c.sub.Subscribe(ctx, TopicUploaded)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", TopicUploaded, err)
	}

	go func() {
		defer close(c.done)
		for msg := range messages {
			c.process(ctx, msg)
		}
	}()
	return nil
}

// Done is closed once the consumer has stopped.
func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

// process always acks: a file that fails here is indexed again lazily
// when a question selects it.
func (c *Consumer) process(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var event Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		c.logger.Error("invalid index event", "message_uuid", msg.UUID, "error", err)
		return
	}

	for _, embedder := range event.Embedders {
		if err := c.index(ctx, embedder, event.Path); err != nil {
			c.logger.Warn("indexing failed",
				"path", event.Path, "embedder", embedder, "error", err)
		}
	}
}

// index runs one Index call. A panic while parsing a file must not stop
// the consumer, so it is reported as an error.
func (c *Consumer) index(ctx context.Context, embedder, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic while indexing", "path", path, "embedder", embedder,
				"error", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("indexing %s panicked: %v", path, r)
		}
	}()
	return c.indexer.Index(ctx, embedder, path)
}
