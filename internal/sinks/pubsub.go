package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
	"github.com/pratik-mahalle/secwatch/internal/pkg/errors"
)

// Publisher sends a payload to a topic and waits for the broker to accept it
type Publisher interface {
	Send(ctx context.Context, data []byte, topic string) error
}

// PubSubPublisher publishes to Google Cloud Pub/Sub
type PubSubPublisher struct {
	client *pubsub.Client

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPubSubPublisher connects to Pub/Sub in projectID
func NewPubSubPublisher(ctx context.Context, projectID string, opts ...option.ClientOption) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pub/Sub client: %w", err)
	}
	return &PubSubPublisher{
		client: client,
		topics: make(map[string]*pubsub.Topic),
	}, nil
}

func (p *PubSubPublisher) topic(id string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.topics[id]
	if !ok {
		t = p.client.Topic(id)
		p.topics[id] = t
	}
	return t
}

// Send implements Publisher
func (p *PubSubPublisher) Send(ctx context.Context, data []byte, topic string) error {
	res := p.topic(topic).Publish(ctx, &pubsub.Message{Data: data})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close flushes pending messages and releases the client
func (p *PubSubPublisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.mu.Unlock()
	return p.client.Close()
}

// PublishSink sends the flattened alert as JSON to a topic
type PublishSink struct {
	pub   Publisher
	topic string
}

// NewPublishSink creates a publish sink
func NewPublishSink(pub Publisher, topic string) *PublishSink {
	return &PublishSink{pub: pub, topic: topic}
}

// Name implements Sink
func (s *PublishSink) Name() alert.Sink { return alert.SinkPublish }

// Deliver implements Sink
func (s *PublishSink) Deliver(ctx context.Context, rec *alert.Record) error {
	data, err := json.Marshal(rec.Flatten())
	if err != nil {
		return errors.SinkFailure(string(alert.SinkPublish), err)
	}
	if err := s.pub.Send(ctx, data, s.topic); err != nil {
		return errors.SinkFailure(string(alert.SinkPublish), err)
	}
	return nil
}
