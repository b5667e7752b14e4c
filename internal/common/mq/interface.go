package mq

import (
	"context"
	"time"
)

// Producer publishes messages to a topic.
type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error
}

// Consumer delivers messages from subscribed topics to handlers.
type Consumer interface {
	// Subscribe registers handler for topic. Consumption begins on Start.
	Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error

	Start() error

	// Stop gracefully stops consuming and waits for in-flight handlers.
	Stop() error
}

// MessageQueue is a connection that can both produce and consume.
type MessageQueue interface {
	Producer
	Consumer

	Ping(ctx context.Context) error
	Close() error
}

// Message represents a message in the queue
type Message struct {
	// ID is the unique identifier for the message; used as the partition key
	ID string `json:"id"`

	Body []byte `json:"body"`

	Headers map[string]string `json:"headers"`

	Timestamp time.Time `json:"timestamp"`
}

// HandlerFunc processes one message. A nil return commits the message.
type HandlerFunc func(ctx context.Context, message *Message) error

// SubscribeOptions defines options for subscribing to a topic
type SubscribeOptions struct {
	// ConsumerGroup is the Kafka consumer group name
	ConsumerGroup string

	// Concurrency sets the number of concurrent handler goroutines. Default: 1
	Concurrency int

	// PrefetchCount is the number of fetched messages buffered per worker. Default: 1
	PrefetchCount int
}

// SetDefaults sets default values for subscribe options
func (o *SubscribeOptions) SetDefaults() {
	if o.PrefetchCount <= 0 {
		o.PrefetchCount = 1
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
}

// NewMessage creates a new message with the given body
func NewMessage(body []byte) *Message {
	return &Message{
		Body:      body,
		Headers:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// SetHeader sets a header value
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}

// GetHeader retrieves a header value
func (m *Message) GetHeader(key string) (string, bool) {
	if m.Headers == nil {
		return "", false
	}
	val, ok := m.Headers[key]
	return val, ok
}
