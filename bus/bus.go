// Package bus wraps the AMQP broker behind typed publish and consume
// helpers. Payloads are validated schemas; consumers get bounded retries
// with exponential delay and a parked dead-letter queue.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	acontext "github.com/slyt3/Acontext"
)

var nopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const (
	DefaultPrefetch       = 100
	DefaultHandlerTimeout = 60 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryDelayUnit = 1 * time.Second
	DefaultMessageTTL     = 7 * 24 * time.Hour
	DefaultParkTTL        = 7 * 24 * time.Hour
)

// Client owns one broker connection. Publishing shares a channel; each
// consumer gets its own.
type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	prefetch       int
	handlerTimeout time.Duration
	maxRetries     int
	retryDelayUnit time.Duration
	messageTTL     time.Duration
	parkTTL        time.Duration
	logger         *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithPrefetch sets the per-channel QoS prefetch count.
func WithPrefetch(n int) Option {
	return func(c *Client) { c.prefetch = n }
}

// WithHandlerTimeout bounds one handler invocation.
func WithHandlerTimeout(d time.Duration) Option {
	return func(c *Client) { c.handlerTimeout = d }
}

// WithMaxRetries bounds redeliveries before a message is parked.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithRetryDelayUnit sets the base of the exponential retry delay.
func WithRetryDelayUnit(d time.Duration) Option {
	return func(c *Client) { c.retryDelayUnit = d }
}

// WithMessageTTL sets the queue-level TTL for undelivered messages.
func WithMessageTTL(d time.Duration) Option {
	return func(c *Client) { c.messageTTL = d }
}

// WithParkTTL sets how long exhausted messages stay in the park queue.
func WithParkTTL(d time.Duration) Option {
	return func(c *Client) { c.parkTTL = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Dial connects to the broker and opens the publish channel.
func Dial(url string, opts ...Option) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("bus: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("bus: open channel: %w", err)
	}
	c := &Client{
		conn:           conn,
		ch:             ch,
		prefetch:       DefaultPrefetch,
		handlerTimeout: DefaultHandlerTimeout,
		maxRetries:     DefaultMaxRetries,
		retryDelayUnit: DefaultRetryDelayUnit,
		messageTTL:     DefaultMessageTTL,
		parkTTL:        DefaultParkTTL,
		logger:         nopLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close tears down the connection and all its channels.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Publish validates the payload and sends it as persistent JSON.
func (c *Client) Publish(ctx context.Context, exchange, routingKey string, body Payload) error {
	if err := body.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return acontext.Internal("bus: marshal payload", err)
	}
	err = c.ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         raw,
	})
	if err != nil {
		return acontext.Internal("bus: publish", err)
	}
	c.logger.Debug("published", "exchange", exchange, "routing_key", routingKey)
	return nil
}

// PublishInsertNewMessage emits the new-message event.
func (c *Client) PublishInsertNewMessage(ctx context.Context, projectID, sessionID, messageID string) error {
	return c.Publish(ctx, SessionMessageInsert.Exchange, SessionMessageInsert.RoutingKey,
		InsertNewMessage{ProjectID: projectID, SessionID: sessionID, MessageID: messageID})
}

// PublishNewTaskComplete emits the task-complete event.
func (c *Client) PublishNewTaskComplete(ctx context.Context, projectID, sessionID, taskID string) error {
	return c.Publish(ctx, SpaceTaskComplete.Exchange, SpaceTaskComplete.RoutingKey,
		NewTaskComplete{ProjectID: projectID, SessionID: sessionID, TaskID: taskID})
}

// PublishSOPComplete emits the SOP-complete event. Satisfies
// agent.SOPPublisher.
func (c *Client) PublishSOPComplete(ctx context.Context, projectID, spaceID, taskID string, sop acontext.SOPData) error {
	return c.Publish(ctx, SpaceSOPComplete.Exchange, SpaceSOPComplete.RoutingKey,
		SOPComplete{ProjectID: projectID, SpaceID: spaceID, TaskID: taskID, SOPData: sop})
}
