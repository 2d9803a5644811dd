package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	acontext "github.com/slyt3/Acontext"
)

const retryCountHeader = "x-retry-count"

// Handler processes one validated payload. Returning an internal error
// requests a delayed retry; any other error (or nil) acknowledges the
// message.
type Handler[T Payload] func(ctx context.Context, body T, msg amqp.Delivery) error

// Consume declares the consumer's broker topology and starts a goroutine
// dispatching deliveries to the handler. The topology per consumer:
//
//	<exchange> --<routing key>--> <queue>            main flow
//	<queue>.retry --(per-message TTL)--> <exchange>  delayed redelivery
//	<queue> --(nack)--> <exchange>.dlx --> <queue>.park
func Consume[T Payload](c *Client, cfg ConsumerConfig, handler Handler[T]) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("bus: open consumer channel: %w", err)
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("bus: set qos: %w", err)
	}
	if err := declareTopology(ch, cfg, c.messageTTL, c.parkTTL); err != nil {
		return err
	}

	deliveries, err := ch.Consume(cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("bus: start consumer: %w", err)
	}

	go func() {
		for d := range deliveries {
			dispatch(c, ch, cfg, handler, d)
		}
		c.logger.Info("consumer channel closed", "queue", cfg.Queue)
	}()
	c.logger.Info("consumer started",
		"exchange", cfg.Exchange, "routing_key", cfg.RoutingKey, "queue", cfg.Queue)
	return nil
}

func declareTopology(ch *amqp.Channel, cfg ConsumerConfig, messageTTL, parkTTL time.Duration) error {
	dlx := cfg.Exchange + ".dlx"

	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("bus: declare exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(dlx, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("bus: declare dlx: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, amqp.Table{
		"x-message-ttl":             messageTTL.Milliseconds(),
		"x-dead-letter-exchange":    dlx,
		"x-dead-letter-routing-key": cfg.RoutingKey,
	}); err != nil {
		return fmt.Errorf("bus: declare queue: %w", err)
	}
	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bus: bind queue: %w", err)
	}

	// The retry queue has no consumer; per-message expiration dead-letters
	// each message back to the main exchange after its delay.
	if _, err := ch.QueueDeclare(retryQueue(cfg), true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    cfg.Exchange,
		"x-dead-letter-routing-key": cfg.RoutingKey,
	}); err != nil {
		return fmt.Errorf("bus: declare retry queue: %w", err)
	}

	if _, err := ch.QueueDeclare(parkQueue(cfg), true, false, false, false, amqp.Table{
		"x-message-ttl": parkTTL.Milliseconds(),
	}); err != nil {
		return fmt.Errorf("bus: declare park queue: %w", err)
	}
	if err := ch.QueueBind(parkQueue(cfg), cfg.RoutingKey, dlx, false, nil); err != nil {
		return fmt.Errorf("bus: bind park queue: %w", err)
	}
	return nil
}

func retryQueue(cfg ConsumerConfig) string { return cfg.Queue + ".retry" }
func parkQueue(cfg ConsumerConfig) string  { return cfg.Queue + ".park" }

// action decides the fate of one delivery.
type action int

const (
	actAck action = iota
	actRetry
	actPark
)

// decide maps a handler outcome to a delivery action. Non-internal errors
// are acknowledged: the payload was understood and retrying cannot change
// the result.
func decide(err error, retries, maxRetries int) action {
	if err == nil {
		return actAck
	}
	if acontext.KindOf(err) != acontext.KindInternal {
		return actAck
	}
	if retries >= maxRetries {
		return actPark
	}
	return actRetry
}

// retryDelay is retryDelayUnit × 2^n for the n-th retry.
func retryDelay(unit time.Duration, n int) time.Duration {
	return unit * (1 << n)
}

// retryCount reads the retry counter header, tolerating the integer types
// the AMQP client may hand back.
func retryCount(headers amqp.Table) int {
	switch v := headers[retryCountHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// dispatch unmarshals, validates and runs the handler for one delivery,
// then acks, retries or parks it.
func dispatch[T Payload](c *Client, ch *amqp.Channel, cfg ConsumerConfig, handler Handler[T], d amqp.Delivery) {
	var body T
	if err := json.Unmarshal(d.Body, &body); err != nil {
		c.logger.Error("malformed payload", "queue", cfg.Queue, "error", err)
		d.Ack(false) //nolint:errcheck
		return
	}
	if err := body.Validate(); err != nil {
		c.logger.Error("invalid payload", "queue", cfg.Queue, "error", err)
		d.Ack(false) //nolint:errcheck
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.handlerTimeout)
	err := handler(ctx, body, d)
	cancel()
	if ctx.Err() != nil && err == nil {
		err = acontext.Internal("bus: handler timed out", ctx.Err())
	}

	retries := retryCount(d.Headers)
	switch decide(err, retries, c.maxRetries) {
	case actAck:
		if err != nil {
			c.logger.Warn("handler rejected message", "queue", cfg.Queue, "error", err)
		}
		d.Ack(false) //nolint:errcheck
	case actRetry:
		delay := retryDelay(c.retryDelayUnit, retries)
		c.logger.Warn("handler failed, scheduling retry",
			"queue", cfg.Queue, "retry", retries+1, "delay", delay, "error", err)
		if perr := c.republishForRetry(ch, cfg, d, retries+1, delay); perr != nil {
			c.logger.Error("retry publish failed, requeueing", "queue", cfg.Queue, "error", perr)
			d.Nack(false, true) //nolint:errcheck
			return
		}
		d.Ack(false) //nolint:errcheck
	case actPark:
		c.logger.Error("handler failed, retries exhausted",
			"queue", cfg.Queue, "retries", retries, "error", err)
		d.Nack(false, false) //nolint:errcheck
	}
}

// republishForRetry places the message on the retry queue with the bumped
// counter and the delay as its expiration.
func (c *Client) republishForRetry(ch *amqp.Channel, cfg ConsumerConfig, d amqp.Delivery, retries int, delay time.Duration) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[retryCountHeader] = int32(retries)
	return ch.PublishWithContext(context.Background(), "", retryQueue(cfg), false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
		Body:         d.Body,
	})
}
