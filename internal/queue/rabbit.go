package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/crewdeckhq/crewdeck/internal/saga"
	apperrors "github.com/crewdeckhq/crewdeck/pkg/errors"
	"github.com/crewdeckhq/crewdeck/pkg/logger"
)

// Envelope is the JSON message the chat-platform command layer publishes.
// Payload holds the trigger fields for the named kind.
type Envelope struct {
	Kind    saga.TriggerKind `json:"kind"`
	Payload json.RawMessage  `json:"payload"`
}

// DecodeTrigger maps an envelope onto the trigger sum type.
func DecodeTrigger(body []byte) (saga.Trigger, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("queue: malformed envelope: %w", err)
	}

	switch env.Kind {
	case saga.KindApproveOnboarding:
		var t saga.ApproveOnboarding
		return t, json.Unmarshal(env.Payload, &t)
	case saga.KindCreateTeam:
		var t saga.CreateTeam
		return t, json.Unmarshal(env.Payload, &t)
	case saga.KindAddMemberToTeam:
		var t saga.AddMemberToTeam
		return t, json.Unmarshal(env.Payload, &t)
	case saga.KindPromoteToLead:
		var t saga.PromoteToLead
		return t, json.Unmarshal(env.Payload, &t)
	default:
		return nil, fmt.Errorf("queue: unknown trigger kind %q", env.Kind)
	}
}

// Runner is the saga engine surface the consumer needs.
type Runner interface {
	Run(ctx context.Context, trigger saga.Trigger) (*saga.Report, error)
}

// Consumer pulls trigger envelopes off a durable queue and feeds them to the
// saga engine.
type Consumer struct {
	conn   *amqp.Connection
	queue  amqp.Queue
	engine Runner
	log    *zap.Logger
}

// NewConsumer connects to the broker and declares the durable trigger queue.
func NewConsumer(url, queueName string, engine Runner) (*Consumer, error) {
	if engine == nil {
		return nil, fmt.Errorf("queue: engine is required")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	// Declaration channel closed; consuming opens its own.
	ch.Close()

	return &Consumer{
		conn:   conn,
		queue:  q,
		engine: engine,
		log:    logger.WithModule("queue"),
	}, nil
}

// Run consumes until ctx is cancelled or the delivery stream closes.
//
// Ack policy: a message is acked once the saga produced a report or failed a
// precondition (redelivery cannot fix either). Lease contention nacks with
// requeue so the trigger retries after the holder finishes.
func (c *Consumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.Consume(c.queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	trigger, err := DecodeTrigger(d.Body)
	if err != nil {
		c.log.Error("dropping undecodable trigger message", zap.Error(err))
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.log.Warn("failed to nack message", zap.Error(nackErr))
		}
		return
	}

	report, err := c.engine.Run(ctx, trigger)
	switch {
	case errors.Is(err, apperrors.ErrSagaBusy):
		// Another run holds the entity lease; redeliver after it finishes.
		c.log.Info("entity busy, requeueing trigger",
			zap.String("kind", string(trigger.Kind())))
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.log.Warn("failed to requeue message", zap.Error(nackErr))
		}
		return
	case err != nil:
		c.log.Warn("trigger rejected",
			zap.String("kind", string(trigger.Kind())),
			zap.Error(err))
	default:
		c.log.Info("saga completed",
			zap.String("kind", string(trigger.Kind())),
			zap.Bool("fully_automated", report.FullyAutomated()),
			zap.Bool("aborted", report.Aborted))
	}

	if ackErr := d.Ack(false); ackErr != nil {
		c.log.Warn("failed to ack message", zap.Error(ackErr))
	}
}

// Close tears down the broker connection.
func (c *Consumer) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
