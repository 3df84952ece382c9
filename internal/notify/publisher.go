// Package notify publishes job completion events to RabbitMQ so other
// services can react when a CSV job finishes.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/csvjob/internal/core"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// publishTimeout bounds a single publish.
const publishTimeout = 5 * time.Second

// JobCompletionEvent is the message body published for every finished job.
type JobCompletionEvent struct {
	EventID          string        `json:"eventId"`
	JobID            string        `json:"jobId"`
	State            core.JobState `json:"state"`
	Summary          string        `json:"summary,omitempty"`
	DepartmentCount  int64         `json:"departmentCount,omitempty"`
	ProcessingTimeMs int64         `json:"processingTimeMs,omitempty"`
	FileName         string        `json:"fileName,omitempty"`
	RowCount         int           `json:"rowCount"`
	ErrorCode        string        `json:"errorCode,omitempty"`
	ErrorMessage     string        `json:"errorMessage,omitempty"`
	OccurredAt       time.Time     `json:"occurredAt"`
}

// BuildEvent converts a controller update into an event. It reports false
// for updates that do not end a job.
func BuildEvent(u core.Update) (JobCompletionEvent, bool) {
	if !u.State.Terminal() {
		return JobCompletionEvent{}, false
	}

	ev := JobCompletionEvent{
		EventID:    uuid.NewString(),
		JobID:      u.Job.ID,
		State:      u.State,
		OccurredAt: u.At,
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	if u.Job.Result != nil {
		ev.Summary = u.Job.Result.Summary()
		ev.DepartmentCount = u.Job.Result.DepartmentCount
		ev.ProcessingTimeMs = u.Job.Result.ProcessingTimeMs
	}
	if u.Job.DownloadURL != "" {
		ev.FileName = u.Job.FileName()
	}
	if u.Table != nil {
		ev.RowCount = u.Table.RowCount()
	}
	if u.Err != nil {
		msg := core.MapError(u.Err)
		ev.ErrorCode = msg.Code
		ev.ErrorMessage = msg.Message
	}
	return ev, true
}

// Channel is the subset of *amqp.Channel the Publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher sends JobCompletionEvents to an exchange.
type Publisher struct {
	ch         Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
	closeFn    func() error
}

// NewPublisher wraps an open channel.
func NewPublisher(ch Channel, exchange, routingKey string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		ch:         ch,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger.With("component", "notify"),
		closeFn:    func() error { return nil },
	}
}

// Dial connects to RabbitMQ and declares a durable topic exchange.
func Dial(url, exchange, routingKey string, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-delete
		false,    // internal
		false,    // no-wait
		nil,      // args
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp declare exchange %q: %w", exchange, err)
	}

	p := NewPublisher(ch, exchange, routingKey, logger)
	p.closeFn = func() error {
		ch.Close()
		return conn.Close()
	}
	return p, nil
}

// Close closes the underlying channel and connection.
func (p *Publisher) Close() error {
	return p.closeFn()
}

// Publish sends one persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, ev JobCompletionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		p.exchange,   // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.EventID,
			Timestamp:    ev.OccurredAt,
			Type:         "job." + string(ev.State),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish event for job %s: %w", ev.JobID, err)
	}
	return nil
}

// Run publishes an event for every job that completes or fails until ctx is
// cancelled or updates is closed. Publish failures are logged and skipped.
func (p *Publisher) Run(ctx context.Context, updates <-chan core.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			ev, ok := BuildEvent(u)
			if !ok {
				continue
			}

			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			err := p.Publish(pubCtx, ev)
			cancel()
			if err != nil {
				p.logger.Error("job event not published", "job_id", ev.JobID, "error", err)
				continue
			}
			p.logger.Info("job event published", "job_id", ev.JobID, "state", ev.State, "event_id", ev.EventID)
		}
	}
}
