package sinks

import (
	"context"

	"github.com/oarkflow/json"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/oarkflow/pipeline/pkg/contracts"
)

// AMQPSink publishes error reports to a durable queue so an external
// consumer can persist or alert on them.
type AMQPSink struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queueName string
}

func NewAMQPSink(uri, queueName string) (*AMQPSink, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if queueName == "" {
		queueName = "pipeline-errors"
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPSink{conn: conn, channel: ch, queueName: queueName}, nil
}

func (s *AMQPSink) Publish(ctx context.Context, report *contracts.ErrorReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return s.channel.PublishWithContext(ctx,
		"", // default exchange
		s.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        data,
		},
	)
}

func (s *AMQPSink) Close() error {
	if err := s.channel.Close(); err != nil {
		return err
	}
	return s.conn.Close()
}

var _ contracts.ErrorSink = (*AMQPSink)(nil)
