package amqp

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

const defaultBuffer = 256

// Publisher forwards execution events to a durable RabbitMQ queue. Publish never
// blocks the run: events go through a buffer drained by a single goroutine, and
// are dropped with a warning when the buffer is full.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	events  chan job.Event
	done    chan struct{}
	once    sync.Once
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp declare %s: %w", queue, err)
	}

	p := &Publisher{
		conn:    conn,
		channel: ch,
		queue:   q.Name,
		events:  make(chan job.Event, defaultBuffer),
		done:    make(chan struct{}),
	}
	go p.loop()
	logrus.Infof("[AMQP] Publishing execution events to queue %s", q.Name)
	return p, nil
}

func (p *Publisher) Publish(evt job.Event) {
	select {
	case <-p.done:
		return
	default:
	}

	select {
	case p.events <- evt:
	default:
		logrus.Warnf("[AMQP] Event buffer full, dropping %s for job %s", evt.Type, evt.JobID)
	}
}

func (p *Publisher) loop() {
	for {
		select {
		case <-p.done:
			return
		case evt := <-p.events:
			if err := p.send(evt); err != nil {
				logrus.WithError(err).Warnf("[AMQP] Failed to publish %s for job %s", evt.Type, evt.JobID)
			}
		}
	}
}

func (p *Publisher) send(evt job.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.channel.Publish(
		"",
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         string(evt.Type),
			Timestamp:    evt.Timestamp,
			Body:         body,
		},
	)
}

func (p *Publisher) Close() {
	p.once.Do(func() {
		close(p.done)
		p.channel.Close()
		p.conn.Close()
	})
}
