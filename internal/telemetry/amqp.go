package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/convoflow/turn-engine/internal/adaptive"
)

// feedbackEnvelope is the published message shape
type feedbackEnvelope struct {
	SessionID string                  `json:"session_id"`
	UserID    string                  `json:"user_id"`
	Signal    adaptive.FeedbackSignal `json:"signal"`
}

// Publisher mirrors feedback signals to an AMQP queue for offline analysis
// and threshold tuning. Strictly best-effort: publishing never blocks the
// evaluation loop, and a down broker never fails a session.
type Publisher struct {
	url       string
	queueName string

	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex

	pending chan feedbackEnvelope
	logger  zerolog.Logger
}

// NewPublisher creates a feedback publisher. Connection happens lazily in
// Run so a down broker does not delay startup.
func NewPublisher(url, queueName string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		url:       url,
		queueName: queueName,
		pending:   make(chan feedbackEnvelope, 256),
		logger:    logger.With().Str("component", "telemetry").Logger(),
	}
}

// Publish queues one signal for delivery, dropping it when the buffer is
// full rather than blocking the caller
func (p *Publisher) Publish(sessionID, userID string, signal adaptive.FeedbackSignal) {
	select {
	case p.pending <- feedbackEnvelope{SessionID: sessionID, UserID: userID, Signal: signal}:
	default:
		p.logger.Debug().Msg("Telemetry buffer full, dropping feedback signal")
	}
}

// Run drains the buffer until ctx is cancelled, reconnecting as needed
func (p *Publisher) Run(ctx context.Context) {
	defer p.closeConnection()

	for {
		select {
		case <-ctx.Done():
			return
		case envelope := <-p.pending:
			if err := p.publish(envelope); err != nil {
				p.logger.Warn().Err(err).Msg("Failed to publish feedback signal")
				p.closeConnection()
				// Back off briefly so a dead broker does not spin the loop
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
		}
	}
}

// publish sends one envelope, connecting first if needed
func (p *Publisher) publish(envelope feedbackEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		if err := p.connectLocked(); err != nil {
			return err
		}
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode feedback signal: %w", err)
	}

	return p.channel.Publish(
		"",          // exchange
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
}

// connectLocked dials the broker and declares the queue. Caller holds mu.
func (p *Publisher) connectLocked() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		p.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare AMQP queue: %w", err)
	}

	p.conn = conn
	p.channel = channel
	p.logger.Info().Str("queue", p.queueName).Msg("Connected to AMQP broker")
	return nil
}

func (p *Publisher) closeConnection() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}
