package mqtt

import (
	"fmt"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// outboxCapacity covers several days of transitions at the default schedule.
const outboxCapacity = 256

// RealPublisher publishes to an actual MQTT broker.
// Messages published while disconnected are held in an outbox and replayed
// when the client reconnects.
type RealPublisher struct {
	client   paho.Client
	topic    string
	outbox   *outbox
	connects atomic.Int32
}

// NewRealPublisher creates a publisher for the given broker. An unreachable
// broker is not fatal: paho keeps retrying in the background.
func NewRealPublisher(broker, clientID string) (*RealPublisher, error) {
	p := &RealPublisher{
		topic:  Topic,
		outbox: newOutbox(outboxCapacity),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warnf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Warnf("mqtt: broker %s not reachable yet, buffering until connected", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// onConnect replays the outbox. Reconnections are announced on the system
// topic. Runs on a paho goroutine, so it never waits on tokens.
func (p *RealPublisher) onConnect(c paho.Client) {
	n := p.connects.Add(1)

	msgs, dropped := p.outbox.drain()
	if len(msgs) > 0 || dropped > 0 {
		log.Infof("mqtt: replaying %d buffered messages (%d dropped)", len(msgs), dropped)
	}
	for _, m := range msgs {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}

	if n > 1 {
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		if err == nil {
			c.Publish(TopicSystem, 1, false, payload)
		}
	}
}

// Publish sends a transition event to the MQTT broker.
func (p *RealPublisher) Publish(event ActionEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	if err := p.send(p.topic, 0, false, payload); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	if err := p.send(TopicSystem, 1, event.Retained, payload); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.outbox.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("timeout")
	}
	return token.Error()
}

// IsConnected reports whether the broker connection is currently open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if n := p.outbox.len(); n > 0 {
		log.Warnf("mqtt: closing with %d unsent messages", n)
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
