package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Billy-Davies-2/flashdraft/internal/logger"
)

// DefaultStreamName is the JetStream stream holding draft events
const DefaultStreamName = "DRAFT_EVENTS"

// jetStream publishes events on <prefix>.<draftId> and relays everything
// under <prefix>.> to local subscribers
type jetStream struct {
	fanout
	nc     *nats.Conn
	js     nats.JetStreamContext
	prefix string
	sub    *nats.Subscription
}

func newJetStream(nc *nats.Conn, prefix, stream string, storage nats.StorageType, maxAge time.Duration) (*jetStream, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	if stream == "" {
		stream = DefaultStreamName
	}
	if _, err := js.StreamInfo(stream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     stream,
			Subjects: []string{prefix + ".>"},
			Storage:  storage,
			MaxAge:   maxAge,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stream %s: %w", stream, err)
		}
		logger.Info("JetStream stream created", "stream", stream, "subjects", prefix+".>")
	}

	j := &jetStream{fanout: fanout{buffer: 100}, nc: nc, js: js, prefix: prefix}
	j.sub, err = js.Subscribe(prefix+".>", j.relay, nats.ManualAck(), nats.DeliverNew())
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s.>: %w", prefix, err)
	}
	return j, nil
}

func (j *jetStream) relay(msg *nats.Msg) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logger.Error("Failed to unmarshal event from JetStream", "error", err, "subject", msg.Subject)
		msg.Nak()
		return
	}
	j.deliver(event)
	msg.Ack()
}

// Subject returns the subject an event is published on
func Subject(prefix string, event Event) string {
	token := event.DraftID
	if token == "" {
		token = "global"
	}
	return prefix + "." + sanitizeToken(token)
}

// sanitizeToken maps characters NATS reserves in subject tokens to '_'
func sanitizeToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

func (j *jetStream) Publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return
	}
	subject := Subject(j.prefix, event)
	if _, err := j.js.Publish(subject, data); err != nil {
		logger.Error("Failed to publish to NATS", "error", err, "subject", subject, "event_type", event.Type)
		return
	}
	logger.Debug("Published event to NATS", "event_type", event.Type, "subject", subject)
}

func (j *jetStream) Subscribe() chan Event {
	return j.subscribe("")
}

func (j *jetStream) Unsubscribe(ch chan Event) {
	j.unsubscribe(ch)
}

// SubscribeJetStream creates a durable consumer. Instances sharing a
// consumer name split the events between them.
func (j *jetStream) SubscribeJetStream(consumerName string, handler func(Event)) error {
	_, err := j.js.QueueSubscribe(j.prefix+".>", consumerName, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logger.Error("Failed to unmarshal event", "error", err, "consumer", consumerName)
			msg.Nak()
			return
		}
		handler(event)
		msg.Ack()
	}, nats.Durable(consumerName), nats.ManualAck())
	return err
}

func (j *jetStream) close() {
	if j.sub != nil {
		j.sub.Unsubscribe()
	}
	j.closeAll()
	if j.nc != nil {
		j.nc.Close()
	}
}

// Ping round-trips to the NATS server. ctx must carry a deadline.
func (j *jetStream) Ping(ctx context.Context) error {
	if !j.nc.IsConnected() {
		return nats.ErrConnectionClosed
	}
	return j.nc.FlushWithContext(ctx)
}

// NATSPubSub implements pub/sub using an external NATS JetStream server
type NATSPubSub struct {
	*jetStream
}

// NewNATSPubSub connects to natsURL and publishes under subject
func NewNATSPubSub(natsURL, subject string) (*NATSPubSub, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("flashdraft"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// events are kept for replay to late subscribers
	j, err := newJetStream(nc, subject, DefaultStreamName, nats.FileStorage, 0)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return &NATSPubSub{jetStream: j}, nil
}

// Close closes local subscriptions and the NATS connection
func (p *NATSPubSub) Close() {
	p.close()
}
