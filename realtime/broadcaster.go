package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/cppla/geopost/utils"
)

// Broadcaster publishes an event to every connected client of the deployment.
type Broadcaster interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// LocalBroadcaster delivers straight to this process's hub. Suitable for a single instance.
type LocalBroadcaster struct {
	hub *Hub
}

func NewLocalBroadcaster(hub *Hub) *LocalBroadcaster {
	return &LocalBroadcaster{hub: hub}
}

func (b *LocalBroadcaster) Publish(_ context.Context, evt Event) error {
	b.hub.Deliver(evt)
	return nil
}

func (b *LocalBroadcaster) Close() error { return nil }

// RedisBroadcaster relays events through a Redis pub/sub channel. Every instance subscribes
// and delivers what it receives to its own hub, including its own publications.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	pubsub  *redis.PubSub
	done    chan struct{}
}

// NewRedisBroadcaster subscribes to channel and starts relaying into hub. The client stays
// owned by the caller.
func NewRedisBroadcaster(ctx context.Context, client *redis.Client, channel string, hub *Hub) (*RedisBroadcaster, error) {
	ps := client.Subscribe(ctx, channel)
	// Wait for the subscription confirmation so no publication is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	b := &RedisBroadcaster{client: client, channel: channel, pubsub: ps, done: make(chan struct{})}
	go b.relay(ps.Channel(), hub)
	return b, nil
}

func (b *RedisBroadcaster) relay(ch <-chan *redis.Message, hub *Hub) {
	defer close(b.done)
	for msg := range ch {
		deliverRelayed(hub, []byte(msg.Payload), "redis")
	}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (b *RedisBroadcaster) Close() error {
	err := b.pubsub.Close()
	<-b.done
	return err
}

// NATSBroadcaster relays events through a NATS subject.
type NATSBroadcaster struct {
	conn    *nats.Conn
	subject string
	sub     *nats.Subscription
}

func NewNATSBroadcaster(conn *nats.Conn, subject string, hub *Hub) (*NATSBroadcaster, error) {
	sub, err := conn.Subscribe(subject, func(m *nats.Msg) {
		deliverRelayed(hub, m.Data, "nats")
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return &NATSBroadcaster{conn: conn, subject: subject, sub: sub}, nil
}

func (b *NATSBroadcaster) Publish(_ context.Context, evt Event) error {
	if b.conn == nil || !b.conn.IsConnected() {
		return nats.ErrConnectionClosed
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.conn.Publish(b.subject, payload); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (b *NATSBroadcaster) Close() error {
	return b.sub.Unsubscribe()
}

func deliverRelayed(hub *Hub, raw []byte, source string) {
	in, err := decodeEvent(raw)
	if err != nil {
		utils.Sugar.Warnw("discarding relayed event", "source", source, "error", err)
		return
	}
	hub.Deliver(Event{Event: in.Event, Data: in.Data})
}
