package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	aterrors "github.com/airtimehq/airtime/pkg/errors"
	"github.com/airtimehq/airtime/pkg/logging"
)

// redisChannelNames returns the two directional pub/sub channels for a
// meeting session.
func redisChannelNames(session string) (toPrimary, toPopout string) {
	return "airtime." + session + ".to-primary", "airtime." + session + ".to-popout"
}

// RedisTransport carries envelopes over redis pub/sub. Pub/sub gives
// exactly the delivery contract the protocol assumes: a message published
// while the peer is not subscribed is gone, and nobody is told.
type RedisTransport struct {
	client    *redis.Client
	pubsub    *redis.PubSub
	sendTo    string
	out       chan Envelope
	log       logging.Logger
	closeOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewRedisTransport subscribes the given role's inbound channel for the
// session and returns a ready transport. Close tears the subscription
// down and closes Receive's channel.
func NewRedisTransport(client *redis.Client, session string, role Role, log logging.Logger) (*RedisTransport, error) {
	toPrimary, toPopout := redisChannelNames(session)

	recvOn, sendTo := toPrimary, toPopout
	if role == RolePopout {
		recvOn, sendTo = toPopout, toPrimary
	}

	ctx, cancel := context.WithCancel(context.Background())
	pubsub := client.Subscribe(ctx, recvOn)

	// Force the subscription before we report ready, so the handshake
	// message cannot race past an unregistered listener.
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		pubsub.Close()
		return nil, fmt.Errorf("%w: subscribing %s: %v", aterrors.ErrTransport, recvOn, err)
	}

	t := &RedisTransport{
		client: client,
		pubsub: pubsub,
		sendTo: sendTo,
		out:    make(chan Envelope, 16),
		log:    log,
		cancel: cancel,
	}

	t.wg.Add(1)
	go t.pump()

	return t, nil
}

// Send publishes an envelope to the peer's channel.
func (t *RedisTransport) Send(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	if err := t.client.Publish(ctx, t.sendTo, data).Err(); err != nil {
		return fmt.Errorf("%w: publishing to %s: %v", aterrors.ErrTransport, t.sendTo, err)
	}
	return nil
}

// Receive returns the inbound envelope channel.
func (t *RedisTransport) Receive() <-chan Envelope {
	return t.out
}

// Close detaches the subscription and closes the receive channel.
func (t *RedisTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.cancel()
		err = t.pubsub.Close()
		t.wg.Wait()
		close(t.out)
	})
	return err
}

// pump moves raw pub/sub payloads onto the receive channel. Payloads that
// are not valid envelopes are dropped here; origin and kind validation
// happens later at the decode boundary.
func (t *RedisTransport) pump() {
	defer t.wg.Done()

	for msg := range t.pubsub.Channel() {
		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			if t.log != nil {
				t.log.Warn("dropping undecodable envelope", logging.Err(err))
			}
			continue
		}
		select {
		case t.out <- env:
		default:
			// Receiver is not draining; best-effort transport drops.
			if t.log != nil {
				t.log.Warn("receive buffer full, dropping envelope", logging.F("type", string(env.Type)))
			}
		}
	}
}
