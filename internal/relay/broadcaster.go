package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/event-booking/internal/logging"
)

// ChannelPrefix namespaces relay rooms on Redis pub/sub.
const ChannelPrefix = "chat:room:"

// Broadcaster moves room events to every relay process, including the one
// that published them.
type Broadcaster interface {
	Publish(ctx context.Context, env Envelope) error
	// Run delivers received envelopes until ctx is cancelled.
	Run(ctx context.Context, deliver func(Envelope)) error
}

// LocalBroadcaster fans out inside a single process.
type LocalBroadcaster struct {
	ch chan Envelope
}

func NewLocalBroadcaster(buffer int) *LocalBroadcaster {
	if buffer <= 0 {
		buffer = 256
	}
	return &LocalBroadcaster{ch: make(chan Envelope, buffer)}
}

func (b *LocalBroadcaster) Publish(ctx context.Context, env Envelope) error {
	select {
	case b.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *LocalBroadcaster) Run(ctx context.Context, deliver func(Envelope)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-b.ch:
			deliver(env)
		}
	}
}

// RedisBroadcaster publishes envelopes on chat:room:<room> and subscribes to
// the whole prefix.
type RedisBroadcaster struct {
	rdb *redis.Client
	log *logging.Logger
}

func NewRedisBroadcaster(rdb *redis.Client, log *logging.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb, log: log}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, env Envelope) error {
	if env.Room == "" {
		return ErrInvalidRoom
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, ChannelPrefix+env.Room, data).Err()
}

func (b *RedisBroadcaster) Run(ctx context.Context, deliver func(Envelope)) error {
	sub := b.rdb.PSubscribe(ctx, ChannelPrefix+"*")
	defer sub.Close()
	// Wait for the subscription confirmation so publishes made right after
	// Run starts are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Warn(b.log.WithField(ctx, "channel", msg.Channel), "drop malformed relay envelope", err)
				continue
			}
			if env.Room == "" {
				env.Room = strings.TrimPrefix(msg.Channel, ChannelPrefix)
			}
			deliver(env)
		}
	}
}
