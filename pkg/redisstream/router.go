package redisstream

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/geppetto/pkg/helpers"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/focusrelay/pkg/events"
)

const cleanupTimeout = 5 * time.Second

// PubSub is the transport answer streams run over.
type PubSub struct {
	transport events.Transport
	closers   []func() error
}

var _ events.Transport = &PubSub{}

// Stream implements events.Transport.
func (p *PubSub) Stream(topic string) (message.Publisher, message.Subscriber, func()) {
	return p.transport.Stream(topic)
}

// Close shuts down the publisher, subscriber and any client they share.
func (p *PubSub) Close() error {
	if p == nil {
		return nil
	}
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BuildPubSub returns a Redis Streams transport when enabled, an in-memory
// one otherwise.
func BuildPubSub(s Settings) (*PubSub, error) {
	logger := helpers.NewWatermill(log.Logger)
	if !s.Enabled {
		return NewInMemory(logger), nil
	}
	if s.Addr == "" {
		return nil, errors.New("redis stream: empty addr")
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis stream: publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "redis stream: subscriber")
	}

	log.Info().Str("component", "redisstream").Str("addr", s.Addr).Str("group", s.Group).Msg("using redis streams transport")
	return newShared(pub, sub, func(ctx context.Context, topic string) error {
		// DEL drops the stream key together with its consumer groups.
		return client.Del(ctx, topic).Err()
	}, sub.Close, pub.Close, client.Close), nil
}

// newShared runs every stream over one publisher/subscriber pair and deletes
// each stream's topic once both of its ends are done.
func newShared(
	pub message.Publisher,
	sub message.Subscriber,
	deleteTopic func(ctx context.Context, topic string) error,
	closers ...func() error,
) *PubSub {
	return &PubSub{
		transport: events.SharedTransport{
			Publisher:  pub,
			Subscriber: sub,
			Release: func(topic string) {
				ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
				defer cancel()
				if err := deleteTopic(ctx, topic); err != nil {
					log.Warn().Str("component", "redisstream").Str("topic", topic).Err(err).Msg("deleting finished stream failed")
					return
				}
				log.Debug().Str("component", "redisstream").Str("topic", topic).Msg("finished stream deleted")
			},
		},
		closers: closers,
	}
}

// NewInMemory builds the single-process transport. Every stream gets its own
// Go channel pub/sub, which is closed when the stream is done.
func NewInMemory(logger watermill.LoggerAdapter) *PubSub {
	return &PubSub{transport: events.NewChannelTransport(logger)}
}
