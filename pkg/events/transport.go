package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Transport hands out the publisher/subscriber pair one stream runs over.
// release is called exactly once, after both ends of the stream are done.
type Transport interface {
	Stream(topic string) (pub message.Publisher, sub message.Subscriber, release func())
}

// ChannelTransport gives every stream its own in-process Go channel pub/sub.
// A consumer that stops acking only holds back its own stream.
type ChannelTransport struct {
	logger watermill.LoggerAdapter
}

var _ Transport = &ChannelTransport{}

func NewChannelTransport(logger watermill.LoggerAdapter) *ChannelTransport {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &ChannelTransport{logger: logger}
}

func (t *ChannelTransport) Stream(string) (message.Publisher, message.Subscriber, func()) {
	// Publish blocks until the subscriber acked, which keeps events in order.
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            64,
		BlockPublishUntilSubscriberAck: true,
	}, t.logger)
	return ch, ch, func() { _ = ch.Close() }
}

// SharedTransport runs every stream over one publisher/subscriber pair.
// Release, when set, receives the topic of each finished stream.
type SharedTransport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Release    func(topic string)
}

var _ Transport = SharedTransport{}

func (t SharedTransport) Stream(topic string) (message.Publisher, message.Subscriber, func()) {
	release := func() {}
	if t.Release != nil {
		release = func() { t.Release(topic) }
	}
	return t.Publisher, t.Subscriber, release
}
