package redisstream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/focusrelay/pkg/events"
)

func TestBuildPubSub_InMemoryWhenDisabled(t *testing.T) {
	ps, err := BuildPubSub(DefaultSettings())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Close() })

	pub, sub, release := ps.Stream("t1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := sub.Subscribe(ctx, "t1")
	require.NoError(t, err)

	published := make(chan error, 1)
	go func() {
		published <- pub.Publish("t1", message.NewMessage("1", []byte("a")), message.NewMessage("2", []byte("b")))
	}()

	for _, want := range []string{"a", "b"} {
		select {
		case msg := <-ch:
			require.Equal(t, want, string(msg.Payload))
			msg.Ack()
		case <-time.After(2 * time.Second):
			t.Fatal("timeout")
		}
	}
	require.NoError(t, <-published)

	release()
	require.Error(t, pub.Publish("t1", message.NewMessage("3", []byte("c"))))
}

func TestInMemory_StreamsDoNotShareAPubSub(t *testing.T) {
	ps := NewInMemory(nil)
	pub1, _, release1 := ps.Stream("a")
	pub2, sub2, release2 := ps.Stream("b")
	defer release2()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := sub2.Subscribe(ctx, "b")
	require.NoError(t, err)

	release1()
	require.Error(t, pub1.Publish("a", message.NewMessage("1", nil)))

	go func() { _ = pub2.Publish("b", message.NewMessage("2", []byte("still open"))) }()
	select {
	case msg := <-ch:
		require.Equal(t, "still open", string(msg.Payload))
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("second stream was affected by releasing the first")
	}
}

func TestBuildPubSub_RedisRequiresAddr(t *testing.T) {
	s := DefaultSettings()
	s.Enabled = true
	s.Addr = ""
	_, err := BuildPubSub(s)
	require.Error(t, err)
}

func TestShared_DeletesTopicOnceBothEndsAreDone(t *testing.T) {
	ch := gochannel.NewGoChannel(gochannel.Config{BlockPublishUntilSubscriberAck: true}, watermill.NopLogger{})
	var mu sync.Mutex
	var deleted []string
	ps := newShared(ch, ch, func(_ context.Context, topic string) error {
		mu.Lock()
		defer mu.Unlock()
		deleted = append(deleted, topic)
		return nil
	}, ch.Close)
	t.Cleanup(func() { _ = ps.Close() })
	deletedTopics := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), deleted...)
	}

	hub := events.NewHub(ps)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := events.Spawn(ctx, hub, func(ctx context.Context, emit func(events.StreamEvent) error) error {
		return emit(events.AnswerChunk("x"))
	})
	msgs, err := src.Subscribe(ctx)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		select {
		case msg := <-msgs:
			msg.Ack()
		case <-time.After(2 * time.Second):
			t.Fatal("timeout")
		}
	}
	require.Empty(t, deletedTopics(), "consumer still attached")

	src.Close()
	src.Close()
	require.Eventually(t, func() bool { return len(deletedTopics()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{src.Topic()}, deletedTopics())
}
