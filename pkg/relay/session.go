// Package relay runs one chat session per client connection. Each inbound
// turn goes to the strategy picked by its focus mode and the strategy's
// events are streamed back to the client.
package relay

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/focusrelay/pkg/events"
	"github.com/go-go-golems/focusrelay/pkg/persistence/chatstore"
	"github.com/go-go-golems/focusrelay/pkg/protocol"
	"github.com/go-go-golems/focusrelay/pkg/providers"
	"github.com/go-go-golems/focusrelay/pkg/strategy"
)

const commitTimeout = 10 * time.Second

// Deps are the collaborators shared by every session of a server.
type Deps struct {
	Registry *strategy.Registry
	Store    chatstore.Store
	Opener   events.Opener
	Models   providers.Models
	Metrics  *Metrics

	// NewID and Now default to NewMessageID and time.Now.
	NewID func() (string, error)
	Now   func() time.Time
}

// Session handles the inbound messages of one connection. HandleMessage must
// be called sequentially; answer streams run on their own goroutines.
type Session struct {
	deps Deps
	out  FrameWriter
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSession(ctx context.Context, out FrameWriter, deps Deps) *Session {
	if deps.NewID == nil {
		deps.NewID = NewMessageID
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	sctx, cancel := context.WithCancel(ctx)
	return &Session{
		deps:   deps,
		out:    out,
		log:    log.With().Str("component", "relay").Logger(),
		ctx:    sctx,
		cancel: cancel,
	}
}

// WithLogger replaces the session logger, typically with one carrying
// connection fields.
func (s *Session) WithLogger(l zerolog.Logger) *Session {
	s.log = l.With().Str("component", "relay").Logger()
	return s
}

// HandleMessage decodes and dispatches one inbound message. It returns after
// the user turn is persisted and does not wait for the answer stream. Every
// failure is reported to the client as a frame and the session stays usable.
func (s *Session) HandleMessage(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("dispatch panicked")
			s.send(protocol.InvalidFormat())
		}
	}()
	if err := s.dispatch(raw); err != nil {
		s.log.Error().Err(err).Msg("message handling failed")
		s.send(protocol.InvalidFormat())
	}
}

// Close detaches every running stream and waits for their consumers. Turns
// whose stream had not ended are not persisted.
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Session) dispatch(raw []byte) error {
	env, err := protocol.Decode(raw)
	if err != nil {
		return err
	}
	if env.Type != protocol.TypeMessage {
		s.log.Debug().Str("type", env.Type).Msg("ignoring non-message envelope")
		return nil
	}

	logger := s.log.With().Str("chat_id", env.Turn.ConversationID).Str("focus_mode", env.FocusMode).Logger()
	strat, ok := s.deps.Registry.Lookup(env.FocusMode)
	if !ok {
		logger.Warn().Msg("invalid focus mode")
		s.send(protocol.InvalidFocusMode())
		return nil
	}

	messageID, err := s.deps.NewID()
	if err != nil {
		return errors.Wrap(err, "generate message id")
	}
	logger = logger.With().Str("message_id", messageID).Logger()

	streamCtx, cancel := context.WithCancel(s.ctx)
	var source *events.Source
	handedOff := false
	// Runs on every early return and on panics out of the strategy.
	defer func() {
		if !handedOff {
			source.Close()
			cancel()
		}
	}()

	source, err = strat(streamCtx, s.deps.Opener, strategy.Request{
		Query:   env.Turn.Content,
		History: env.History,
		Models:  s.deps.Models,
	})
	if err != nil {
		return errors.Wrapf(err, "invoke strategy %s", env.FocusMode)
	}
	if source == nil {
		return errors.Errorf("strategy %s returned no event source", env.FocusMode)
	}

	msgs, err := source.Subscribe(streamCtx)
	if err != nil {
		return errors.Wrap(err, "subscribe to answer stream")
	}

	if err := s.persistUserTurn(env); err != nil {
		return err
	}

	st := &answerStream{
		messageID:      messageID,
		conversationID: env.Turn.ConversationID,
		startedAt:      s.deps.Now(),
		log:            logger,
	}
	s.deps.Metrics.streamStarted()
	s.wg.Add(1)
	handedOff = true
	go func() {
		defer s.wg.Done()
		defer source.Close()
		defer cancel()
		s.consume(streamCtx, st, msgs)
	}()
	logger.Debug().Msg("answer stream dispatched")
	return nil
}

func (s *Session) persistUserTurn(env *protocol.Envelope) error {
	turn := env.Turn
	if err := s.deps.Store.EnsureConversation(s.ctx, turn.ConversationID, turn.Content, env.FocusMode); err != nil {
		s.deps.Metrics.persistenceFailed(string(chatstore.RoleUser))
		return errors.Wrap(err, "ensure conversation")
	}
	err := s.deps.Store.AppendTurn(s.ctx, chatstore.StoredTurn{
		ConversationID: turn.ConversationID,
		TurnID:         turn.ID,
		Role:           chatstore.RoleUser,
		Content:        turn.Content,
		Metadata:       chatstore.TurnMetadata{CreatedAt: s.deps.Now()},
	})
	if err != nil {
		s.deps.Metrics.persistenceFailed(string(chatstore.RoleUser))
		return errors.Wrap(err, "append user turn")
	}
	return nil
}

type answerStream struct {
	messageID      string
	conversationID string
	startedAt      time.Time
	log            zerolog.Logger

	answer  strings.Builder
	sources []events.Citation
}

// consume forwards one stream's events in arrival order until End or until
// the subscription closes.
func (s *Session) consume(ctx context.Context, st *answerStream, msgs <-chan *message.Message) {
	for msg := range msgs {
		done, err := s.handleEvent(st, msg)
		msg.Ack()
		if err != nil {
			st.log.Warn().Err(err).Msg("client write failed, detaching stream")
			s.deps.Metrics.streamFinished("detached", st.startedAt)
			return
		}
		if done {
			s.commit(ctx, st)
			s.deps.Metrics.streamFinished("completed", st.startedAt)
			return
		}
	}
	st.log.Info().Msg("answer stream detached before end")
	s.deps.Metrics.streamFinished("detached", st.startedAt)
}

func (s *Session) handleEvent(st *answerStream, msg *message.Message) (bool, error) {
	ev, err := events.Decode(msg.Payload)
	if err != nil {
		st.log.Warn().Err(err).Str("event_uuid", msg.UUID).Msg("undecodable stream event, skipping")
		return false, nil
	}
	switch ev.Kind {
	case events.KindAnswerChunk:
		st.answer.WriteString(ev.Text)
		return false, s.write(protocol.MessageFrame(st.messageID, ev.Text))
	case events.KindSourceSet:
		st.sources = ev.Sources
		return false, s.write(protocol.SourcesFrame(st.messageID, ev.Sources))
	case events.KindError:
		st.log.Warn().Str("error", ev.Text).Msg("backend reported an error")
		return false, s.write(protocol.ErrorFrame(protocol.KeyChainError, ev.Text))
	case events.KindEnd:
		return true, s.write(protocol.MessageEndFrame(st.messageID))
	}
	st.log.Warn().Str("kind", string(ev.Kind)).Msg("unhandled stream event kind, skipping")
	return false, nil
}

func (s *Session) commit(ctx context.Context, st *answerStream) {
	md := chatstore.TurnMetadata{CreatedAt: s.deps.Now()}
	if len(st.sources) > 0 {
		md.Sources = st.sources
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	err := s.deps.Store.AppendTurn(cctx, chatstore.StoredTurn{
		ConversationID: st.conversationID,
		TurnID:         st.messageID,
		Role:           chatstore.RoleAssistant,
		Content:        st.answer.String(),
		Metadata:       md,
	})
	if err != nil {
		s.deps.Metrics.persistenceFailed(string(chatstore.RoleAssistant))
		st.log.Error().Err(err).Msg("persisting assistant turn failed")
		return
	}
	st.log.Debug().Int("answer_len", st.answer.Len()).Int("sources", len(md.Sources)).Msg("assistant turn persisted")
}

func (s *Session) send(frame protocol.Frame) {
	if err := s.write(frame); err != nil {
		s.log.Warn().Err(err).Str("frame", frame.Type).Msg("client write failed")
	}
}

func (s *Session) write(frame protocol.Frame) error {
	if err := s.out.WriteFrame(frame); err != nil {
		return err
	}
	s.deps.Metrics.frameWritten(frame.Type, frame.Key)
	return nil
}
