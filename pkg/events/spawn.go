package events

import (
	"context"
	stderrors "errors"

	"github.com/rs/zerolog/log"
)

// Producer writes the events of one stream through emit. Returning nil ends
// the stream with an End event. Returning an error emits an ErrorSignal and
// leaves the stream open without End.
type Producer func(ctx context.Context, emit func(StreamEvent) error) error

// Spawn opens a stream and runs produce on its own goroutine. The producer's
// context is cancelled when ctx is done or the returned Source is closed.
func Spawn(ctx context.Context, opener Opener, produce Producer) *Source {
	emitter, source := opener.Open()
	go run(ctx, emitter, produce)
	return source
}

func run(ctx context.Context, emitter *Emitter, produce Producer) {
	defer emitter.Close()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-emitter.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	logger := log.With().Str("component", "events").Str("topic", emitter.Topic()).Logger()
	emit := func(ev StreamEvent) error { return emitter.Emit(runCtx, ev) }

	err := produce(runCtx, emit)
	switch {
	case err == nil:
		if err := emit(End()); err != nil {
			logger.Debug().Err(err).Msg("stream end not delivered")
		}
	case stderrors.Is(err, ErrSourceClosed) || runCtx.Err() != nil:
		logger.Debug().Err(err).Msg("producer stopped, consumer detached")
	default:
		logger.Warn().Err(err).Msg("producer failed")
		if err := emit(ErrorSignal(err.Error())); err != nil {
			logger.Debug().Err(err).Msg("error signal not delivered")
		}
	}
}
