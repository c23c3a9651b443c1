// Package strategy holds the backend strategies that answer a turn and the
// registry that maps focus modes to them.
package strategy

import (
	"context"
	stderrors "errors"

	"github.com/pkg/errors"

	"github.com/go-go-golems/focusrelay/pkg/events"
	"github.com/go-go-golems/focusrelay/pkg/protocol"
	"github.com/go-go-golems/focusrelay/pkg/providers"
)

// Mode names a focus mode as sent by the client.
type Mode string

const (
	WebSearch          Mode = "webSearch"
	AcademicSearch     Mode = "academicSearch"
	WritingAssistant   Mode = "writingAssistant"
	WolframAlphaSearch Mode = "wolframAlphaSearch"
	YoutubeSearch      Mode = "youtubeSearch"
	RedditSearch       Mode = "redditSearch"
)

var ErrDuplicateMode = stderrors.New("duplicate focus mode")

// Request is everything a strategy is invoked with.
type Request struct {
	Query   string
	History []protocol.Utterance
	Models  providers.Models
}

// Strategy starts answering req and returns the event source of its output.
// It must not block on producing events: the caller subscribes to the source
// after Strategy returns.
type Strategy func(ctx context.Context, opener events.Opener, req Request) (*events.Source, error)

// Entry binds a strategy to its mode.
type Entry struct {
	Mode     Mode
	Strategy Strategy
}

// Registry is an immutable mode → strategy mapping assembled at startup.
type Registry struct {
	strategies map[Mode]Strategy
	modes      []Mode
}

func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{strategies: make(map[Mode]Strategy, len(entries))}
	for _, e := range entries {
		if e.Mode == "" || e.Strategy == nil {
			return nil, errors.Errorf("invalid registry entry %q", e.Mode)
		}
		if _, ok := r.strategies[e.Mode]; ok {
			return nil, errors.Wrapf(ErrDuplicateMode, "%s", e.Mode)
		}
		r.strategies[e.Mode] = e.Strategy
		r.modes = append(r.modes, e.Mode)
	}
	return r, nil
}

// Lookup resolves a client-supplied focus mode.
func (r *Registry) Lookup(mode string) (Strategy, bool) {
	if r == nil {
		return nil, false
	}
	s, ok := r.strategies[Mode(mode)]
	return s, ok
}

// Modes lists registered modes in registration order.
func (r *Registry) Modes() []Mode {
	if r == nil {
		return nil
	}
	return append([]Mode(nil), r.modes...)
}
