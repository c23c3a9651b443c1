// Package events carries backend output from a strategy to the relay.
//
// Every backend invocation gets its own stream: a topic on a watermill
// publisher/subscriber pair. The strategy writes StreamEvents through an
// Emitter and the relay reads them from the matching Source.
package events

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Kind discriminates the StreamEvent union. The values are the wire tags.
type Kind string

const (
	KindAnswerChunk Kind = "response"
	KindSourceSet   Kind = "sources"
	KindError       Kind = "error"
	KindEnd         Kind = "end"
)

// Citation is one source attached to an answer.
type Citation struct {
	PageContent string         `json:"pageContent"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// StreamEvent is one event produced by a backend strategy.
// Text is set for answer chunks and errors, Sources for source sets.
type StreamEvent struct {
	Kind    Kind
	Text    string
	Sources []Citation
}

func AnswerChunk(text string) StreamEvent { return StreamEvent{Kind: KindAnswerChunk, Text: text} }

func SourceSet(sources []Citation) StreamEvent {
	return StreamEvent{Kind: KindSourceSet, Sources: sources}
}

func ErrorSignal(text string) StreamEvent { return StreamEvent{Kind: KindError, Text: text} }

func End() StreamEvent { return StreamEvent{Kind: KindEnd} }

type wireEvent struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (e StreamEvent) MarshalJSON() ([]byte, error) {
	w := wireEvent{Type: e.Kind}
	var (
		data []byte
		err  error
	)
	switch e.Kind {
	case KindAnswerChunk, KindError:
		data, err = json.Marshal(e.Text)
	case KindSourceSet:
		sources := e.Sources
		if sources == nil {
			sources = []Citation{}
		}
		data, err = json.Marshal(sources)
	case KindEnd:
	default:
		return nil, errors.Errorf("unknown stream event kind %q", e.Kind)
	}
	if err != nil {
		return nil, err
	}
	w.Data = data
	return json.Marshal(w)
}

func (e *StreamEvent) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out := StreamEvent{Kind: w.Type}
	switch w.Type {
	case KindAnswerChunk, KindError:
		if err := json.Unmarshal(w.Data, &out.Text); err != nil {
			return errors.Wrapf(err, "decode %s data", w.Type)
		}
	case KindSourceSet:
		if len(w.Data) > 0 && string(w.Data) != "null" {
			if err := json.Unmarshal(w.Data, &out.Sources); err != nil {
				return errors.Wrap(err, "decode sources data")
			}
		}
	case KindEnd:
	default:
		return errors.Errorf("unknown stream event type %q", w.Type)
	}
	*e = out
	return nil
}

// Decode parses one message payload.
func Decode(payload []byte) (StreamEvent, error) {
	var ev StreamEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return StreamEvent{}, err
	}
	return ev, nil
}
