// Package protocol decodes inbound websocket messages into typed envelopes and
// builds the outbound frames sent back to the client.
package protocol

import (
	"encoding/json"
	stderrors "errors"

	"github.com/pkg/errors"
)

// ErrMalformedEnvelope is returned by Decode for any payload that cannot be
// turned into an Envelope.
var ErrMalformedEnvelope = stderrors.New("malformed envelope")

// TypeMessage is the only inbound type that triggers a dispatch.
const TypeMessage = "message"

// Role tags an utterance in the conversation history.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Utterance is one role-tagged entry of the chat history handed to a strategy.
type Utterance struct {
	Role Role
	Text string
}

// Turn is the user turn carried by an inbound message.
type Turn struct {
	ID             string `json:"messageId"`
	ConversationID string `json:"chatId"`
	Content        string `json:"content"`
}

// Envelope is a decoded inbound message. It is built fresh per message.
type Envelope struct {
	Turn      Turn
	Type      string
	FocusMode string
	// AssistantRequested mirrors the client's "copilot" flag. It is carried
	// through but no strategy acts on it yet.
	AssistantRequested bool
	History            []Utterance
}

// HistoryEntry is a [roleTag, text] pair as sent on the wire.
type HistoryEntry [2]string

type wireEnvelope struct {
	Message   *Turn          `json:"message"`
	Copilot   bool           `json:"copilot"`
	Type      string         `json:"type"`
	FocusMode string         `json:"focusMode"`
	History   []HistoryEntry `json:"history"`
}

// Decode parses a raw inbound payload. It fails with ErrMalformedEnvelope when
// the payload is not valid JSON, carries no message object, or the message has
// empty content.
func Decode(raw []byte) (*Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errors.Wrapf(ErrMalformedEnvelope, "decode: %v", err)
	}
	if w.Message == nil {
		return nil, errors.Wrap(ErrMalformedEnvelope, "missing message")
	}
	if w.Message.Content == "" {
		return nil, errors.Wrap(ErrMalformedEnvelope, "empty message content")
	}

	return &Envelope{
		Turn:               *w.Message,
		Type:               w.Type,
		FocusMode:          w.FocusMode,
		AssistantRequested: w.Copilot,
		History:            TranslateHistory(w.History),
	}, nil
}

// TranslateHistory maps wire history entries to utterances positionally.
// The tag "human" yields a human utterance; every other tag, including an
// empty or unknown one, yields an assistant utterance.
func TranslateHistory(entries []HistoryEntry) []Utterance {
	out := make([]Utterance, 0, len(entries))
	for _, e := range entries {
		role := RoleAssistant
		if e[0] == string(RoleHuman) {
			role = RoleHuman
		}
		out = append(out, Utterance{Role: role, Text: e[1]})
	}
	return out
}
