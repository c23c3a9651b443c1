package protocol

import "encoding/json"

// Outbound frame types.
const (
	FrameMessage    = "message"
	FrameSources    = "sources"
	FrameMessageEnd = "messageEnd"
	FrameError      = "error"
)

// Error keys carried by error frames.
const (
	KeyInvalidFormat    = "INVALID_FORMAT"
	KeyInvalidFocusMode = "INVALID_FOCUS_MODE"
	KeyChainError       = "CHAIN_ERROR"
)

// Frame is one server-to-client message.
type Frame struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Key       string `json:"key,omitempty"`
}

func MessageFrame(messageID, chunk string) Frame {
	return Frame{Type: FrameMessage, Data: chunk, MessageID: messageID}
}

// SourcesFrame forwards a citation list. A nil list is sent as an empty array.
func SourcesFrame[T any](messageID string, sources []T) Frame {
	if sources == nil {
		sources = []T{}
	}
	return Frame{Type: FrameSources, Data: sources, MessageID: messageID}
}

func MessageEndFrame(messageID string) Frame {
	return Frame{Type: FrameMessageEnd, MessageID: messageID}
}

func ErrorFrame(key, message string) Frame {
	return Frame{Type: FrameError, Data: message, Key: key}
}

// InvalidFormat is the frame sent for any failure at the dispatch boundary.
func InvalidFormat() Frame {
	return ErrorFrame(KeyInvalidFormat, "Invalid message format")
}

func InvalidFocusMode() Frame {
	return ErrorFrame(KeyInvalidFocusMode, "Invalid focus mode")
}

func (f Frame) Marshal() ([]byte, error) {
	return json.Marshal(f)
}
