// Package providers exposes the language and embedding model capabilities
// handed to backend strategies, with an OpenAI-compatible implementation.
package providers

import "context"

// Chat roles understood by LanguageModel.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a chat prompt.
type Message struct {
	Role    string
	Content string
}

// LanguageModel streams a chat completion, calling onDelta for every
// content fragment in arrival order. An error from onDelta aborts the stream.
type LanguageModel interface {
	Name() string
	StreamChat(ctx context.Context, messages []Message, onDelta func(string) error) error
}

// EmbeddingModel turns text into vectors.
type EmbeddingModel interface {
	Name() string
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Models is the pair of capabilities a strategy is invoked with. Either may
// be nil when no provider is configured.
type Models struct {
	LLM        LanguageModel
	Embeddings EmbeddingModel
}
