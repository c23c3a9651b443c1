package providers

import (
	"context"
	stderrors "errors"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultTemperature is applied to every discovered chat model.
const DefaultTemperature = 0.7

var embeddingKeywords = []string{"embedding", "embed", "encoder"}

// Configured reports whether both endpoint and key are set.
func (s Settings) Configured() bool {
	return strings.TrimSpace(s.Endpoint) != "" && strings.TrimSpace(s.APIKey) != ""
}

// NewClient builds a go-openai client pointed at the configured endpoint.
func NewClient(s Settings) *openai.Client {
	cfg := openai.DefaultConfig(s.APIKey)
	if ep := strings.TrimRight(strings.TrimSpace(s.Endpoint), "/"); ep != "" {
		cfg.BaseURL = ep
	}
	return openai.NewClientWithConfig(cfg)
}

// IsEmbeddingModel classifies a model id by name.
func IsEmbeddingModel(id string) bool {
	lower := strings.ToLower(id)
	for _, kw := range embeddingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ChatModel is a LanguageModel backed by the chat completions API.
type ChatModel struct {
	client      *openai.Client
	model       string
	temperature float32
}

var _ LanguageModel = &ChatModel{}

func NewChatModel(client *openai.Client, model string, temperature float32) *ChatModel {
	return &ChatModel{client: client, model: model, temperature: temperature}
}

func (m *ChatModel) Name() string { return m.model }

func (m *ChatModel) StreamChat(ctx context.Context, messages []Message, onDelta func(string) error) error {
	req := openai.ChatCompletionRequest{
		Model:       m.model,
		Temperature: m.temperature,
		Stream:      true,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, msg := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}

	stream, err := m.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return errors.Wrapf(err, "chat stream %s", m.model)
	}
	defer func() { _ = stream.Close() }()

	for {
		resp, err := stream.Recv()
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "chat stream %s", m.model)
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := onDelta(choice.Delta.Content); err != nil {
				return err
			}
		}
	}
}

// OpenAIEmbeddingModel is an EmbeddingModel backed by the embeddings API.
type OpenAIEmbeddingModel struct {
	client *openai.Client
	model  string
}

var _ EmbeddingModel = &OpenAIEmbeddingModel{}

func NewEmbeddingModel(client *openai.Client, model string) *OpenAIEmbeddingModel {
	return &OpenAIEmbeddingModel{client: client, model: model}
}

func (m *OpenAIEmbeddingModel) Name() string { return m.model }

func (m *OpenAIEmbeddingModel) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *OpenAIEmbeddingModel) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := m.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(m.model),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "embeddings %s", m.model)
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.Errorf("embeddings %s: got %d vectors for %d inputs", m.model, len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, errors.Errorf("embeddings %s: index %d out of range", m.model, d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// Catalog holds the models discovered at an endpoint, keyed by model id.
type Catalog struct {
	Chat      map[string]*ChatModel
	Embedding map[string]*OpenAIEmbeddingModel
}

func emptyCatalog() *Catalog {
	return &Catalog{Chat: map[string]*ChatModel{}, Embedding: map[string]*OpenAIEmbeddingModel{}}
}

// Discover lists the endpoint's models and splits them into chat and
// embedding models. An unconfigured endpoint yields an empty catalog.
func Discover(ctx context.Context, s Settings) (*Catalog, error) {
	cat := emptyCatalog()
	if !s.Configured() {
		return cat, nil
	}
	temperature := float32(s.Temperature)
	if temperature == 0 {
		temperature = DefaultTemperature
	}

	client := NewClient(s)
	list, err := client.ListModels(ctx)
	if err != nil {
		return cat, errors.Wrap(err, "list models")
	}
	for _, m := range list.Models {
		if m.ID == "" {
			continue
		}
		if IsEmbeddingModel(m.ID) {
			cat.Embedding[m.ID] = NewEmbeddingModel(client, m.ID)
		} else {
			cat.Chat[m.ID] = NewChatModel(client, m.ID, temperature)
		}
	}
	return cat, nil
}

func (c *Catalog) ChatNames() []string      { return sortedKeys(c.Chat) }
func (c *Catalog) EmbeddingNames() []string { return sortedKeys(c.Embedding) }

// Select picks the preferred models, falling back to the first id in sort
// order when a preference is empty or unknown.
func (c *Catalog) Select(chat, embedding string) Models {
	var out Models
	if m, ok := pick(c.Chat, chat); ok {
		out.LLM = m
	}
	if m, ok := pick(c.Embedding, embedding); ok {
		out.Embeddings = m
	}
	return out
}

func pick[T any](m map[string]T, preferred string) (T, bool) {
	if v, ok := m[preferred]; ok {
		return v, true
	}
	names := sortedKeys(m)
	if len(names) == 0 {
		var zero T
		return zero, false
	}
	return m[names[0]], true
}

func sortedKeys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
