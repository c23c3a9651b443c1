package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newFakeEndpoint(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, `{"error":{"message":"unauthorized"}}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"id":"gpt-4o-mini","object":"model"},
			{"id":"text-embedding-3-small","object":"model"},
			{"id":"bge-Encoder","object":"model"},
			{"id":"deepseek-chat","object":"model"}
		]}`))
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["stream"] != true {
			http.Error(w, `{"error":{"message":"expected a streaming request"}}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"Hel", "", "lo"} {
			_, _ = fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", chunk)
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	})
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"m","data":[
			{"object":"embedding","index":1,"embedding":[0.3,0.4]},
			{"object":"embedding","index":0,"embedding":[0.1,0.2]}
		]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestIsEmbeddingModel(t *testing.T) {
	require.True(t, IsEmbeddingModel("text-embedding-3-small"))
	require.True(t, IsEmbeddingModel("nomic-EMBED-text"))
	require.True(t, IsEmbeddingModel("bge-encoder"))
	require.False(t, IsEmbeddingModel("gpt-4o"))
}

func TestDiscover_SplitsModels(t *testing.T) {
	srv := newFakeEndpoint(t)
	cat, err := Discover(context.Background(), Settings{Endpoint: srv.URL + "/v1/", APIKey: "secret"})
	require.NoError(t, err)
	require.Equal(t, []string{"deepseek-chat", "gpt-4o-mini"}, cat.ChatNames())
	require.Equal(t, []string{"bge-Encoder", "text-embedding-3-small"}, cat.EmbeddingNames())
	require.Equal(t, float32(DefaultTemperature), cat.Chat["gpt-4o-mini"].temperature)

	models := cat.Select("gpt-4o-mini", "missing")
	require.Equal(t, "gpt-4o-mini", models.LLM.Name())
	require.Equal(t, "bge-Encoder", models.Embeddings.Name())
}

func TestDiscover_Unconfigured(t *testing.T) {
	cat, err := Discover(context.Background(), Settings{})
	require.NoError(t, err)
	require.Empty(t, cat.ChatNames())
	models := cat.Select("", "")
	require.Nil(t, models.LLM)
	require.Nil(t, models.Embeddings)
}

func TestDiscover_EndpointError(t *testing.T) {
	srv := newFakeEndpoint(t)
	cat, err := Discover(context.Background(), Settings{Endpoint: srv.URL + "/v1", APIKey: "wrong"})
	require.Error(t, err)
	require.NotNil(t, cat)
	require.Empty(t, cat.ChatNames())
}

func TestChatModel_StreamChat(t *testing.T) {
	srv := newFakeEndpoint(t)
	client := NewClient(Settings{Endpoint: srv.URL + "/v1", APIKey: "secret"})
	m := NewChatModel(client, "gpt-4o-mini", DefaultTemperature)

	var parts []string
	err := m.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, func(s string) error {
		parts = append(parts, s)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Hel", "lo"}, parts)
}

func TestChatModel_CallbackErrorAborts(t *testing.T) {
	srv := newFakeEndpoint(t)
	client := NewClient(Settings{Endpoint: srv.URL + "/v1", APIKey: "secret"})
	m := NewChatModel(client, "gpt-4o-mini", DefaultTemperature)

	stop := fmt.Errorf("stop")
	err := m.StreamChat(context.Background(), nil, func(string) error { return stop })
	require.ErrorIs(t, err, stop)
}

func TestEmbeddingModel_OrdersByIndex(t *testing.T) {
	srv := newFakeEndpoint(t)
	client := NewClient(Settings{Endpoint: srv.URL + "/v1", APIKey: "secret"})
	m := NewEmbeddingModel(client, "text-embedding-3-small")

	vecs, err := m.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vecs)

	_, err = m.EmbedQuery(context.Background(), "a")
	require.True(t, err != nil && strings.Contains(err.Error(), "got 2 vectors"))
}
