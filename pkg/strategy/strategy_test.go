package strategy

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/focusrelay/pkg/events"
	"github.com/go-go-golems/focusrelay/pkg/protocol"
	"github.com/go-go-golems/focusrelay/pkg/providers"
	"github.com/go-go-golems/focusrelay/pkg/search"
)

type stubSearcher struct {
	results []search.Result
	err     error

	mu   sync.Mutex
	opts []search.Options
}

func (s *stubSearcher) Search(_ context.Context, _ string, opts search.Options) ([]search.Result, error) {
	s.mu.Lock()
	s.opts = append(s.opts, opts)
	s.mu.Unlock()
	return s.results, s.err
}

type stubLLM struct {
	chunks []string

	mu       sync.Mutex
	messages []providers.Message
}

func (m *stubLLM) Name() string { return "stub" }

func (m *stubLLM) StreamChat(_ context.Context, messages []providers.Message, onDelta func(string) error) error {
	m.mu.Lock()
	m.messages = messages
	m.mu.Unlock()
	for _, c := range m.chunks {
		if err := onDelta(c); err != nil {
			return err
		}
	}
	return nil
}

func newHub(t *testing.T) *events.Hub {
	t.Helper()
	return events.NewHub(events.NewChannelTransport(watermill.NopLogger{}))
}

func drain(t *testing.T, src *events.Source, until events.Kind) []events.StreamEvent {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := src.Subscribe(ctx)
	require.NoError(t, err)
	var out []events.StreamEvent
	for {
		select {
		case msg := <-ch:
			ev, err := events.Decode(msg.Payload)
			require.NoError(t, err)
			msg.Ack()
			out = append(out, ev)
			if ev.Kind == until {
				return out
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout, got %v", out)
		}
	}
}

func TestRegistry(t *testing.T) {
	noop := func(context.Context, events.Opener, Request) (*events.Source, error) { return nil, nil }

	r, err := NewRegistry(Entry{Mode: "a", Strategy: noop}, Entry{Mode: "b", Strategy: noop})
	require.NoError(t, err)
	require.Equal(t, []Mode{"a", "b"}, r.Modes())
	_, ok := r.Lookup("a")
	require.True(t, ok)
	_, ok = r.Lookup("c")
	require.False(t, ok)

	_, err = NewRegistry(Entry{Mode: "a", Strategy: noop}, Entry{Mode: "a", Strategy: noop})
	require.ErrorIs(t, err, ErrDuplicateMode)

	_, err = NewRegistry(Entry{Mode: "a"})
	require.Error(t, err)

	var nilReg *Registry
	_, ok = nilReg.Lookup("a")
	require.False(t, ok)
}

func TestDefaultRegistry_Modes(t *testing.T) {
	r, err := DefaultRegistry(&stubSearcher{}, SearchConfig{})
	require.NoError(t, err)
	require.ElementsMatch(t, []Mode{
		WebSearch, AcademicSearch, WritingAssistant, WolframAlphaSearch, YoutubeSearch, RedditSearch,
	}, r.Modes())
}

func TestDefaultRegistry_PassesSearchDefaults(t *testing.T) {
	searcher := &stubSearcher{results: []search.Result{{Title: "A"}, {Title: "B"}, {Title: "C"}}}
	r, err := DefaultRegistry(searcher, SearchConfig{MaxResults: 1, Language: "fr"})
	require.NoError(t, err)
	strat, ok := r.Lookup(string(AcademicSearch))
	require.True(t, ok)

	src, err := strat(context.Background(), newHub(t), Request{Query: "x", Models: providers.Models{LLM: &stubLLM{}}})
	require.NoError(t, err)
	got := drain(t, src, events.KindEnd)
	require.Len(t, got[0].Sources, 1)

	searcher.mu.Lock()
	defer searcher.mu.Unlock()
	require.Equal(t, "fr", searcher.opts[0].Language)
	require.Equal(t, []string{"arxiv", "google scholar", "pubmed"}, searcher.opts[0].Engines)
}

func TestSearchStrategy_SourcesThenAnswer(t *testing.T) {
	searcher := &stubSearcher{results: []search.Result{
		{Title: "A", URL: "https://a", Content: "alpha"},
		{Title: "B", URL: "https://b"},
		{Title: "C", URL: "https://c", Content: "gamma"},
	}}
	llm := &stubLLM{chunks: []string{"Hel", "lo"}}
	strat := NewSearchStrategy(searcher, SearchConfig{Engines: []string{"youtube"}, Prompt: "PROMPT", MaxResults: 2})

	src, err := strat(context.Background(), newHub(t), Request{
		Query:   "what?",
		History: []protocol.Utterance{{Role: protocol.RoleHuman, Text: "q0"}, {Role: protocol.RoleAssistant, Text: "a0"}},
		Models:  providers.Models{LLM: llm},
	})
	require.NoError(t, err)

	got := drain(t, src, events.KindEnd)
	require.Len(t, got, 4)
	require.Equal(t, events.KindSourceSet, got[0].Kind)
	require.Len(t, got[0].Sources, 2)
	require.Equal(t, "B", got[0].Sources[1].PageContent)
	require.Equal(t, "https://a", got[0].Sources[0].Metadata["url"])
	require.Equal(t, events.AnswerChunk("Hel"), got[1])
	require.Equal(t, events.AnswerChunk("lo"), got[2])
	require.Equal(t, events.End(), got[3])

	require.Equal(t, []string{"youtube"}, searcher.opts[0].Engines)
	llm.mu.Lock()
	defer llm.mu.Unlock()
	require.Len(t, llm.messages, 4)
	require.Equal(t, providers.RoleSystem, llm.messages[0].Role)
	require.True(t, strings.HasPrefix(llm.messages[0].Content, "PROMPT"))
	require.Contains(t, llm.messages[0].Content, "1. alpha\n2. B")
	require.Equal(t, providers.Message{Role: providers.RoleUser, Content: "q0"}, llm.messages[1])
	require.Equal(t, providers.Message{Role: providers.RoleAssistant, Content: "a0"}, llm.messages[2])
	require.Equal(t, providers.Message{Role: providers.RoleUser, Content: "what?"}, llm.messages[3])
}

func TestSearchStrategy_SearchFailureSignalsError(t *testing.T) {
	strat := NewSearchStrategy(&stubSearcher{err: stderrors.New("searxng down")}, SearchConfig{})
	src, err := strat(context.Background(), newHub(t), Request{Query: "x", Models: providers.Models{LLM: &stubLLM{}}})
	require.NoError(t, err)

	got := drain(t, src, events.KindError)
	require.Equal(t, []events.StreamEvent{events.ErrorSignal("searxng down")}, got)
}

func TestSearchStrategy_NoSearcher(t *testing.T) {
	_, err := NewSearchStrategy(nil, SearchConfig{})(context.Background(), newHub(t), Request{})
	require.Error(t, err)
}

func TestWritingAssistant_NoSources(t *testing.T) {
	llm := &stubLLM{chunks: []string{"Dear ", "Sir"}}
	src, err := NewWritingAssistant("WRITE")(context.Background(), newHub(t), Request{Query: "letter", Models: providers.Models{LLM: llm}})
	require.NoError(t, err)

	got := drain(t, src, events.KindEnd)
	require.Equal(t, []events.StreamEvent{events.AnswerChunk("Dear "), events.AnswerChunk("Sir"), events.End()}, got)
}

func TestWritingAssistant_NoModel(t *testing.T) {
	src, err := NewWritingAssistant("WRITE")(context.Background(), newHub(t), Request{Query: "letter"})
	require.NoError(t, err)

	got := drain(t, src, events.KindError)
	require.Equal(t, events.KindError, got[0].Kind)
	require.Contains(t, got[0].Text, "no language model")
}
