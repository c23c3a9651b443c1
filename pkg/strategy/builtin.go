package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-go-golems/focusrelay/pkg/events"
	"github.com/go-go-golems/focusrelay/pkg/protocol"
	"github.com/go-go-golems/focusrelay/pkg/providers"
	"github.com/go-go-golems/focusrelay/pkg/search"
)

// DefaultMaxResults bounds how many search hits become sources.
const DefaultMaxResults = 15

var errNoLanguageModel = errors.New("no language model configured")

// SearchConfig describes one search-backed focus mode.
type SearchConfig struct {
	Engines    []string
	Prompt     string
	MaxResults int
	Language   string
}

// NewSearchStrategy answers from search results: it emits the hits as one
// source set, then streams the model's answer grounded on them.
func NewSearchStrategy(searcher search.Searcher, cfg SearchConfig) Strategy {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	return func(ctx context.Context, opener events.Opener, req Request) (*events.Source, error) {
		if searcher == nil {
			return nil, errors.New("search strategy: no searcher configured")
		}
		return events.Spawn(ctx, opener, func(ctx context.Context, emit func(events.StreamEvent) error) error {
			results, err := searcher.Search(ctx, req.Query, search.Options{Engines: cfg.Engines, Language: cfg.Language})
			if err != nil {
				return err
			}
			if len(results) > cfg.MaxResults {
				results = results[:cfg.MaxResults]
			}
			citations := citationsFromResults(results)
			if err := emit(events.SourceSet(citations)); err != nil {
				return err
			}
			if req.Models.LLM == nil {
				return errNoLanguageModel
			}
			system := cfg.Prompt + "\n\n<context>\n" + formatContext(citations) + "\n</context>"
			return streamAnswer(ctx, req, system, emit)
		}), nil
	}
}

// NewWritingAssistant streams the model's answer without any retrieval.
func NewWritingAssistant(prompt string) Strategy {
	return func(ctx context.Context, opener events.Opener, req Request) (*events.Source, error) {
		return events.Spawn(ctx, opener, func(ctx context.Context, emit func(events.StreamEvent) error) error {
			if req.Models.LLM == nil {
				return errNoLanguageModel
			}
			return streamAnswer(ctx, req, prompt, emit)
		}), nil
	}
}

// DefaultRegistry registers the built-in focus modes. The MaxResults and
// Language of defaults apply to every search-backed mode.
func DefaultRegistry(searcher search.Searcher, defaults SearchConfig) (*Registry, error) {
	searchMode := func(engines []string, prompt string) Strategy {
		cfg := defaults
		cfg.Engines = engines
		cfg.Prompt = prompt
		return NewSearchStrategy(searcher, cfg)
	}
	return NewRegistry(
		Entry{Mode: WebSearch, Strategy: searchMode(nil, webSearchPrompt)},
		Entry{Mode: AcademicSearch, Strategy: searchMode([]string{"arxiv", "google scholar", "pubmed"}, academicSearchPrompt)},
		Entry{Mode: WritingAssistant, Strategy: NewWritingAssistant(writingAssistantPrompt)},
		Entry{Mode: WolframAlphaSearch, Strategy: searchMode([]string{"wolframalpha"}, wolframAlphaPrompt)},
		Entry{Mode: YoutubeSearch, Strategy: searchMode([]string{"youtube"}, youtubeSearchPrompt)},
		Entry{Mode: RedditSearch, Strategy: searchMode([]string{"reddit"}, redditSearchPrompt)},
	)
}

func streamAnswer(ctx context.Context, req Request, system string, emit func(events.StreamEvent) error) error {
	messages := make([]providers.Message, 0, len(req.History)+2)
	messages = append(messages, providers.Message{Role: providers.RoleSystem, Content: system})
	for _, u := range req.History {
		role := providers.RoleAssistant
		if u.Role == protocol.RoleHuman {
			role = providers.RoleUser
		}
		messages = append(messages, providers.Message{Role: role, Content: u.Text})
	}
	messages = append(messages, providers.Message{Role: providers.RoleUser, Content: req.Query})

	return req.Models.LLM.StreamChat(ctx, messages, func(delta string) error {
		return emit(events.AnswerChunk(delta))
	})
}

func citationsFromResults(results []search.Result) []events.Citation {
	out := make([]events.Citation, 0, len(results))
	for _, r := range results {
		content := r.Content
		if content == "" {
			content = r.Title
		}
		md := map[string]any{"title": r.Title, "url": r.URL}
		if r.ImgSrc != "" {
			md["img_src"] = r.ImgSrc
		}
		if r.IframeSrc != "" {
			md["iframe_src"] = r.IframeSrc
		}
		out = append(out, events.Citation{PageContent: content, Metadata: md})
	}
	return out
}

func formatContext(citations []events.Citation) string {
	var b strings.Builder
	for i, c := range citations {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, c.PageContent)
	}
	return b.String()
}
