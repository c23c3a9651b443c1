// Package search queries a SearxNG metasearch instance.
package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Options narrows a query. An empty Language leaves the instance default.
type Options struct {
	Engines  []string
	Language string
}

// Result is one hit as reported by SearxNG.
type Result struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Content   string `json:"content"`
	ImgSrc    string `json:"img_src,omitempty"`
	IframeSrc string `json:"iframe_src,omitempty"`
}

// Searcher runs a web search.
type Searcher interface {
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// SearxNG is a Searcher using the instance's JSON API.
type SearxNG struct {
	baseURL string
	client  *http.Client
}

var _ Searcher = &SearxNG{}

func NewSearxNG(baseURL string, client *http.Client) (*SearxNG, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("searxng: empty base url")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.Wrap(err, "searxng: base url")
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &SearxNG{baseURL: baseURL, client: client}, nil
}

type searxngResponse struct {
	Results     []Result `json:"results"`
	Suggestions []string `json:"suggestions"`
}

func (s *SearxNG) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	if len(opts.Engines) > 0 {
		q.Set("engines", strings.Join(opts.Engines, ","))
	}
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "searxng: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "searxng: request")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("searxng: unexpected status %s", resp.Status)
	}

	var body searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "searxng: decode response")
	}
	return body.Results, nil
}
