// Package search provides web search for chat augmentation.
//
// Information Hiding:
// - Search engine choice hidden behind the Searcher interface
// - DuckDuckGo response shape (nested RelatedTopics) flattened here
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://api.duckduckgo.com/"

// Result is a single search hit.
type Result struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// Searcher finds web results for a query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// DuckDuckGo implements Searcher against the DuckDuckGo Instant Answer
// API, which needs no API key.
type DuckDuckGo struct {
	baseURL string
	client  *http.Client
}

// NewDuckDuckGo creates a searcher against the public API.
func NewDuckDuckGo() *DuckDuckGo {
	return &DuckDuckGo{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// NewDuckDuckGoWithClient creates a searcher with a custom endpoint and
// client, for tests.
func NewDuckDuckGoWithClient(baseURL string, client *http.Client) *DuckDuckGo {
	return &DuckDuckGo{baseURL: baseURL, client: client}
}

type instantAnswerTopic struct {
	Text     string               `json:"Text"`
	FirstURL string               `json:"FirstURL"`
	Topics   []instantAnswerTopic `json:"Topics"`
}

type instantAnswerResponse struct {
	Heading       string               `json:"Heading"`
	AbstractText  string               `json:"AbstractText"`
	AbstractURL   string               `json:"AbstractURL"`
	RelatedTopics []instantAnswerTopic `json:"RelatedTopics"`
}

// Search queries the Instant Answer API and returns up to maxResults
// results, abstract first, then flattened related topics.
func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	var answer instantAnswerResponse
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := []Result{} // Start with empty slice, not nil
	if answer.AbstractText != "" {
		results = append(results, Result{
			Title: answer.Heading,
			Body:  answer.AbstractText,
			URL:   answer.AbstractURL,
		})
	}
	results = appendTopics(results, answer.RelatedTopics, maxResults)

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// appendTopics flattens nested topic groups into results.
func appendTopics(results []Result, topics []instantAnswerTopic, maxResults int) []Result {
	for _, topic := range topics {
		if len(results) >= maxResults {
			break
		}
		if len(topic.Topics) > 0 {
			results = appendTopics(results, topic.Topics, maxResults)
			continue
		}
		if topic.Text == "" {
			continue
		}
		results = append(results, Result{
			Title: topic.Text,
			Body:  topic.Text,
			URL:   topic.FirstURL,
		})
	}
	return results
}

// Verify DuckDuckGo implements Searcher
var _ Searcher = (*DuckDuckGo)(nil)
