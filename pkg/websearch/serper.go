// Package websearch implements the web search oracle on top of the Serper
// Google search API.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/positive-doo/multitool/pkg/config"
	"github.com/positive-doo/multitool/pkg/httpclient"
	"github.com/positive-doo/multitool/pkg/oracle"
)

// NoResult is returned when the response holds nothing usable.
const NoResult = "No good Google Search Result was found"

// Searcher returns a text snippet answering query.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

type Serper struct {
	client     *httpclient.Client
	apiKey     string
	baseURL    string
	numResults int
	country    string
	language   string
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
	GL  string `json:"gl,omitempty"`
	HL  string `json:"hl,omitempty"`
}

type SerperResponse struct {
	AnswerBox *struct {
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
		Title   string `json:"title"`
	} `json:"answerBox,omitempty"`
	KnowledgeGraph *struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"knowledgeGraph,omitempty"`
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func NewSerperFromConfig(cfg *config.SearchConfig) (*Serper, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for serper web search")
	}
	return &Serper{
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}),
		),
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(cfg.Host, "/"),
		numResults: cfg.NumResults,
		country:    cfg.Country,
		language:   cfg.Language,
	}, nil
}

func (s *Serper) Search(ctx context.Context, query string) (string, error) {
	resp, err := s.search(ctx, query)
	if err != nil {
		return "", oracle.Wrap("serper", "search", err)
	}
	return resp.Text(), nil
}

func (s *Serper) search(ctx context.Context, query string) (*SerperResponse, error) {
	body, err := json.Marshal(serperRequest{Q: query, Num: s.numResults, GL: s.country, HL: s.language})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.apiKey)

	resp, err := s.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if resp != nil && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("serper API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	var out SerperResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// Text picks the most direct answer in the response: the answer box, then
// the knowledge graph, then the organic snippets.
func (r *SerperResponse) Text() string {
	if r.AnswerBox != nil {
		if r.AnswerBox.Answer != "" {
			return r.AnswerBox.Answer
		}
		if r.AnswerBox.Snippet != "" {
			return strings.ReplaceAll(r.AnswerBox.Snippet, "\n", " ")
		}
	}
	if r.KnowledgeGraph != nil && r.KnowledgeGraph.Description != "" {
		return r.KnowledgeGraph.Description
	}

	var snippets []string
	for _, item := range r.Organic {
		if item.Snippet != "" {
			snippets = append(snippets, item.Snippet)
		}
	}
	if len(snippets) == 0 {
		return NoResult
	}
	return strings.Join(snippets, " ")
}
