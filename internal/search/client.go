// Package search implements the web retrieval client against a Tavily-style
// search API. One call per query; empty result sets are valid responses,
// transport and API errors are typed SearchErrors.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/probelabs/deepscout/internal/circuitbreaker"
	"github.com/probelabs/deepscout/internal/config"
	"github.com/probelabs/deepscout/internal/metrics"
	"github.com/probelabs/deepscout/internal/models"
)

type Client struct {
	baseURL    string
	apiKey     string
	maxResults int
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *circuitbreaker.Breaker
	logger     *zap.Logger
}

func NewClient(cfg config.SearchConfig, logger *zap.Logger) *Client {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		maxResults: cfg.MaxResults,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		breaker:    circuitbreaker.New("search", circuitbreaker.DefaultConfig(), logger),
		logger:     logger,
	}
}

type searchRequest struct {
	APIKey            string `json:"api_key"`
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type searchResult struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	Content    string `json:"content"`
	RawContent string `json:"raw_content"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// Search executes one query and returns retrieved sources. A query that
// matches nothing returns an empty slice and no error.
func (c *Client) Search(ctx context.Context, query string) ([]models.Source, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &models.SearchError{Query: query, Err: err}
	}

	var sources []models.Source
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		body, err := json.Marshal(searchRequest{
			APIKey:            c.apiKey,
			Query:             query,
			MaxResults:        c.maxResults,
			IncludeRawContent: true,
		})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("search api status %d: %s", resp.StatusCode, snippet)
		}

		var parsed searchResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("decode search response: %w", err)
		}

		now := time.Now().UTC()
		sources = make([]models.Source, 0, len(parsed.Results))
		for _, r := range parsed.Results {
			if r.URL == "" {
				continue
			}
			sources = append(sources, models.Source{
				URL:         r.URL,
				Title:       r.Title,
				Snippet:     r.Content,
				FullText:    r.RawContent,
				RetrievedAt: now,
			})
		}
		return nil
	})
	if err != nil {
		metrics.SearchQueries.WithLabelValues("error").Inc()
		return nil, &models.SearchError{Query: query, Err: err}
	}

	metrics.SearchQueries.WithLabelValues("ok").Inc()
	metrics.SourcesRetrieved.Add(float64(len(sources)))
	c.logger.Debug("search query executed",
		zap.String("query", query),
		zap.Int("results", len(sources)),
	)
	return sources, nil
}
