package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aquaagent/internal/config"
	"aquaagent/internal/embedding"
	"aquaagent/internal/logging"
	"aquaagent/internal/retrieval"
	"aquaagent/internal/tools"
)

// Scraper fetches pages and answers queries against their content using
// vector retrieval. Pages are cached by URL hash so repeated queries on
// the same URL skip the fetch and the embedding pass.
type Scraper struct {
	cfg      config.WebScrapeConfig
	engine   embedding.Engine
	cache    *PageCache
	index    *retrieval.Index
	splitter *retrieval.Splitter
}

// NewScraper creates a scraper from config and an embedding engine.
func NewScraper(cfg config.WebScrapeConfig, engine embedding.Engine) *Scraper {
	ttl, err := time.ParseDuration(cfg.CacheTTL)
	if err != nil || ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Scraper{
		cfg:      cfg,
		engine:   engine,
		cache:    NewPageCache(cfg.CacheSize, ttl),
		index:    retrieval.NewIndex(),
		splitter: retrieval.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
	}
}

// ScrapeTool returns the scrape tool backed by the given scraper.
func ScrapeTool(s *Scraper) *tools.Tool {
	return &tools.Tool{
		Name:        "scrape_web_content",
		Description: "Fetch a web page and return the sections most relevant to a query. Use after web_search to read a promising result.",
		Category:    tools.CategoryResearch,
		Execute:     s.execute,
		Schema: tools.Schema{
			Required: []string{"url", "query"},
			Properties: map[string]tools.Property{
				"url": {
					Type:        "string",
					Description: "The URL to scrape",
				},
				"query": {
					Type:        "string",
					Description: "What to look for in the page content",
				},
			},
		},
	}
}

func (s *Scraper) execute(ctx context.Context, args map[string]any) (string, error) {
	pageURL, _ := args["url"].(string)
	if pageURL == "" {
		return "", fmt.Errorf("url is required")
	}
	query, _ := args["query"].(string)
	if query == "" {
		return "", fmt.Errorf("query is required")
	}

	timer := logging.StartTimer(logging.CategoryResearch, "scrape_web_content")
	defer timer.Stop()

	docID := hashKey(pageURL)

	content, err := s.pageContent(ctx, docID, pageURL)
	if err != nil {
		return "", err
	}

	if !s.index.Has(docID) {
		n, err := s.index.IndexDocument(ctx, s.engine, s.splitter, docID, content)
		if err != nil {
			return "", fmt.Errorf("failed to index page: %w", err)
		}
		logging.Research("Indexed %s: %d chunks", pageURL, n)
	}

	topK := s.cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	matches, err := s.index.Query(ctx, s.engine, docID, query, topK)
	if err != nil {
		return "", fmt.Errorf("retrieval failed: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No relevant content found on %s for: %s", pageURL, query), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Relevant content from %s\n\n", pageURL))
	for i, m := range matches {
		sb.WriteString(fmt.Sprintf("## Match %d (score %.3f)\n\n%s\n\n", i+1, m.Score, m.Text))
	}

	logging.Research("Scrape completed: %s, %d matches for %q", pageURL, len(matches), query)
	return sb.String(), nil
}

// pageContent returns the cleaned page text, from cache when fresh.
func (s *Scraper) pageContent(ctx context.Context, docID, pageURL string) (string, error) {
	if entry, ok := s.cache.Get(docID); ok {
		logging.ResearchDebug("Page cache hit: %s", pageURL)
		return entry.Value, nil
	}

	raw, err := fetchPage(ctx, pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}

	content := filterNoise(raw)
	if content == "" {
		return "", fmt.Errorf("page has no readable content: %s", pageURL)
	}

	s.cache.Set(docID, content, "scrape")
	// A re-fetched page must be re-embedded.
	s.index.Remove(docID)

	logging.ResearchDebug("Fetched %s: %d chars after noise filter", pageURL, len(content))
	return content, nil
}
