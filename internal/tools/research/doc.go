// Package research provides the web-facing tools: search across several
// providers and a scrape tool that ranks page content against a query
// using vector embeddings.
package research
