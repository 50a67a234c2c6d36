package research

import (
	"aquaagent/internal/config"
	"aquaagent/internal/embedding"
	"aquaagent/internal/tools"
)

// RegisterAll registers the research tools. The scrape tool needs an
// embedding engine; pass nil to register search only.
func RegisterAll(registry *tools.Registry, cfg config.ToolsConfig, engine embedding.Engine) error {
	if err := registry.Register(WebSearchTool(cfg.WebSearch)); err != nil {
		return err
	}
	if engine != nil {
		scraper := NewScraper(cfg.WebScrape, engine)
		if err := registry.Register(ScrapeTool(scraper)); err != nil {
			return err
		}
	}
	return nil
}
