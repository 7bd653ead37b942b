package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Default model names mirror the roles the pipeline needs; the catalog maps
// them to provider IDs so a config file can swap providers without touching
// the roles.
const (
	defaultPrimaryModel   = "claude-3.7-sonnet"
	defaultSecondaryModel = "deepseek-r1"
)

// Load builds the configuration from defaults overlaid with an optional YAML
// config file. path may be empty, in which case CONFIG_PATH is consulted and
// a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	explicit := path != ""
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if explicit {
				return nil, fmt.Errorf("read config: %w", err)
			}
			// Config file from the environment is best effort.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Credentials are never stored in the config file.
	if len(cfg.Models.Profiles) == 0 {
		cfg.Models.Profiles = []ProfileConfig{{Name: "default"}}
	}
	if key := os.Getenv("DEEPRESEARCH_API_KEY"); key != "" && cfg.Models.Profiles[0].APIKey == "" {
		cfg.Models.Profiles[0].APIKey = key
	}
	if key := os.Getenv("SEARCH_API_KEY"); key != "" && cfg.Search.APIKey == "" {
		cfg.Search.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("models.endpoint", "http://localhost:8000")
	v.SetDefault("models.primary", defaultPrimaryModel)
	v.SetDefault("models.secondary", defaultSecondaryModel)
	v.SetDefault("models.catalog", map[string]string{
		"claude-3.7-sonnet": "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
		"claude-3.5-sonnet": "us.anthropic.claude-3-5-sonnet-20241022-v2:0",
		"claude-3.5-haiku":  "us.anthropic.claude-3-haiku-20240307-v1:0",
		"nova-pro":          "us.amazon.nova-pro-v1:0",
		"deepseek-r1":       "deepseek.r1-v1:0",
		"mistral-large":     "mistral.mistral-large-2407-v1:0",
		"llama-3.3":         "us.meta.llama3-3-70b-instruct-v1:0",
	})

	v.SetDefault("connection.timeout", "20m")
	v.SetDefault("connection.max_retries", 8)
	v.SetDefault("connection.base_delay", "20s")
	v.SetDefault("connection.max_delay", "5m")

	v.SetDefault("search.endpoint", "https://api.search.brave.com/res/v1/web/search")
	v.SetDefault("search.image_endpoint", "https://api.search.brave.com/res/v1/images/search")
	v.SetDefault("search.count", 10)
	v.SetDefault("search.timeout", "10s")
	v.SetDefault("search.requests_per_second", 1.0)

	v.SetDefault("research.standard.discussion_turns", 5)
	v.SetDefault("research.standard.collection_iterations", 40)
	v.SetDefault("research.standard.pre_research_iterations", 40)
	v.SetDefault("research.standard.report_attempts", 10)
	v.SetDefault("research.standard.single_pass", false)
	v.SetDefault("research.summary.discussion_turns", 3)
	v.SetDefault("research.summary.collection_iterations", 10)
	v.SetDefault("research.summary.pre_research_iterations", 3)
	v.SetDefault("research.summary.report_attempts", 10)
	v.SetDefault("research.summary.single_pass", true)
	v.SetDefault("research.must_use_tool", "image_search")

	v.SetDefault("report.completion_markers", []string{
		"レポートの終了",
		"レポートは終了",
		"レポートを終了",
		"レポートは完了",
		"レポートの完了",
		"レポートを完了",
	})
	v.SetDefault("report.tail_window", 20)
	v.SetDefault("report.max_tokens", 8192)
	v.SetDefault("report.temperature", 0.8)

	v.SetDefault("tools.enabled", []string{
		"search", "get_content", "image_search",
		"generate_graph", "render_mermaid", "write", "is_finished",
	})
	v.SetDefault("tools.max_document_bytes", int64(4_500_000))
	v.SetDefault("tools.max_image_bytes", int64(5*1024*1024))
	v.SetDefault("tools.max_images", 5)
	v.SetDefault("tools.fetch_timeout", "30s")

	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.local_size", 256)

	v.SetDefault("run_store.path", "deepresearch.db")

	v.SetDefault("output.reports_dir", "reports")
	v.SetDefault("output.conversation_dir", "conversation")
	v.SetDefault("output.pdf", false)
}
