package config

import (
	"fmt"
	"time"
)

// Mode selects the iteration/turn/attempt ceilings and output granularity
// for a research run.
type Mode string

const (
	ModeStandard Mode = "standard"
	ModeSummary  Mode = "summary"
)

// Config is the complete, immutable configuration for one process. It is
// constructed once at startup by Load, validated, and passed by reference
// into every component constructor. Components never look configuration up
// from globals or the environment.
type Config struct {
	Models     ModelsConfig     `mapstructure:"models"`
	Connection ConnectionConfig `mapstructure:"connection"`
	Search     SearchConfig     `mapstructure:"search"`
	Research   ResearchConfig   `mapstructure:"research"`
	Report     ReportConfig     `mapstructure:"report"`
	Tools      ToolsConfig      `mapstructure:"tools"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RunStore   RunStoreConfig   `mapstructure:"run_store"`
	Output     OutputConfig     `mapstructure:"output"`
}

// ModelsConfig describes the inference endpoint and the model roles.
type ModelsConfig struct {
	// Endpoint is the base URL of the converse-style inference API.
	Endpoint string `mapstructure:"endpoint"`
	// Primary drives tool use, strategy summarization and report writing.
	Primary string `mapstructure:"primary"`
	// Secondary is the discussion counterpart model.
	Secondary string `mapstructure:"secondary"`
	// Catalog maps short model names to provider model IDs.
	Catalog map[string]string `mapstructure:"catalog"`
	// Profiles are credentials rotated round-robin across retries.
	Profiles []ProfileConfig `mapstructure:"profiles"`
}

// ProfileConfig is a single credential profile for the inference endpoint.
type ProfileConfig struct {
	Name   string `mapstructure:"name"`
	APIKey string `mapstructure:"api_key"`
}

// ConnectionConfig contains retry/backoff and timeout settings for the
// inference endpoint.
type ConnectionConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
}

// SearchConfig describes the web/image search backend.
type SearchConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	ImageEndpoint string        `mapstructure:"image_endpoint"`
	APIKey        string        `mapstructure:"api_key"`
	Count         int           `mapstructure:"count"`
	Timeout       time.Duration `mapstructure:"timeout"`
	// RequestsPerSecond throttles outbound search calls.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// ModePreset bundles the ceilings that differ between standard and summary
// mode.
type ModePreset struct {
	DiscussionTurns       int  `mapstructure:"discussion_turns"`
	CollectionIterations  int  `mapstructure:"collection_iterations"`
	PreResearchIterations int  `mapstructure:"pre_research_iterations"`
	ReportAttempts        int  `mapstructure:"report_attempts"`
	SinglePass            bool `mapstructure:"single_pass"`
}

// ResearchConfig contains the collection-loop policy knobs.
type ResearchConfig struct {
	Standard ModePreset `mapstructure:"standard"`
	Summary  ModePreset `mapstructure:"summary"`
	// MustUseTool names a tool the collection loop must have invoked before
	// it is allowed to terminate; empty disables the policy.
	MustUseTool string `mapstructure:"must_use_tool"`
}

// ReportConfig contains chunked-generation settings.
type ReportConfig struct {
	// CompletionMarkers are the literal phrases whose presence in the tail
	// of a chunk terminates generation.
	CompletionMarkers []string `mapstructure:"completion_markers"`
	// TailWindow is how many trailing runes of a chunk are inspected for a
	// completion marker.
	TailWindow  int     `mapstructure:"tail_window"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// ToolsConfig contains tool execution limits.
type ToolsConfig struct {
	// Enabled lists the tools advertised to the model.
	Enabled []string `mapstructure:"enabled"`
	// MaxDocumentBytes is the hard ceiling for binary documents routed
	// through the document-understanding model call.
	MaxDocumentBytes int64         `mapstructure:"max_document_bytes"`
	MaxImageBytes    int64         `mapstructure:"max_image_bytes"`
	MaxImages        int           `mapstructure:"max_images"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
}

// CacheConfig describes the fetched-content cache. RedisAddr empty means the
// cache is local-only.
type CacheConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
	LocalSize int           `mapstructure:"local_size"`
}

// RunStoreConfig locates the sqlite run-history index. Empty path disables
// run recording.
type RunStoreConfig struct {
	Path string `mapstructure:"path"`
}

// OutputConfig locates generated artifacts.
type OutputConfig struct {
	ReportsDir      string `mapstructure:"reports_dir"`
	ConversationDir string `mapstructure:"conversation_dir"`
	PDF             bool   `mapstructure:"pdf"`
}

// Preset returns the ceilings for the given mode. Unknown modes fall back to
// standard.
func (c *Config) Preset(mode Mode) ModePreset {
	if mode == ModeSummary {
		return c.Research.Summary
	}
	return c.Research.Standard
}

// ModelID resolves a short model name through the catalog, passing through
// names that are already provider IDs.
func (c *Config) ModelID(name string) string {
	if id, ok := c.Models.Catalog[name]; ok {
		return id
	}
	return name
}

// ValidationError reports invalid or missing settings detected at startup.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Models.Endpoint == "" {
		return &ValidationError{Field: "models.endpoint", Reason: "inference endpoint is required"}
	}
	if c.Models.Primary == "" {
		return &ValidationError{Field: "models.primary", Reason: "primary model is required"}
	}
	if c.Models.Secondary == "" {
		return &ValidationError{Field: "models.secondary", Reason: "secondary model is required"}
	}
	if len(c.Models.Profiles) == 0 {
		return &ValidationError{Field: "models.profiles", Reason: "at least one credential profile is required"}
	}
	if c.Connection.MaxRetries < 0 {
		return &ValidationError{Field: "connection.max_retries", Reason: "must not be negative"}
	}
	if c.Connection.BaseDelay <= 0 || c.Connection.MaxDelay < c.Connection.BaseDelay {
		return &ValidationError{Field: "connection.base_delay", Reason: "base delay must be positive and not exceed max delay"}
	}
	for _, p := range []struct {
		name   string
		preset ModePreset
	}{{"research.standard", c.Research.Standard}, {"research.summary", c.Research.Summary}} {
		if p.preset.DiscussionTurns <= 0 {
			return &ValidationError{Field: p.name + ".discussion_turns", Reason: "must be positive"}
		}
		if p.preset.CollectionIterations <= 0 {
			return &ValidationError{Field: p.name + ".collection_iterations", Reason: "must be positive"}
		}
		if p.preset.ReportAttempts <= 0 {
			return &ValidationError{Field: p.name + ".report_attempts", Reason: "must be positive"}
		}
	}
	if len(c.Report.CompletionMarkers) == 0 {
		return &ValidationError{Field: "report.completion_markers", Reason: "at least one completion marker is required"}
	}
	if c.Report.TailWindow <= 0 {
		return &ValidationError{Field: "report.tail_window", Reason: "must be positive"}
	}
	if c.Tools.MaxDocumentBytes <= 0 {
		return &ValidationError{Field: "tools.max_document_bytes", Reason: "must be positive"}
	}
	return nil
}
