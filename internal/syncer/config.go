package syncer

import (
	"fmt"
	"time"
)

// Config defines configuration for the sync manager and the pollers it owns
type Config struct {
	// Workspace whose syncs this manager tracks
	WorkspaceID string `toml:"workspace_id"`

	// Interval between status poll ticks
	PollInterval time.Duration `toml:"poll_interval"`

	// Tick budget for a theme sync (single job)
	ThemeMaxTicks int `toml:"theme_max_ticks"`

	// Tick budget for an all-sources fan-out (many jobs, longer runway)
	SourcesMaxTicks int `toml:"sources_max_ticks"`

	// Interval between history head checks by the watcher
	WatchInterval time.Duration `toml:"watch_interval"`

	// Page size used when refreshing the history view
	HistoryPageSize int `toml:"history_page_size"`

	// Notification channel buffer; overflow drops with a counter
	NotificationBuffer int `toml:"notification_buffer"`
}

// DefaultConfig returns dashboard-friendly sync manager defaults
func DefaultConfig() Config {
	return Config{
		PollInterval:       5 * time.Second,
		ThemeMaxTicks:      12,
		SourcesMaxTicks:    24,
		WatchInterval:      30 * time.Second,
		HistoryPageSize:    20,
		NotificationBuffer: 64,
	}
}

// validateConfig validates sync manager configuration and returns error if invalid
func validateConfig(config Config) error {
	if config.WorkspaceID == "" {
		return fmt.Errorf("WorkspaceID must not be empty")
	}

	if config.PollInterval <= 0 {
		return fmt.Errorf("PollInterval must be positive, got %v", config.PollInterval)
	}

	if config.ThemeMaxTicks <= 0 {
		return fmt.Errorf("ThemeMaxTicks must be positive, got %d", config.ThemeMaxTicks)
	}

	if config.SourcesMaxTicks <= 0 {
		return fmt.Errorf("SourcesMaxTicks must be positive, got %d", config.SourcesMaxTicks)
	}

	if config.WatchInterval <= 0 {
		return fmt.Errorf("WatchInterval must be positive, got %v", config.WatchInterval)
	}

	if config.HistoryPageSize <= 0 {
		return fmt.Errorf("HistoryPageSize must be positive, got %d", config.HistoryPageSize)
	}

	if config.NotificationBuffer <= 0 {
		return fmt.Errorf("NotificationBuffer must be positive, got %d", config.NotificationBuffer)
	}

	return nil
}
