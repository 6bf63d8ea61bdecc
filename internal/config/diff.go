package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// GenerationChanged is true when any orchestrator tuning field changed
	// (instructions, round limit, timeouts, sampling, history limit).
	GenerationChanged bool
	NewGeneration     GenerationConfig
}

// Empty reports whether the diff contains no applicable changes.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.GenerationChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart: the listen
// address, TLS material, LLM endpoint and MCP servers all require one.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Generation != new.Generation {
		d.GenerationChanged = true
		d.NewGeneration = new.Generation
	}

	return d
}
