package config

const (
	// Config errors
	ErrGuardWindowFmt  = "drafts.guard_window (%s) must be longer than drafts.save_debounce (%s)"
	ErrNonPositiveFmt  = "%s must be positive, got %v"
	ErrNegativeFmt     = "%s must not be negative, got %v"
	ErrUnknownValueFmt = "unknown %s %q"
	ErrRequiredFmt     = "%s is required"

	// Startup errors
	ErrLoadConfigFmt    = "Failed to load config: %v"
	ErrOpenStorageFmt   = "Failed to open local storage: %v"
	ErrCreateBackendFmt = "Failed to create backend: %v"
	ErrStartWatcherFmt  = "Failed to start watcher: %v"

	// Config generation errors
	ErrGenerateYAMLFmt = "Error generating YAML: %v"
	ErrWriteFileFmt    = "Error writing file: %v"
)
