package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSettings is returned when settings fail validation.
var ErrInvalidSettings = errors.New("invalid bus settings")

// Dispatch modes.
const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

// Failure policy names.
const (
	PolicyLog                = "log"
	PolicyThrow              = "throw"
	PolicyThrowUnrecoverable = "throw-unrecoverable"
)

// Journal drivers. An empty driver disables the journal.
const (
	JournalMemory = "memory"
	JournalSQLite = "sqlite"
)

// Settings is the typed configuration of one bus.
type Settings struct {
	Identifier    string
	Mode          string
	FailurePolicy string
	Async         AsyncSettings
	Retry         RetrySettings
	Journal       JournalSettings
	Metrics       bool
	Tracing       bool
}

// AsyncSettings sizes the worker pool of an asynchronous bus.
type AsyncSettings struct {
	Workers   int
	QueueSize int
}

// RetrySettings configures handler retries. MaxAttempts of 1 disables them.
type RetrySettings struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// JournalSettings selects the audit journal.
type JournalSettings struct {
	Driver string
	Path   string
}

// DefaultSettings returns the settings used for absent keys.
func DefaultSettings() Settings {
	return Settings{
		Identifier:    "default",
		Mode:          ModeSync,
		FailurePolicy: PolicyLog,
		Async: AsyncSettings{
			Workers:   4,
			QueueSize: 256,
		},
		Retry: RetrySettings{
			MaxAttempts:    1,
			InitialBackoff: 10 * time.Millisecond,
			MaxBackoff:     250 * time.Millisecond,
		},
	}
}

// ParseSettings extracts Settings from cfg, falling back to DefaultSettings
// for absent keys, and validates the result.
func ParseSettings(cfg Config) (Settings, error) {
	def := DefaultSettings()

	async := cfg.Sub("async")
	retry := cfg.Sub("retry")
	journal := cfg.Sub("journal")

	s := Settings{
		Identifier:    cfg.String("identifier", def.Identifier),
		Mode:          cfg.String("mode", def.Mode),
		FailurePolicy: cfg.String("failure_policy", def.FailurePolicy),
		Async: AsyncSettings{
			Workers:   async.Int("workers", def.Async.Workers),
			QueueSize: async.Int("queue_size", def.Async.QueueSize),
		},
		Retry: RetrySettings{
			MaxAttempts:    retry.Int("max_attempts", def.Retry.MaxAttempts),
			InitialBackoff: retry.Duration("initial_backoff", def.Retry.InitialBackoff),
			MaxBackoff:     retry.Duration("max_backoff", def.Retry.MaxBackoff),
		},
		Journal: JournalSettings{
			Driver: journal.String("driver", def.Journal.Driver),
			Path:   journal.String("path", def.Journal.Path),
		},
		Metrics: cfg.Bool("metrics", def.Metrics),
		Tracing: cfg.Bool("tracing", def.Tracing),
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// LoadSettings reads a YAML or JSON file and parses it into Settings.
func LoadSettings(path string) (Settings, error) {
	cfg, err := FromFile(path)
	if err != nil {
		return Settings{}, err
	}
	return ParseSettings(cfg)
}

// Validate reports the first setting the bus cannot honor.
func (s Settings) Validate() error {
	switch s.Mode {
	case ModeSync, ModeAsync:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidSettings, s.Mode)
	}

	switch s.FailurePolicy {
	case PolicyLog, PolicyThrow, PolicyThrowUnrecoverable:
	default:
		return fmt.Errorf("%w: unknown failure policy %q", ErrInvalidSettings, s.FailurePolicy)
	}

	if s.Mode == ModeAsync {
		if s.Async.Workers < 1 {
			return fmt.Errorf("%w: async workers must be at least 1, got %d", ErrInvalidSettings, s.Async.Workers)
		}
		if s.Async.QueueSize < 0 {
			return fmt.Errorf("%w: async queue size must not be negative, got %d", ErrInvalidSettings, s.Async.QueueSize)
		}
	}

	if s.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry max attempts must be at least 1, got %d", ErrInvalidSettings, s.Retry.MaxAttempts)
	}

	switch s.Journal.Driver {
	case "", JournalMemory:
	case JournalSQLite:
		if s.Journal.Path == "" {
			return fmt.Errorf("%w: sqlite journal requires a path", ErrInvalidSettings)
		}
	default:
		return fmt.Errorf("%w: unknown journal driver %q", ErrInvalidSettings, s.Journal.Driver)
	}
	return nil
}
