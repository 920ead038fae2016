package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrInvalidMaxConcurrency is returned for a negative concurrency bound.
	// Zero means unbounded.
	ErrInvalidMaxConcurrency = errors.New("invalid max concurrency: must be non-negative")

	// ErrUnknownStrategy is returned when crawler.strategy names no canonicalization strategy.
	ErrUnknownStrategy = errors.New("unknown canonicalization strategy")

	// ErrUnsupportedFormat is returned when output.format is not a known format.
	ErrUnsupportedFormat = errors.New("unsupported output format")

	// ErrSQLiteNeedsPath is returned when the sqlite format is chosen without an output path.
	ErrSQLiteNeedsPath = errors.New("sqlite output requires an output path")

	// ErrInvalidTimeout is returned when the fetch timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRateLimit is returned for a negative request rate or burst.
	// A rate of zero disables limiting.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative")

	// ErrInvalidRetries is returned for a negative retry count.
	ErrInvalidRetries = errors.New("invalid retries: must be non-negative")

	// ErrInvalidMaxBodySize is returned for a negative body size limit.
	// Zero uses the fetcher default.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidLogLevel is returned when logging.level is not debug, info, warn or error.
	ErrInvalidLogLevel = errors.New("invalid log level")

	// ErrInvalidLogFormat is returned when logging.format is not text or json.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
