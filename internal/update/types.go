// Package update implements the incremental updater: it detects new,
// modified, and deleted sources from filesystem metadata, coordinates
// batched embedding calls with the vector store, and quarantines sources
// that fail repeatedly.
package update

import "github.com/nesall/ragd/internal/errors"

// ChangeInfo is the result of DetectChanges: a partition of the current
// corpus against the store's tracked File Metadata.
type ChangeInfo struct {
	New       []string
	Modified  []string
	Deleted   []string
	Unchanged []string
}

// Total is the number of paths this ChangeInfo actually names an action
// for (new + modified + deleted); unchanged paths require no work.
func (i ChangeInfo) Total() int {
	return len(i.New) + len(i.Modified) + len(i.Deleted)
}

const (
	// DefaultEmbeddingBatchSize bounds how many chunks are embedded per
	// request while applying a single file's changes.
	DefaultEmbeddingBatchSize = 32

	// DefaultMaxConsecutiveFailures is the failure count at which a path
	// is quarantined into the ignored set for the rest of the process.
	DefaultMaxConsecutiveFailures = 3
)

// Config configures an Updater.
type Config struct {
	EmbeddingBatchSize     int
	MaxConsecutiveFailures int

	// EmbedRetry governs backoff for a batch's embedding call. A timed-out
	// or 5xx response from the embedding endpoint shouldn't quarantine the
	// whole file on the first blip; zero value gets errors.DefaultRetryConfig.
	EmbedRetry errors.RetryConfig
}

func (c Config) withDefaults() Config {
	if c.EmbeddingBatchSize <= 0 {
		c.EmbeddingBatchSize = DefaultEmbeddingBatchSize
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if c.EmbedRetry.MaxRetries == 0 && c.EmbedRetry.InitialDelay == 0 {
		c.EmbedRetry = errors.DefaultRetryConfig()
	}
	return c
}
