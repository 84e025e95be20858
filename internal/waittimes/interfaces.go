package waittimes

import (
	"context"
	"time"
)

// Fetcher retrieves the wait-times page and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Parser extracts checkpoint entries from page markup. Parsing is
// best-effort and never fails; a page without usable data yields no entries.
type Parser interface {
	Parse(markup []byte) []Entry
	HasCheckpointSection(markup []byte) bool
}

// Composer renders a snapshot into a bounded status message.
type Composer interface {
	Compose(snapshot Snapshot) string
}

// Publisher submits a status message to the posting platform.
type Publisher interface {
	Publish(ctx context.Context, text string) (PostResult, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator mints identifiers for correlating one cycle's log lines.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes digests for change tracing.
type Hasher interface {
	Hash(data []byte) (string, error)
}
