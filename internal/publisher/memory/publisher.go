// Package memory implements an in-process publisher used for dry runs and
// tests. Posts are recorded instead of sent anywhere.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/atlwait/waitbot/internal/waittimes"
)

// Publisher stores published messages for later inspection.
type Publisher struct {
	mu    sync.RWMutex
	posts []string
}

// New returns an empty memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the message and returns a sequential pseudo ID.
func (p *Publisher) Publish(_ context.Context, text string) (waittimes.PostResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, text)
	return waittimes.PostResult{ID: fmt.Sprintf("memory-%d", len(p.posts))}, nil
}

// Posts returns a copy of the recorded messages in publish order.
func (p *Publisher) Posts() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.posts))
	copy(out, p.posts)
	return out
}
