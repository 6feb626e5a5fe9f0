// Package cache provides the short-lived result cache for the phrase
// engine: canonical-request key → stored phrase. The default backend is
// process-local and non-persistent; a Redis backend exists for
// multi-instance deployments. Both are safe for concurrent use.
package cache

import (
	"context"
	"time"

	"github.com/hanziloop/core/internal/models"
)

// DefaultTTL keeps one generation result shared across a study session
// while still rotating content daily.
const DefaultTTL = 6 * time.Hour

// PhraseCache is the injected key/value abstraction the orchestrator
// uses. A miss is (nil, false); expiry is handled by the backend.
type PhraseCache interface {
	Get(ctx context.Context, key string) (*models.PhraseModel, bool)
	Set(ctx context.Context, key string, record *models.PhraseModel, ttl time.Duration)
	Delete(ctx context.Context, key string)
	// Cleanup removes expired entries and reports how many were removed.
	Cleanup(ctx context.Context) int
}
