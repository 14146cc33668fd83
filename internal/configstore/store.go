// Package configstore reads per-guild configuration for the engine. The
// backing store is external and eventually consistent; this package only
// defines the read contract and its implementations.
package configstore

import (
	"context"

	"github.com/modwatch/modwatch/internal/types"
)

// Store provides read access to per-guild settings.
//
// Implementations map malformed stored values to the zero value of the
// corresponding field, never to an error: a bad flag means the feature is
// disabled for that guild. Errors are reserved for the store itself being
// unreachable, and callers degrade to zero-value settings when they occur.
type Store interface {
	Settings(ctx context.Context, guildID types.EntityID) (types.GuildSettings, error)
}
