// Package visibility decides whether a channel's content may be echoed into
// the audit trail. Private-channel content must never appear in a log channel.
package visibility

import (
	"context"

	"github.com/modwatch/modwatch/internal/configstore"
	"github.com/modwatch/modwatch/internal/types"
)

// Classifier determines whether a channel is publicly observable.
type Classifier struct {
	store configstore.Store
}

// New creates a Classifier reading guild overrides from store.
func New(store configstore.Store) *Classifier {
	return &Classifier{store: store}
}

// IsPubliclyVisible reports whether message events in channel are eligible
// for logging. When the guild's log-all override is set the answer is always
// true. Otherwise the channel is visible unless its "everyone" overwrite
// explicitly denies read access. Store failures fall back to the overwrite
// check alone.
func (c *Classifier) IsPubliclyVisible(ctx context.Context, guildID types.EntityID, channel types.Channel) bool {
	settings, err := c.store.Settings(ctx, guildID)
	if err == nil && settings.LogAllMessageEvents {
		return true
	}

	ow := channel.EveryoneOverwrite()
	return ow == nil || !ow.DenyRead
}
