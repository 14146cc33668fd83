// Package sink delivers audit-trail records to the outbound log channel.
//
// A record is sent once and may be amended at most once, when attribution
// resolves after the fact. Amendment failures are never surfaced to the
// record's originator; the original body simply stands.
package sink

import (
	"context"

	"github.com/google/uuid"

	"github.com/modwatch/modwatch/internal/types"
)

// Handle identifies a delivered record for later amendment.
type Handle struct {
	ID      uuid.UUID
	GuildID types.EntityID
}

// Sink is the outbound log-delivery channel.
type Sink interface {
	// Send delivers body as a new record in guildID's log and returns a
	// handle for amendment.
	Send(ctx context.Context, guildID types.EntityID, body string) (Handle, error)

	// Amend rewrites the body of a previously sent record.
	Amend(ctx context.Context, h Handle, body string) error
}
