// Package auditlog resolves which actor performed a moderation action by
// querying the platform's eventually-consistent audit-log service.
//
// # Contract
//
// A single newest-first query with a result cap of 1 is issued per lookup.
// The returned entry is accepted only when its target matches and it is
// recent enough; ties between concurrent actions are therefore resolved by
// the external service, not here. Attribution is best-effort enrichment:
// access failures (typically missing permission) map to "unknown actor" and
// must never fail the caller.
package auditlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/modwatch/modwatch/internal/types"
)

// DefaultRecencyWindow is how far back an audit entry may lie to still count
// as the cause of an event. The value is empirical; keep it configurable but
// do not change the default.
const DefaultRecencyWindow = 2 * time.Second

// ErrPermissionDenied is returned by a Querier when the engine lacks access
// to the guild's audit log. The Correlator maps it to an absent result.
var ErrPermissionDenied = errors.New("auditlog: permission denied")

// Querier is the external audit-log query service. Entries are returned
// newest first, at most limit of them.
type Querier interface {
	Query(ctx context.Context, guildID types.EntityID, action types.ActionKind, limit int) ([]types.AuditEntry, error)
}

// Correlator matches audit-log entries to observed events.
type Correlator struct {
	querier Querier
	logger  *zap.Logger
	window  time.Duration
	clock   func() time.Time
}

// New creates a Correlator. A zero window means DefaultRecencyWindow.
func New(querier Querier, logger *zap.Logger, window time.Duration) *Correlator {
	if window <= 0 {
		window = DefaultRecencyWindow
	}
	return &Correlator{
		querier: querier,
		logger:  logger.Named("auditlog"),
		window:  window,
		clock:   time.Now,
	}
}

// SetClock overrides the time source. Must be called before use (not concurrent).
func (c *Correlator) SetClock(clock func() time.Time) {
	c.clock = clock
}

// FindResponsible returns the actor responsible for action on target, or nil
// when no audit entry targets target within the recency window measured from
// asOf. A zero asOf means "now". Errors from the service degrade to nil.
func (c *Correlator) FindResponsible(ctx context.Context, guildID, target types.EntityID, action types.ActionKind, asOf time.Time) *types.ResponsibleActor {
	if asOf.IsZero() {
		asOf = c.clock()
	}

	entries, err := c.querier.Query(ctx, guildID, action, 1)
	if err != nil {
		if !errors.Is(err, ErrPermissionDenied) {
			c.logger.Debug("audit query failed",
				zap.Uint64("guild", uint64(guildID)),
				zap.String("action", string(action)),
				zap.Error(err),
			)
		}
		return nil
	}
	if len(entries) == 0 {
		return nil
	}

	entry := entries[0]
	if entry.TargetID != target {
		return nil
	}
	if asOf.Sub(entry.CreatedAt) > c.window {
		return nil
	}

	return &types.ResponsibleActor{Actor: entry.Actor, Reason: entry.Reason}
}

// FormatReason renders the free-text reason of a resolved actor for
// inclusion in a log body.
func FormatReason(reason string) string {
	if reason == "" {
		return "with no attached reason"
	}
	return fmt.Sprintf("with reason `%s`", reason)
}
