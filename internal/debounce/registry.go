// Package debounce holds short-lived, one-shot suppressions that prevent
// side-effect events from being logged independently of the action that
// caused them (a ban suppresses the trailing departure, a bulk delete
// suppresses the per-message deletes, and so on).
//
// # Contract
//
// A suppression is registered by the handler performing the causing action,
// before that handler emits anything. The handler for the side-effect event
// consults the registry, and on a hit consumes the entry so it cannot
// suppress a second, later, unrelated event for the same subject. Lookups on
// absent keys simply report "not suppressed"; there are no failure modes.
//
// State is confined per guild and lost on restart, which is acceptable:
// suppression only bridges races within one event burst.
package debounce

import (
	"context"
	"sync"
	"time"

	"github.com/modwatch/modwatch/internal/types"
)

// Reason tags why a subject is suppressed. A subject may carry several
// suppressions under different reasons at once; they never shadow each other.
type Reason string

const (
	// ReasonBan marks a departure as the side effect of a ban.
	ReasonBan Reason = "ban"
	// ReasonBulkDelete marks a message delete as part of a bulk deletion.
	ReasonBulkDelete Reason = "bulk_delete"
	// ReasonCensor marks a message delete as performed by the content filter.
	ReasonCensor Reason = "censor"
	// ReasonAutorole marks a role update as automatic role assignment. The
	// entry payload carries the assigned role IDs for partial matching.
	ReasonAutorole Reason = "autorole"
)

type key struct {
	subjectID types.EntityID
	reason    Reason
}

type entry struct {
	payload      any
	registeredAt time.Time
}

// Registry is an in-memory suppression store keyed by guild, subject, and
// reason. Safe for concurrent use. Entries are removed by Consume; when a
// TTL is configured, unconsumed entries are additionally evicted in the
// background so abandoned suppressions do not accumulate for the process
// lifetime.
type Registry struct {
	mu     sync.Mutex
	guilds map[types.EntityID]map[key][]entry
	ttl    time.Duration
	clock  func() time.Time
}

// New creates a Registry. A zero ttl disables background eviction.
func New(ttl time.Duration) *Registry {
	return &Registry{
		guilds: make(map[types.EntityID]map[key][]entry),
		ttl:    ttl,
		clock:  time.Now,
	}
}

// SetClock overrides the time source. Must be called before use (not concurrent).
func (r *Registry) SetClock(clock func() time.Time) {
	r.clock = clock
}

// Suppress registers a one-shot suppression for subjectID under reason.
// Multiple calls stack: each registers an independent entry.
func (r *Registry) Suppress(guildID, subjectID types.EntityID, reason Reason) {
	r.SuppressPayload(guildID, subjectID, reason, nil)
}

// SuppressPayload registers a suppression carrying auxiliary data used for
// partial matching, such as the set of auto-assigned role IDs.
func (r *Registry) SuppressPayload(guildID, subjectID types.EntityID, reason Reason, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.guilds[guildID]
	if !ok {
		g = make(map[key][]entry)
		r.guilds[guildID] = g
	}
	k := key{subjectID: subjectID, reason: reason}
	g[k] = append(g[k], entry{payload: payload, registeredAt: r.clock()})
}

// IsSuppressed reports whether at least one live suppression exists for
// subjectID under reason. It does not consume the entry.
func (r *Registry) IsSuppressed(guildID, subjectID types.EntityID, reason Reason) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live(guildID, key{subjectID: subjectID, reason: reason})) > 0
}

// PayloadMatch returns the payload of the first live suppression for
// subjectID under reason accepted by pred, or (nil, false) when none
// qualifies. It does not consume the entry.
func (r *Registry) PayloadMatch(guildID, subjectID types.EntityID, reason Reason, pred func(payload any) bool) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.live(guildID, key{subjectID: subjectID, reason: reason}) {
		if pred(e.payload) {
			return e.payload, true
		}
	}
	return nil, false
}

// Consume removes one suppression for subjectID under reason and reports
// whether one existed. Once consumed, the entry cannot suppress a later
// event for the same subject and reason.
func (r *Registry) Consume(guildID, subjectID types.EntityID, reason Reason) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.guilds[guildID]
	if !ok {
		return false
	}
	k := key{subjectID: subjectID, reason: reason}
	entries := r.pruneExpired(g, k)
	if len(entries) == 0 {
		return false
	}
	if len(entries) == 1 {
		delete(g, k)
	} else {
		g[k] = entries[1:]
	}
	return true
}

// Start runs background TTL eviction until ctx is cancelled. No-op when the
// Registry was created without a TTL.
func (r *Registry) Start(ctx context.Context) {
	if r.ttl <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(r.ttl)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.evictExpired()
			}
		}
	}()
}

// live returns the unexpired entries for k, pruning expired ones in passing.
// Caller must hold r.mu.
func (r *Registry) live(guildID types.EntityID, k key) []entry {
	g, ok := r.guilds[guildID]
	if !ok {
		return nil
	}
	return r.pruneExpired(g, k)
}

// pruneExpired drops expired entries for k and returns the survivors.
// Caller must hold r.mu.
func (r *Registry) pruneExpired(g map[key][]entry, k key) []entry {
	entries := g[k]
	if r.ttl <= 0 || len(entries) == 0 {
		return entries
	}
	cutoff := r.clock().Add(-r.ttl)
	kept := entries[:0]
	for _, e := range entries {
		if !e.registeredAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(g, k)
		return nil
	}
	g[k] = kept
	return kept
}

func (r *Registry) evictExpired() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for guildID, g := range r.guilds {
		for k := range g {
			r.pruneExpired(g, k)
		}
		if len(g) == 0 {
			delete(r.guilds, guildID)
		}
	}
}
