// Package correlator is the engine's orchestrator: it admits or suppresses
// incoming gateway events, emits audit-trail records, and asynchronously
// amends them with the responsible actor resolved from the audit log.
//
// # Contract
//
// Per logical event the state machine is one of:
//
//	Admitted → Suppressed                                (terminal)
//	Admitted → Emitted                                   (terminal, not attribution-eligible)
//	Admitted → Emitted → AttributionPending → Amended    (terminal)
//
// Admission rules, first match wins:
//  1. Bot-authored content change, or an edit with identical body → suppressed.
//  2. Channel not publicly visible, or tracking disabled for the category → suppressed.
//  3. Subject carries a matching debounce entry (ban for departures,
//     bulk-delete or censorship for message deletes, autorole subset for role
//     additions) → suppressed, entry consumed.
//  4. Otherwise admitted and emitted.
//
// # Race handling
//
// Role-update and message-delete events wait a fixed delay before evaluating
// rule 3, because the causing handler may register its debounce entry
// microseconds after the triggering gateway event. The delay narrows the
// race; it does not eliminate it. Producers must register suppressions
// before they emit anything of their own.
//
// # Concurrency
//
// Events are serialized per guild through a buffered channel and worker
// goroutine, so cross-guild processing never contends. The delayed rule-3
// checks and all attribution lookups run on separate goroutines so they do
// not stall the guild's queue. Attribution either completes within its
// recency window or is abandoned silently; a record is amended at most once.
//
// # Constructor
//
//	func New(deps Deps, opts Options, logger *zap.Logger) *Correlator
//	func (c *Correlator) Start(ctx context.Context)      // non-blocking
//	func (c *Correlator) Process(ev types.Event)
package correlator
