package correlator

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/modwatch/modwatch/internal/auditlog"
	"github.com/modwatch/modwatch/internal/configstore"
	"github.com/modwatch/modwatch/internal/debounce"
	"github.com/modwatch/modwatch/internal/diff"
	"github.com/modwatch/modwatch/internal/format"
	"github.com/modwatch/modwatch/internal/gatekeeper"
	"github.com/modwatch/modwatch/internal/sink"
	"github.com/modwatch/modwatch/internal/types"
	"github.com/modwatch/modwatch/internal/visibility"
)

const (
	// Per-guild event queue size; excess events are dropped with a metric.
	guildQueueSize = 256

	// Rate limit per guild: 100 events/second.
	eventRateLimit = 100
	eventRateBurst = 200
)

// Options holds the engine's tunable constants. The defaults are empirical
// values matched to observed platform timing; keep them unless you know the
// platform's audit-log propagation characteristics have changed.
type Options struct {
	// AttributionWindow bounds how old an audit entry may be to count as the
	// cause of an event, measured from emission time.
	AttributionWindow time.Duration

	// DebounceWait is the deliberate delay before role-update and
	// message-delete events evaluate their debounce checks, giving the
	// causing handler time to register its suppression first.
	DebounceWait time.Duration

	// DebounceTTL, when positive, evicts unconsumed suppressions in the
	// background instead of letting them accumulate for the process lifetime.
	DebounceTTL time.Duration

	// BounceThreshold marks a departure as likely unwanted when the
	// membership lasted less than this.
	BounceThreshold time.Duration

	// NewAccountThreshold marks a join as a fresh account when the account
	// is younger than this.
	NewAccountThreshold time.Duration

	// EditTruncate and DeleteTruncate bound quoted message content in runes.
	EditTruncate   int
	DeleteTruncate int
}

// DefaultOptions returns the observed production constants: a 2s attribution
// window, 500ms debounce rendezvous, 1500s bounce threshold, and a 7 day
// new-account threshold.
func DefaultOptions() Options {
	return Options{
		AttributionWindow:   auditlog.DefaultRecencyWindow,
		DebounceWait:        500 * time.Millisecond,
		BounceThreshold:     1500 * time.Second,
		NewAccountThreshold: 7 * 24 * time.Hour,
		EditTruncate:        900,
		DeleteTruncate:      1500,
	}
}

// Deps are the external collaborators the correlator orchestrates.
type Deps struct {
	Sink    sink.Sink
	Store   configstore.Store
	Querier auditlog.Querier
}

// Correlator owns and sequences all records and suppressions for each guild.
type Correlator struct {
	logger     *zap.Logger
	opts       Options
	sink       sink.Sink
	store      configstore.Store
	visibility *visibility.Classifier
	audit      *auditlog.Correlator
	registry   *debounce.Registry
	checks     []gatekeeper.Check
	limiter    *guildLimiter
	clock      func() time.Time

	ctx context.Context

	mu     sync.Mutex
	queues map[types.EntityID]chan types.Event

	// wg tracks the delayed handlers and attribution goroutines so tests and
	// shutdown can account for in-flight work.
	wg sync.WaitGroup
}

// New creates a Correlator. Call Start before Process.
func New(deps Deps, opts Options, logger *zap.Logger) *Correlator {
	def := DefaultOptions()
	if opts.AttributionWindow <= 0 {
		opts.AttributionWindow = def.AttributionWindow
	}
	if opts.DebounceWait <= 0 {
		opts.DebounceWait = def.DebounceWait
	}
	if opts.BounceThreshold <= 0 {
		opts.BounceThreshold = def.BounceThreshold
	}
	if opts.NewAccountThreshold <= 0 {
		opts.NewAccountThreshold = def.NewAccountThreshold
	}
	if opts.EditTruncate <= 0 {
		opts.EditTruncate = def.EditTruncate
	}
	if opts.DeleteTruncate <= 0 {
		opts.DeleteTruncate = def.DeleteTruncate
	}

	return &Correlator{
		logger:     logger.Named("correlator"),
		opts:       opts,
		sink:       deps.Sink,
		store:      deps.Store,
		visibility: visibility.New(deps.Store),
		audit:      auditlog.New(deps.Querier, logger, opts.AttributionWindow),
		registry:   debounce.New(opts.DebounceTTL),
		checks:     gatekeeper.DefaultChecks(),
		limiter:    newGuildLimiter(eventRateLimit, eventRateBurst),
		clock:      time.Now,
		queues:     make(map[types.EntityID]chan types.Event),
	}
}

// SetClock overrides the time source. Must be called before Start (not concurrent).
func (c *Correlator) SetClock(clock func() time.Time) {
	c.clock = clock
	c.audit.SetClock(clock)
	c.registry.SetClock(clock)
}

// Registry exposes the suppression store so external producers (a censorship
// filter running in the same process, for example) can register suppressions
// directly instead of routing a synthetic event.
func (c *Correlator) Registry() *debounce.Registry {
	return c.registry
}

// Start begins background eviction and binds the lifetime context.
// Non-blocking; Process must not be called before Start.
func (c *Correlator) Start(ctx context.Context) {
	c.ctx = ctx
	c.registry.Start(ctx)
	go c.evictLimiters(ctx)
}

// Process routes an event to its guild's worker. Events for unknown guilds
// spin up a worker lazily; events beyond the guild's rate or queue capacity
// are dropped with a metric.
func (c *Correlator) Process(ev types.Event) {
	if ev.GuildID == 0 {
		return
	}
	eventsTotal.WithLabelValues(string(ev.Kind)).Inc()

	if !c.limiter.Allow(ev.GuildID) {
		suppressedTotal.WithLabelValues("rate_limited").Inc()
		c.logger.Debug("event rate limited", zap.Uint64("guild", uint64(ev.GuildID)))
		return
	}

	select {
	case c.queueFor(ev.GuildID) <- ev:
	default:
		suppressedTotal.WithLabelValues("queue_full").Inc()
		c.logger.Warn("guild queue full, dropping event",
			zap.Uint64("guild", uint64(ev.GuildID)),
			zap.String("kind", string(ev.Kind)),
		)
	}
}

func (c *Correlator) queueFor(guildID types.EntityID) chan types.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[guildID]
	if !ok {
		q = make(chan types.Event, guildQueueSize)
		c.queues[guildID] = q
		go c.runGuild(q)
	}
	return q
}

// runGuild processes one guild's events in arrival order.
func (c *Correlator) runGuild(q chan types.Event) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-q:
			c.dispatch(ev)
		}
	}
}

func (c *Correlator) dispatch(ev types.Event) {
	switch ev.Kind {
	case types.EventMemberJoin:
		if ev.MemberJoin != nil {
			c.handleMemberJoin(ev.GuildID, *ev.MemberJoin)
		}
	case types.EventMemberRemove:
		if ev.MemberRemove != nil {
			c.handleMemberRemove(ev.GuildID, *ev.MemberRemove)
		}
	case types.EventMemberBan:
		if ev.MemberBan != nil {
			c.handleMemberBan(ev.GuildID, *ev.MemberBan)
		}
	case types.EventMemberUnban:
		if ev.MemberUnban != nil {
			c.handleMemberUnban(ev.GuildID, *ev.MemberUnban)
		}
	case types.EventMemberUpdate:
		if ev.MemberUpdate != nil {
			c.handleMemberUpdate(ev.GuildID, *ev.MemberUpdate)
		}
	case types.EventVoiceStateUpdate:
		if ev.VoiceStateUpdate != nil {
			c.handleVoiceStateUpdate(ev.GuildID, *ev.VoiceStateUpdate)
		}
	case types.EventMessageEdit:
		if ev.MessageEdit != nil {
			c.handleMessageEdit(ev.GuildID, *ev.MessageEdit)
		}
	case types.EventMessageDelete:
		if ev.MessageDelete != nil {
			c.handleMessageDelete(ev.GuildID, *ev.MessageDelete)
		}
	case types.EventBulkMessageDelete:
		if ev.BulkMessageDelete != nil {
			c.handleBulkMessageDelete(ev.GuildID, *ev.BulkMessageDelete)
		}
	case types.EventEmojiUpdate:
		if ev.EmojiUpdate != nil {
			c.handleEmojiUpdate(ev.GuildID, *ev.EmojiUpdate)
		}
	case types.EventMessageCensor:
		if ev.MessageCensor != nil {
			c.handleMessageCensor(ev.GuildID, *ev.MessageCensor)
		}
	case types.EventAutorole:
		if ev.Autorole != nil {
			c.handleAutorole(ev.GuildID, *ev.Autorole)
		}
	default:
		c.logger.Debug("unrecognized event kind", zap.String("kind", string(ev.Kind)))
	}
}

// settings fetches the guild's configuration, degrading to zero values when
// the store is unreachable.
func (c *Correlator) settings(guildID types.EntityID) types.GuildSettings {
	s, err := c.store.Settings(c.ctx, guildID)
	if err != nil {
		c.logger.Debug("config store unreachable, using defaults",
			zap.Uint64("guild", uint64(guildID)), zap.Error(err))
		return types.GuildSettings{}
	}
	return s
}

// emit sends a record prefixed with the wall-clock marker. Send failures are
// logged and swallowed; no record exists to amend afterwards.
func (c *Correlator) emit(guildID types.EntityID, body string) (sink.Handle, bool) {
	h, err := c.sink.Send(c.ctx, guildID, format.TimePrefix(c.clock(), body))
	if err != nil {
		c.logger.Warn("record send failed", zap.Uint64("guild", uint64(guildID)), zap.Error(err))
		return sink.Handle{}, false
	}
	recordsTotal.Inc()
	return h, true
}

// attribute asynchronously resolves the responsible actor for action on
// target and rewrites the record once. The recency window is measured from
// emission time; an unresolved lookup leaves the record as emitted, with no
// retry.
func (c *Correlator) attribute(guildID, target types.EntityID, action types.ActionKind, h sink.Handle, rewrite func(actor types.ResponsibleActor) string) {
	emittedAt := c.clock()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		actor := c.audit.FindResponsible(c.ctx, guildID, target, action, emittedAt)
		if actor == nil {
			attributionTotal.WithLabelValues("absent").Inc()
			return
		}
		body := format.TimePrefix(c.clock(), rewrite(*actor))
		if err := c.sink.Amend(c.ctx, h, body); err != nil {
			c.logger.Debug("record amendment failed", zap.Error(err))
			attributionTotal.WithLabelValues("amend_failed").Inc()
			return
		}
		attributionTotal.WithLabelValues("resolved").Inc()
	}()
}

// delayed runs fn after the debounce rendezvous wait without stalling the
// guild's queue, so the causing handler can register its suppression in the
// meantime.
func (c *Correlator) delayed(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.opts.DebounceWait):
		}
		fn()
	}()
}

func suppress(reason string) {
	suppressedTotal.WithLabelValues(reason).Inc()
}

// formatDeparture renders a member leaving the guild. Members who joined
// less than the bounce threshold ago gain a marker signaling a likely
// unwanted or raid-related departure. Bare users (no membership record) get
// neither the marker nor the join age.
func (c *Correlator) formatDeparture(m types.Member, verb, emoji string) string {
	now := c.clock()
	if m.JoinedAt.IsZero() {
		return fmt.Sprintf("%s %s", emoji, format.Describe(m, format.DescribeOptions{
			Before: verb, Created: true, Now: now,
		}))
	}

	bounce := ""
	if now.Sub(m.JoinedAt) <= c.opts.BounceThreshold {
		bounce = "\U0001f3c0 "
	}
	return fmt.Sprintf("%s %s%s", emoji, bounce, format.Describe(m, format.DescribeOptions{
		Before: verb, Created: true, Joined: true, Now: now,
	}))
}

func (c *Correlator) handleMemberJoin(guildID types.EntityID, ev types.MemberJoinEvent) {
	settings := c.settings(guildID)

	if settings.GatekeeperEnabled {
		d := gatekeeper.Evaluate(c.checks, gatekeeper.Context{
			Member: ev.Member, Settings: settings, Now: c.clock(),
		})
		for _, report := range d.Reports {
			c.emit(guildID, "❌ "+report)
		}
		if d.Blocked {
			c.emit(guildID, fmt.Sprintf("⛔ Bounced %s: %s",
				format.Describe(ev.Member, format.DescribeOptions{Created: true, Now: c.clock()}),
				d.BlockReason))
			suppress("gatekeeper_block")
			return
		}
	}

	newMarker := ""
	if c.clock().Sub(types.CreationTime(ev.Member.ID)) <= c.opts.NewAccountThreshold {
		newMarker = "\U0001f195 "
	}
	c.emit(guildID, fmt.Sprintf("\U0001f4e5 %s%s", newMarker,
		format.Describe(ev.Member, format.DescribeOptions{Created: true, Now: c.clock()})))
}

func (c *Correlator) handleMemberBan(guildID types.EntityID, ev types.MemberBanEvent) {
	// Register before emitting so the trailing member-remove event cannot
	// slip past the check.
	c.registry.Suppress(guildID, ev.Member.ID, debounce.ReasonBan)

	const verb = "was banned"
	const emoji = "\U0001f528"
	h, ok := c.emit(guildID, c.formatDeparture(ev.Member, verb, emoji))
	if !ok {
		return
	}

	member := ev.Member
	c.attribute(guildID, member.ID, types.ActionBan, h, func(actor types.ResponsibleActor) string {
		v := fmt.Sprintf("%s by %s %s", verb,
			format.Describe(actor.Actor, format.DescribeOptions{}),
			auditlog.FormatReason(actor.Reason))
		return c.formatDeparture(member, v, emoji)
	})
}

func (c *Correlator) handleMemberRemove(guildID types.EntityID, ev types.MemberRemoveEvent) {
	// The ban handler already emitted this departure.
	if c.registry.Consume(guildID, ev.Member.ID, debounce.ReasonBan) {
		suppress("debounce_ban")
		return
	}

	h, ok := c.emit(guildID, c.formatDeparture(ev.Member, "left", "\U0001f4e4"))
	if !ok {
		return
	}

	// The departure might have been a kick; check for that.
	member := ev.Member
	c.attribute(guildID, member.ID, types.ActionKick, h, func(actor types.ResponsibleActor) string {
		v := fmt.Sprintf("was kicked by %s %s",
			format.Describe(actor.Actor, format.DescribeOptions{}),
			auditlog.FormatReason(actor.Reason))
		return c.formatDeparture(member, v, "\U0001f462")
	})
}

func (c *Correlator) handleMemberUnban(guildID types.EntityID, ev types.MemberUnbanEvent) {
	base := fmt.Sprintf("\U0001f528 %s was unbanned",
		format.Describe(ev.Member, format.DescribeOptions{}))
	h, ok := c.emit(guildID, base+".")
	if !ok {
		return
	}

	c.attribute(guildID, ev.Member.ID, types.ActionUnban, h, func(actor types.ResponsibleActor) string {
		return fmt.Sprintf("%s by %s %s.", base,
			format.Describe(actor.Actor, format.DescribeOptions{}),
			auditlog.FormatReason(actor.Reason))
	})
}

func (c *Correlator) handleMemberUpdate(guildID types.EntityID, ev types.MemberUpdateEvent) {
	before, after := ev.Before, ev.After

	switch {
	case before.Nick != after.Nick:
		c.emit(guildID, fmt.Sprintf("\U0001f4db Nick for %s updated: `%s` → `%s`",
			format.Describe(before, format.DescribeOptions{}),
			orPlaceholder(before.Nick), orPlaceholder(after.Nick)))

	case before.Username != after.Username:
		c.emit(guildID, fmt.Sprintf("\U0001f4db Username for %s updated: `%s` → `%s`",
			format.Describe(before, format.DescribeOptions{}),
			before.Username, after.Username))

	case !sameRoles(before.Roles, after.Roles):
		// Wait for a possible autorole debounce registration.
		c.delayed(func() { c.finishRoleUpdate(guildID, before, after) })
	}
}

// finishRoleUpdate runs after the rendezvous delay: diff the role snapshots,
// suppress pure autorole additions, otherwise emit and attribute.
func (c *Correlator) finishRoleUpdate(guildID types.EntityID, before, after types.Member) {
	added, removed := diff.Roles(before.Roles, after.Roles)
	if len(added) == 0 && len(removed) == 0 {
		suppress("no_change")
		return
	}

	// Suppressed when every added role is in the recorded auto-assigned set
	// and nothing was removed.
	if len(removed) == 0 {
		if _, ok := c.registry.PayloadMatch(guildID, before.ID, debounce.ReasonAutorole, func(payload any) bool {
			assigned, ok := payload.([]types.EntityID)
			if !ok {
				return false
			}
			for _, role := range added {
				if !slices.Contains(assigned, role.ID) {
					return false
				}
			}
			return true
		}); ok {
			c.registry.Consume(guildID, before.ID, debounce.ReasonAutorole)
			suppress("debounce_autorole")
			return
		}
	}

	head := fmt.Sprintf("\U0001f511 Roles for %s were updated",
		format.Describe(before, format.DescribeOptions{}))
	diffs := format.DescribeDifferences(added, removed)

	h, ok := c.emit(guildID, fmt.Sprintf("%s: %s", head, diffs))
	if !ok {
		return
	}

	c.attribute(guildID, before.ID, types.ActionMemberRoleUpdate, h, func(actor types.ResponsibleActor) string {
		return fmt.Sprintf("%s by %s: %s", head,
			format.Describe(actor.Actor, format.DescribeOptions{}), diffs)
	})
}

func (c *Correlator) handleVoiceStateUpdate(guildID types.EntityID, ev types.VoiceStateUpdateEvent) {
	who := format.Describe(ev.Member, format.DescribeOptions{})
	const emoji = "\U0001f4e2"

	switch {
	case ev.Before != nil && ev.After == nil:
		c.emit(guildID, fmt.Sprintf("%s\U0001f4e4 %s left %s", emoji, who, ev.Before))
	case ev.Before == nil && ev.After != nil:
		c.emit(guildID, fmt.Sprintf("%s\U0001f4e5 %s joined %s", emoji, who, ev.After))
	case ev.Before != nil && ev.After != nil && ev.Before.ID != ev.After.ID:
		c.emit(guildID, fmt.Sprintf("%s\U0001f504 %s moved from %s to %s", emoji, who, ev.Before, ev.After))
	}
}

func (c *Correlator) handleMessageEdit(guildID types.EntityID, ev types.MessageEditEvent) {
	// Bots edit their own messages constantly (embeds resolving, etc.);
	// identical bodies mean the platform touched metadata only.
	if ev.Before.Author.Bot || ev.Before.Content == ev.After.Content {
		suppress("bot_or_no_change")
		return
	}

	settings := c.settings(guildID)
	if settings.NoTrackEdits {
		suppress("tracking_disabled")
		return
	}
	if !c.visibility.IsPubliclyVisible(c.ctx, guildID, ev.Channel) {
		suppress("not_visible")
		return
	}

	mBefore := format.PreventCodeblockBreakout(format.Truncate(ev.Before.Content, c.opts.EditTruncate))
	mAfter := format.PreventCodeblockBreakout(format.Truncate(ev.After.Content, c.opts.EditTruncate))

	c.emit(guildID, fmt.Sprintf("\U0001f4dd Message by %s in %s edited: %s to %s",
		format.Describe(ev.Before.Author, format.DescribeOptions{}),
		ev.Channel, format.Codeblock(mBefore), format.Codeblock(mAfter)))
}

func (c *Correlator) handleMessageDelete(guildID types.EntityID, ev types.MessageDeleteEvent) {
	if ev.Channel.ID == 0 {
		suppress("unresolvable_channel")
		return
	}

	// This message may be about to land in a bulk-delete or censorship
	// suppression registered by a concurrent handler.
	c.delayed(func() { c.finishMessageDelete(guildID, ev) })
}

func (c *Correlator) finishMessageDelete(guildID types.EntityID, ev types.MessageDeleteEvent) {
	msg := ev.Message

	if c.registry.Consume(guildID, msg.ID, debounce.ReasonBulkDelete) {
		suppress("debounce_bulk_delete")
		return
	}
	if c.registry.Consume(guildID, msg.ID, debounce.ReasonCensor) {
		suppress("debounce_censor")
		return
	}

	settings := c.settings(guildID)
	if settings.NoTrackDeletes {
		suppress("tracking_disabled")
		return
	}
	if !c.visibility.IsPubliclyVisible(c.ctx, guildID, ev.Channel) {
		suppress("not_visible")
		return
	}
	if msg.Author.Bot && !settings.AllowBotDeletes {
		suppress("bot_author")
		return
	}

	content := format.PreventCodeblockBreakout(format.Truncate(msg.Content, c.opts.DeleteTruncate))
	c.emit(guildID, fmt.Sprintf("\U0001f6ae Message by %s deleted in %s: %s (%s, %d embed(s))",
		format.Describe(msg.Author, format.DescribeOptions{}),
		ev.Channel, format.Codeblock(content),
		format.Attachments(msg.Attachments), msg.EmbedCount))
}

func (c *Correlator) handleBulkMessageDelete(guildID types.EntityID, ev types.BulkMessageDeleteEvent) {
	// Register every suppression before anything else: the per-message
	// delete events are already in flight.
	for _, id := range ev.MessageIDs {
		c.registry.Suppress(guildID, id, debounce.ReasonBulkDelete)
	}

	if ev.Channel.ID == 0 {
		suppress("unresolvable_channel")
		return
	}

	c.emit(guildID, fmt.Sprintf("\U0001f6ae %d message(s) deleted in %s",
		len(ev.MessageIDs), ev.Channel))
}

func (c *Correlator) handleMessageCensor(guildID types.EntityID, ev types.MessageCensorEvent) {
	// The censorship filter deleted the message itself; its delete event
	// must not be logged independently.
	c.registry.Suppress(guildID, ev.Message.ID, debounce.ReasonCensor)

	content := ""
	if ev.ShowContent {
		content = ": " + ev.Message.Content
	}
	c.emit(guildID, fmt.Sprintf("*⃣ Message by %s in %s censored: %s%s",
		format.Describe(ev.Message.Author, format.DescribeOptions{}),
		ev.Channel, ev.Description, content))
}

func (c *Correlator) handleEmojiUpdate(guildID types.EntityID, ev types.EmojiUpdateEvent) {
	added, removed := diff.Emoji(ev.Before, ev.After)
	if len(added) == 0 && len(removed) == 0 {
		// A rename keeps the ID; diffing by ID cannot see it.
		suppress("no_change")
		return
	}
	c.emit(guildID, "\U0001f533 Emoji updated: "+format.DescribeDifferences(added, removed))
}

func (c *Correlator) handleAutorole(guildID types.EntityID, ev types.AutoroleEvent) {
	if ev.Failed {
		c.emit(guildID, fmt.Sprintf("\U0001f4d5 Failed to automatically assign roles for %s",
			format.Describe(ev.Member, format.DescribeOptions{})))
		return
	}

	body := fmt.Sprintf("\U0001f516 Automatically assigned roles to %s",
		format.Describe(ev.Member, format.DescribeOptions{}))

	if len(ev.RolesAdded) > 0 {
		names := make([]string, len(ev.RolesAdded))
		ids := make([]types.EntityID, len(ev.RolesAdded))
		for i, role := range ev.RolesAdded {
			names[i] = role.String()
			ids[i] = role.ID
		}
		body += ", added roles: " + strings.Join(names, ", ")

		// Record the assigned set so the trailing member-update event is
		// recognized as this assignment and not logged again.
		c.registry.SuppressPayload(guildID, ev.Member.ID, debounce.ReasonAutorole, ids)
	}

	c.emit(guildID, body)
}

func sameRoles(before, after []types.Role) bool {
	return slices.EqualFunc(before, after, func(a, b types.Role) bool { return a.ID == b.ID })
}

func orPlaceholder(nick string) string {
	if nick == "" {
		return "<no nickname>"
	}
	return nick
}
