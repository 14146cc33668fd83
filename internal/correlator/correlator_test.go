package correlator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modwatch/modwatch/internal/configstore"
	"github.com/modwatch/modwatch/internal/debounce"
	"github.com/modwatch/modwatch/internal/testutil"
	"github.com/modwatch/modwatch/internal/types"
)

const guildID = types.EntityID(1000)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

type fixture struct {
	c     *Correlator
	sink  *testutil.MemorySink
	store *configstore.MemoryStore
	audit *testutil.ScriptedQuerier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s := testutil.NewMemorySink()
	store := configstore.NewMemoryStore()
	audit := testutil.NewScriptedQuerier()

	opts := DefaultOptions()
	opts.DebounceWait = 5 * time.Millisecond

	c := New(Deps{Sink: s, Store: store, Querier: audit}, opts, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c.Start(ctx)

	return &fixture{c: c, sink: s, store: store, audit: audit}
}

func (f *fixture) waitRecords(t *testing.T, n int) []testutil.Record {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(f.sink.Records()) >= n
	}, waitFor, tick, "expected at least %d records, have %v", n, f.sink.Bodies())
	return f.sink.Records()
}

func member(id int64, username string) types.Member {
	return types.Member{ID: types.EntityID(id), Username: username}
}

func textChannel(name string) types.Channel {
	return types.Channel{ID: 2000, GuildID: guildID, Name: name}
}

func joinEvent(m types.Member) types.Event {
	return types.Event{Kind: types.EventMemberJoin, GuildID: guildID, MemberJoin: &types.MemberJoinEvent{Member: m}}
}

func removeEvent(m types.Member) types.Event {
	return types.Event{Kind: types.EventMemberRemove, GuildID: guildID, MemberRemove: &types.MemberRemoveEvent{Member: m}}
}

// Scenario: a two-day-old account joins with no suppression active. The
// record carries the new-account marker and is never amended, because joins
// are not attribution-eligible.
func TestMemberJoinNewAccount(t *testing.T) {
	f := newFixture(t)
	m := testutil.MemberCreatedAt("freshman", time.Now().Add(-48*time.Hour))

	f.c.Process(joinEvent(m))

	records := f.waitRecords(t, 1)
	assert.Contains(t, records[0].Body, "\U0001f195")
	assert.Contains(t, records[0].Body, "freshman")

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.sink.Records()[0].Amended, "join records must never be amended")
}

func TestMemberJoinOldAccountNoMarker(t *testing.T) {
	f := newFixture(t)
	m := testutil.MemberCreatedAt("veteran", time.Now().Add(-365*24*time.Hour))

	f.c.Process(joinEvent(m))

	records := f.waitRecords(t, 1)
	assert.NotContains(t, records[0].Body, "\U0001f195")
}

// Scenario: a ban registers its debounce before emitting; the trailing
// member-remove event is suppressed and consumes the entry. Exactly one
// departure record exists.
func TestBanSuppressesDeparture(t *testing.T) {
	f := newFixture(t)
	m := member(11, "troublemaker")

	f.c.Process(types.Event{Kind: types.EventMemberBan, GuildID: guildID, MemberBan: &types.MemberBanEvent{Member: m}})
	f.c.Process(removeEvent(m))

	records := f.waitRecords(t, 1)
	time.Sleep(50 * time.Millisecond)

	records = f.sink.Records()
	require.Len(t, records, 1, "only the ban record may exist: %v", f.sink.Bodies())
	assert.Contains(t, records[0].Body, "was banned")

	// Entry consumed: a second, later departure for the same member is a
	// genuine leave and must be logged.
	f.c.Process(removeEvent(m))
	records = f.waitRecords(t, 2)
	assert.Contains(t, records[1].Body, "left")
}

func TestBanAttribution(t *testing.T) {
	f := newFixture(t)
	m := member(12, "spammer")
	f.audit.AddEntry(types.ActionBan, types.AuditEntry{
		TargetID:  m.ID,
		Actor:     member(90, "mod"),
		Reason:    "repeated spam",
		CreatedAt: time.Now(),
	})

	f.c.Process(types.Event{Kind: types.EventMemberBan, GuildID: guildID, MemberBan: &types.MemberBanEvent{Member: m}})

	require.Eventually(t, func() bool {
		records := f.sink.Records()
		return len(records) == 1 && strings.Contains(records[0].Body, "was banned by mod")
	}, waitFor, tick)
	assert.Contains(t, f.sink.Records()[0].Body, "with reason `repeated spam`")
}

// Scenario: a kick. Emission happens immediately with no actor; the audit
// log then resolves and the record is amended exactly once. A later,
// unrelated entry never triggers a second amendment.
func TestKickAttributionAmendsOnce(t *testing.T) {
	f := newFixture(t)
	m := member(13, "loiterer")
	f.audit.AddEntry(types.ActionKick, types.AuditEntry{
		TargetID:  m.ID,
		Actor:     member(90, "mod"),
		Reason:    "spam",
		CreatedAt: time.Now(),
	})

	f.c.Process(removeEvent(m))

	require.Eventually(t, func() bool {
		records := f.sink.Records()
		return len(records) == 1 && strings.Contains(records[0].Body, "was kicked by mod")
	}, waitFor, tick)
	assert.Contains(t, f.sink.Records()[0].Body, "with reason `spam`")

	// A second audit entry for the same member must not amend again.
	f.audit.AddEntry(types.ActionKick, types.AuditEntry{
		TargetID:  m.ID,
		Actor:     member(91, "othermod"),
		CreatedAt: time.Now(),
	})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.sink.Records()[0].Amended)
}

func TestKickWithoutAuditEntryStaysUnamended(t *testing.T) {
	f := newFixture(t)

	f.c.Process(removeEvent(member(14, "ghost")))

	records := f.waitRecords(t, 1)
	assert.Contains(t, records[0].Body, "left")

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.sink.Records()[0].Amended)
}

func TestDepartureBounceMarker(t *testing.T) {
	f := newFixture(t)

	quick := member(15, "tourist")
	quick.JoinedAt = time.Now().Add(-10 * time.Minute)
	f.c.Process(removeEvent(quick))

	records := f.waitRecords(t, 1)
	assert.Contains(t, records[0].Body, "\U0001f3c0")

	settled := member(16, "resident")
	settled.JoinedAt = time.Now().Add(-30 * 24 * time.Hour)
	f.c.Process(removeEvent(settled))

	records = f.waitRecords(t, 2)
	assert.NotContains(t, records[1].Body, "\U0001f3c0")
}

func TestUnbanAttribution(t *testing.T) {
	f := newFixture(t)
	m := member(17, "redeemed")
	f.audit.AddEntry(types.ActionUnban, types.AuditEntry{
		TargetID:  m.ID,
		Actor:     member(90, "mod"),
		CreatedAt: time.Now(),
	})

	f.c.Process(types.Event{Kind: types.EventMemberUnban, GuildID: guildID, MemberUnban: &types.MemberUnbanEvent{Member: m}})

	require.Eventually(t, func() bool {
		records := f.sink.Records()
		return len(records) == 1 && strings.Contains(records[0].Body, "was unbanned by mod (90) with no attached reason.")
	}, waitFor, tick)
}

// Scenario: autorole assigns {A,B} and registers its debounce; a role update
// adding exactly {A,B} with no removals inside the window is suppressed. An
// update that also removes a role is logged.
func TestAutoroleDebounce(t *testing.T) {
	f := newFixture(t)
	roleA := types.Role{ID: 31, Name: "newcomer"}
	roleB := types.Role{ID: 32, Name: "verified"}
	roleC := types.Role{ID: 33, Name: "muted"}

	m := member(18, "joiner")

	f.c.Process(types.Event{Kind: types.EventAutorole, GuildID: guildID, Autorole: &types.AutoroleEvent{
		Member:     m,
		RolesAdded: []types.Role{roleA, roleB},
	}})

	before := m
	after := m
	after.Roles = []types.Role{roleA, roleB}
	f.c.Process(types.Event{Kind: types.EventMemberUpdate, GuildID: guildID, MemberUpdate: &types.MemberUpdateEvent{
		Before: before, After: after,
	}})

	// Only the autorole record appears; the role update is suppressed and
	// the debounce entry consumed.
	records := f.waitRecords(t, 1)
	assert.Contains(t, records[0].Body, "Automatically assigned roles")
	time.Sleep(100 * time.Millisecond)
	require.Len(t, f.sink.Records(), 1, "role update must be suppressed: %v", f.sink.Bodies())
	assert.False(t, f.c.Registry().IsSuppressed(guildID, m.ID, debounce.ReasonAutorole))

	// Removal present: not an autorole side effect, must be logged.
	before2 := m
	before2.Roles = []types.Role{roleC}
	after2 := m
	after2.Roles = []types.Role{roleA, roleB}
	f.c.Process(types.Event{Kind: types.EventMemberUpdate, GuildID: guildID, MemberUpdate: &types.MemberUpdateEvent{
		Before: before2, After: after2,
	}})

	records = f.waitRecords(t, 2)
	assert.Contains(t, records[1].Body, "Roles for")
	assert.Contains(t, records[1].Body, "✅")
	assert.Contains(t, records[1].Body, "❌ muted (33)")
}

func TestNickChange(t *testing.T) {
	f := newFixture(t)
	before := member(19, "sam")
	after := before
	after.Nick = "sammy"

	f.c.Process(types.Event{Kind: types.EventMemberUpdate, GuildID: guildID, MemberUpdate: &types.MemberUpdateEvent{
		Before: before, After: after,
	}})

	records := f.waitRecords(t, 1)
	assert.Contains(t, records[0].Body, "Nick for sam (19) updated: `<no nickname>` → `sammy`")
}

func TestMessageEditAdmission(t *testing.T) {
	ch := textChannel("general")
	author := member(20, "writer")
	bot := member(21, "helper")
	bot.Bot = true

	edit := func(author types.Member, before, after string) types.Event {
		return types.Event{Kind: types.EventMessageEdit, GuildID: guildID, MessageEdit: &types.MessageEditEvent{
			Before:  types.Message{ID: 40, ChannelID: ch.ID, GuildID: guildID, Author: author, Content: before},
			After:   types.Message{ID: 40, ChannelID: ch.ID, GuildID: guildID, Author: author, Content: after},
			Channel: ch,
		}}
	}

	t.Run("admitted edit", func(t *testing.T) {
		f := newFixture(t)
		f.c.Process(edit(author, "hello", "hello world"))
		records := f.waitRecords(t, 1)
		assert.Contains(t, records[0].Body, "Message by writer (20) in #general (2000) edited")
	})

	t.Run("bot author suppressed", func(t *testing.T) {
		f := newFixture(t)
		f.c.Process(edit(bot, "a", "b"))
		time.Sleep(50 * time.Millisecond)
		assert.Empty(t, f.sink.Records())
	})

	t.Run("identical body suppressed", func(t *testing.T) {
		f := newFixture(t)
		f.c.Process(edit(author, "same", "same"))
		time.Sleep(50 * time.Millisecond)
		assert.Empty(t, f.sink.Records())
	})

	t.Run("edit tracking disabled", func(t *testing.T) {
		f := newFixture(t)
		f.store.Set(guildID, types.GuildSettings{NoTrackEdits: true})
		f.c.Process(edit(author, "a", "b"))
		time.Sleep(50 * time.Millisecond)
		assert.Empty(t, f.sink.Records())
	})

	t.Run("private channel suppressed", func(t *testing.T) {
		f := newFixture(t)
		private := ch
		private.Overwrites = []types.PermissionOverwrite{{PrincipalID: guildID, DenyRead: true}}
		ev := edit(author, "a", "b")
		ev.MessageEdit.Channel = private
		f.c.Process(ev)
		time.Sleep(50 * time.Millisecond)
		assert.Empty(t, f.sink.Records())
	})

	t.Run("private channel with log-all override admitted", func(t *testing.T) {
		f := newFixture(t)
		f.store.Set(guildID, types.GuildSettings{LogAllMessageEvents: true})
		private := ch
		private.Overwrites = []types.PermissionOverwrite{{PrincipalID: guildID, DenyRead: true}}
		ev := edit(author, "a", "b")
		ev.MessageEdit.Channel = private
		f.c.Process(ev)
		f.waitRecords(t, 1)
	})
}

func deleteEvent(ch types.Channel, msg types.Message) types.Event {
	return types.Event{Kind: types.EventMessageDelete, GuildID: guildID, MessageDelete: &types.MessageDeleteEvent{
		Message: msg, Channel: ch,
	}}
}

func TestMessageDelete(t *testing.T) {
	ch := textChannel("general")
	author := member(22, "writer")

	t.Run("admitted delete with attachments", func(t *testing.T) {
		f := newFixture(t)
		f.c.Process(deleteEvent(ch, types.Message{
			ID: 50, ChannelID: ch.ID, GuildID: guildID, Author: author,
			Content:     "goodbye",
			Attachments: []types.Attachment{{Filename: "cat.png", Size: 2048}},
			EmbedCount:  1,
		}))
		records := f.waitRecords(t, 1)
		assert.Contains(t, records[0].Body, "deleted in #general")
		assert.Contains(t, records[0].Body, "cat.png")
		assert.Contains(t, records[0].Body, "1 embed(s)")
	})

	t.Run("bot author suppressed by default", func(t *testing.T) {
		f := newFixture(t)
		bot := member(23, "helper")
		bot.Bot = true
		f.c.Process(deleteEvent(ch, types.Message{ID: 51, Author: bot, Content: "beep"}))
		time.Sleep(100 * time.Millisecond)
		assert.Empty(t, f.sink.Records())
	})

	t.Run("bot author admitted when configured", func(t *testing.T) {
		f := newFixture(t)
		f.store.Set(guildID, types.GuildSettings{AllowBotDeletes: true})
		bot := member(23, "helper")
		bot.Bot = true
		f.c.Process(deleteEvent(ch, types.Message{ID: 52, Author: bot, Content: "beep"}))
		f.waitRecords(t, 1)
	})

	t.Run("unresolvable channel short-circuits", func(t *testing.T) {
		f := newFixture(t)
		f.c.Process(deleteEvent(types.Channel{}, types.Message{ID: 53, Author: author}))
		time.Sleep(100 * time.Millisecond)
		assert.Empty(t, f.sink.Records())
	})
}

// Bulk deletion registers suppressions for every message before emitting its
// own record, so the trailing per-message deletes produce nothing.
func TestBulkDeleteSuppressesIndividualDeletes(t *testing.T) {
	f := newFixture(t)
	ch := textChannel("general")
	author := member(24, "writer")

	f.c.Process(types.Event{Kind: types.EventBulkMessageDelete, GuildID: guildID, BulkMessageDelete: &types.BulkMessageDeleteEvent{
		MessageIDs: []types.EntityID{60, 61, 62},
		Channel:    ch,
	}})
	for _, id := range []types.EntityID{60, 61, 62} {
		f.c.Process(deleteEvent(ch, types.Message{ID: id, Author: author, Content: "x"}))
	}

	records := f.waitRecords(t, 1)
	assert.Contains(t, records[0].Body, "3 message(s) deleted in #general")

	time.Sleep(100 * time.Millisecond)
	require.Len(t, f.sink.Records(), 1, "per-message deletes must be suppressed: %v", f.sink.Bodies())
}

func TestCensorSuppressesDelete(t *testing.T) {
	f := newFixture(t)
	ch := textChannel("general")
	author := member(25, "writer")
	msg := types.Message{ID: 70, ChannelID: ch.ID, GuildID: guildID, Author: author, Content: "bad words"}

	f.c.Process(types.Event{Kind: types.EventMessageCensor, GuildID: guildID, MessageCensor: &types.MessageCensorEvent{
		Message:     msg,
		Channel:     ch,
		Description: "contains a banned phrase",
		ShowContent: true,
	}})
	f.c.Process(deleteEvent(ch, msg))

	records := f.waitRecords(t, 1)
	assert.Contains(t, records[0].Body, "censored: contains a banned phrase: bad words")

	time.Sleep(100 * time.Millisecond)
	require.Len(t, f.sink.Records(), 1)
}

func TestEmojiUpdate(t *testing.T) {
	f := newFixture(t)
	smile := types.Emoji{ID: 80, Name: "smile"}
	wave := types.Emoji{ID: 81, Name: "wave"}

	f.c.Process(types.Event{Kind: types.EventEmojiUpdate, GuildID: guildID, EmojiUpdate: &types.EmojiUpdateEvent{
		Before: []types.Emoji{smile},
		After:  []types.Emoji{smile, wave},
	}})

	records := f.waitRecords(t, 1)
	assert.Contains(t, records[0].Body, "Emoji updated")
	assert.Contains(t, records[0].Body, ":wave:")

	// Equal snapshots (a rename, which diffing cannot see) emit nothing.
	f.c.Process(types.Event{Kind: types.EventEmojiUpdate, GuildID: guildID, EmojiUpdate: &types.EmojiUpdateEvent{
		Before: []types.Emoji{smile},
		After:  []types.Emoji{{ID: 80, Name: "grin"}},
	}})
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, f.sink.Records(), 1)
}

func TestVoiceStateUpdate(t *testing.T) {
	f := newFixture(t)
	m := member(26, "talker")
	lobby := types.Channel{ID: 90, GuildID: guildID, Name: "lobby", Voice: true}
	den := types.Channel{ID: 91, GuildID: guildID, Name: "den", Voice: true}

	f.c.Process(types.Event{Kind: types.EventVoiceStateUpdate, GuildID: guildID, VoiceStateUpdate: &types.VoiceStateUpdateEvent{
		Member: m, After: &lobby,
	}})
	f.c.Process(types.Event{Kind: types.EventVoiceStateUpdate, GuildID: guildID, VoiceStateUpdate: &types.VoiceStateUpdateEvent{
		Member: m, Before: &lobby, After: &den,
	}})
	f.c.Process(types.Event{Kind: types.EventVoiceStateUpdate, GuildID: guildID, VoiceStateUpdate: &types.VoiceStateUpdateEvent{
		Member: m, Before: &den,
	}})

	records := f.waitRecords(t, 3)
	assert.Contains(t, records[0].Body, "joined #lobby")
	assert.Contains(t, records[1].Body, "moved from #lobby (90) to #den (91)")
	assert.Contains(t, records[2].Body, "left #den")
}

func TestGatekeeperBlocksJoin(t *testing.T) {
	f := newFixture(t)
	f.store.Set(guildID, types.GuildSettings{GatekeeperEnabled: true, BlockAll: true})

	f.c.Process(joinEvent(testutil.MemberCreatedAt("anyone", time.Now().Add(-time.Hour))))

	records := f.waitRecords(t, 1)
	assert.Contains(t, records[0].Body, "Bounced anyone")
	assert.Contains(t, records[0].Body, "Blocking all users")

	time.Sleep(50 * time.Millisecond)
	require.Len(t, f.sink.Records(), 1, "no join record after a bounce")
}

func TestCrossGuildIsolation(t *testing.T) {
	f := newFixture(t)
	other := types.EntityID(2000)

	f.c.Process(joinEvent(testutil.MemberCreatedAt("a", time.Now().Add(-time.Hour))))
	ev := joinEvent(testutil.MemberCreatedAt("b", time.Now().Add(-time.Hour)))
	ev.GuildID = other
	f.c.Process(ev)

	require.Eventually(t, func() bool {
		records := f.sink.Records()
		if len(records) != 2 {
			return false
		}
		guilds := map[types.EntityID]bool{}
		for _, r := range records {
			guilds[r.Handle.GuildID] = true
		}
		return guilds[guildID] && guilds[other]
	}, waitFor, tick)
}

func TestTimePrefixOnRecords(t *testing.T) {
	f := newFixture(t)
	f.c.Process(joinEvent(testutil.MemberCreatedAt("clockwatcher", time.Now().Add(-time.Hour))))

	records := f.waitRecords(t, 1)
	assert.Regexp(t, "^`\\[[0-9]{2}:[0-9]{2}\\]` ", records[0].Body)
}

func TestGuildLimiter(t *testing.T) {
	l := newGuildLimiter(1, 1)
	assert.True(t, l.Allow(1))
	assert.False(t, l.Allow(1), "burst exhausted")
	assert.True(t, l.Allow(2), "guilds do not share buckets")
}
