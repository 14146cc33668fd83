package types

import "time"

// EventKind identifies a gateway event category.
type EventKind string

const (
	EventMemberJoin        EventKind = "member_join"
	EventMemberRemove      EventKind = "member_remove"
	EventMemberBan         EventKind = "member_ban"
	EventMemberUnban       EventKind = "member_unban"
	EventMemberUpdate      EventKind = "member_update"
	EventVoiceStateUpdate  EventKind = "voice_state_update"
	EventMessageEdit       EventKind = "message_edit"
	EventMessageDelete     EventKind = "message_delete"
	EventBulkMessageDelete EventKind = "bulk_message_delete"
	EventEmojiUpdate       EventKind = "emoji_update"
	EventMessageCensor     EventKind = "message_censor"
	EventAutorole          EventKind = "autorole"
)

// Event is the envelope delivered by the event source. Exactly one payload
// field is populated, matching Kind. Delivery order within a guild is
// arrival order; there is no ordering guarantee across guilds.
type Event struct {
	Kind      EventKind `json:"kind"`
	GuildID   EntityID  `json:"guild_id"`
	Timestamp time.Time `json:"timestamp,omitzero"`

	MemberJoin        *MemberJoinEvent        `json:"member_join,omitempty"`
	MemberRemove      *MemberRemoveEvent      `json:"member_remove,omitempty"`
	MemberBan         *MemberBanEvent         `json:"member_ban,omitempty"`
	MemberUnban       *MemberUnbanEvent       `json:"member_unban,omitempty"`
	MemberUpdate      *MemberUpdateEvent      `json:"member_update,omitempty"`
	VoiceStateUpdate  *VoiceStateUpdateEvent  `json:"voice_state_update,omitempty"`
	MessageEdit       *MessageEditEvent       `json:"message_edit,omitempty"`
	MessageDelete     *MessageDeleteEvent     `json:"message_delete,omitempty"`
	BulkMessageDelete *BulkMessageDeleteEvent `json:"bulk_message_delete,omitempty"`
	EmojiUpdate       *EmojiUpdateEvent       `json:"emoji_update,omitempty"`
	MessageCensor     *MessageCensorEvent     `json:"message_censor,omitempty"`
	Autorole          *AutoroleEvent          `json:"autorole,omitempty"`
}

// Payload returns the populated payload, or nil when the payload field does
// not match Kind.
func (e Event) Payload() any {
	switch e.Kind {
	case EventMemberJoin:
		if e.MemberJoin != nil {
			return e.MemberJoin
		}
	case EventMemberRemove:
		if e.MemberRemove != nil {
			return e.MemberRemove
		}
	case EventMemberBan:
		if e.MemberBan != nil {
			return e.MemberBan
		}
	case EventMemberUnban:
		if e.MemberUnban != nil {
			return e.MemberUnban
		}
	case EventMemberUpdate:
		if e.MemberUpdate != nil {
			return e.MemberUpdate
		}
	case EventVoiceStateUpdate:
		if e.VoiceStateUpdate != nil {
			return e.VoiceStateUpdate
		}
	case EventMessageEdit:
		if e.MessageEdit != nil {
			return e.MessageEdit
		}
	case EventMessageDelete:
		if e.MessageDelete != nil {
			return e.MessageDelete
		}
	case EventBulkMessageDelete:
		if e.BulkMessageDelete != nil {
			return e.BulkMessageDelete
		}
	case EventEmojiUpdate:
		if e.EmojiUpdate != nil {
			return e.EmojiUpdate
		}
	case EventMessageCensor:
		if e.MessageCensor != nil {
			return e.MessageCensor
		}
	case EventAutorole:
		if e.Autorole != nil {
			return e.Autorole
		}
	}
	return nil
}

// MemberJoinEvent reports a user joining a guild.
type MemberJoinEvent struct {
	Member Member `json:"member"`
}

// MemberRemoveEvent reports a user leaving a guild for any reason, including
// kicks and bans. Ban departures are suppressed via the ban debounce.
type MemberRemoveEvent struct {
	Member Member `json:"member"`
}

// MemberBanEvent reports a user being banned.
type MemberBanEvent struct {
	Member Member `json:"member"`
}

// MemberUnbanEvent reports a user being unbanned.
type MemberUnbanEvent struct {
	Member Member `json:"member"`
}

// MemberUpdateEvent carries the before/after membership snapshots for a nick,
// username, or role change.
type MemberUpdateEvent struct {
	Before Member `json:"before"`
	After  Member `json:"after"`
}

// VoiceStateUpdateEvent reports a member joining, leaving, or moving between
// voice channels. A nil channel means "not in voice".
type VoiceStateUpdateEvent struct {
	Member Member   `json:"member"`
	Before *Channel `json:"before,omitempty"`
	After  *Channel `json:"after,omitempty"`
}

// MessageEditEvent carries the message before and after an edit, plus a
// snapshot of the containing channel for the visibility check.
type MessageEditEvent struct {
	Before  Message `json:"before"`
	After   Message `json:"after"`
	Channel Channel `json:"channel"`
}

// MessageDeleteEvent reports a single message deletion. Channel is a snapshot
// of the containing channel; a zero Channel means it could not be resolved.
type MessageDeleteEvent struct {
	Message Message `json:"message"`
	Channel Channel `json:"channel"`
}

// BulkMessageDeleteEvent reports a batch deletion in one channel. A zero
// Channel means the channel could not be resolved.
type BulkMessageDeleteEvent struct {
	MessageIDs []EntityID `json:"message_ids"`
	Channel    Channel    `json:"channel"`
}

// EmojiUpdateEvent carries the guild emoji list before and after a change.
type EmojiUpdateEvent struct {
	Before []Emoji `json:"before"`
	After  []Emoji `json:"after"`
}

// MessageCensorEvent is emitted by the content filter when it deletes a
// message itself. The correlator logs the censorship and registers a debounce
// so the trailing message-delete event is not logged independently.
type MessageCensorEvent struct {
	Message     Message `json:"message"`
	Channel     Channel `json:"channel"`
	FilterName  string  `json:"filter_name,omitempty"`
	Description string  `json:"description"`
	ShowContent bool    `json:"show_content,omitempty"`
}

// AutoroleEvent reports the outcome of automatic role assignment for a member.
// Failed is set when the assignment could not be performed.
type AutoroleEvent struct {
	Member     Member `json:"member"`
	RolesAdded []Role `json:"roles_added,omitempty"`
	Failed     bool   `json:"failed,omitempty"`
}
