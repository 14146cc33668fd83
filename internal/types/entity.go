package types

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// EntityID is the opaque numeric identity of a member, channel, message, role,
// emoji, or guild. IDs are snowflakes: the creation instant is recoverable from
// the ID itself, which is how account age is derived without an extra lookup.
type EntityID = snowflake.ID

// CreationTime returns the instant encoded in a snowflake ID.
func CreationTime(id EntityID) time.Time {
	return time.UnixMilli(id.Time())
}

// Role is a named permission group within a guild.
type Role struct {
	ID   EntityID `json:"id"`
	Name string   `json:"name"`
}

func (r Role) String() string {
	return fmt.Sprintf("%s (%d)", r.Name, r.ID)
}

// Emoji is a guild-scoped custom emoji.
type Emoji struct {
	ID   EntityID `json:"id"`
	Name string   `json:"name"`
}

func (e Emoji) String() string {
	return fmt.Sprintf(":%s: (%d)", e.Name, e.ID)
}

// Member is a user's membership record within one guild. Distinct from a bare
// user identity: JoinedAt and Roles only exist in a guild context. A departed
// or banned user may surface with a zero JoinedAt and no roles.
type Member struct {
	ID            EntityID  `json:"id"`
	Username      string    `json:"username"`
	Nick          string    `json:"nick,omitempty"`
	Bot           bool      `json:"bot,omitempty"`
	DefaultAvatar bool      `json:"default_avatar,omitempty"`
	JoinedAt      time.Time `json:"joined_at,omitzero"`
	Roles         []Role    `json:"roles,omitempty"`
}

// DisplayName returns the nick when set, otherwise the username.
func (m Member) DisplayName() string {
	if m.Nick != "" {
		return m.Nick
	}
	return m.Username
}

// String renders the canonical "name (id)" form used in log bodies.
func (m Member) String() string {
	return fmt.Sprintf("%s (%d)", m.Username, m.ID)
}

// PermissionOverwrite is a channel-level permission override for one principal
// (a role or a member). Only read visibility matters to this engine.
type PermissionOverwrite struct {
	PrincipalID EntityID `json:"principal_id"`
	DenyRead    bool     `json:"deny_read,omitempty"`
}

// Channel is a guild text or voice channel.
type Channel struct {
	ID         EntityID              `json:"id"`
	GuildID    EntityID              `json:"guild_id"`
	Name       string                `json:"name"`
	Voice      bool                  `json:"voice,omitempty"`
	Overwrites []PermissionOverwrite `json:"overwrites,omitempty"`
}

func (c Channel) String() string {
	return fmt.Sprintf("#%s (%d)", c.Name, c.ID)
}

// EveryoneOverwrite returns the overwrite for the guild-wide "everyone"
// principal, whose ID always equals the guild ID, or nil if none exists.
func (c Channel) EveryoneOverwrite() *PermissionOverwrite {
	for i := range c.Overwrites {
		if c.Overwrites[i].PrincipalID == c.GuildID {
			return &c.Overwrites[i]
		}
	}
	return nil
}

// Attachment is a file attached to a message.
type Attachment struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Message is a chat message as seen at one instant.
type Message struct {
	ID          EntityID     `json:"id"`
	ChannelID   EntityID     `json:"channel_id"`
	GuildID     EntityID     `json:"guild_id"`
	Author      Member       `json:"author"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	EmbedCount  int          `json:"embed_count,omitempty"`
}
