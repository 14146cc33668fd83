package types

import "time"

// ActionKind identifies a moderation action category in the external audit log.
type ActionKind string

const (
	ActionBan              ActionKind = "ban"
	ActionUnban            ActionKind = "unban"
	ActionKick             ActionKind = "kick"
	ActionMemberRoleUpdate ActionKind = "member_role_update"
)

// AuditEntry is one record returned by the external audit-log service.
type AuditEntry struct {
	TargetID  EntityID
	Actor     Member
	Reason    string
	CreatedAt time.Time
}

// ResponsibleActor is the resolved outcome of an attribution query: the actor
// that performed an action, plus any free-text reason they attached.
type ResponsibleActor struct {
	Actor  Member
	Reason string
}

// GuildSettings is the typed per-guild configuration record consumed by this
// engine. Unset fields fall back to zero values, which all mean "feature in
// its default state". Malformed stored values must be surfaced as zero values
// by the store, never as errors.
type GuildSettings struct {
	// LogAllMessageEvents forces every channel to be treated as publicly
	// visible for edit/delete logging.
	LogAllMessageEvents bool

	// NoTrackEdits disables message-edit records for the guild.
	NoTrackEdits bool

	// NoTrackDeletes disables message-delete records for the guild.
	NoTrackDeletes bool

	// AllowBotDeletes logs deletions of bot-authored messages, which are
	// skipped by default.
	AllowBotDeletes bool

	// Gatekeeper checks. An unset field disables the corresponding check.
	GatekeeperEnabled  bool
	BlockAll           bool
	BlockDefaultAvatar bool
	MinimumAccountAge  string // seconds, free text as stored; non-numeric reports and skips
	UsernameRegex      string
	BounceMessage      string
}
