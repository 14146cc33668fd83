package configstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/modwatch/modwatch/internal/types"
)

// Hash fields recognized in a guild's settings hash. Unknown fields are
// ignored so operators can store unrelated data alongside.
const (
	fieldLogAllMessageEvents = "log_all_message_events"
	fieldNoTrackEdits        = "modlog_notrack_edits"
	fieldNoTrackDeletes      = "modlog_notrack_deletes"
	fieldAllowBotDeletes     = "modlog_filter_allow_bot"
	fieldGatekeeperEnabled   = "gatekeeper_enabled"
	fieldBlockAll            = "block_all"
	fieldBlockDefaultAvatar  = "block_default_avatar"
	fieldMinimumAccountAge   = "minimum_account_age"
	fieldUsernameRegex       = "username_regex"
	fieldBounceMessage       = "bounce_message"
)

// RedisStore reads guild settings from a Redis hash at
// "modwatch:config:<guildID>".
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Store backed by the given Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Settings fetches and parses the settings hash for guildID. A missing hash
// yields zero-value settings. Malformed boolean values parse as false.
func (s *RedisStore) Settings(ctx context.Context, guildID types.EntityID) (types.GuildSettings, error) {
	fields, err := s.client.HGetAll(ctx, configKey(guildID)).Result()
	if err != nil {
		return types.GuildSettings{}, fmt.Errorf("fetch guild settings: %w", err)
	}

	return types.GuildSettings{
		LogAllMessageEvents: parseBool(fields[fieldLogAllMessageEvents]),
		NoTrackEdits:        parseBool(fields[fieldNoTrackEdits]),
		NoTrackDeletes:      parseBool(fields[fieldNoTrackDeletes]),
		AllowBotDeletes:     parseBool(fields[fieldAllowBotDeletes]),
		GatekeeperEnabled:   parseBool(fields[fieldGatekeeperEnabled]),
		BlockAll:            parseBool(fields[fieldBlockAll]),
		BlockDefaultAvatar:  parseBool(fields[fieldBlockDefaultAvatar]),
		MinimumAccountAge:   fields[fieldMinimumAccountAge],
		UsernameRegex:       fields[fieldUsernameRegex],
		BounceMessage:       fields[fieldBounceMessage],
	}, nil
}

func configKey(guildID types.EntityID) string {
	return fmt.Sprintf("modwatch:config:%d", guildID)
}

// parseBool maps a stored flag value to a bool. Anything strconv does not
// recognize, including the empty string, counts as false.
func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
