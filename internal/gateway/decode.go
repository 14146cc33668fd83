package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modwatch/modwatch/internal/types"
)

var (
	// ErrMissingKind reports an envelope without a kind field.
	ErrMissingKind = errors.New("gateway: envelope has no kind")
	// ErrMissingGuild reports an envelope without a guild ID. Direct-message
	// events carry no guild and are not this engine's concern.
	ErrMissingGuild = errors.New("gateway: envelope has no guild id")
	// ErrPayloadMismatch reports an envelope whose payload field does not
	// match its declared kind.
	ErrPayloadMismatch = errors.New("gateway: payload does not match kind")
)

// Decode parses a JSON envelope into an event, validating that the payload
// matches the declared kind.
func Decode(data []byte) (types.Event, error) {
	var ev types.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return types.Event{}, fmt.Errorf("gateway: unmarshal envelope: %w", err)
	}
	if ev.Kind == "" {
		return types.Event{}, ErrMissingKind
	}
	if ev.GuildID == 0 {
		return types.Event{}, ErrMissingGuild
	}
	if ev.Payload() == nil {
		return types.Event{}, fmt.Errorf("%w: kind %q", ErrPayloadMismatch, ev.Kind)
	}
	return ev, nil
}
