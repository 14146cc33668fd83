// Package format renders entities and message content into the fixed textual
// shapes used by audit-trail records.
package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/modwatch/modwatch/internal/types"
)

// TimePrefix prepends the wall-clock HH:MM marker so moderators can tell
// exactly when something happened.
func TimePrefix(t time.Time, body string) string {
	return fmt.Sprintf("`[%02d:%02d]` %s", t.Hour(), t.Minute(), body)
}

// DescribeOptions controls what Describe appends after the member's name.
type DescribeOptions struct {
	// Before is a verb phrase inserted right after the name, e.g. "was banned".
	Before string
	// Created appends the account creation age, derived from the snowflake ID.
	Created bool
	// Joined appends how long ago the member joined the guild.
	Joined bool
	// Now anchors the relative times; zero means time.Now.
	Now time.Time
}

// Describe renders a member as "username (id)" with optional verb phrase and
// relative creation/join times.
func Describe(m types.Member, opts DescribeOptions) string {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	var b strings.Builder
	b.WriteString(m.Username)
	if opts.Before != "" {
		b.WriteString(" ")
		b.WriteString(opts.Before)
	}
	fmt.Fprintf(&b, " (%d)", m.ID)
	if opts.Created {
		fmt.Fprintf(&b, ", created %s", humanize.RelTime(types.CreationTime(m.ID), now, "ago", "from now"))
	}
	if opts.Joined && !m.JoinedAt.IsZero() {
		fmt.Fprintf(&b, ", joined %s", humanize.RelTime(m.JoinedAt, now, "ago", "from now"))
	}
	return b.String()
}

// DescribeDifferences renders added and removed items with tick markers, in
// one comma-separated run: added items first, then removed.
func DescribeDifferences[T fmt.Stringer](added, removed []T) string {
	parts := make([]string, 0, len(added)+len(removed))
	for _, item := range added {
		parts = append(parts, "✅ "+item.String())
	}
	for _, item := range removed {
		parts = append(parts, "❌ "+item.String())
	}
	return strings.Join(parts, ", ")
}

// Truncate shortens text to at most n runes, replacing the tail with "..."
// when it had to cut.
func Truncate(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

// PreventCodeblockBreakout wraps backticks in zero-width spaces so quoted
// message content cannot terminate the surrounding code block.
func PreventCodeblockBreakout(text string) string {
	return strings.ReplaceAll(text, "`", "​`​")
}

// Codeblock wraps text in a fenced code block.
func Codeblock(text string) string {
	return fmt.Sprintf("```\n%s\n```", text)
}

// Attachments summarizes a message's attachments with filenames and sizes.
func Attachments(atts []types.Attachment) string {
	if len(atts) == 0 {
		return "no attachments"
	}
	parts := make([]string, len(atts))
	for i, a := range atts {
		parts[i] = fmt.Sprintf("%s, %s", a.Filename, humanize.Bytes(uint64(a.Size)))
	}
	return fmt.Sprintf("%d attachment(s): %s", len(atts), strings.Join(parts, ", "))
}
