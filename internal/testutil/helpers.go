// Package testutil provides shared test fakes for the modwatch project:
// an in-memory sink, a scripted audit-log querier, and member builders.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"

	"github.com/modwatch/modwatch/internal/auditlog"
	"github.com/modwatch/modwatch/internal/sink"
	"github.com/modwatch/modwatch/internal/types"
)

// SnowflakeAt builds an EntityID whose embedded creation time is t. Useful
// for members whose account age matters to a test.
func SnowflakeAt(t time.Time) types.EntityID {
	return snowflake.ID((t.UnixMilli() - snowflake.Epoch) << 22)
}

// MemberCreatedAt builds a member whose snowflake encodes the given account
// creation time.
func MemberCreatedAt(username string, createdAt time.Time) types.Member {
	return types.Member{ID: SnowflakeAt(createdAt), Username: username}
}

// Record is one body delivered to a MemorySink, tracking amendments.
type Record struct {
	Handle  sink.Handle
	Body    string
	Amended int // number of Amend calls applied to this record
}

// MemorySink is a Sink capturing records in memory. Safe for concurrent use.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Send(_ context.Context, guildID types.EntityID, body string) (sink.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := sink.Handle{ID: uuid.New(), GuildID: guildID}
	s.records = append(s.records, Record{Handle: h, Body: body})
	return h, nil
}

func (s *MemorySink) Amend(_ context.Context, h sink.Handle, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].Handle.ID == h.ID {
			s.records[i].Body = body
			s.records[i].Amended++
			return nil
		}
	}
	return nil
}

// Records returns a copy of everything delivered so far.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Bodies returns the current body text of every record, in send order.
func (s *MemorySink) Bodies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = r.Body
	}
	return out
}

// ScriptedQuerier returns canned audit entries per action kind. Safe for
// concurrent use; entries may be added while the correlator is running.
type ScriptedQuerier struct {
	mu      sync.Mutex
	entries map[types.ActionKind][]types.AuditEntry
	err     error
}

// NewScriptedQuerier creates an empty ScriptedQuerier.
func NewScriptedQuerier() *ScriptedQuerier {
	return &ScriptedQuerier{entries: make(map[types.ActionKind][]types.AuditEntry)}
}

// AddEntry prepends an entry for action, making it the newest.
func (q *ScriptedQuerier) AddEntry(action types.ActionKind, entry types.AuditEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[action] = append([]types.AuditEntry{entry}, q.entries[action]...)
}

// Fail makes every subsequent query return err.
func (q *ScriptedQuerier) Fail(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

func (q *ScriptedQuerier) Query(_ context.Context, _ types.EntityID, action types.ActionKind, limit int) ([]types.AuditEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	entries := q.entries[action]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]types.AuditEntry, len(entries))
	copy(out, entries)
	return out, nil
}

var (
	_ auditlog.Querier = (*ScriptedQuerier)(nil)
	_ sink.Sink        = (*MemorySink)(nil)
)
