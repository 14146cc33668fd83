// Package diff computes set differences between two ordered snapshots of a
// collection (roles, emoji). Identity is the only equality criterion: renames
// of an existing entity produce an empty diff and are not detected.
package diff

import "github.com/modwatch/modwatch/internal/types"

// Diff returns the elements of after absent from before (in after's order) and
// the elements of before absent from after (in before's order), compared by
// the key function. Pure and total; equal snapshots yield two empty results,
// which callers must treat as "no meaningful change".
func Diff[T any, K comparable](before, after []T, key func(T) K) (added, removed []T) {
	beforeKeys := make(map[K]struct{}, len(before))
	for _, v := range before {
		beforeKeys[key(v)] = struct{}{}
	}
	afterKeys := make(map[K]struct{}, len(after))
	for _, v := range after {
		afterKeys[key(v)] = struct{}{}
	}
	for _, v := range after {
		if _, ok := beforeKeys[key(v)]; !ok {
			added = append(added, v)
		}
	}
	for _, v := range before {
		if _, ok := afterKeys[key(v)]; !ok {
			removed = append(removed, v)
		}
	}
	return added, removed
}

// Roles diffs two role snapshots by role ID.
func Roles(before, after []types.Role) (added, removed []types.Role) {
	return Diff(before, after, func(r types.Role) types.EntityID { return r.ID })
}

// Emoji diffs two emoji snapshots by emoji ID.
func Emoji(before, after []types.Emoji) (added, removed []types.Emoji) {
	return Diff(before, after, func(e types.Emoji) types.EntityID { return e.ID })
}
