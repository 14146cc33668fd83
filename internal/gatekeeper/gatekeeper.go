// Package gatekeeper gates member admission on an ordered chain of pure
// checks over the joining member and the guild's settings. Checks run
// sequentially and the chain short-circuits on the first block; a check with
// a malformed configuration value reports the problem and is skipped rather
// than failing the join.
package gatekeeper

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/modwatch/modwatch/internal/types"
)

// Context is the typed input every check receives.
type Context struct {
	Member   types.Member
	Settings types.GuildSettings
	// Now anchors age calculations; zero means time.Now.
	Now time.Time
}

// Result is a check's outcome. The zero value means pass. BlockReason and
// Report are mutually exclusive by convention.
type Result struct {
	// BlockReason, when non-empty, denies admission with this reason.
	BlockReason string
	// Report, when non-empty, is a message for moderators; the check itself
	// is treated as skipped.
	Report string
}

// Check is one admission predicate. Enabled reports whether the guild has
// configured it; disabled checks are skipped silently.
type Check interface {
	Name() string
	Enabled(settings types.GuildSettings) bool
	Check(cc Context) Result
}

// Decision is the aggregate outcome of running the chain.
type Decision struct {
	Blocked     bool
	BlockReason string
	// Reports collects messages from checks that could not run.
	Reports []string
}

// DefaultChecks returns the built-in chain in evaluation order.
func DefaultChecks() []Check {
	return []Check{
		defaultAvatarCheck{},
		accountAgeCheck{},
		blockAllCheck{},
		usernameRegexCheck{},
	}
}

// Evaluate runs checks in order against cc. The first block stops the chain.
func Evaluate(checks []Check, cc Context) Decision {
	if cc.Now.IsZero() {
		cc.Now = time.Now()
	}

	var d Decision
	for _, check := range checks {
		if !check.Enabled(cc.Settings) {
			continue
		}
		res := check.Check(cc)
		if res.Report != "" {
			d.Reports = append(d.Reports, res.Report)
		}
		if res.BlockReason != "" {
			d.Blocked = true
			d.BlockReason = res.BlockReason
			return d
		}
	}
	return d
}

type defaultAvatarCheck struct{}

func (defaultAvatarCheck) Name() string { return "block_default_avatar" }

func (defaultAvatarCheck) Enabled(s types.GuildSettings) bool { return s.BlockDefaultAvatar }

func (defaultAvatarCheck) Check(cc Context) Result {
	if cc.Member.DefaultAvatar {
		return Result{BlockReason: "Has default avatar"}
	}
	return Result{}
}

type accountAgeCheck struct{}

func (accountAgeCheck) Name() string { return "minimum_account_age" }

func (accountAgeCheck) Enabled(s types.GuildSettings) bool { return s.MinimumAccountAge != "" }

func (accountAgeCheck) Check(cc Context) Result {
	required, err := strconv.ParseInt(cc.Settings.MinimumAccountAge, 10, 64)
	if err != nil {
		return Result{Report: "Invalid minimum account age, must be a valid number."}
	}
	age := cc.Now.Sub(types.CreationTime(cc.Member.ID))
	if int64(age.Seconds()) < required {
		return Result{BlockReason: fmt.Sprintf(
			"Failed minimum account age check (%d < %d)", int64(age.Seconds()), required)}
	}
	return Result{}
}

type blockAllCheck struct{}

func (blockAllCheck) Name() string { return "block_all" }

func (blockAllCheck) Enabled(s types.GuildSettings) bool { return s.BlockAll }

func (blockAllCheck) Check(Context) Result {
	return Result{BlockReason: "Blocking all users"}
}

type usernameRegexCheck struct{}

func (usernameRegexCheck) Name() string { return "username_regex" }

func (usernameRegexCheck) Enabled(s types.GuildSettings) bool { return s.UsernameRegex != "" }

func (usernameRegexCheck) Check(cc Context) Result {
	re, err := regexp.Compile(cc.Settings.UsernameRegex)
	if err != nil {
		return Result{Report: fmt.Sprintf("username_regex was invalid: `%v`, ignoring this check.", err)}
	}
	if re.MatchString(cc.Member.Username) {
		return Result{BlockReason: "Matched username regex"}
	}
	return Result{}
}
