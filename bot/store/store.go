// Package store holds all durable bot state. Every invocation is stateless;
// settings, the confession counter, admin sessions and rate limit records
// live here and are the only coordination point across updates.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrAlreadyDecided is returned when a moderation decision targets a
	// confession that is no longer pending.
	ErrAlreadyDecided = errors.New("store: confession already decided")
)

// Status is the moderation state of a confession.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Confession is one anonymous submission.
type Confession struct {
	Number    int64      `db:"number"`
	Body      string     `db:"body"`
	AuthorID  int64      `db:"author_id"`
	HasMedia  bool       `db:"has_media"`
	Status    Status     `db:"status"`
	DecidedBy string     `db:"decided_by"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt *time.Time `db:"updated_at"`
}

// Settings is the singleton bot configuration record. It is always
// materialized: a read against an empty table creates the defaults.
type Settings struct {
	ChannelTarget string
	AutoPost      bool
	Admins        []int64
	Blacklist     []string
}

// IsAdmin reports whether the given user is in the admin set.
func (s Settings) IsAdmin(userID int64) bool {
	for _, id := range s.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

// Blocked returns the first blacklisted word contained in text, matching
// case-insensitively on substrings.
func (s Settings) Blocked(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, w := range s.Blacklist {
		if w == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(w)) {
			return w, true
		}
	}
	return "", false
}

// SettingsPatch is a partial update; nil fields are left untouched so two
// admins changing unrelated fields never clobber each other.
type SettingsPatch struct {
	ChannelTarget *string
	AutoPost      *bool
	Admins        *[]int64
	Blacklist     *[]string
}

// SessionAction names the pending multi-step admin interaction.
type SessionAction string

const (
	SessionChangeChannel SessionAction = "change_channel"
	SessionManageAdmins  SessionAction = "manage_admins"
	SessionBlacklist     SessionAction = "blacklist"
)

// Session is an open admin continuation: the admin pressed a menu button and
// the bot is waiting for their next message.
type Session struct {
	AdminID  int64         `db:"admin_id"`
	Action   SessionAction `db:"action"`
	OpenedAt time.Time     `db:"opened_at"`
}

// SettingsStore reads and partially updates the singleton settings record.
type SettingsStore interface {
	Get(ctx context.Context) (Settings, error)
	Update(ctx context.Context, patch SettingsPatch) (Settings, error)
}

// Sequence issues unique, strictly increasing confession numbers. Next is
// the single linearizable operation in the system.
type Sequence interface {
	Next(ctx context.Context) (int64, error)
}

// RateLimiter permits at most one submission per user per cooldown window.
// The permission check and the timestamp refresh are a single atomic step.
type RateLimiter interface {
	Allow(ctx context.Context, userID int64, window time.Duration) (bool, error)
}

// Sessions manages at most one open continuation per admin.
type Sessions interface {
	Open(ctx context.Context, adminID int64, action SessionAction) error
	Peek(ctx context.Context, adminID int64) (Session, error)
	Close(ctx context.Context, adminID int64) error
}

// Confessions persists submissions and their moderation decisions.
type Confessions interface {
	Create(ctx context.Context, conf Confession) error
	Get(ctx context.Context, number int64) (Confession, error)
	// Decide transitions a pending confession to the given status. It
	// returns ErrNotFound if the confession does not exist and
	// ErrAlreadyDecided if another moderator got there first.
	Decide(ctx context.Context, number int64, status Status, decidedBy string) error
	// ListByAuthor returns the author's confessions, newest first.
	ListByAuthor(ctx context.Context, authorID int64, limit int) ([]Confession, error)
	DeleteByAuthor(ctx context.Context, authorID int64) (int64, error)
}

// Store bundles every durable collection behind one handle.
type Store struct {
	Settings    SettingsStore
	Sequence    Sequence
	RateLimiter RateLimiter
	Sessions    Sessions
	Confessions Confessions
}
