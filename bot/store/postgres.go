package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"confbot/core/logger"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// NewPostgres wires every collection to the given database handle.
func NewPostgres(db *sqlx.DB) *Store {
	return &Store{
		Settings:    &pgSettings{db: db},
		Sequence:    &pgSequence{db: db},
		RateLimiter: &pgRateLimiter{db: db},
		Sessions:    &pgSessions{db: db},
		Confessions: &pgConfessions{db: db},
	}
}

type pgSettings struct {
	db *sqlx.DB
}

type settingsRow struct {
	ChannelTarget string         `db:"channel_target"`
	AutoPost      bool           `db:"auto_post"`
	Admins        pq.Int64Array  `db:"admins"`
	Blacklist     pq.StringArray `db:"blacklist"`
}

func (r settingsRow) toSettings() Settings {
	return Settings{
		ChannelTarget: r.ChannelTarget,
		AutoPost:      r.AutoPost,
		Admins:        []int64(r.Admins),
		Blacklist:     []string(r.Blacklist),
	}
}

// Get returns the singleton settings record, materializing empty defaults on
// first read.
func (s *pgSettings) Get(ctx context.Context) (Settings, error) {
	const q = `SELECT channel_target, auto_post, admins, blacklist FROM settings WHERE id`

	var row settingsRow
	err := s.db.GetContext(ctx, &row, q)
	if errors.Is(err, sql.ErrNoRows) {
		const ins = `
			INSERT INTO settings (id) VALUES (TRUE)
			ON CONFLICT (id) DO NOTHING`
		if _, insErr := s.db.ExecContext(ctx, ins); insErr != nil {
			return Settings{}, fmt.Errorf("settings init: %w", insErr)
		}
		err = s.db.GetContext(ctx, &row, q)
	}
	if err != nil {
		return Settings{}, fmt.Errorf("settings get: %w", err)
	}
	return row.toSettings(), nil
}

// Update applies a partial merge: only non-nil patch fields touch the row.
func (s *pgSettings) Update(ctx context.Context, patch SettingsPatch) (Settings, error) {
	if _, err := s.Get(ctx); err != nil {
		return Settings{}, err
	}

	const q = `
		UPDATE settings SET
			channel_target = COALESCE($1, channel_target),
			auto_post      = COALESCE($2, auto_post),
			admins         = COALESCE($3, admins),
			blacklist      = COALESCE($4, blacklist)
		WHERE id
		RETURNING channel_target, auto_post, admins, blacklist`

	var (
		admins    *pq.Int64Array
		blacklist *pq.StringArray
	)
	if patch.Admins != nil {
		arr := pq.Int64Array(*patch.Admins)
		admins = &arr
	}
	if patch.Blacklist != nil {
		arr := pq.StringArray(*patch.Blacklist)
		blacklist = &arr
	}

	var row settingsRow
	if err := s.db.GetContext(ctx, &row, q, patch.ChannelTarget, patch.AutoPost, admins, blacklist); err != nil {
		return Settings{}, fmt.Errorf("settings update: %w", err)
	}

	logger.Store.LogAttrs(ctx, slog.LevelInfo, "settings.update",
		slog.String("channel", row.ChannelTarget),
		slog.Bool("auto_post", row.AutoPost),
		slog.Int("admins", len(row.Admins)),
	)
	return row.toSettings(), nil
}

type pgSequence struct {
	db *sqlx.DB
}

// Next issues the next confession number with a single atomic upsert. The
// counter row is the one linearizable record in the schema; concurrent
// submissions serialize on its row lock.
func (s *pgSequence) Next(ctx context.Context) (int64, error) {
	const q = `
		INSERT INTO conf_counter (id, last) VALUES (TRUE, 1)
		ON CONFLICT (id) DO UPDATE SET last = conf_counter.last + 1
		RETURNING last`

	var next int64
	if err := s.db.GetContext(ctx, &next, q); err != nil {
		return 0, fmt.Errorf("sequence next: %w", err)
	}
	return next, nil
}

type pgRateLimiter struct {
	db *sqlx.DB
}

// Allow grants the submission and refreshes the timestamp in one statement.
// The conditional upsert returns a row only when the window has passed.
func (r *pgRateLimiter) Allow(ctx context.Context, userID int64, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}

	const q = `
		INSERT INTO rate_limits (user_id, last_at) VALUES ($1, now())
		ON CONFLICT (user_id) DO UPDATE SET last_at = now()
		WHERE rate_limits.last_at <= now() - make_interval(secs => $2)
		RETURNING user_id`

	var id int64
	err := r.db.GetContext(ctx, &id, q, userID, window.Seconds())
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("rate limit check: %w", err)
	}
	return true, nil
}

type pgSessions struct {
	db *sqlx.DB
}

// Open creates or replaces the admin's continuation; at most one is open per
// admin at any time.
func (s *pgSessions) Open(ctx context.Context, adminID int64, action SessionAction) error {
	const q = `
		INSERT INTO admin_sessions (admin_id, action, opened_at) VALUES ($1, $2, now())
		ON CONFLICT (admin_id) DO UPDATE SET action = $2, opened_at = now()`

	if _, err := s.db.ExecContext(ctx, q, adminID, string(action)); err != nil {
		return fmt.Errorf("session open: %w", err)
	}
	logger.Store.LogAttrs(ctx, slog.LevelDebug, "session.open",
		slog.Int64("user_id", adminID),
		slog.String("session", string(action)),
	)
	return nil
}

func (s *pgSessions) Peek(ctx context.Context, adminID int64) (Session, error) {
	const q = `SELECT admin_id, action, opened_at FROM admin_sessions WHERE admin_id = $1`

	var sess Session
	err := s.db.GetContext(ctx, &sess, q, adminID)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("session peek: %w", err)
	}
	return sess, nil
}

func (s *pgSessions) Close(ctx context.Context, adminID int64) error {
	const q = `DELETE FROM admin_sessions WHERE admin_id = $1`

	if _, err := s.db.ExecContext(ctx, q, adminID); err != nil {
		return fmt.Errorf("session close: %w", err)
	}
	return nil
}

type pgConfessions struct {
	db *sqlx.DB
}

func (c *pgConfessions) Create(ctx context.Context, conf Confession) error {
	const q = `
		INSERT INTO confessions (number, body, author_id, has_media, status, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`

	status := conf.Status
	if status == "" {
		status = StatusPending
	}
	if _, err := c.db.ExecContext(ctx, q, conf.Number, conf.Body, conf.AuthorID, conf.HasMedia, string(status)); err != nil {
		return fmt.Errorf("confession create: %w", err)
	}
	return nil
}

func (c *pgConfessions) Get(ctx context.Context, number int64) (Confession, error) {
	const q = `
		SELECT number, body, author_id, has_media, status, decided_by, created_at, updated_at
		FROM confessions WHERE number = $1`

	var conf Confession
	err := c.db.GetContext(ctx, &conf, q, number)
	if errors.Is(err, sql.ErrNoRows) {
		return Confession{}, ErrNotFound
	}
	if err != nil {
		return Confession{}, fmt.Errorf("confession get: %w", err)
	}
	return conf, nil
}

// Decide flips a pending confession exactly once. The status guard in the
// WHERE clause makes concurrent decisions race safely: the loser sees zero
// rows and gets ErrAlreadyDecided.
func (c *pgConfessions) Decide(ctx context.Context, number int64, status Status, decidedBy string) error {
	const q = `
		UPDATE confessions
		SET status = $2, decided_by = $3, updated_at = now()
		WHERE number = $1 AND status = 'pending'`

	res, err := c.db.ExecContext(ctx, q, number, string(status), decidedBy)
	if err != nil {
		return fmt.Errorf("confession decide: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("confession decide: %w", err)
	}
	if n == 0 {
		if _, getErr := c.Get(ctx, number); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrAlreadyDecided
	}
	return nil
}

func (c *pgConfessions) ListByAuthor(ctx context.Context, authorID int64, limit int) ([]Confession, error) {
	const q = `
		SELECT number, body, author_id, has_media, status, decided_by, created_at, updated_at
		FROM confessions
		WHERE author_id = $1
		ORDER BY created_at DESC, number DESC
		LIMIT $2`

	var out []Confession
	if err := c.db.SelectContext(ctx, &out, q, authorID, limit); err != nil {
		return nil, fmt.Errorf("confession list: %w", err)
	}
	return out, nil
}

func (c *pgConfessions) DeleteByAuthor(ctx context.Context, authorID int64) (int64, error) {
	const q = `DELETE FROM confessions WHERE author_id = $1`

	res, err := c.db.ExecContext(ctx, q, authorID)
	if err != nil {
		return 0, fmt.Errorf("confession delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("confession delete: %w", err)
	}
	logger.Store.LogAttrs(ctx, slog.LevelInfo, "confession.purge",
		slog.Int64("user_id", authorID),
		slog.Int64("count", n),
	)
	return n, nil
}
