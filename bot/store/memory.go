package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// NewMemory returns a fully in-memory Store for tests and development. The
// implementations honor the same atomicity contracts as the Postgres ones.
func NewMemory() *Store {
	return &Store{
		Settings:    &memSettings{},
		Sequence:    &memSequence{},
		RateLimiter: NewMemoryRateLimiter(time.Now),
		Sessions:    &memSessions{sessions: make(map[int64]Session)},
		Confessions: &memConfessions{byNumber: make(map[int64]Confession)},
	}
}

type memSettings struct {
	mu       sync.Mutex
	settings Settings
}

func (s *memSettings) Get(ctx context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSettings(s.settings), nil
}

func (s *memSettings) Update(ctx context.Context, patch SettingsPatch) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if patch.ChannelTarget != nil {
		s.settings.ChannelTarget = *patch.ChannelTarget
	}
	if patch.AutoPost != nil {
		s.settings.AutoPost = *patch.AutoPost
	}
	if patch.Admins != nil {
		s.settings.Admins = append([]int64(nil), (*patch.Admins)...)
	}
	if patch.Blacklist != nil {
		s.settings.Blacklist = append([]string(nil), (*patch.Blacklist)...)
	}
	return cloneSettings(s.settings), nil
}

func cloneSettings(s Settings) Settings {
	out := s
	out.Admins = append([]int64(nil), s.Admins...)
	out.Blacklist = append([]string(nil), s.Blacklist...)
	return out
}

type memSequence struct {
	mu   sync.Mutex
	last int64
}

func (s *memSequence) Next(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last++
	return s.last, nil
}

// MemoryRateLimiter is the in-memory RateLimiter. The clock is injectable so
// tests can step through the cooldown window.
type MemoryRateLimiter struct {
	mu   sync.Mutex
	now  func() time.Time
	seen map[int64]time.Time
}

func NewMemoryRateLimiter(now func() time.Time) *MemoryRateLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryRateLimiter{now: now, seen: make(map[int64]time.Time)}
}

func (r *MemoryRateLimiter) Allow(ctx context.Context, userID int64, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if last, ok := r.seen[userID]; ok && now.Sub(last) < window {
		return false, nil
	}
	r.seen[userID] = now
	return true, nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[int64]Session
}

func (s *memSessions) Open(ctx context.Context, adminID int64, action SessionAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[adminID] = Session{AdminID: adminID, Action: action, OpenedAt: time.Now()}
	return nil
}

func (s *memSessions) Peek(ctx context.Context, adminID int64) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[adminID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *memSessions) Close(ctx context.Context, adminID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, adminID)
	return nil
}

type memConfessions struct {
	mu       sync.Mutex
	byNumber map[int64]Confession
	order    int64
}

func (c *memConfessions) Create(ctx context.Context, conf Confession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conf.Status == "" {
		conf.Status = StatusPending
	}
	if conf.CreatedAt.IsZero() {
		c.order++
		conf.CreatedAt = time.Unix(c.order, 0)
	}
	c.byNumber[conf.Number] = conf
	return nil
}

func (c *memConfessions) Get(ctx context.Context, number int64) (Confession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conf, ok := c.byNumber[number]
	if !ok {
		return Confession{}, ErrNotFound
	}
	return conf, nil
}

func (c *memConfessions) Decide(ctx context.Context, number int64, status Status, decidedBy string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conf, ok := c.byNumber[number]
	if !ok {
		return ErrNotFound
	}
	if conf.Status != StatusPending {
		return ErrAlreadyDecided
	}
	now := time.Now()
	conf.Status = status
	conf.DecidedBy = decidedBy
	conf.UpdatedAt = &now
	c.byNumber[number] = conf
	return nil
}

func (c *memConfessions) ListByAuthor(ctx context.Context, authorID int64, limit int) ([]Confession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Confession
	for _, conf := range c.byNumber {
		if conf.AuthorID == authorID {
			out = append(out, conf)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Number > out[j].Number
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *memConfessions) DeleteByAuthor(ctx context.Context, authorID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for num, conf := range c.byNumber {
		if conf.AuthorID == authorID {
			delete(c.byNumber, num)
			n++
		}
	}
	return n, nil
}
