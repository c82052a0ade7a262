package middleware

import (
	"sync"
	"time"

	"confbot/core/logger"
	"log/slog"

	tele "gopkg.in/telebot.v4"
	"golang.org/x/time/rate"
)

// FloodOptions configures the per-user flood guard.
type FloodOptions struct {
	// Interval is the minimum spacing between updates from one user.
	Interval time.Duration
	Burst    int
	// Exclude lists update kinds exempt from the guard ("callback",
	// "message", "inline_query"). Callbacks are usually excluded so a
	// moderator tapping approve buttons is never throttled.
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

type limiterPool struct {
	mu   sync.Mutex
	m    map[int64]*rate.Limiter
	opts FloodOptions
}

func (p *limiterPool) get(userID int64) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[userID]; ok {
		return l
	}
	burst := p.opts.Burst
	if burst <= 0 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Every(p.opts.Interval), burst)
	p.m[userID] = l
	return l
}

func (p *limiterPool) Allow(userID int64) bool {
	return p.get(userID).Allow()
}

// FloodGuardMiddleware enforces a minimum interval between updates from the
// same user. This is transport-level protection only; the submission cooldown
// is enforced durably in the store and survives restarts.
func FloodGuardMiddleware(opts FloodOptions) tele.MiddlewareFunc {
	pool := &limiterPool{
		m:    make(map[int64]*rate.Limiter),
		opts: opts,
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}

			upd := c.Update()
			kind := "other"
			switch {
			case upd.Callback != nil:
				kind = "callback"
			case upd.Message != nil:
				kind = "message"
			case upd.Query != nil:
				kind = "inline_query"
			}
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}

			if !pool.Allow(user.ID) {
				attrs := []slog.Attr{
					slog.String("event", "tg.flood"),
					slog.String("status", "rate_limited"),
					slog.Int64("user_id", user.ID),
				}
				if chat := c.Chat(); chat != nil {
					attrs = append(attrs, slog.Int64("chat_id", chat.ID))
				}
				logger.TG.LogAttrs(logger.Background(), slog.LevelWarn, "flood guard", attrs...)
				if opts.OnLimited != nil {
					_ = opts.OnLimited(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
