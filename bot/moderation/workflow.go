// Package moderation implements the confession lifecycle: validated
// anonymous submission, admin fan-out, and the approve/reject decision.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"confbot/bot/store"
	"confbot/core/logger"
	"log/slog"
)

// Texts sent to submitters and moderators.
const (
	msgRateLimited = "You are sending confessions too quickly. Please wait."
	msgEmpty       = "Please send a non-empty confession."
	msgBlacklisted = "Your confession contains disallowed words and was rejected."
)

// AutoDecider marks confessions approved by the auto-post path rather than a
// human moderator.
const AutoDecider = "auto"

// PromptRef points at the moderation prompt message an admin pressed a
// button on, so the decision can be reflected in place.
type PromptRef struct {
	ChatID    int64
	MessageID int
}

// Outbox delivers outbound messages. Implementations must isolate
// per-recipient failures; the workflow treats admin notifications and prompt
// edits as best effort.
type Outbox interface {
	// Ack sends a plain text message to a user.
	Ack(ctx context.Context, userID int64, text string) error
	// NotifyAdmin sends the moderation prompt with approve/reject buttons.
	NotifyAdmin(ctx context.Context, adminID int64, confNumber int64, text string) error
	// Publish posts to the configured channel. Unlike the other methods its
	// failure is surfaced: an approval without a channel post must not
	// transition the confession.
	Publish(ctx context.Context, channel string, text string) error
	// EditPrompt rewrites the moderation prompt after a decision.
	EditPrompt(ctx context.Context, ref PromptRef, text string) error
}

// Config carries the per-deployment knobs the workflow needs.
type Config struct {
	// DefaultChannel is used when settings carry no channel target.
	DefaultChannel string
	// FallbackAdminID receives moderation prompts when the admin set is empty.
	FallbackAdminID int64
	Cooldown        time.Duration
}

// Workflow coordinates stores and the outbox. It holds no per-update state;
// settings are loaded once per invocation by the caller and threaded in.
type Workflow struct {
	store  *store.Store
	outbox Outbox
	cfg    Config
}

func New(st *store.Store, outbox Outbox, cfg Config) *Workflow {
	return &Workflow{store: st, outbox: outbox, cfg: cfg}
}

// SubmitOutcome classifies the result of a submission attempt.
type SubmitOutcome int

const (
	SubmitAccepted SubmitOutcome = iota
	SubmitEmpty
	SubmitRateLimited
	SubmitBlacklisted
)

// SubmitRequest is one anonymous confession attempt.
type SubmitRequest struct {
	AuthorID int64
	Text     string
	HasMedia bool
}

// SubmitResult reports what happened to a submission.
type SubmitResult struct {
	Outcome    SubmitOutcome
	Number     int64
	AutoPosted bool
}

// Submit validates, numbers and persists a confession, acknowledges the
// author, notifies every admin, and auto-posts when enabled. Validation
// failures are reported to the author and leave no state behind except the
// refreshed rate limit timestamp.
func (w *Workflow) Submit(ctx context.Context, settings store.Settings, req SubmitRequest) (SubmitResult, error) {
	allowed, err := w.store.RateLimiter.Allow(ctx, req.AuthorID, w.cfg.Cooldown)
	if err != nil {
		return SubmitResult{}, err
	}
	if !allowed {
		logger.Flow.LogAttrs(ctx, slog.LevelInfo, "submit.rate_limited",
			slog.String("status", "rate_limited"),
			slog.Int64("user_id", req.AuthorID),
		)
		w.ack(ctx, req.AuthorID, msgRateLimited)
		return SubmitResult{Outcome: SubmitRateLimited}, nil
	}

	body := strings.TrimSpace(req.Text)
	if body == "" && !req.HasMedia {
		w.ack(ctx, req.AuthorID, msgEmpty)
		return SubmitResult{Outcome: SubmitEmpty}, nil
	}

	if word, blocked := settings.Blocked(body); blocked {
		logger.Flow.LogAttrs(ctx, slog.LevelInfo, "submit.blacklisted",
			slog.String("status", "rejected"),
			slog.Int64("user_id", req.AuthorID),
			slog.String("payload", logger.SanitizeLimit(word, 64)),
		)
		w.ack(ctx, req.AuthorID, msgBlacklisted)
		return SubmitResult{Outcome: SubmitBlacklisted}, nil
	}

	number, err := w.store.Sequence.Next(ctx)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("assign number: %w", err)
	}
	conf := store.Confession{
		Number:   number,
		Body:     body,
		AuthorID: req.AuthorID,
		HasMedia: req.HasMedia,
		Status:   store.StatusPending,
	}
	if err := w.store.Confessions.Create(ctx, conf); err != nil {
		return SubmitResult{}, fmt.Errorf("persist confession: %w", err)
	}

	logger.Flow.LogAttrs(ctx, slog.LevelInfo, "submit.accepted",
		slog.Int64("conf_id", number),
		slog.Int64("user_id", req.AuthorID),
		slog.Bool("auto_post", settings.AutoPost),
	)

	w.ack(ctx, req.AuthorID, fmt.Sprintf("Received anonymously. Pending approval (ID #%d).", number))

	prompt := fmt.Sprintf("New Confession #%d\nAnonymous:\n\"%s\"", number, body)
	for _, adminID := range w.moderators(settings) {
		if err := w.outbox.NotifyAdmin(ctx, adminID, number, prompt); err != nil {
			logger.Flow.LogAttrs(ctx, slog.LevelWarn, "submit.notify_admin",
				slog.String("status", "fail"),
				slog.Int64("conf_id", number),
				slog.Int64("chat_id", adminID),
				slog.String("err", err.Error()),
			)
		}
	}

	result := SubmitResult{Outcome: SubmitAccepted, Number: number}
	if channel := w.channel(settings); settings.AutoPost && channel != "" {
		if err := w.autoPost(ctx, channel, conf); err != nil {
			logger.Flow.LogAttrs(ctx, slog.LevelWarn, "submit.auto_post",
				slog.String("status", "fail"),
				slog.Int64("conf_id", number),
				slog.String("err", err.Error()),
			)
		} else {
			result.AutoPosted = true
		}
	}
	return result, nil
}

func (w *Workflow) autoPost(ctx context.Context, channel string, conf store.Confession) error {
	if err := w.outbox.Publish(ctx, channel, FormatChannelPost(conf.Number, conf.Body)); err != nil {
		return err
	}
	return w.store.Confessions.Decide(ctx, conf.Number, store.StatusApproved, AutoDecider)
}

// DecideOutcome classifies the result of a moderation decision.
type DecideOutcome int

const (
	DecideApproved DecideOutcome = iota
	DecideRejected
	DecideNotAuthorized
	DecideMissingID
	DecideNotFound
	DecideNoChannel
	DecideAlreadyDecided
)

// DecideRequest is one approve/reject button press.
type DecideRequest struct {
	ConfNumber int64
	Approve    bool
	ActorID    int64
	// Prompt is the message the button lives on; zero value means no edit.
	Prompt PromptRef
}

// Decide authorizes the actor, transitions the confession, publishes on
// approval, and best-effort edits the moderation prompt in place.
func (w *Workflow) Decide(ctx context.Context, settings store.Settings, req DecideRequest) (DecideOutcome, error) {
	if !settings.IsAdmin(req.ActorID) {
		logger.Flow.LogAttrs(ctx, slog.LevelWarn, "decide.denied",
			slog.String("status", "rejected"),
			slog.Int64("user_id", req.ActorID),
			slog.Int64("conf_id", req.ConfNumber),
		)
		return DecideNotAuthorized, nil
	}
	if req.ConfNumber <= 0 {
		return DecideMissingID, nil
	}

	conf, err := w.store.Confessions.Get(ctx, req.ConfNumber)
	if errors.Is(err, store.ErrNotFound) {
		return DecideNotFound, nil
	}
	if err != nil {
		return 0, err
	}
	// Settled confessions must not reach the channel again; the conditional
	// update below still backstops two concurrent pending decisions.
	if conf.Status != store.StatusPending {
		return DecideAlreadyDecided, nil
	}

	decidedBy := strconv.FormatInt(req.ActorID, 10)
	if req.Approve {
		channel := w.channel(settings)
		if channel == "" {
			return DecideNoChannel, nil
		}
		if err := w.outbox.Publish(ctx, channel, FormatChannelPost(conf.Number, conf.Body)); err != nil {
			return 0, fmt.Errorf("publish confession: %w", err)
		}
		if err := w.store.Confessions.Decide(ctx, conf.Number, store.StatusApproved, decidedBy); err != nil {
			if errors.Is(err, store.ErrAlreadyDecided) {
				return DecideAlreadyDecided, nil
			}
			return 0, err
		}
		logger.Flow.LogAttrs(ctx, slog.LevelInfo, "decide.approved",
			slog.Int64("conf_id", conf.Number),
			slog.String("decided_by", decidedBy),
			slog.String("channel", channel),
		)
		w.editPrompt(ctx, req.Prompt, fmt.Sprintf("✅ Approved — Confession #%d\n\"%s\"", conf.Number, conf.Body))
		return DecideApproved, nil
	}

	if err := w.store.Confessions.Decide(ctx, conf.Number, store.StatusRejected, decidedBy); err != nil {
		if errors.Is(err, store.ErrAlreadyDecided) {
			return DecideAlreadyDecided, nil
		}
		return 0, err
	}
	logger.Flow.LogAttrs(ctx, slog.LevelInfo, "decide.rejected",
		slog.Int64("conf_id", conf.Number),
		slog.String("decided_by", decidedBy),
	)
	w.editPrompt(ctx, req.Prompt, fmt.Sprintf("❌ Rejected — Confession #%d\n\"%s\"", conf.Number, conf.Body))
	return DecideRejected, nil
}

// FormatChannelPost renders the public channel form of a confession.
func FormatChannelPost(number int64, body string) string {
	return fmt.Sprintf("#%d\n%s", number, body)
}

// moderators resolves who receives the moderation prompt. An empty admin set
// falls back to the configured bootstrap admin so submissions are never lost.
func (w *Workflow) moderators(settings store.Settings) []int64 {
	if len(settings.Admins) > 0 {
		return settings.Admins
	}
	if w.cfg.FallbackAdminID != 0 {
		return []int64{w.cfg.FallbackAdminID}
	}
	return nil
}

func (w *Workflow) channel(settings store.Settings) string {
	if settings.ChannelTarget != "" {
		return settings.ChannelTarget
	}
	return w.cfg.DefaultChannel
}

func (w *Workflow) ack(ctx context.Context, userID int64, text string) {
	if err := w.outbox.Ack(ctx, userID, text); err != nil {
		logger.Flow.LogAttrs(ctx, slog.LevelWarn, "ack.fail",
			slog.String("status", "fail"),
			slog.Int64("chat_id", userID),
			slog.String("err", err.Error()),
		)
	}
}

func (w *Workflow) editPrompt(ctx context.Context, ref PromptRef, text string) {
	if ref.MessageID == 0 {
		return
	}
	if err := w.outbox.EditPrompt(ctx, ref, text); err != nil {
		logger.Flow.LogAttrs(ctx, slog.LevelDebug, "decide.edit_prompt",
			slog.String("status", "skip"),
			slog.String("err", err.Error()),
		)
	}
}
