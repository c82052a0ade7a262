package handlers

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"

	"confbot/bot/action"
	"confbot/bot/moderation"
	"confbot/core/logger"
	tghelpers "confbot/core/telegram/helpers"
	"confbot/core/telegram/keyboard"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// channelRef lets a settings value like "@confessions" or "-1001234" be used
// as a send target without resolving the chat first.
type channelRef string

func (r channelRef) Recipient() string { return string(r) }

// TeleOutbox delivers workflow messages through the Telegram bot API. The
// bot handle is bound at startup, after the transport is built.
type TeleOutbox struct {
	api atomic.Pointer[tele.Bot]
}

func NewTeleOutbox() *TeleOutbox {
	return &TeleOutbox{}
}

// Bind attaches the running bot. Deliveries before Bind fail.
func (o *TeleOutbox) Bind(bot *tele.Bot) {
	o.api.Store(bot)
}

var errNotBound = errors.New("outbox: bot not bound")

func (o *TeleOutbox) bot() (*tele.Bot, error) {
	bot := o.api.Load()
	if bot == nil {
		return nil, errNotBound
	}
	return bot, nil
}

// Ack sends a plain message to a user, asynchronously when a dispatcher is
// wired.
func (o *TeleOutbox) Ack(ctx context.Context, userID int64, text string) error {
	bot, err := o.bot()
	if err != nil {
		return err
	}
	run := func() error {
		_, err := bot.Send(tele.ChatID(userID), text)
		return err
	}
	if disp := tghelpers.Dispatcher(); disp != nil {
		if err := disp.Enqueue(ctx, "ack", "sendMessage", run); err == nil {
			return nil
		}
	}
	return run()
}

// NotifyAdmin sends the moderation prompt with approve/reject buttons and a
// shortcut into the admin menu.
func (o *TeleOutbox) NotifyAdmin(ctx context.Context, adminID int64, confNumber int64, text string) error {
	bot, err := o.bot()
	if err != nil {
		return err
	}
	markup := keyboard.RawInlineRows(
		[]keyboard.RawBtn{
			{Text: "✅ Approve", Data: action.MarshalConf(action.Approve, confNumber)},
			{Text: "❌ Reject", Data: action.MarshalConf(action.Reject, confNumber)},
		},
		[]keyboard.RawBtn{
			{Text: "⚙️ Settings", Data: action.Marshal(action.AdminMenu)},
		},
	)
	_, err = bot.Send(tele.ChatID(adminID), text, markup)
	return err
}

// Publish posts to the channel synchronously; approval depends on the result.
func (o *TeleOutbox) Publish(ctx context.Context, channel string, text string) error {
	bot, err := o.bot()
	if err != nil {
		return err
	}
	_, err = bot.Send(channelRef(channel), text)
	if err == nil {
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "channel.post",
			slog.String("channel", channel),
		)
	}
	return err
}

// EditPrompt rewrites a moderation prompt in place after a decision.
func (o *TeleOutbox) EditPrompt(ctx context.Context, ref moderation.PromptRef, text string) error {
	bot, err := o.bot()
	if err != nil {
		return err
	}
	msg := tele.StoredMessage{
		MessageID: strconv.Itoa(ref.MessageID),
		ChatID:    ref.ChatID,
	}
	_, err = bot.Edit(msg, text)
	return err
}
