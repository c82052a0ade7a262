package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"confbot/bot/moderation"
	"confbot/bot/store"
	tg "confbot/core/telegram"
	tghelpers "confbot/core/telegram/helpers"
	"confbot/core/telegram/keyboard"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

const greetingText = "Welcome to Confession Bot!\nSend your confession anonymously. Use buttons or just send a message."

// onText routes a free-text message: an open admin session wins, then slash
// commands, then the message is a new confession.
func (b *Bot) onText(reg *tg.Registry) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		text := c.Text()
		ctx := tghelpers.BuildContext(c)

		sess, err := b.store.Sessions.Peek(ctx, c.Sender().ID)
		if err == nil {
			return handleWithSummary(c, "continuation", start, "", func() error {
				return b.continueSession(c, sess, text)
			}, slog.String("session", string(sess.Action)))
		}
		if !errors.Is(err, store.ErrNotFound) {
			logHandlerSummary(c, "continuation", start, "fail", err)
			return err
		}

		if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
			name := normalizeHandlerName(key)
			return handleWithSummary(c, name, start, "", func() error {
				return cmd.Handler(c)
			})
		}

		if fb := reg.TextFallback(); fb != nil {
			return handleWithSummary(c, "submit", start, "", func() error {
				return fb(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", nil)
		return nil
	}
}

// onPhoto treats a photo as a confession with the caption as its text. Open
// sessions and commands never consume photos.
func (b *Bot) onPhoto(c tele.Context) error {
	start := time.Now()
	return handleWithSummary(c, "submit_photo", start, "", func() error {
		return b.submit(c, c.Message().Caption, true)
	})
}

func (b *Bot) submitText(c tele.Context) error {
	return b.submit(c, c.Text(), false)
}

func (b *Bot) submit(c tele.Context, text string, hasMedia bool) error {
	ctx := tghelpers.BuildContext(c)
	settings, err := b.store.Settings.Get(ctx)
	if err != nil {
		return err
	}
	_, err = b.flow.Submit(ctx, settings, moderation.SubmitRequest{
		AuthorID: c.Sender().ID,
		Text:     text,
		HasMedia: hasMedia,
	})
	return err
}

func (b *Bot) handleStart(c tele.Context) error {
	markup := keyboard.RawInlineRows(
		[]keyboard.RawBtn{{Text: "✍️ Send Confession", Data: "send_confession"}},
		[]keyboard.RawBtn{
			{Text: "📌 Rules", Data: "rules"},
			{Text: "⚙️ Settings", Data: "user_settings"},
		},
	)
	return tghelpers.SendKeyboard(c, greetingText, markup)
}

func (b *Bot) handleMyConfessions(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	list, err := b.store.Confessions.ListByAuthor(ctx, c.Sender().ID, maxListedConfessions)
	if err != nil {
		return err
	}
	return tghelpers.SendText(c, formatConfessionList(list))
}

// formatConfessionList renders the /myconfessions reply, newest first, one
// line per confession with the text truncated.
func formatConfessionList(list []store.Confession) string {
	if len(list) == 0 {
		return "You have no confessions."
	}
	var sb strings.Builder
	sb.WriteString("Your confessions:\n")
	for _, conf := range list {
		body := conf.Body
		if runes := []rune(body); len(runes) > listLineTextLimit {
			body = string(runes[:listLineTextLimit])
		}
		fmt.Fprintf(&sb, "#%d - %s - %s\n", conf.Number, conf.Status, body)
	}
	return sb.String()
}

func (b *Bot) handleDeleteData(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if _, err := b.store.Confessions.DeleteByAuthor(ctx, c.Sender().ID); err != nil {
		return err
	}
	return tghelpers.SendText(c, "Your data has been deleted.")
}

// handleSetChannel is the admin shortcut for changing the channel without
// going through the menu. Non-admins and bare "/setchannel" fall through to
// the submission path, matching how users actually hit this command.
func (b *Bot) handleSetChannel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	settings, err := b.store.Settings.Get(ctx)
	if err != nil {
		return err
	}

	parts := strings.Fields(c.Text())
	if !settings.IsAdmin(c.Sender().ID) || len(parts) < 2 {
		_, err = b.flow.Submit(ctx, settings, moderation.SubmitRequest{
			AuthorID: c.Sender().ID,
			Text:     c.Text(),
		})
		return err
	}

	target := parts[1]
	if _, err := b.store.Settings.Update(ctx, store.SettingsPatch{ChannelTarget: &target}); err != nil {
		return err
	}
	return tghelpers.SendText(c, fmt.Sprintf("Channel set to %s", target))
}
