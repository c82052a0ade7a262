package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"confbot/bot/action"
	"confbot/bot/moderation"
	"confbot/bot/store"
	"confbot/core/logger"
	tghelpers "confbot/core/telegram/helpers"
	"confbot/core/telegram/keyboard"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

const composePrompt = "Please type your confession and send it — it will remain anonymous."

// onCallback parses the button payload once and dispatches on the closed
// action set. Admin-only actions are gated before any state is touched.
func (b *Bot) onCallback(c tele.Context) error {
	start := time.Now()
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	act := action.Parse(cb.Data)
	name := "cb_" + act.Kind.String()

	return handleWithSummary(c, name, start, "", func() error {
		return b.dispatchAction(c, act)
	}, slog.String("action", act.Kind.String()))
}

func (b *Bot) dispatchAction(c tele.Context, act action.Action) error {
	ctx := tghelpers.BuildContext(c)
	actorID := c.Sender().ID

	settings, err := b.store.Settings.Get(ctx)
	if err != nil {
		return err
	}

	if act.IsAdminOnly() && !settings.IsAdmin(actorID) {
		logger.Flow.LogAttrs(ctx, slog.LevelWarn, "action.denied",
			slog.String("status", "rejected"),
			slog.String("action", act.Kind.String()),
			slog.Int64("user_id", actorID),
		)
		return c.Respond(&tele.CallbackResponse{Text: "Not authorized."})
	}

	switch act.Kind {
	case action.Compose:
		if err := tghelpers.SendText(c, composePrompt); err != nil {
			return err
		}
		return c.Respond()

	case action.AdminMenu:
		if err := tghelpers.SendKeyboard(c, "Admin Settings:", adminMenu()); err != nil {
			return err
		}
		return c.Respond()

	case action.ViewSettings:
		if err := c.Respond(); err != nil {
			return err
		}
		return tghelpers.SendText(c, formatSettings(settings))

	case action.ToggleAutoPost:
		toggled := !settings.AutoPost
		updated, err := b.store.Settings.Update(ctx, store.SettingsPatch{AutoPost: &toggled})
		if err != nil {
			return err
		}
		return c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf("Auto-post set to %t", updated.AutoPost)})

	case action.ChangeChannel:
		return b.openSession(c, ctx, actorID, store.SessionChangeChannel,
			"Send the new channel username (e.g. @channel) or numeric chat id (-100...) now.")

	case action.ManageAdmins:
		return b.openSession(c, ctx, actorID, store.SessionManageAdmins,
			"Send commands to manage admins:\nadd <telegram_id>\nremove <telegram_id>")

	case action.Blacklist:
		return b.openSession(c, ctx, actorID, store.SessionBlacklist,
			"Send commands:\nadd <word>\nremove <word>\nlist")

	case action.Approve, action.Reject:
		return b.decide(c, ctx, settings, act)
	}

	// Unknown payloads are acknowledged and dropped.
	return c.Respond(&tele.CallbackResponse{Text: "Action received."})
}

func (b *Bot) openSession(c tele.Context, ctx context.Context, adminID int64, sa store.SessionAction, prompt string) error {
	if err := b.store.Sessions.Open(ctx, adminID, sa); err != nil {
		return err
	}
	if err := tghelpers.SendText(c, prompt); err != nil {
		return err
	}
	return c.Respond()
}

func (b *Bot) decide(c tele.Context, ctx context.Context, settings store.Settings, act action.Action) error {
	req := moderation.DecideRequest{
		ConfNumber: act.ConfID,
		Approve:    act.Kind == action.Approve,
		ActorID:    c.Sender().ID,
	}
	if msg := c.Callback().Message; msg != nil && msg.Chat != nil {
		req.Prompt = moderation.PromptRef{ChatID: msg.Chat.ID, MessageID: msg.ID}
	}

	outcome, err := b.flow.Decide(ctx, settings, req)
	if err != nil {
		return err
	}
	return c.Respond(&tele.CallbackResponse{Text: decisionAnswer(outcome, act.ConfID)})
}

// decisionAnswer maps a decision outcome to the short callback answer shown
// as a toast in the moderator's client.
func decisionAnswer(outcome moderation.DecideOutcome, confID int64) string {
	switch outcome {
	case moderation.DecideApproved:
		return fmt.Sprintf("Approved #%d", confID)
	case moderation.DecideRejected:
		return fmt.Sprintf("Rejected #%d", confID)
	case moderation.DecideNotAuthorized:
		return "Not authorized"
	case moderation.DecideMissingID:
		return "Missing id"
	case moderation.DecideNotFound:
		return "Confession not found"
	case moderation.DecideNoChannel:
		return "Channel not configured."
	case moderation.DecideAlreadyDecided:
		return fmt.Sprintf("Confession #%d already decided", confID)
	}
	return "Action received."
}

func adminMenu() *tele.ReplyMarkup {
	return keyboard.RawInline(
		keyboard.RawBtn{Text: "View Settings", Data: action.Marshal(action.ViewSettings)},
		keyboard.RawBtn{Text: "Toggle Auto-Post", Data: action.Marshal(action.ToggleAutoPost)},
		keyboard.RawBtn{Text: "Change Channel", Data: action.Marshal(action.ChangeChannel)},
		keyboard.RawBtn{Text: "Manage Admins", Data: action.Marshal(action.ManageAdmins)},
		keyboard.RawBtn{Text: "Blacklist Words", Data: action.Marshal(action.Blacklist)},
	)
}

// formatSettings renders the settings overview message.
func formatSettings(s store.Settings) string {
	channel := s.ChannelTarget
	if channel == "" {
		channel = "Not set"
	}
	admins := make([]string, len(s.Admins))
	for i, id := range s.Admins {
		admins[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("Settings:\nChannel: %s\nAuto-post: %t\nAdmins: %s\nBlacklist: %s",
		channel, s.AutoPost, strings.Join(admins, ", "), strings.Join(s.Blacklist, ", "))
}
